package clouds

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/imamik/alpine-cloud-images/internal/config"
	"github.com/imamik/alpine-cloud-images/internal/image"
	"github.com/imamik/alpine-cloud-images/internal/platform/hcloud"
	"github.com/imamik/alpine-cloud-images/internal/platform/ssh"
	"github.com/imamik/alpine-cloud-images/internal/tags"
	"github.com/imamik/alpine-cloud-images/internal/util/keygen"
	"github.com/imamik/alpine-cloud-images/internal/util/labels"
	"github.com/imamik/alpine-cloud-images/internal/util/logx"
	"github.com/imamik/alpine-cloud-images/internal/util/naming"
	"github.com/imamik/alpine-cloud-images/internal/util/retry"
)

// HetznerRegion is the artifact key of Hetzner snapshots, which are usable
// in every location.
const HetznerRegion = "global"

const (
	hetznerBaseImage = "debian-12"
	hetznerLocation  = "fsn1"
	// findDisk prints the first virtual disk of the rescue system.
	findDisk = `lsblk -d -n -o NAME,TYPE | awk '$2 == "disk" && $1 ~ /^(sd|vd)/ {print $1; exit}'`
)

var hetznerActions = []string{
	image.StepLocal, image.StepUpload, image.StepImport, image.StepPublish, image.StepRelease,
}

// Shell runs commands on the rescue system.
type Shell interface {
	Execute(ctx context.Context, command string) (string, error)
	Stream(ctx context.Context, r io.Reader, command string) (string, error)
}

// HetznerOptions configures the Hetzner adapter. The client is created on
// first use.
type HetznerOptions struct {
	Client func(ctx context.Context) (hcloud.ImageManager, error)
	// NewShell connects to the rescue system; defaults to an SSH client.
	NewShell func(cfg *ssh.Config) (Shell, error)

	Location   string
	ServerType string
	Timeouts   *config.Timeouts
	Now        func() time.Time
}

// Hetzner imports raw images by writing them to the disk of a server in
// rescue mode and snapshotting it.
type Hetzner struct {
	opts HetznerOptions

	mu     sync.Mutex
	client hcloud.ImageManager
}

var (
	_ Adapter = (*Hetzner)(nil)
	_ Tagger  = (*Hetzner)(nil)
)

// NewHetzner returns the Hetzner adapter.
func NewHetzner(opts HetznerOptions) *Hetzner {
	if opts.Location == "" {
		opts.Location = hetznerLocation
	}
	if opts.Timeouts == nil {
		opts.Timeouts = config.LoadTimeouts()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewShell == nil {
		opts.NewShell = func(cfg *ssh.Config) (Shell, error) {
			return ssh.NewClient(cfg)
		}
	}
	return &Hetzner{opts: opts}
}

func (h *Hetzner) Name() string { return "hetzner" }

func (h *Hetzner) Actions() []string { return append([]string(nil), hetznerActions...) }

func (h *Hetzner) Regions(context.Context) ([]string, error) {
	return []string{HetznerRegion}, nil
}

func (h *Hetzner) hcloud(ctx context.Context) (hcloud.ImageManager, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.client != nil {
		return h.client, nil
	}
	if h.opts.Client == nil {
		return nil, errors.New("hetzner: no client configured")
	}
	client, err := h.opts.Client(ctx)
	if err != nil {
		return nil, err
	}
	h.client = client
	return client, nil
}

func imageSelector(c *image.Config) map[string]string {
	return map[string]string{
		labels.KeyManagedBy: labels.ManagedBy,
		labels.KeyType:      labels.TypeImage,
		"project":           labels.Sanitize(c.Project()),
		"image_key":         labels.Sanitize(c.ImageKey()),
	}
}

// LatestImportedTags returns the state kept in the labels of the newest
// snapshot for the config.
func (h *Hetzner) LatestImportedTags(ctx context.Context, c *image.Config) (tags.Tags, error) {
	client, err := h.hcloud(ctx)
	if err != nil {
		return nil, err
	}
	snapshots, err := client.SnapshotsByLabels(ctx, imageSelector(c))
	if err != nil {
		return nil, err
	}
	if len(snapshots) == 0 {
		return nil, nil
	}

	latest := snapshots[0]
	t := labels.ToTags(latest.Labels)
	t.Set("import_id", strconv.FormatInt(latest.ID, 10))
	t.Set("import_region", HetznerRegion)
	return t, nil
}

// ImportImage writes the raw image to a rescue-mode build server and
// snapshots its disk. The build server and its SSH key are always removed.
func (h *Hetzner) ImportImage(ctx context.Context, c *image.Config) error {
	if c.ImageFormat() != "raw" {
		return fmt.Errorf("hetzner: image format must be raw, not %q", c.ImageFormat())
	}
	arch, err := hcloud.ArchitectureFor(c.Arch())
	if err != nil {
		return err
	}
	serverType := h.opts.ServerType
	if serverType == "" || hcloud.ServerTypeArchitecture(serverType) != arch {
		serverType = hcloud.DefaultServerType(arch)
	}

	if err := ensureLocalImage(ctx, c); err != nil {
		return err
	}
	client, err := h.hcloud(ctx)
	if err != nil {
		return err
	}

	serverName := naming.BuildServer(c.ImageKey(), h.opts.Now())
	keyName := naming.BuildSSHKey(serverName)

	log.Printf("Generating SSH key %s...", keyName)
	keyPair, err := keygen.GenerateED25519KeyPair(keyName)
	if err != nil {
		return err
	}
	keyID, err := client.CreateSSHKey(ctx, keyName, string(keyPair.PublicKey),
		labels.ForBuildResource(c.Project(), labels.TypeBuildSSHKey))
	if err != nil {
		return fmt.Errorf("failed to upload ssh key: %w", err)
	}
	defer h.cleanup(keyName, func(ctx context.Context) error { return client.DeleteSSHKey(ctx, keyName) })

	log.Printf("Creating server %s (%s) in %s...", serverName, serverType, h.opts.Location)
	serverID, err := client.CreateServer(ctx, hcloud.ServerCreateOpts{
		Name:       serverName,
		Image:      hetznerBaseImage,
		ServerType: serverType,
		Location:   h.opts.Location,
		SSHKeys:    []string{keyName},
		Labels:     labels.ForBuildResource(c.Project(), labels.TypeBuildServer),
	})
	defer h.cleanup(serverName, func(ctx context.Context) error { return client.DeleteServer(ctx, serverName) })
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	ip, err := client.GetServerIP(ctx, serverName)
	if err != nil {
		return fmt.Errorf("failed to get server IP: %w", err)
	}

	log.Printf("Booting %s (%s) into rescue mode...", serverName, ip)
	if _, err := client.EnableRescue(ctx, serverID, []string{keyID}); err != nil {
		return fmt.Errorf("failed to enable rescue: %w", err)
	}
	if err := client.ResetServer(ctx, serverID); err != nil {
		return fmt.Errorf("failed to reset server: %w", err)
	}

	shell, err := h.opts.NewShell(&ssh.Config{
		Host:       ip,
		User:       "root",
		PrivateKey: keyPair.PrivateKey,
		MaxRetries: h.opts.Timeouts.RetryMaxAttempts,
	})
	if err != nil {
		return fmt.Errorf("failed to create SSH client: %w", err)
	}
	if err := h.waitForRescue(ctx, shell); err != nil {
		return err
	}
	if err := h.writeDisk(ctx, shell, c); err != nil {
		return err
	}

	log.Printf("Powering off %s for snapshot...", serverName)
	if err := client.PoweroffServer(ctx, serverID); err != nil {
		return fmt.Errorf("failed to poweroff server: %w", err)
	}

	log.Printf("Creating snapshot %s...", c.ImageName())
	snapshotID, err := client.CreateSnapshot(ctx, serverID, c.ImageDescription(), labels.FromTags(c.Tags()))
	if err != nil {
		return fmt.Errorf("failed to create snapshot: %w", err)
	}

	c.MarkImported(snapshotID, HetznerRegion)
	return h.TagImage(ctx, c)
}

// waitForRescue polls until the rescue system accepts commands. The server
// answers SSH on its installed system until the reset takes effect, so the
// hostname is checked too.
func (h *Hetzner) waitForRescue(ctx context.Context, shell Shell) error {
	log.Printf("Waiting for rescue system...")
	err := retry.Poll(ctx, h.opts.Timeouts.PollInterval, h.opts.Timeouts.Rescue, func(ctx context.Context) (bool, error) {
		out, err := shell.Execute(ctx, "hostname")
		if err != nil {
			logx.Debugf("rescue system not ready: %v", err)
			return false, nil
		}
		return strings.TrimSpace(out) == "rescue", nil
	})
	if err != nil {
		return fmt.Errorf("rescue system did not come up: %w", err)
	}
	return nil
}

func (h *Hetzner) writeDisk(ctx context.Context, shell Shell, c *image.Config) error {
	out, err := shell.Execute(ctx, findDisk)
	if err != nil {
		return fmt.Errorf("failed to find disk: %w", err)
	}
	disk := strings.TrimSpace(out)
	if disk == "" {
		return errors.New("no disk found on build server")
	}

	r, err := openImage(c)
	if err != nil {
		return err
	}
	defer func() { _ = r.Close() }()

	log.Printf("Writing %s to /dev/%s...", c.ImageFile(), disk)
	ctx, cancel := context.WithTimeout(ctx, h.opts.Timeouts.Command)
	defer cancel()
	if out, err := shell.Stream(ctx, r, fmt.Sprintf("dd of=/dev/%s bs=4M conv=fsync && sync", disk)); err != nil {
		return fmt.Errorf("failed to write image: %w, output: %s", err, out)
	}
	return nil
}

func (h *Hetzner) cleanup(name string, del func(ctx context.Context) error) {
	log.Printf("Cleaning up %s...", name)
	ctx, cancel := context.WithTimeout(context.Background(), h.opts.Timeouts.Delete)
	defer cancel()
	if err := del(ctx); err != nil {
		log.Printf("Failed to delete %s: %v", name, err)
	}
}

// DeleteImage removes delete protection and deletes the snapshot.
func (h *Hetzner) DeleteImage(ctx context.Context, _ *image.Config, imageID string) error {
	client, err := h.hcloud(ctx)
	if err != nil {
		return err
	}
	if err := client.ProtectImage(ctx, imageID, false); err != nil && !hcloud.IsNotFound(err) {
		return err
	}
	return client.DeleteImage(ctx, imageID)
}

// PublishImage protects the snapshot from deletion. Snapshots are only
// visible to the project that owns them.
func (h *Hetzner) PublishImage(ctx context.Context, c *image.Config) error {
	imageID := c.String("import_id")
	if imageID == "" {
		return fmt.Errorf("hetzner: %s has not been imported", c.ImageKey())
	}
	client, err := h.hcloud(ctx)
	if err != nil {
		return err
	}
	if err := client.ProtectImage(ctx, imageID, true); err != nil {
		return err
	}
	c.MarkPublished(map[string]string{HetznerRegion: imageID})
	return h.TagImage(ctx, c)
}

// TagImage stores the config's state in the snapshot's labels.
func (h *Hetzner) TagImage(ctx context.Context, c *image.Config) error {
	imageID := c.String("import_id")
	if imageID == "" {
		return nil
	}
	client, err := h.hcloud(ctx)
	if err != nil {
		return err
	}
	return client.UpdateImage(ctx, imageID, c.ImageDescription(), labels.FromTags(c.Tags()))
}
