package hcloud

import (
	"context"

	"github.com/hetznercloud/hcloud-go/v2/hcloud"
)

// ServerCreateOpts holds the parameters for creating a build server.
type ServerCreateOpts struct {
	Name       string
	Image      string
	ServerType string
	Location   string
	SSHKeys    []string
	Labels     map[string]string
}

// ServerProvisioner manages the temporary servers used to write images.
type ServerProvisioner interface {
	CreateServer(ctx context.Context, opts ServerCreateOpts) (string, error)
	DeleteServer(ctx context.Context, name string) error
	// GetServerIP returns the public IPv4 of the server.
	GetServerIP(ctx context.Context, name string) (string, error)
	GetServerID(ctx context.Context, name string) (string, error)
	EnableRescue(ctx context.Context, serverID string, sshKeyIDs []string) (string, error)
	ResetServer(ctx context.Context, serverID string) error
	PoweroffServer(ctx context.Context, serverID string) error
}

// SnapshotManager manages image snapshots.
type SnapshotManager interface {
	CreateSnapshot(ctx context.Context, serverID, description string, labels map[string]string) (string, error)
	DeleteImage(ctx context.Context, imageID string) error
	// SnapshotsByLabels returns matching snapshots, newest first.
	SnapshotsByLabels(ctx context.Context, labels map[string]string) ([]*hcloud.Image, error)
	UpdateImage(ctx context.Context, imageID, description string, labels map[string]string) error
	ProtectImage(ctx context.Context, imageID string, protect bool) error
}

// SSHKeyManager manages the SSH keys injected into build servers.
type SSHKeyManager interface {
	CreateSSHKey(ctx context.Context, name, publicKey string, labels map[string]string) (string, error)
	DeleteSSHKey(ctx context.Context, name string) error
}

// ImageManager is everything the Hetzner image import needs.
type ImageManager interface {
	ServerProvisioner
	SnapshotManager
	SSHKeyManager
}
