// Package handlers implements the business logic for CLI commands.
//
// Each handler reads process settings from the environment, wires the
// cloud adapters and image managers it needs and delegates to the internal
// packages. Clients are created through package-level factory variables so
// tests can replace them.
package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/imamik/alpine-cloud-images/internal/alpine"
	"github.com/imamik/alpine-cloud-images/internal/builder"
	"github.com/imamik/alpine-cloud-images/internal/clouds"
	"github.com/imamik/alpine-cloud-images/internal/config"
	"github.com/imamik/alpine-cloud-images/internal/image"
	"github.com/imamik/alpine-cloud-images/internal/manager"
	"github.com/imamik/alpine-cloud-images/internal/platform/ec2"
	"github.com/imamik/alpine-cloud-images/internal/platform/hcloud"
	"github.com/imamik/alpine-cloud-images/internal/platform/s3"
	"github.com/imamik/alpine-cloud-images/internal/signing"
	"github.com/imamik/alpine-cloud-images/internal/storage"
)

// ImageManager is the subset of manager.Manager used by handlers.
type ImageManager interface {
	RefreshState(ctx context.Context, remote manager.Remote, step string, only, skip []string, revise bool) (bool, error)
	Configs() []*image.Config
	Save() error
}

// ImageBuilder runs planned image actions.
type ImageBuilder interface {
	Run(ctx context.Context, step string, configs []*image.Config) ([]builder.Result, error)
}

var errHCloudToken = errors.New("HCLOUD_TOKEN is required for the hetzner cloud")

// Factory function variables - can be replaced in tests.
var (
	loadSettings = config.LoadSettings
	loadTimeouts = config.LoadTimeouts

	// stdout receives tables and summaries; stdin answers confirmations.
	stdout io.Writer = os.Stdout
	stdin  io.Reader = os.Stdin

	newReleases = func(s *config.Settings) manager.Releases {
		return alpine.NewClient(s.ReleasesURL, s.MirrorURL)
	}

	newManager = func(ctx context.Context, opts manager.Options) (ImageManager, error) {
		return manager.New(ctx, opts)
	}

	newBuilder = func(opts builder.Options) ImageBuilder {
		return builder.New(opts)
	}

	newAWS = func(s *config.Settings, t *config.Timeouts, parallel int) *clouds.AWS {
		return clouds.NewAWS(clouds.AWSOptions{
			EC2: func(ctx context.Context) (*ec2.Clients, error) {
				return ec2.New(ctx, ec2.Options{Region: s.AWSRegion, Profile: s.AWSProfile})
			},
			Stager: func(ctx context.Context) (clouds.ObjectStager, error) {
				client, err := s3.NewClient(ctx, s3.Options{Region: s.AWSRegion, Profile: s.AWSProfile})
				if err != nil {
					return nil, err
				}
				if err := client.EnsureBucket(ctx, s.AWSImportBucket); err != nil {
					return nil, err
				}
				return client, nil
			},
			Bucket:     s.AWSImportBucket,
			ImportRole: s.AWSImportRole,
			Timeouts:   t,
			Parallel:   parallel,
		})
	}

	newHetzner = func(s *config.Settings, t *config.Timeouts) *clouds.Hetzner {
		return clouds.NewHetzner(clouds.HetznerOptions{
			Client: func(context.Context) (hcloud.ImageManager, error) {
				if s.HCloudToken == "" {
					return nil, errHCloudToken
				}
				return hcloud.NewRealClient(s.HCloudToken, hcloud.WithTimeouts(t)), nil
			},
			Location:   s.HCloudLocation,
			ServerType: s.HCloudServerType,
			Timeouts:   t,
		})
	}

	newRegistry = func(s *config.Settings, t *config.Timeouts, parallel int) *clouds.Registry {
		adapters := append(clouds.Stubs(), newAWS(s, t, parallel), newHetzner(s, t))
		return clouds.NewRegistry(adapters...)
	}
)

// newEnv builds the environment image operations run in: the work
// directory, storage credentials and the optional artifact signer.
func newEnv(s *config.Settings) (*image.Env, error) {
	env := &image.Env{
		WorkDir: s.WorkDir,
		Storage: storage.Options{
			SSHKnownHostsFile: s.SSHKnownHostsFile,
			SSHUseAgent:       s.SSHKeyFile == "",
			S3: s3.Options{
				Endpoint:     s.S3Endpoint,
				Region:       s.S3Region,
				AccessKey:    s.S3AccessKey,
				SecretKey:    s.S3SecretKey,
				UsePathStyle: s.S3Endpoint != "",
			},
		},
	}

	if s.SSHKeyFile != "" {
		key, err := os.ReadFile(s.SSHKeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read SSH key: %w", err)
		}
		env.Storage.SSHKey = key
	}

	if s.SigningKey != "" {
		signer, err := signing.LoadSigner(s.SigningKey, s.SigningPassphrase)
		if err != nil {
			return nil, err
		}
		env.Signer = signer
	}
	return env, nil
}
