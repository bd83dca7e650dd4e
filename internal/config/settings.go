package config

import (
	"fmt"
	"path/filepath"

	"github.com/caarlos0/env/v11"
)

// Settings are process-wide options read from the environment.
type Settings struct {
	WorkDir    string `env:"ALPINE_CLOUD_WORK_DIR" envDefault:"work"`
	ConfigFile string `env:"ALPINE_CLOUD_CONFIG" envDefault:"alpine.yaml"`

	// Alpine release metadata.
	ReleasesURL string `env:"ALPINE_RELEASES_URL" envDefault:"https://alpinelinux.org/releases.json"`
	MirrorURL   string `env:"ALPINE_MIRROR_URL" envDefault:"https://dl-cdn.alpinelinux.org/alpine"`

	// Packer.
	PackerTemplate string `env:"ALPINE_CLOUD_PACKER_TEMPLATE" envDefault:"alpine.pkr.hcl"`

	// ssh:// storage.
	SSHKeyFile        string `env:"ALPINE_CLOUD_SSH_KEY"`
	SSHKnownHostsFile string `env:"ALPINE_CLOUD_SSH_KNOWN_HOSTS"`

	// s3:// storage.
	S3Endpoint  string `env:"ALPINE_CLOUD_S3_ENDPOINT"`
	S3Region    string `env:"ALPINE_CLOUD_S3_REGION" envDefault:"us-east-1"`
	S3AccessKey string `env:"ALPINE_CLOUD_S3_ACCESS_KEY"`
	S3SecretKey string `env:"ALPINE_CLOUD_S3_SECRET_KEY"`

	// AWS adapter.
	AWSProfile      string `env:"AWS_PROFILE"`
	AWSRegion       string `env:"AWS_REGION" envDefault:"us-west-2"`
	AWSImportBucket string `env:"ALPINE_CLOUD_AWS_IMPORT_BUCKET"`
	AWSImportRole   string `env:"ALPINE_CLOUD_AWS_IMPORT_ROLE" envDefault:"vmimport"`

	// Hetzner adapter.
	HCloudToken      string `env:"HCLOUD_TOKEN"`
	HCloudLocation   string `env:"ALPINE_CLOUD_HCLOUD_LOCATION" envDefault:"fsn1"`
	HCloudServerType string `env:"ALPINE_CLOUD_HCLOUD_SERVER_TYPE"`

	// Image signing.
	SigningKey        string `env:"ALPINE_CLOUD_SIGNING_KEY"`
	SigningPassphrase string `env:"ALPINE_CLOUD_SIGNING_PASSPHRASE"`

	MetricsFile string `env:"ALPINE_CLOUD_METRICS_FILE"`
}

// LoadSettings parses Settings from the environment.
func LoadSettings() (*Settings, error) {
	var s Settings
	if err := env.Parse(&s); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	return &s, nil
}

// ImagesYAML is the path of the resolved image configs in the work directory.
func (s *Settings) ImagesYAML() string {
	return filepath.Join(s.WorkDir, "images.yaml")
}
