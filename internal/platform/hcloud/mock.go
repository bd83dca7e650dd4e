package hcloud

import (
	"context"

	"github.com/hetznercloud/hcloud-go/v2/hcloud"
)

// MockClient implements ImageManager with overridable functions. Unset
// functions succeed with placeholder values.
type MockClient struct {
	CreateServerFunc   func(ctx context.Context, opts ServerCreateOpts) (string, error)
	DeleteServerFunc   func(ctx context.Context, name string) error
	GetServerIPFunc    func(ctx context.Context, name string) (string, error)
	GetServerIDFunc    func(ctx context.Context, name string) (string, error)
	EnableRescueFunc   func(ctx context.Context, serverID string, sshKeyIDs []string) (string, error)
	ResetServerFunc    func(ctx context.Context, serverID string) error
	PoweroffServerFunc func(ctx context.Context, serverID string) error

	CreateSnapshotFunc    func(ctx context.Context, serverID, description string, labels map[string]string) (string, error)
	DeleteImageFunc       func(ctx context.Context, imageID string) error
	SnapshotsByLabelsFunc func(ctx context.Context, labels map[string]string) ([]*hcloud.Image, error)
	UpdateImageFunc       func(ctx context.Context, imageID, description string, labels map[string]string) error
	ProtectImageFunc      func(ctx context.Context, imageID string, protect bool) error

	CreateSSHKeyFunc func(ctx context.Context, name, publicKey string, labels map[string]string) (string, error)
	DeleteSSHKeyFunc func(ctx context.Context, name string) error
}

var _ ImageManager = (*MockClient)(nil)

// CreateServer implements ServerProvisioner.
func (m *MockClient) CreateServer(ctx context.Context, opts ServerCreateOpts) (string, error) {
	if m.CreateServerFunc != nil {
		return m.CreateServerFunc(ctx, opts)
	}
	return "mock-id", nil
}

// DeleteServer implements ServerProvisioner.
func (m *MockClient) DeleteServer(ctx context.Context, name string) error {
	if m.DeleteServerFunc != nil {
		return m.DeleteServerFunc(ctx, name)
	}
	return nil
}

// GetServerIP implements ServerProvisioner.
func (m *MockClient) GetServerIP(ctx context.Context, name string) (string, error) {
	if m.GetServerIPFunc != nil {
		return m.GetServerIPFunc(ctx, name)
	}
	return "127.0.0.1", nil
}

// GetServerID implements ServerProvisioner.
func (m *MockClient) GetServerID(ctx context.Context, name string) (string, error) {
	if m.GetServerIDFunc != nil {
		return m.GetServerIDFunc(ctx, name)
	}
	return "mock-id", nil
}

// EnableRescue implements ServerProvisioner.
func (m *MockClient) EnableRescue(ctx context.Context, serverID string, sshKeyIDs []string) (string, error) {
	if m.EnableRescueFunc != nil {
		return m.EnableRescueFunc(ctx, serverID, sshKeyIDs)
	}
	return "mock-password", nil
}

// ResetServer implements ServerProvisioner.
func (m *MockClient) ResetServer(ctx context.Context, serverID string) error {
	if m.ResetServerFunc != nil {
		return m.ResetServerFunc(ctx, serverID)
	}
	return nil
}

// PoweroffServer implements ServerProvisioner.
func (m *MockClient) PoweroffServer(ctx context.Context, serverID string) error {
	if m.PoweroffServerFunc != nil {
		return m.PoweroffServerFunc(ctx, serverID)
	}
	return nil
}

// CreateSnapshot implements SnapshotManager.
func (m *MockClient) CreateSnapshot(ctx context.Context, serverID, description string, labels map[string]string) (string, error) {
	if m.CreateSnapshotFunc != nil {
		return m.CreateSnapshotFunc(ctx, serverID, description, labels)
	}
	return "mock-snapshot-id", nil
}

// DeleteImage implements SnapshotManager.
func (m *MockClient) DeleteImage(ctx context.Context, imageID string) error {
	if m.DeleteImageFunc != nil {
		return m.DeleteImageFunc(ctx, imageID)
	}
	return nil
}

// SnapshotsByLabels implements SnapshotManager.
func (m *MockClient) SnapshotsByLabels(ctx context.Context, labels map[string]string) ([]*hcloud.Image, error) {
	if m.SnapshotsByLabelsFunc != nil {
		return m.SnapshotsByLabelsFunc(ctx, labels)
	}
	return nil, nil
}

// UpdateImage implements SnapshotManager.
func (m *MockClient) UpdateImage(ctx context.Context, imageID, description string, labels map[string]string) error {
	if m.UpdateImageFunc != nil {
		return m.UpdateImageFunc(ctx, imageID, description, labels)
	}
	return nil
}

// ProtectImage implements SnapshotManager.
func (m *MockClient) ProtectImage(ctx context.Context, imageID string, protect bool) error {
	if m.ProtectImageFunc != nil {
		return m.ProtectImageFunc(ctx, imageID, protect)
	}
	return nil
}

// CreateSSHKey implements SSHKeyManager.
func (m *MockClient) CreateSSHKey(ctx context.Context, name, publicKey string, labels map[string]string) (string, error) {
	if m.CreateSSHKeyFunc != nil {
		return m.CreateSSHKeyFunc(ctx, name, publicKey, labels)
	}
	return "mock-key-id", nil
}

// DeleteSSHKey implements SSHKeyManager.
func (m *MockClient) DeleteSSHKey(ctx context.Context, name string) error {
	if m.DeleteSSHKeyFunc != nil {
		return m.DeleteSSHKeyFunc(ctx, name)
	}
	return nil
}
