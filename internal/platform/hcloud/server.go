package hcloud

import (
	"context"
	"fmt"
	"log"

	"github.com/hetznercloud/hcloud-go/v2/hcloud"

	"github.com/imamik/alpine-cloud-images/internal/util/retry"
)

// CreateServer creates a server and waits until it is running.
func (c *RealClient) CreateServer(ctx context.Context, opts ServerCreateOpts) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeouts.ServerCreate)
	defer cancel()

	createOpts, err := c.buildServerCreateOpts(ctx, opts)
	if err != nil {
		return "", err
	}

	var result hcloud.ServerCreateResult
	err = retry.WithExponentialBackoff(ctx, func() error {
		res, _, err := c.client.Server.Create(ctx, createOpts)
		if err != nil {
			if isInvalidParameter(err) {
				return retry.Fatal(err)
			}
			return err
		}
		result = res
		return nil
	}, retry.WithMaxRetries(c.timeouts.RetryMaxAttempts), retry.WithInitialDelay(c.timeouts.RetryInitialDelay))
	if err != nil {
		return "", fmt.Errorf("failed to create server: %w", err)
	}

	if err := waitForActions(ctx, c.client, append([]*hcloud.Action{result.Action}, result.NextActions...)...); err != nil {
		return "", fmt.Errorf("failed to wait for server creation: %w", err)
	}

	log.Printf("Created server %s (%d)", opts.Name, result.Server.ID)
	return fmt.Sprintf("%d", result.Server.ID), nil
}

func (c *RealClient) buildServerCreateOpts(ctx context.Context, opts ServerCreateOpts) (hcloud.ServerCreateOpts, error) {
	serverType, _, err := c.client.ServerType.Get(ctx, opts.ServerType)
	if err != nil {
		return hcloud.ServerCreateOpts{}, fmt.Errorf("failed to get server type: %w", err)
	}
	if serverType == nil {
		return hcloud.ServerCreateOpts{}, fmt.Errorf("server type not found: %s", opts.ServerType)
	}

	image, err := c.resolveImage(ctx, opts.Image, serverType.Architecture)
	if err != nil {
		return hcloud.ServerCreateOpts{}, err
	}

	sshKeys, err := c.resolveSSHKeys(ctx, opts.SSHKeys)
	if err != nil {
		return hcloud.ServerCreateOpts{}, err
	}

	location, err := c.resolveLocation(ctx, opts.Location)
	if err != nil {
		return hcloud.ServerCreateOpts{}, err
	}

	return hcloud.ServerCreateOpts{
		Name:       opts.Name,
		ServerType: serverType,
		Image:      image,
		SSHKeys:    sshKeys,
		Labels:     opts.Labels,
		Location:   location,
	}, nil
}

// DeleteServer deletes the server with the given name.
func (c *RealClient) DeleteServer(ctx context.Context, name string) error {
	return (&DeleteOperation[*hcloud.Server]{
		Name:         name,
		ResourceType: "server",
		Get:          c.client.Server.Get,
		Delete: func(ctx context.Context, server *hcloud.Server) (*hcloud.Response, error) {
			_, resp, err := c.client.Server.DeleteWithResult(ctx, server)
			return resp, err
		},
	}).Execute(ctx, c)
}

// GetServerIP returns the public IPv4 of the server, waiting up to the
// server IP timeout for one to be assigned.
func (c *RealClient) GetServerIP(ctx context.Context, name string) (string, error) {
	var ip string
	err := retry.Poll(ctx, c.timeouts.RetryInitialDelay, c.timeouts.ServerIP, func(ctx context.Context) (bool, error) {
		server, _, err := c.client.Server.Get(ctx, name)
		if err != nil {
			return false, fmt.Errorf("failed to get server: %w", err)
		}
		if server == nil {
			return false, fmt.Errorf("server not found: %s", name)
		}
		if server.PublicNet.IPv4.IP == nil || server.PublicNet.IPv4.IP.IsUnspecified() {
			return false, nil
		}
		ip = server.PublicNet.IPv4.IP.String()
		return true, nil
	})
	if err != nil {
		return "", err
	}
	return ip, nil
}

// GetServerID returns the ID of the named server, or "" when it does not exist.
func (c *RealClient) GetServerID(ctx context.Context, name string) (string, error) {
	server, _, err := c.client.Server.Get(ctx, name)
	if err != nil {
		return "", fmt.Errorf("failed to get server: %w", err)
	}
	if server == nil {
		return "", nil
	}
	return fmt.Sprintf("%d", server.ID), nil
}

// EnableRescue enables the Linux rescue system for the next boot.
func (c *RealClient) EnableRescue(ctx context.Context, serverID string, sshKeyIDs []string) (string, error) {
	id, err := parseID("server", serverID)
	if err != nil {
		return "", err
	}

	var sshKeys []*hcloud.SSHKey
	for _, kid := range sshKeyIDs {
		keyID, err := parseID("ssh key", kid)
		if err != nil {
			return "", err
		}
		sshKeys = append(sshKeys, &hcloud.SSHKey{ID: keyID})
	}

	result, _, err := c.client.Server.EnableRescue(ctx, &hcloud.Server{ID: id}, hcloud.ServerEnableRescueOpts{
		Type:    hcloud.ServerRescueTypeLinux64,
		SSHKeys: sshKeys,
	})
	if err != nil {
		return "", fmt.Errorf("failed to enable rescue: %w", err)
	}
	if err := waitForActions(ctx, c.client, result.Action); err != nil {
		return "", fmt.Errorf("failed to wait for rescue enable: %w", err)
	}
	return result.RootPassword, nil
}

// ResetServer hard-resets the server.
func (c *RealClient) ResetServer(ctx context.Context, serverID string) error {
	id, err := parseID("server", serverID)
	if err != nil {
		return err
	}
	action, _, err := c.client.Server.Reset(ctx, &hcloud.Server{ID: id})
	if err != nil {
		return fmt.Errorf("failed to reset server: %w", err)
	}
	if err := waitForActions(ctx, c.client, action); err != nil {
		return fmt.Errorf("failed to wait for reset: %w", err)
	}
	return nil
}

// PoweroffServer cuts power to the server.
func (c *RealClient) PoweroffServer(ctx context.Context, serverID string) error {
	id, err := parseID("server", serverID)
	if err != nil {
		return err
	}
	action, _, err := c.client.Server.Poweroff(ctx, &hcloud.Server{ID: id})
	if err != nil {
		return fmt.Errorf("failed to poweroff server: %w", err)
	}
	if err := waitForActions(ctx, c.client, action); err != nil {
		return fmt.Errorf("failed to wait for poweroff: %w", err)
	}
	return nil
}
