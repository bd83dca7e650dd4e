// Package hcloud wraps the Hetzner Cloud API for importing images.
//
// Hetzner has no disk image import, so an image becomes a snapshot by way
// of a temporary server: the server boots into rescue mode, the image is
// written to its disk over SSH, and the powered-off disk is snapshotted.
// This package provides the server, SSH key and snapshot operations that
// flow needs, with retries for locked resources and configurable timeouts
// (see config.LoadTimeouts).
//
// DeleteOperation gives idempotent deletes for any named resource:
//
//	return (&DeleteOperation[*hcloud.SSHKey]{
//	    Name:         name,
//	    ResourceType: "ssh key",
//	    Get:          c.client.SSHKey.Get,
//	    Delete:       c.client.SSHKey.Delete,
//	}).Execute(ctx, c)
package hcloud
