// Package ssh provides an SSH client for running commands on, and moving
// files to and from, remote hosts.
//
// It backs ssh:// image storage and drives Hetzner build servers in rescue
// mode, where SSH only becomes available after a boot sequence. Keys can come
// from a PEM private key, a running ssh-agent, or both.
package ssh
