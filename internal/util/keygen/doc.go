// Package keygen generates throwaway SSH key pairs.
//
// Keys are produced as an OpenSSH PEM private key and an authorized_keys
// public key, suitable for uploading to Hetzner Cloud while an image is
// written to a rescue-mode server.
package keygen
