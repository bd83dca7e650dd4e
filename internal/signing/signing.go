// Package signing produces detached OpenPGP signatures for image artifacts.
package signing

import (
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/ProtonMail/go-crypto/openpgp"
)

// SignatureExt is appended to a file name to form its signature file.
const SignatureExt = ".asc"

// Signer signs files with a single OpenPGP private key.
type Signer struct {
	entity *openpgp.Entity
}

// LoadSigner reads an armored private key from path. Encrypted keys are
// unlocked with passphrase.
func LoadSigner(path, passphrase string) (*Signer, error) {
	f, err := os.Open(path) // #nosec G304 - path comes from operator settings
	if err != nil {
		return nil, fmt.Errorf("failed to open signing key: %w", err)
	}
	defer func() { _ = f.Close() }()

	keyring, err := openpgp.ReadArmoredKeyRing(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read signing key: %w", err)
	}

	return newSigner(keyring, passphrase)
}

func newSigner(keyring openpgp.EntityList, passphrase string) (*Signer, error) {
	for _, entity := range keyring {
		if entity.PrivateKey == nil {
			continue
		}
		if entity.PrivateKey.Encrypted {
			if passphrase == "" {
				return nil, errors.New("signing key is encrypted and no passphrase was given")
			}
			if err := entity.DecryptPrivateKeys([]byte(passphrase)); err != nil {
				return nil, fmt.Errorf("failed to decrypt signing key: %w", err)
			}
		}
		return &Signer{entity: entity}, nil
	}
	return nil, errors.New("no private key found in signing keyring")
}

// KeyID returns the signing key's ID in hex.
func (s *Signer) KeyID() string {
	return s.entity.PrimaryKey.KeyIdString()
}

// SignFile writes an armored detached signature of path to path+".asc" and
// returns the signature file name.
func (s *Signer) SignFile(path string) (string, error) {
	in, err := os.Open(path) // #nosec G304 - local build artifact
	if err != nil {
		return "", fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer func() { _ = in.Close() }()

	sigPath := path + SignatureExt
	out, err := os.Create(sigPath) // #nosec G304 - local build artifact
	if err != nil {
		return "", fmt.Errorf("failed to create %s: %w", sigPath, err)
	}

	if err := openpgp.ArmoredDetachSign(out, s.entity, in, nil); err != nil {
		_ = out.Close()
		return "", fmt.Errorf("failed to sign %s: %w", path, err)
	}
	if err := out.Close(); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", sigPath, err)
	}

	log.Printf("Signed %s with key %s", path, s.KeyID())
	return sigPath, nil
}

// Verify checks the detached signature at path+".asc" against the signer's key.
func (s *Signer) Verify(path string) error {
	data, err := os.Open(path) // #nosec G304 - local build artifact
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer func() { _ = data.Close() }()

	sig, err := os.Open(path + SignatureExt) // #nosec G304 - local build artifact
	if err != nil {
		return fmt.Errorf("failed to open signature: %w", err)
	}
	defer func() { _ = sig.Close() }()

	if _, err := openpgp.CheckArmoredDetachedSignature(openpgp.EntityList{s.entity}, data, sig, nil); err != nil {
		return fmt.Errorf("bad signature for %s: %w", path, err)
	}
	return nil
}
