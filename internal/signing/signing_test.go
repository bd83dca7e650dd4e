package signing

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ProtonMail/go-crypto/openpgp"
	"github.com/ProtonMail/go-crypto/openpgp/armor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTestKey(t *testing.T, passphrase string) string {
	t.Helper()

	entity, err := openpgp.NewEntity("Image Builder", "test", "builder@example.org", nil)
	require.NoError(t, err)
	if passphrase != "" {
		require.NoError(t, entity.EncryptPrivateKeys([]byte(passphrase), nil))
	}

	path := filepath.Join(t.TempDir(), "signing.asc")
	f, err := os.Create(path)
	require.NoError(t, err)
	w, err := armor.Encode(f, openpgp.PrivateKeyType, nil)
	require.NoError(t, err)
	require.NoError(t, entity.SerializePrivateWithoutSigning(w, nil))
	require.NoError(t, w.Close())
	require.NoError(t, f.Close())
	return path
}

func TestSigner_SignAndVerify(t *testing.T) {
	signer, err := LoadSigner(writeTestKey(t, ""), "")
	require.NoError(t, err)
	assert.Len(t, signer.KeyID(), 16)

	image := filepath.Join(t.TempDir(), "alpine.qcow2")
	require.NoError(t, os.WriteFile(image, []byte("image bytes"), 0o644))

	sigPath, err := signer.SignFile(image)
	require.NoError(t, err)
	assert.Equal(t, image+".asc", sigPath)

	sig, err := os.ReadFile(sigPath)
	require.NoError(t, err)
	assert.Contains(t, string(sig), "BEGIN PGP SIGNATURE")

	require.NoError(t, signer.Verify(image))

	require.NoError(t, os.WriteFile(image, []byte("tampered"), 0o644))
	assert.Error(t, signer.Verify(image))
}

func TestLoadSigner_Encrypted(t *testing.T) {
	path := writeTestKey(t, "hunter2")

	_, err := LoadSigner(path, "")
	assert.ErrorContains(t, err, "no passphrase")

	_, err = LoadSigner(path, "wrong")
	assert.Error(t, err)

	signer, err := LoadSigner(path, "hunter2")
	require.NoError(t, err)
	assert.NotNil(t, signer)
}

func TestLoadSigner_Errors(t *testing.T) {
	_, err := LoadSigner(filepath.Join(t.TempDir(), "missing.asc"), "")
	assert.Error(t, err)

	garbage := filepath.Join(t.TempDir(), "garbage.asc")
	require.NoError(t, os.WriteFile(garbage, []byte("not a key"), 0o644))
	_, err = LoadSigner(garbage, "")
	assert.Error(t, err)
}

func TestSignFile_Missing(t *testing.T) {
	signer, err := LoadSigner(writeTestKey(t, ""), "")
	require.NoError(t, err)

	_, err = signer.SignFile(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}
