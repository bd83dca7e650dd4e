package image

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"os"
	"strings"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSigner struct {
	signed []string
}

func (f *fakeSigner) SignFile(path string) (string, error) {
	f.signed = append(f.signed, path)
	sig := path + ".asc"
	return sig, os.WriteFile(sig, []byte("signature"), 0o644)
}

func TestConvertImage_VHD(t *testing.T) {
	t.Parallel()
	c := newTestConfig(t)
	c.Set("revision", 0)
	buildLocalImage(t, c)

	require.NoError(t, c.ConvertImage(context.Background()))

	runner := c.Env().Runner.(*copyRunner)
	require.Len(t, runner.calls, 1)
	assert.Equal(t, "qemu-img", runner.calls[0][0])
	assert.Equal(t, []string{c.LocalImage(), c.ImagePath()}, runner.calls[0][len(runner.calls[0])-2:])

	data, err := os.ReadFile(c.ImagePath())
	require.NoError(t, err)
	assert.Equal(t, "qcow2-image", string(data))

	sum := sha256.Sum256(data)
	got, err := os.ReadFile(c.ImagePath() + ".sha256")
	require.NoError(t, err)
	assert.Equal(t, hex.EncodeToString(sum[:])+"\n", string(got))
	assert.FileExists(t, c.ImagePath()+".sha512")
	assert.NoFileExists(t, c.ImagePath()+".asc")
	assert.Equal(t, "2024-02-03T04:05:06", c.String("built"))
}

func TestConvertImage_Compressed(t *testing.T) {
	t.Parallel()
	tests := []struct {
		compression string
		open        func(io.Reader) (io.Reader, error)
	}{
		{"zstd", func(r io.Reader) (io.Reader, error) { return zstd.NewReader(r) }},
		{"gzip", func(r io.Reader) (io.Reader, error) { return gzip.NewReader(r) }},
	}
	for _, tt := range tests {
		t.Run(tt.compression, func(t *testing.T) {
			t.Parallel()
			c := newTestConfig(t)
			c.Set("revision", 0)
			c.Set("image_format", "raw")
			c.Set("image_compression", tt.compression)
			buildLocalImage(t, c)

			require.NoError(t, c.ConvertImage(context.Background()))

			uncompressed := strings.TrimSuffix(c.ImagePath(), "."+CompressionExts[tt.compression])
			assert.NoFileExists(t, uncompressed)

			f, err := os.Open(c.ImagePath())
			require.NoError(t, err)
			defer func() { _ = f.Close() }()
			r, err := tt.open(f)
			require.NoError(t, err)
			data, err := io.ReadAll(r)
			require.NoError(t, err)
			assert.Equal(t, "qcow2-image", string(data))
			assert.FileExists(t, c.ImagePath()+".sha512")
		})
	}
}

func TestConvertImage_Signed(t *testing.T) {
	t.Parallel()
	c := newTestConfig(t)
	signer := &fakeSigner{}
	c.Env().Signer = signer
	c.Set("revision", 0)
	c.Set("image_format", "qcow2")
	buildLocalImage(t, c)

	require.NoError(t, c.ConvertImage(context.Background()))
	assert.Equal(t, []string{c.ImagePath()}, signer.signed)
	assert.FileExists(t, c.ImagePath()+".asc")
	assert.Equal(t, "ln", c.Env().Runner.(*copyRunner).calls[0][0])
}

func TestConvertImage_Errors(t *testing.T) {
	t.Parallel()

	t.Run("unknown format", func(t *testing.T) {
		t.Parallel()
		c := newTestConfig(t)
		c.Set("image_format", "vmdk")
		assert.ErrorContains(t, c.ConvertImage(context.Background()), "unsupported image format")
	})

	t.Run("unknown compression", func(t *testing.T) {
		t.Parallel()
		c := newTestConfig(t)
		c.Set("image_compression", "xz")
		assert.ErrorContains(t, c.ConvertImage(context.Background()), "unsupported image compression")
	})

	t.Run("converter fails", func(t *testing.T) {
		t.Parallel()
		c := newTestConfig(t)
		c.Set("revision", 0)
		c.Env().Runner = &copyRunner{err: errors.New("exit status 1")}
		buildLocalImage(t, c)
		assert.ErrorContains(t, c.ConvertImage(context.Background()), "unable to convert")
		assert.False(t, c.Truthy("built"))
	})
}

func TestUploadImage(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c := newTestConfig(t)
	c.Env().Signer = &fakeSigner{}
	c.Set("revision", 0)
	buildLocalImage(t, c)
	require.NoError(t, c.ConvertImage(ctx))

	require.NoError(t, c.UploadImage(ctx))
	assert.Equal(t, "2024-02-03T04:05:06", c.String("uploaded"))

	s, err := c.Storage(ctx)
	require.NoError(t, err)
	stored, err := s.List(ctx, "*")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{
		c.ImageFile(),
		c.ImageFile() + ".sha256",
		c.ImageFile() + ".sha512",
		c.ImageFile() + ".asc",
	}, stored)
}

func TestCompressFile_Canceled(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	src := dir + "/in"
	require.NoError(t, os.WriteFile(src, bytes.Repeat([]byte("x"), 1024), 0o644))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := compressFile(ctx, "zstd", src, dir+"/out.zst")
	assert.ErrorIs(t, err, context.Canceled)
	assert.NoFileExists(t, dir+"/out.zst")
}
