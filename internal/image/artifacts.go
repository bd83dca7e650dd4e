package image

import (
	"context"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"

	"github.com/imamik/alpine-cloud-images/internal/util/naming"
)

// ConvertImage converts the local qcow2 image into the cloud's format,
// compresses it when image_compression is set, and writes checksum and
// signature files next to it.
func (c *Config) ConvertImage(ctx context.Context) error {
	format := c.ImageFormat()
	cmd, ok := ConvertCommands[format]
	if !ok {
		return fmt.Errorf("unsupported image format %q", format)
	}

	converted := c.ImagePath()
	compression := c.ImageCompression()
	if compression != "" {
		if _, ok := CompressionExts[compression]; !ok {
			return fmt.Errorf("unsupported image compression %q", compression)
		}
		converted = strings.TrimSuffix(converted, "."+CompressionExts[compression])
	}

	log.Printf("Converting %s to %s", c.LocalImage(), converted)
	args := append(append([]string(nil), cmd[1:]...), c.LocalImage(), converted)
	if _, _, err := c.env.runner().Run(ctx, cmd[0], args...); err != nil {
		return fmt.Errorf("unable to convert %s to %s: %w", c.LocalImage(), converted, err)
	}

	if compression != "" {
		if err := compressFile(ctx, compression, converted, c.ImagePath()); err != nil {
			return err
		}
		if err := os.Remove(converted); err != nil {
			return fmt.Errorf("failed to remove %s: %w", converted, err)
		}
	}

	if info, err := os.Stat(c.ImagePath()); err == nil {
		log.Printf("Built %s (%s)", c.ImageFile(), humanize.Bytes(uint64(info.Size())))
	}

	if err := saveChecksums(c.ImagePath()); err != nil {
		return err
	}
	if err := c.sign(c.ImagePath()); err != nil {
		return err
	}

	c.Set("built", c.env.timestamp())
	return nil
}

// UploadImage stores the image file with its checksums and signature.
func (c *Config) UploadImage(ctx context.Context) error {
	s, err := c.Storage(ctx)
	if err != nil {
		return err
	}

	files := append([]string{c.ImageFile()}, naming.ChecksumFiles(c.ImageFile())...)
	if c.env.Signer != nil {
		files = append(files, naming.SignatureFile(c.ImageFile()))
	}
	if err := s.Store(ctx, files, false); err != nil {
		return err
	}

	c.Set("uploaded", c.env.timestamp())
	return nil
}

// storedFiles lists every file this revision puts in storage.
func (c *Config) storedFiles() []string {
	var files []string
	for _, f := range []string{c.ImageFile(), c.MetadataFile()} {
		files = append(files, f)
		files = append(files, naming.ChecksumFiles(f)...)
		files = append(files, naming.SignatureFile(f))
	}
	return files
}

func (c *Config) sign(path string) error {
	if c.env.Signer == nil {
		return nil
	}
	if _, err := c.env.Signer.SignFile(path); err != nil {
		return fmt.Errorf("failed to sign %s: %w", path, err)
	}
	return nil
}

// saveChecksums writes the hex SHA-256 and SHA-512 digests of path to
// path.sha256 and path.sha512.
func saveChecksums(path string) error {
	log.Printf("Calculating checksum for '%s'", path)
	f, err := os.Open(path) // #nosec G304 - local build artifact
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	h256 := sha256.New()
	h512 := sha512.New()
	if _, err := io.Copy(io.MultiWriter(h256, h512), f); err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}

	sums := naming.ChecksumFiles(path)
	for i, h := range []string{hex.EncodeToString(h256.Sum(nil)), hex.EncodeToString(h512.Sum(nil))} {
		if err := os.WriteFile(sums[i], []byte(h+"\n"), 0o644); err != nil { // #nosec G306 - checksums are public
			return fmt.Errorf("failed to write %s: %w", sums[i], err)
		}
	}
	return nil
}

func compressFile(ctx context.Context, compression, src, dst string) error {
	log.Printf("Compressing %s with %s", src, compression)

	in, err := os.Open(src) // #nosec G304 - local build artifact
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", src, err)
	}
	defer func() { _ = in.Close() }()

	out, err := os.Create(dst) // #nosec G304 - local build artifact
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", dst, err)
	}

	var w io.WriteCloser
	switch compression {
	case "zstd":
		w, err = zstd.NewWriter(out, zstd.WithEncoderLevel(zstd.SpeedBetterCompression))
	case "gzip":
		w, err = gzip.NewWriterLevel(out, gzip.BestCompression)
	default:
		err = fmt.Errorf("unsupported image compression %q", compression)
	}
	if err != nil {
		_ = out.Close()
		return err
	}

	if _, err := io.Copy(w, &ctxReader{ctx: ctx, r: in}); err != nil {
		_ = w.Close()
		_ = out.Close()
		_ = os.Remove(dst)
		return fmt.Errorf("failed to compress %s: %w", src, err)
	}
	if err := w.Close(); err != nil {
		_ = out.Close()
		return fmt.Errorf("failed to finish %s: %w", dst, err)
	}
	return out.Close()
}

// ctxReader stops a long copy once ctx is done.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (r *ctxReader) Read(p []byte) (int, error) {
	if err := r.ctx.Err(); err != nil {
		return 0, err
	}
	return r.r.Read(p)
}
