package clouds

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"

	"github.com/imamik/alpine-cloud-images/internal/image"
)

// ensureLocalImage retrieves the image file from storage when it is not in
// the local directory, as happens when import runs on another host than the
// build.
func ensureLocalImage(ctx context.Context, c *image.Config) error {
	if _, err := os.Stat(c.ImagePath()); err == nil {
		return nil
	}
	s, err := c.Storage(ctx)
	if err != nil {
		return err
	}
	return s.Retrieve(ctx, c.ImageFile())
}

// openImage opens the local image file, decompressing it on the fly.
func openImage(c *image.Config) (io.ReadCloser, error) {
	f, err := os.Open(c.ImagePath())
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", c.ImagePath(), err)
	}
	switch c.ImageCompression() {
	case "":
		return f, nil
	case "zstd":
		zr, err := zstd.NewReader(f)
		if err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("failed to read zstd image: %w", err)
		}
		return &decompressor{Reader: zr, close: func() { zr.Close(); _ = f.Close() }}, nil
	case "gzip":
		gr, err := gzip.NewReader(f)
		if err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("failed to read gzip image: %w", err)
		}
		return &decompressor{Reader: gr, close: func() { _ = gr.Close(); _ = f.Close() }}, nil
	default:
		_ = f.Close()
		return nil, fmt.Errorf("unsupported image compression %q", c.ImageCompression())
	}
}

type decompressor struct {
	io.Reader
	close func()
}

func (d *decompressor) Close() error {
	d.close()
	return nil
}
