package storage

import (
	"context"
	"os"
	"path"
	"strings"

	"github.com/imamik/alpine-cloud-images/internal/platform/s3"
)

// s3Backend stores files as objects under a bucket prefix.
type s3Backend struct {
	store  ObjectStore
	bucket string
	prefix string
}

func (b *s3Backend) key(name string) string {
	if b.prefix == "" {
		return name
	}
	return b.prefix + "/" + name
}

func (b *s3Backend) put(ctx context.Context, name, localPath string) error {
	f, err := os.Open(localPath) // #nosec G304 - local build artifact
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		return err
	}
	return b.store.PutObject(ctx, b.bucket, b.key(name), f, info.Size())
}

func (b *s3Backend) get(ctx context.Context, name, localPath string) error {
	if err := validName(name); err != nil {
		return err
	}
	f, err := os.Create(localPath) // #nosec G304 - local image directory
	if err != nil {
		return err
	}
	if err := b.store.GetObject(ctx, b.bucket, b.key(name), f); err != nil {
		_ = f.Close()
		_ = os.Remove(localPath)
		return err
	}
	return f.Close()
}

func (b *s3Backend) list(ctx context.Context, match string) ([]entry, error) {
	prefix := ""
	if b.prefix != "" {
		prefix = b.prefix + "/"
	}
	objects, err := b.store.ListObjects(ctx, b.bucket, prefix)
	if err != nil {
		return nil, err
	}

	var entries []entry
	for _, obj := range objects {
		name := strings.TrimPrefix(obj.Key, prefix)
		if strings.Contains(name, "/") {
			continue
		}
		if ok, _ := path.Match(match, name); ok {
			entries = append(entries, entry{name: name, modTime: obj.LastModified.UnixNano()})
		}
	}
	return entries, nil
}

func (b *s3Backend) remove(ctx context.Context, name string) error {
	if err := validName(name); err != nil {
		return err
	}
	err := b.store.DeleteObject(ctx, b.bucket, b.key(name))
	if s3.IsNotFound(err) {
		return nil
	}
	return err
}
