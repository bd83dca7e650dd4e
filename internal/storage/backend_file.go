package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// fileBackend stores files in a local or mounted directory.
type fileBackend struct {
	root string
}

func (b *fileBackend) put(_ context.Context, name, localPath string) error {
	if err := os.MkdirAll(b.root, 0o755); err != nil {
		return err
	}
	return copyFile(localPath, filepath.Join(b.root, name))
}

func (b *fileBackend) get(_ context.Context, name, localPath string) error {
	if err := validName(name); err != nil {
		return err
	}
	return copyFile(filepath.Join(b.root, name), localPath)
}

func (b *fileBackend) list(_ context.Context, match string) ([]entry, error) {
	if err := os.MkdirAll(b.root, 0o755); err != nil {
		return nil, err
	}
	matches, err := filepath.Glob(filepath.Join(b.root, match))
	if err != nil {
		return nil, err
	}

	entries := make([]entry, 0, len(matches))
	for _, m := range matches {
		info, err := os.Stat(m)
		if err != nil {
			continue
		}
		entries = append(entries, entry{name: filepath.Base(m), modTime: info.ModTime().UnixNano()})
	}
	return entries, nil
}

func (b *fileBackend) remove(_ context.Context, name string) error {
	if err := validName(name); err != nil {
		return err
	}
	err := os.Remove(filepath.Join(b.root, name))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// copyFile copies src to dst and keeps the modification time.
func copyFile(src, dst string) error {
	in, err := os.Open(src) // #nosec G304 - paths are built from the storage root
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()

	info, err := in.Stat()
	if err != nil {
		return err
	}

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, info.Mode().Perm()) // #nosec G304
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return fmt.Errorf("copy %s: %w", src, err)
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Chtimes(dst, info.ModTime(), info.ModTime())
}
