// Package storage copies image artifacts between a local image directory
// and a storage URL.
//
// Supported URL schemes are file (or no scheme), ssh and s3:
//
//	file:///srv/images/v3.15    ~/images
//	ssh://user@host:22/images   (relative to the login directory)
//	ssh://host//srv/images      (absolute path)
//	s3://bucket/prefix
package storage

import (
	"context"
	"crypto/sha512"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/imamik/alpine-cloud-images/internal/platform/s3"
	"github.com/imamik/alpine-cloud-images/internal/platform/ssh"
	"github.com/imamik/alpine-cloud-images/internal/util/logx"
)

// ErrUnsupportedScheme is returned for storage URLs with an unknown scheme.
var ErrUnsupportedScheme = errors.New("unsupported storage scheme")

// ChecksumExt is the extension of checksum files written by Store.
const ChecksumExt = ".sha512"

// RemoteShell is the part of an SSH client used by ssh:// storage.
type RemoteShell interface {
	Execute(ctx context.Context, command string) (string, error)
	Output(ctx context.Context, command string) (string, error)
	Upload(ctx context.Context, r io.Reader, remotePath string) error
	Download(ctx context.Context, remotePath string, w io.Writer) error
}

// ObjectStore is the part of an S3 client used by s3:// storage.
type ObjectStore interface {
	ListObjects(ctx context.Context, bucket, prefix string) ([]s3.Object, error)
	PutObject(ctx context.Context, bucket, key string, body io.Reader, size int64) error
	GetObject(ctx context.Context, bucket, key string, w io.Writer) error
	DeleteObject(ctx context.Context, bucket, key string) error
}

// Options holds credentials and client factories for remote schemes.
type Options struct {
	SSHKey            []byte
	SSHKnownHostsFile string
	SSHUseAgent       bool

	S3 s3.Options

	// NewShell and NewObjectStore replace the real clients in tests.
	NewShell       func(cfg *ssh.Config) (RemoteShell, error)
	NewObjectStore func(ctx context.Context, opts s3.Options) (ObjectStore, error)
}

// Storage moves files for one image between its local directory and a
// storage location.
type Storage struct {
	local   string
	url     string
	scheme  string
	backend backend
}

type entry struct {
	name    string
	modTime int64
}

type backend interface {
	put(ctx context.Context, name, localPath string) error
	get(ctx context.Context, name, localPath string) error
	list(ctx context.Context, match string) ([]entry, error)
	remove(ctx context.Context, name string) error
}

// New creates a Storage for localDir and storageURL.
func New(ctx context.Context, localDir, storageURL string, opts Options) (*Storage, error) {
	loc, err := parseLocation(storageURL)
	if err != nil {
		return nil, err
	}

	s := &Storage{
		local:  localDir,
		url:    loc.url,
		scheme: loc.scheme,
	}

	switch loc.scheme {
	case "file":
		s.backend = &fileBackend{root: loc.path}
	case "ssh":
		newShell := opts.NewShell
		if newShell == nil {
			newShell = func(cfg *ssh.Config) (RemoteShell, error) { return ssh.NewClient(cfg) }
		}
		shell, err := newShell(&ssh.Config{
			Host:           loc.host,
			Port:           loc.port,
			User:           loc.user,
			PrivateKey:     opts.SSHKey,
			UseAgent:       opts.SSHUseAgent || len(opts.SSHKey) == 0,
			KnownHostsFile: opts.SSHKnownHostsFile,
			MaxRetries:     3,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create SSH client for %s: %w", loc.url, err)
		}
		s.backend = &sshBackend{shell: shell, root: loc.path}
	case "s3":
		newStore := opts.NewObjectStore
		if newStore == nil {
			newStore = func(ctx context.Context, o s3.Options) (ObjectStore, error) { return s3.NewClient(ctx, o) }
		}
		store, err := newStore(ctx, opts.S3)
		if err != nil {
			return nil, fmt.Errorf("failed to create S3 client for %s: %w", loc.url, err)
		}
		s.backend = &s3Backend{store: store, bucket: loc.host, prefix: loc.path}
	}

	return s, nil
}

// URL returns the storage URL without a trailing slash.
func (s *Storage) URL() string {
	return s.url
}

// Scheme returns file, ssh or s3.
func (s *Storage) Scheme() string {
	return s.scheme
}

// LocalDir returns the local image directory.
func (s *Storage) LocalDir() string {
	return s.local
}

// Store copies files from the local directory to storage. File names may
// be glob patterns. With checksum, a .sha512 file is written and stored
// alongside each file.
func (s *Storage) Store(ctx context.Context, files []string, checksum bool) error {
	var names []string
	for _, f := range files {
		matches, err := filepath.Glob(filepath.Join(s.local, f))
		if err != nil {
			return fmt.Errorf("invalid file pattern %q: %w", f, err)
		}
		for _, m := range matches {
			names = append(names, filepath.Base(m))
		}
	}

	if len(names) == 0 {
		logx.Debugf("No files to store")
		return nil
	}

	if checksum {
		log.Printf("Creating checksum(s) for %v", names)
		for _, name := range append([]string(nil), names...) {
			if _, err := WriteSHA512(filepath.Join(s.local, name)); err != nil {
				return err
			}
			names = append(names, name+ChecksumExt)
		}
	}

	log.Printf("Storing %v", names)
	for _, name := range names {
		localPath := filepath.Join(s.local, name)
		if info, err := os.Stat(localPath); err == nil {
			logx.Debugf("Storing %s/%s (%s)", s.url, name, humanize.Bytes(uint64(info.Size())))
		}
		if err := s.backend.put(ctx, name, localPath); err != nil {
			return fmt.Errorf("failed to store %s in %s: %w", name, s.url, err)
		}
	}
	return nil
}

// Retrieve copies files from storage into the local directory.
func (s *Storage) Retrieve(ctx context.Context, files ...string) error {
	if len(files) == 0 {
		logx.Debugf("No files to retrieve")
		return nil
	}

	if err := os.MkdirAll(s.local, 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", s.local, err)
	}

	for _, name := range files {
		logx.Debugf("Retrieving %s/%s", s.url, name)
		if err := s.backend.get(ctx, name, filepath.Join(s.local, name)); err != nil {
			return fmt.Errorf("failed to retrieve %s from %s: %w", name, s.url, err)
		}
	}
	return nil
}

// List returns the names of stored files matching the glob pattern match
// ("*" when empty), newest first.
func (s *Storage) List(ctx context.Context, match string) ([]string, error) {
	if match == "" {
		match = "*"
	}
	if _, err := filepath.Match(match, ""); err != nil {
		return nil, fmt.Errorf("invalid pattern %q: %w", match, err)
	}

	logx.Debugf("Listing %s files at %s", match, s.url)
	entries, err := s.backend.list(ctx, match)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", s.url, err)
	}

	sortNewestFirst(entries)
	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.name
	}
	return names, nil
}

// Remove deletes files from storage. Missing files are not an error.
func (s *Storage) Remove(ctx context.Context, files ...string) error {
	if len(files) == 0 {
		logx.Debugf("No files to remove")
		return nil
	}

	for _, name := range files {
		logx.Debugf("Removing %s/%s", s.url, name)
		if err := s.backend.remove(ctx, name); err != nil {
			return fmt.Errorf("failed to remove %s from %s: %w", name, s.url, err)
		}
	}
	return nil
}

// WriteSHA512 writes the hex SHA-512 digest of path to path+".sha512" and
// returns the digest.
func WriteSHA512(path string) (string, error) {
	f, err := os.Open(path) // #nosec G304 - local build artifact
	if err != nil {
		return "", fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	h := sha512.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("failed to read %s: %w", path, err)
	}
	sum := hex.EncodeToString(h.Sum(nil))

	if err := os.WriteFile(path+ChecksumExt, []byte(sum+"\n"), 0o644); err != nil { // #nosec G306 - checksums are public
		return "", fmt.Errorf("failed to write checksum for %s: %w", path, err)
	}
	return sum, nil
}

func sortNewestFirst(entries []entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].modTime > entries[j].modTime
	})
}

func validName(name string) error {
	if name == "" || strings.Contains(name, "/") || name == "." || name == ".." {
		return fmt.Errorf("invalid file name %q", name)
	}
	return nil
}
