package storage

import (
	"context"
	"fmt"
	"os"
	"path"
	"strconv"
	"strings"

	"github.com/imamik/alpine-cloud-images/internal/platform/ssh"
)

// sshBackend stores files on a remote host over SSH.
type sshBackend struct {
	shell RemoteShell
	root  string
}

func (b *sshBackend) put(ctx context.Context, name, localPath string) error {
	f, err := os.Open(localPath) // #nosec G304 - local build artifact
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	return b.shell.Upload(ctx, f, path.Join(b.root, name))
}

func (b *sshBackend) get(ctx context.Context, name, localPath string) error {
	if err := validName(name); err != nil {
		return err
	}
	f, err := os.Create(localPath) // #nosec G304 - local image directory
	if err != nil {
		return err
	}
	if err := b.shell.Download(ctx, path.Join(b.root, name), f); err != nil {
		_ = f.Close()
		_ = os.Remove(localPath)
		return err
	}
	return f.Close()
}

// list prints "<mtime> <name>" for each match with find, which copes with
// an empty result and does not need GNU ls.
func (b *sshBackend) list(ctx context.Context, match string) ([]entry, error) {
	if strings.ContainsAny(match, "/'") {
		return nil, fmt.Errorf("invalid pattern %q", match)
	}
	root := ssh.Quote(b.root)
	command := fmt.Sprintf(
		"mkdir -p %s && find %s -mindepth 1 -maxdepth 1 -name '%s' -exec stat -c '%%Y %%n' {} +",
		root, root, match)

	out, err := b.shell.Output(ctx, command)
	if err != nil {
		return nil, err
	}
	return parseStatLines(out), nil
}

func (b *sshBackend) remove(ctx context.Context, name string) error {
	if err := validName(name); err != nil {
		return err
	}
	_, err := b.shell.Execute(ctx, "rm -f "+ssh.Quote(path.Join(b.root, name)))
	return err
}

func parseStatLines(out string) []entry {
	var entries []entry
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		ts, file, ok := strings.Cut(line, " ")
		if !ok {
			continue
		}
		mtime, err := strconv.ParseInt(ts, 10, 64)
		if err != nil {
			continue
		}
		entries = append(entries, entry{name: path.Base(file), modTime: mtime})
	}
	return entries
}
