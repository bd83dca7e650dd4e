package storage

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

type location struct {
	url    string
	scheme string
	host   string
	port   int
	user   string
	path   string
}

func parseLocation(raw string) (*location, error) {
	raw = strings.TrimSuffix(raw, "/")
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid storage URL %q: %w", raw, err)
	}

	loc := &location{url: raw}

	switch u.Scheme {
	case "", "file":
		loc.scheme = "file"
		loc.path = expandHome(u.Host + u.Path)
	case "ssh":
		loc.scheme = "ssh"
		loc.host = u.Hostname()
		if loc.host == "" {
			return nil, fmt.Errorf("storage URL %q has no host", raw)
		}
		if p := u.Port(); p != "" {
			port, err := strconv.Atoi(p)
			if err != nil {
				return nil, fmt.Errorf("invalid port in storage URL %q: %w", raw, err)
			}
			loc.port = port
		}
		if u.User != nil {
			loc.user = u.User.Username()
		}
		if loc.user == "" {
			loc.user = os.Getenv("USER")
		}
		// drop the leading slash; use // for an absolute path
		loc.path = strings.TrimPrefix(u.Path, "/")
		if loc.path == "" {
			loc.path = "."
		}
	case "s3":
		loc.scheme = "s3"
		loc.host = u.Host
		if loc.host == "" {
			return nil, fmt.Errorf("storage URL %q has no bucket", raw)
		}
		loc.path = strings.Trim(u.Path, "/")
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedScheme, u.Scheme)
	}

	return loc, nil
}

func expandHome(p string) string {
	if p != "~" && !strings.HasPrefix(p, "~/") {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, strings.TrimPrefix(p, "~"))
}
