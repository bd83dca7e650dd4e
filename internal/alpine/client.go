// Package alpine reads Alpine Linux release metadata from releases.json.
package alpine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/Masterminds/semver/v3"

	"github.com/imamik/alpine-cloud-images/internal/util/retry"
)

const (
	// ReleasesURL is the default location of Alpine's release metadata.
	ReleasesURL = "https://alpinelinux.org/releases.json"

	// MirrorURL is the default Alpine mirror for ISO downloads.
	MirrorURL = "https://dl-cdn.alpinelinux.org/alpine"

	// Edge is the rolling development branch.
	Edge = "edge"
)

// ErrUnknownVersion is returned for a version with no release branch.
var ErrUnknownVersion = errors.New("unknown alpine version")

// VersionInfo describes the current release of an Alpine version.
type VersionInfo struct {
	Release   string
	EndOfLife string
	Notes     string
}

// Client fetches and caches releases.json.
type Client struct {
	url        string
	mirror     string
	httpClient *http.Client
	retryOpts  []retry.Option

	mu   sync.Mutex
	data *releasesDoc
}

// NewClient creates a client for the given releases.json and mirror URLs.
// Empty values fall back to the public defaults.
func NewClient(url, mirror string) *Client {
	if url == "" {
		url = ReleasesURL
	}
	if mirror == "" {
		mirror = MirrorURL
	}
	return &Client{
		url:    url,
		mirror: strings.TrimSuffix(mirror, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		retryOpts: []retry.Option{retry.WithMaxRetries(3), retry.WithInitialDelay(time.Second)},
	}
}

type releasesDoc struct {
	LatestStable    string          `json:"latest_stable"`
	ReleaseBranches []releaseBranch `json:"release_branches"`
}

type releaseBranch struct {
	RelBranch string    `json:"rel_branch"`
	EOLDate   string    `json:"eol_date"`
	Releases  []release `json:"releases"`
}

type release struct {
	Version string `json:"version"`
	Date    string `json:"date"`
	Notes   string `json:"notes"`
}

// VersionInfo returns the latest release of version ("3.15", "v3.15" or "edge").
func (c *Client) VersionInfo(ctx context.Context, version string) (*VersionInfo, error) {
	version = strings.Trim(version, `"`)
	if version == Edge {
		return &VersionInfo{Release: Edge}, nil
	}

	doc, err := c.releases(ctx)
	if err != nil {
		return nil, err
	}

	branch := doc.branch("v" + strings.TrimPrefix(version, "v"))
	if branch == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownVersion, version)
	}

	rel := branch.latest()
	if rel == nil {
		return nil, fmt.Errorf("%w: %s has no releases", ErrUnknownVersion, version)
	}

	return &VersionInfo{
		Release:   rel.Version,
		EndOfLife: branch.EOLDate,
		Notes:     rel.Notes,
	}, nil
}

// VirtISOURL returns the URL of the latest stable "virt" ISO for arch.
func (c *Client) VirtISOURL(ctx context.Context, arch string) (string, error) {
	doc, err := c.releases(ctx)
	if err != nil {
		return "", err
	}

	branch := doc.branch(doc.LatestStable)
	if branch == nil {
		return "", fmt.Errorf("%w: latest stable %q", ErrUnknownVersion, doc.LatestStable)
	}
	rel := branch.latest()
	if rel == nil {
		return "", fmt.Errorf("%w: %s has no releases", ErrUnknownVersion, doc.LatestStable)
	}

	return fmt.Sprintf("%s/%s/releases/%s/alpine-virt-%s-%s.iso",
		c.mirror, doc.LatestStable, arch, rel.Version, arch), nil
}

func (c *Client) releases(ctx context.Context) (*releasesDoc, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.data != nil {
		return c.data, nil
	}

	var doc *releasesDoc
	err := retry.WithExponentialBackoff(ctx, func() error {
		var err error
		doc, err = c.fetch(ctx)
		return err
	}, c.retryOpts...)
	if err != nil {
		return nil, err
	}

	c.data = doc
	return doc, nil
}

func (c *Client) fetch(ctx context.Context) (*releasesDoc, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, retry.Fatal(fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", c.url, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("%s returned status %d", c.url, resp.StatusCode)
		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			return nil, retry.Fatal(err)
		}
		return nil, err
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	return parseReleases(body)
}

func parseReleases(data []byte) (*releasesDoc, error) {
	var doc releasesDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, retry.Fatal(fmt.Errorf("failed to parse releases: %w", err))
	}
	return &doc, nil
}

func (d *releasesDoc) branch(name string) *releaseBranch {
	for i := range d.ReleaseBranches {
		if d.ReleaseBranches[i].RelBranch == name {
			return &d.ReleaseBranches[i]
		}
	}
	return nil
}

// latest returns the highest release in the branch. Versions that do not
// parse as semver (release candidates with odd suffixes) are skipped unless
// nothing else is available.
func (b *releaseBranch) latest() *release {
	var best *release
	var bestVer *semver.Version
	for i := range b.Releases {
		r := &b.Releases[i]
		v, err := semver.NewVersion(r.Version)
		if err != nil {
			if best == nil {
				best = r
			}
			continue
		}
		if bestVer == nil || v.GreaterThan(bestVer) {
			best, bestVer = r, v
		}
	}
	return best
}
