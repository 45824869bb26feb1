// Package pypi implements the registry plugin for PyPI and the
// requirements.txt/pyproject.toml dependency parser.
package pypi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/safe-pkgs/safe-pkgs/internal/osvclient"
	"github.com/safe-pkgs/safe-pkgs/internal/registryapi"
	"github.com/safe-pkgs/safe-pkgs/internal/types"
)

const (
	ecosystem                = "PyPI"
	userAgent                = "safe-pkgs/0.1.0"
	defaultPackageAPIBaseURL = "https://pypi.org/pypi"
	defaultDownloadsBaseURL  = "https://pypistats.org/api/packages"
	defaultPopularIndexURL   = "https://hugovk.github.io/top-pypi-packages/top-pypi-packages-30-days.min.json"
	apiTimeout               = 30 * time.Second
)

// Client is the PyPI registry plugin.
type Client struct {
	http              *http.Client
	logger            *zap.Logger
	osv               *osvclient.Client
	packageAPIBaseURL string
	downloadsBaseURL  string
	popularIndexURL   string

	popularMu    sync.RWMutex
	popularNames []string
}

// New builds a PyPI registry plugin. Each upstream URL can be
// overridden with its SAFE_PKGS_PYPI_*_BASE_URL environment variable
// for testing.
func New(logger *zap.Logger, osv *osvclient.Client) *Client {
	return &Client{
		http:              &http.Client{Timeout: apiTimeout},
		logger:            logger,
		osv:               osv,
		packageAPIBaseURL: envOr("SAFE_PKGS_PYPI_PACKAGE_API_BASE_URL", defaultPackageAPIBaseURL),
		downloadsBaseURL:  envOr("SAFE_PKGS_PYPI_DOWNLOADS_API_BASE_URL", defaultDownloadsBaseURL),
		popularIndexURL:   envOr("SAFE_PKGS_PYPI_POPULAR_INDEX_URL", defaultPopularIndexURL),
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func (c *Client) Ecosystem() string { return ecosystem }

type pypiInfo struct {
	Version    *string `json:"version"`
	Author     *string `json:"author"`
	Maintainer *string `json:"maintainer"`
}

type pypiReleaseFile struct {
	UploadTime *string `json:"upload_time_iso_8601"`
	Yanked     bool    `json:"yanked"`
}

type pypiPackageResponse struct {
	Info     pypiInfo                     `json:"info"`
	Releases map[string][]pypiReleaseFile `json:"releases"`
}

// FetchPackage retrieves the project's metadata and every released
// version from PyPI's JSON API.
func (c *Client) FetchPackage(ctx context.Context, name string) (*types.PackageRecord, error) {
	url := fmt.Sprintf("%s/%s/json", strings.TrimSuffix(c.packageAPIBaseURL, "/"), name)
	resp, err := c.get(ctx, url, "PyPI API")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, &registryapi.NotFoundError{Registry: ecosystem, Package: name}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, transportStatusError("PyPI API", resp)
	}

	var body pypiPackageResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, &registryapi.InvalidResponseError{Registry: ecosystem, Reason: err.Error()}
	}

	var latest string
	if body.Info.Version != nil {
		latest = strings.TrimSpace(*body.Info.Version)
	}
	if latest == "" {
		return nil, &registryapi.InvalidResponseError{Registry: ecosystem, Reason: "missing package latest version"}
	}

	versions := make(map[string]types.PackageVersion, len(body.Releases))
	for version, files := range body.Releases {
		var published *time.Time
		for _, file := range files {
			if file.UploadTime == nil {
				continue
			}
			parsed, err := time.Parse(time.RFC3339, *file.UploadTime)
			if err != nil {
				continue
			}
			utc := parsed.UTC()
			if published == nil || utc.Before(*published) {
				published = &utc
			}
		}
		deprecated := len(files) > 0
		for _, file := range files {
			if !file.Yanked {
				deprecated = false
				break
			}
		}
		versions[version] = types.PackageVersion{Version: version, Published: published, Deprecated: deprecated}
	}
	if _, ok := versions[latest]; !ok {
		versions[latest] = types.PackageVersion{Version: latest}
	}

	return &types.PackageRecord{
		Name:       name,
		Latest:     latest,
		Publishers: collectPublishers(body.Info),
		Versions:   versions,
	}, nil
}

// collectPublishers gathers maintainer then author, trimmed,
// case-insensitively deduplicated, preserving the first-seen casing.
func collectPublishers(info pypiInfo) []string {
	var publishers []string
	seen := make(map[string]struct{})
	for _, raw := range []*string{info.Maintainer, info.Author} {
		if raw == nil {
			continue
		}
		value := strings.TrimSpace(*raw)
		if value == "" {
			continue
		}
		key := strings.ToLower(value)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		publishers = append(publishers, value)
	}
	return publishers
}

type pypiDownloadsResponse struct {
	Data struct {
		LastWeek *uint64 `json:"last_week"`
	} `json:"data"`
}

// FetchWeeklyDownloads queries pypistats.org's recent-downloads
// endpoint.
func (c *Client) FetchWeeklyDownloads(ctx context.Context, name string) (*uint64, error) {
	url := fmt.Sprintf("%s/%s/recent", strings.TrimSuffix(c.downloadsBaseURL, "/"), name)
	resp, err := c.get(ctx, url, "PyPI downloads API")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, transportStatusError("PyPI downloads API", resp)
	}

	var body pypiDownloadsResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, &registryapi.InvalidResponseError{Registry: ecosystem, Reason: err.Error()}
	}
	return body.Data.LastWeek, nil
}

type topPyPIRow struct {
	Project string `json:"project"`
}

type topPyPIResponse struct {
	Rows []topPyPIRow `json:"rows"`
}

// FetchPopularNames pulls the hugovk top-pypi-packages snapshot and
// caches the deduplicated, order-preserved name list.
func (c *Client) FetchPopularNames(ctx context.Context, limit int) ([]string, error) {
	if limit <= 0 {
		return nil, nil
	}

	c.popularMu.RLock()
	if len(c.popularNames) >= limit {
		result := append([]string(nil), c.popularNames[:limit]...)
		c.popularMu.RUnlock()
		return result, nil
	}
	c.popularMu.RUnlock()

	resp, err := c.get(ctx, c.popularIndexURL, "PyPI popularity index")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, transportStatusError("PyPI popularity index", resp)
	}

	var body topPyPIResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, &registryapi.InvalidResponseError{Registry: ecosystem, Reason: err.Error()}
	}

	var names []string
	seen := make(map[string]struct{})
	for _, row := range body.Rows {
		if _, ok := seen[row.Project]; ok {
			continue
		}
		seen[row.Project] = struct{}{}
		names = append(names, row.Project)
	}
	if len(names) == 0 {
		return nil, &registryapi.InvalidResponseError{Registry: ecosystem, Reason: "PyPI popularity index returned no package names"}
	}

	c.popularMu.Lock()
	c.popularNames = names
	c.popularMu.Unlock()

	if len(names) > limit {
		names = names[:limit]
	}
	return append([]string(nil), names...), nil
}

// FetchAdvisories delegates to the shared OSV client.
func (c *Client) FetchAdvisories(ctx context.Context, name, version string) ([]types.PackageAdvisory, error) {
	return c.osv.FetchAdvisories(ctx, ecosystem, name, version)
}

// PrefetchWeeklyDownloads is a no-op: pypistats.org has no bulk
// endpoint, so FetchWeeklyDownloads always goes direct per package.
func (c *Client) PrefetchWeeklyDownloads(context.Context, []string) error { return nil }

// LockfileParser returns the requirements.txt/pyproject.toml parser.
func (c *Client) LockfileParser() registryapi.LockfileParser {
	return Parser{}
}

func (c *Client) get(ctx context.Context, url, op string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &registryapi.TransportError{Registry: ecosystem, Op: "create request", Err: err}
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &registryapi.TransportError{Registry: ecosystem, Op: op, Err: err}
	}
	return resp, nil
}

func transportStatusError(op string, resp *http.Response) error {
	defer resp.Body.Close()
	return &registryapi.TransportError{
		Registry: ecosystem,
		Op:       op,
		Err:      fmt.Errorf("status=%d", resp.StatusCode),
	}
}
