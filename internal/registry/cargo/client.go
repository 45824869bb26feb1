// Package cargo implements the registry plugin for crates.io and the
// Cargo.toml/Cargo.lock dependency parser.
package cargo

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
	ecosystem      = "crates.io"
	defaultBaseURL = "https://crates.io/api/v1"
	userAgent      = "safe-pkgs/0.1.0"
	pageSize       = 100
	apiTimeout     = 30 * time.Second
)

// Client is the crates.io registry plugin.
type Client struct {
	http    *http.Client
	logger  *zap.Logger
	osv     *osvclient.Client
	baseURL string

	popularMu    sync.RWMutex
	popularNames []string
}

// New builds a crates.io registry plugin. The base URL can be
// overridden with SAFE_PKGS_CARGO_REGISTRY_BASE_URL for testing.
func New(logger *zap.Logger, osv *osvclient.Client) *Client {
	baseURL := defaultBaseURL
	if override := os.Getenv("SAFE_PKGS_CARGO_REGISTRY_BASE_URL"); override != "" {
		baseURL = override
	}
	return &Client{
		http:    &http.Client{Timeout: apiTimeout},
		logger:  logger,
		osv:     osv,
		baseURL: baseURL,
	}
}

func (c *Client) Ecosystem() string { return ecosystem }

type crateSummary struct {
	MaxStableVersion string  `json:"max_stable_version"`
	MaxVersion       string  `json:"max_version"`
	RecentDownloads  *uint64 `json:"recent_downloads"`
}

type crateVersion struct {
	Num       string `json:"num"`
	CreatedAt string `json:"created_at"`
	Yanked    bool   `json:"yanked"`
}

type crateDetailResponse struct {
	Krate    crateSummary   `json:"crate"`
	Versions []crateVersion `json:"versions"`
}

// FetchPackage retrieves the crate's metadata and published versions.
func (c *Client) FetchPackage(ctx context.Context, name string) (*types.PackageRecord, error) {
	resp, err := c.get(ctx, fmt.Sprintf("%s/crates/%s", strings.TrimSuffix(c.baseURL, "/"), name))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, &registryapi.NotFoundError{Registry: ecosystem, Package: name}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, transportStatusError("crates.io API", resp)
	}

	var body crateDetailResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, &registryapi.InvalidResponseError{Registry: ecosystem, Reason: err.Error()}
	}

	latest := body.Krate.MaxStableVersion
	if latest == "" {
		latest = body.Krate.MaxVersion
	}
	if latest == "" {
		return nil, &registryapi.InvalidResponseError{Registry: ecosystem, Reason: "missing crate latest version"}
	}

	versions := make(map[string]types.PackageVersion, len(body.Versions))
	for _, v := range body.Versions {
		var published *time.Time
		if parsed, err := time.Parse(time.RFC3339, v.CreatedAt); err == nil {
			utc := parsed.UTC()
			published = &utc
		}
		versions[v.Num] = types.PackageVersion{
			Version:    v.Num,
			Published:  published,
			Deprecated: v.Yanked,
		}
	}

	return &types.PackageRecord{Name: name, Latest: latest, Versions: versions}, nil
}

// FetchWeeklyDownloads reuses the crate-detail endpoint's
// recent_downloads field; crates.io has no separate downloads API.
func (c *Client) FetchWeeklyDownloads(ctx context.Context, name string) (*uint64, error) {
	resp, err := c.get(ctx, fmt.Sprintf("%s/crates/%s", strings.TrimSuffix(c.baseURL, "/"), name))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, transportStatusError("crates.io API", resp)
	}

	var body crateDetailResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, &registryapi.InvalidResponseError{Registry: ecosystem, Reason: err.Error()}
	}
	return body.Krate.RecentDownloads, nil
}

type crateListItem struct {
	ID string `json:"id"`
}

type cratesListResponse struct {
	Crates []crateListItem `json:"crates"`
}

// FetchPopularNames paginates crates.io's own listing sorted by
// downloads, caching the result.
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

	var names []string
	page := 1

	for len(names) < limit {
		perPage := pageSize
		if remaining := limit - len(names); remaining < perPage {
			perPage = remaining
		}

		url := fmt.Sprintf("%s/crates?page=%d&per_page=%d&sort=downloads", strings.TrimSuffix(c.baseURL, "/"), page, perPage)
		resp, err := c.get(ctx, url)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			resp.Body.Close()
			return nil, transportStatusError("crates.io popular crates index", resp)
		}

		var body cratesListResponse
		decodeErr := json.NewDecoder(resp.Body).Decode(&body)
		resp.Body.Close()
		if decodeErr != nil {
			return nil, &registryapi.InvalidResponseError{Registry: ecosystem, Reason: decodeErr.Error()}
		}
		if len(body.Crates) == 0 {
			break
		}

		for _, krate := range body.Crates {
			names = append(names, krate.ID)
			if len(names) >= limit {
				break
			}
		}
		page++
	}

	if len(names) == 0 {
		return nil, &registryapi.InvalidResponseError{Registry: ecosystem, Reason: "crates.io popular crates index returned no crate names"}
	}

	c.popularMu.Lock()
	c.popularNames = names
	c.popularMu.Unlock()

	return append([]string(nil), names...), nil
}

// FetchAdvisories delegates to the shared OSV client.
func (c *Client) FetchAdvisories(ctx context.Context, name, version string) ([]types.PackageAdvisory, error) {
	return c.osv.FetchAdvisories(ctx, ecosystem, name, version)
}

// PrefetchWeeklyDownloads is a no-op: crates.io has no bulk endpoint,
// so fetch_weekly_downloads always goes direct.
func (c *Client) PrefetchWeeklyDownloads(context.Context, []string) error { return nil }

// LockfileParser returns the Cargo.toml/Cargo.lock parser.
func (c *Client) LockfileParser() registryapi.LockfileParser {
	return Parser{}
}

func (c *Client) get(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &registryapi.TransportError{Registry: ecosystem, Op: "create request", Err: err}
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &registryapi.TransportError{Registry: ecosystem, Op: "execute request", Err: err}
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
