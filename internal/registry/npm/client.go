// Package npm implements the registry plugin for registry.npmjs.org,
// its bulk/point downloads API, the npms.io popularity index, and the
// package.json/package-lock.json dependency parser.
package npm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/safe-pkgs/safe-pkgs/internal/osvclient"
	"github.com/safe-pkgs/safe-pkgs/internal/registryapi"
	"github.com/safe-pkgs/safe-pkgs/internal/types"
)

const (
	ecosystem             = "npm"
	defaultBaseURL        = "https://registry.npmjs.org"
	defaultDownloadsURL   = "https://api.npmjs.org"
	defaultPopularityURL  = "https://api.npms.io"
	popularQuery          = "not:deprecated"
	popularPageSize       = 250
	bulkDownloadBatchSize = 128
	apiTimeout            = 30 * time.Second
)

var installHooks = []string{"preinstall", "install", "postinstall"}

// Client is the npm registry plugin.
type Client struct {
	http         *http.Client
	logger       *zap.Logger
	osv          *osvclient.Client
	baseURL      string
	downloadsURL string
	popularURL   string

	popularMu    sync.RWMutex
	popularNames []string

	downloadsMu sync.RWMutex
	downloads   map[string]*uint64
}

// New builds an npm registry plugin. Base URLs can be overridden with
// SAFE_PKGS_NPM_REGISTRY_BASE_URL, SAFE_PKGS_NPM_DOWNLOADS_API_BASE_URL,
// and SAFE_PKGS_NPM_POPULAR_INDEX_API_BASE_URL for testing.
func New(logger *zap.Logger, osv *osvclient.Client) *Client {
	return &Client{
		http:         &http.Client{Timeout: apiTimeout},
		logger:       logger,
		osv:          osv,
		baseURL:      envOr("SAFE_PKGS_NPM_REGISTRY_BASE_URL", defaultBaseURL),
		downloadsURL: envOr("SAFE_PKGS_NPM_DOWNLOADS_API_BASE_URL", defaultDownloadsURL),
		popularURL:   envOr("SAFE_PKGS_NPM_POPULAR_INDEX_API_BASE_URL", defaultPopularityURL),
		downloads:    make(map[string]*uint64),
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func (c *Client) Ecosystem() string { return ecosystem }

func encodePackageName(name string) string {
	encoded := strings.ReplaceAll(name, "@", "%40")
	encoded = strings.ReplaceAll(encoded, "/", "%2f")
	return encoded
}

type packageResponse struct {
	DistTags    distTags                  `json:"dist-tags"`
	Maintainers []maintainer              `json:"maintainers"`
	Versions    map[string]versionPayload `json:"versions"`
	Time        map[string]string         `json:"time"`
}

type distTags struct {
	Latest string `json:"latest"`
}

type maintainer struct {
	Name string `json:"name"`
}

type versionPayload struct {
	Deprecated string            `json:"deprecated"`
	Scripts    map[string]string `json:"scripts"`
}

func (v versionPayload) installScripts() []string {
	var out []string
	for _, hook := range installHooks {
		if cmd, ok := v.Scripts[hook]; ok {
			out = append(out, fmt.Sprintf("%s: %s", hook, cmd))
		}
	}
	return out
}

// FetchPackage retrieves the full package document from the registry.
func (c *Client) FetchPackage(ctx context.Context, name string) (*types.PackageRecord, error) {
	url := fmt.Sprintf("%s/%s", strings.TrimSuffix(c.baseURL, "/"), encodePackageName(name))

	resp, err := c.get(ctx, url)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, &registryapi.NotFoundError{Registry: ecosystem, Package: name}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, transportStatusError(ecosystem, "npm registry", resp)
	}

	var body packageResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, &registryapi.InvalidResponseError{Registry: ecosystem, Reason: err.Error()}
	}
	if body.DistTags.Latest == "" {
		return nil, &registryapi.InvalidResponseError{Registry: ecosystem, Reason: "missing dist-tags.latest"}
	}

	versions := make(map[string]types.PackageVersion, len(body.Versions))
	for version, meta := range body.Versions {
		var published *time.Time
		if raw, ok := body.Time[version]; ok {
			if parsed, err := time.Parse(time.RFC3339, raw); err == nil {
				utc := parsed.UTC()
				published = &utc
			}
		}
		versions[version] = types.PackageVersion{
			Version:        version,
			Published:      published,
			Deprecated:     meta.Deprecated != "",
			InstallScripts: meta.installScripts(),
		}
	}
	if _, ok := versions[body.DistTags.Latest]; !ok {
		return nil, &registryapi.InvalidResponseError{Registry: ecosystem, Reason: fmt.Sprintf("dist-tags.latest %q not present in versions", body.DistTags.Latest)}
	}

	publishers := make([]string, 0, len(body.Maintainers))
	for _, m := range body.Maintainers {
		publishers = append(publishers, m.Name)
	}

	return &types.PackageRecord{
		Name:       name,
		Latest:     body.DistTags.Latest,
		Publishers: publishers,
		Versions:   versions,
	}, nil
}

type downloadsResponse struct {
	Downloads *uint64 `json:"downloads"`
}

// FetchWeeklyDownloads returns the last-week download point, consulting
// the bulk-prefetch memo before issuing a per-package request.
func (c *Client) FetchWeeklyDownloads(ctx context.Context, name string) (*uint64, error) {
	if cached, ok := c.cachedDownloads(name); ok {
		return cached, nil
	}

	url := fmt.Sprintf("%s/downloads/point/last-week/%s", strings.TrimSuffix(c.downloadsURL, "/"), encodePackageName(name))

	resp, err := c.getWithRetry(ctx, url)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		c.storeDownloads(name, nil)
		return nil, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, transportStatusError(ecosystem, "npm downloads API", resp)
	}

	var body downloadsResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, &registryapi.InvalidResponseError{Registry: ecosystem, Reason: err.Error()}
	}
	c.storeDownloads(name, body.Downloads)
	return body.Downloads, nil
}

func (c *Client) cachedDownloads(name string) (*uint64, bool) {
	c.downloadsMu.RLock()
	defer c.downloadsMu.RUnlock()
	v, ok := c.downloads[name]
	return v, ok
}

func (c *Client) storeDownloads(name string, downloads *uint64) {
	c.downloadsMu.Lock()
	defer c.downloadsMu.Unlock()
	c.downloads[name] = downloads
}

type bulkDownloadsResponse struct {
	Downloads []bulkDownloadItem `json:"downloads"`
}

type bulkDownloadItem struct {
	Package   string  `json:"package"`
	Downloads *uint64 `json:"downloads"`
}

// PrefetchWeeklyDownloads bulk-fetches weekly downloads for unscoped
// names not already memoized, 128 packages per request (npm's bulk
// endpoint only accepts unscoped names).
func (c *Client) PrefetchWeeklyDownloads(ctx context.Context, names []string) error {
	var pending []string
	seen := make(map[string]bool, len(names))
	for _, name := range names {
		if strings.HasPrefix(name, "@") || seen[name] {
			continue
		}
		if _, ok := c.cachedDownloads(name); ok {
			continue
		}
		seen[name] = true
		pending = append(pending, name)
	}

	for start := 0; start < len(pending); start += bulkDownloadBatchSize {
		end := start + bulkDownloadBatchSize
		if end > len(pending) {
			end = len(pending)
		}
		chunk := pending[start:end]

		url := fmt.Sprintf("%s/downloads/point/last-week/%s", strings.TrimSuffix(c.downloadsURL, "/"), strings.Join(chunk, ","))
		resp, err := c.get(ctx, url)
		if err != nil {
			return err
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			resp.Body.Close()
			return transportStatusError(ecosystem, "npm bulk downloads API", resp)
		}

		var body bulkDownloadsResponse
		decodeErr := json.NewDecoder(resp.Body).Decode(&body)
		resp.Body.Close()
		if decodeErr != nil {
			return &registryapi.InvalidResponseError{Registry: ecosystem, Reason: decodeErr.Error()}
		}
		for _, item := range body.Downloads {
			c.storeDownloads(item.Package, item.Downloads)
		}
	}
	return nil
}

type searchResponse struct {
	Results []searchResult `json:"results"`
}

type searchResult struct {
	Package searchPackage `json:"package"`
}

type searchPackage struct {
	Name string `json:"name"`
}

// FetchPopularNames paginates the npms.io search index until limit
// distinct names are collected, caching the result for later calls.
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
	seen := make(map[string]bool)
	from := 0

	for len(names) < limit {
		size := popularPageSize
		if remaining := limit - len(names); remaining < size {
			size = remaining
		}

		url := fmt.Sprintf("%s/v2/search?q=%s&size=%d&from=%d",
			strings.TrimSuffix(c.popularURL, "/"), popularQuery, size, from)

		resp, err := c.get(ctx, url)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			resp.Body.Close()
			return nil, transportStatusError(ecosystem, "npms popularity index", resp)
		}

		var body searchResponse
		decodeErr := json.NewDecoder(resp.Body).Decode(&body)
		resp.Body.Close()
		if decodeErr != nil {
			return nil, &registryapi.InvalidResponseError{Registry: ecosystem, Reason: decodeErr.Error()}
		}
		if len(body.Results) == 0 {
			break
		}

		for _, result := range body.Results {
			if seen[result.Package.Name] {
				continue
			}
			seen[result.Package.Name] = true
			names = append(names, result.Package.Name)
			if len(names) >= limit {
				break
			}
		}
		from += size
	}

	if len(names) == 0 {
		return nil, &registryapi.InvalidResponseError{Registry: ecosystem, Reason: "npms popularity index returned no package names"}
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

// LockfileParser returns the package.json/package-lock.json parser.
func (c *Client) LockfileParser() registryapi.LockfileParser {
	return Parser{}
}

func (c *Client) get(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &registryapi.TransportError{Registry: ecosystem, Op: "create request", Err: err}
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &registryapi.TransportError{Registry: ecosystem, Op: "execute request", Err: err}
	}
	return resp, nil
}

// getWithRetry retries once on 429, honoring Retry-After when present
// (capped to avoid stalling an evaluation for long).
func (c *Client) getWithRetry(ctx context.Context, url string) (*http.Response, error) {
	resp, err := c.get(ctx, url)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusTooManyRequests {
		return resp, nil
	}
	wait := 1 * time.Second
	if raw := resp.Header.Get("Retry-After"); raw != "" {
		if seconds, err := strconv.Atoi(raw); err == nil && seconds > 0 {
			wait = time.Duration(seconds) * time.Second
			if wait > 5*time.Second {
				wait = 5 * time.Second
			}
		}
	}
	resp.Body.Close()
	c.logger.Debug("npm downloads API rate limited, retrying", zap.Duration("wait", wait))

	select {
	case <-ctx.Done():
		return nil, &registryapi.TransportError{Registry: ecosystem, Op: "execute request", Err: ctx.Err()}
	case <-time.After(wait):
	}
	return c.get(ctx, url)
}

func transportStatusError(registry, op string, resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	return &registryapi.TransportError{
		Registry: registry,
		Op:       op,
		Err:      fmt.Errorf("status=%d body=%s", resp.StatusCode, string(body)),
	}
}
