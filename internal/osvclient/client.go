// Package osvclient is the shared OSV.dev advisory client used by every
// registry plugin: same POST wire shape, same 404-means-empty handling.
package osvclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/safe-pkgs/safe-pkgs/internal/registryapi"
	"github.com/safe-pkgs/safe-pkgs/internal/types"
)

const (
	defaultBaseURL = "https://api.osv.dev/v1"
	queryPath      = "/query"
	timeout        = 30 * time.Second
)

// Client queries OSV for vulnerability advisories.
type Client struct {
	httpClient *http.Client
	logger     *zap.Logger
	baseURL    string
}

// New creates an OSV client. The base URL can be overridden with
// SAFE_PKGS_OSV_API_BASE_URL for testing (spec §6).
func New(logger *zap.Logger) *Client {
	baseURL := defaultBaseURL
	if override := os.Getenv("SAFE_PKGS_OSV_API_BASE_URL"); override != "" {
		baseURL = override
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
		baseURL:    baseURL,
	}
}

type queryRequest struct {
	Package queryPackage `json:"package"`
	Version string       `json:"version,omitempty"`
}

type queryPackage struct {
	Name      string `json:"name"`
	Ecosystem string `json:"ecosystem"`
}

type queryResponse struct {
	Vulns []vulnerability `json:"vulns"`
}

type vulnerability struct {
	ID       string     `json:"id"`
	Aliases  []string   `json:"aliases,omitempty"`
	Affected []affected `json:"affected,omitempty"`
}

type affected struct {
	Ranges []versionRange `json:"ranges,omitempty"`
}

type versionRange struct {
	Events []rangeEvent `json:"events"`
}

type rangeEvent struct {
	Fixed string `json:"fixed,omitempty"`
}

// FetchAdvisories queries OSV for the given ecosystem/name/version.
// ecosystem must be exactly "npm", "crates.io", or "PyPI" (spec §6).
func (c *Client) FetchAdvisories(ctx context.Context, ecosystem, name, version string) ([]types.PackageAdvisory, error) {
	reqBody := queryRequest{
		Package: queryPackage{Name: name, Ecosystem: ecosystem},
		Version: version,
	}
	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal OSV request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+queryPath, bytes.NewReader(body))
	if err != nil {
		return nil, &registryapi.TransportError{Registry: ecosystem, Op: "create OSV request", Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")

	c.logger.Debug("querying OSV",
		zap.String("ecosystem", ecosystem),
		zap.String("package", name),
		zap.String("version", version))

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, &registryapi.TransportError{Registry: ecosystem, Op: "execute OSV request", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, &registryapi.TransportError{
			Registry: ecosystem,
			Op:       "OSV query",
			Err:      fmt.Errorf("status=%d body=%s", resp.StatusCode, string(bodyBytes)),
		}
	}

	var result queryResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, &registryapi.InvalidResponseError{Registry: ecosystem, Reason: err.Error()}
	}

	advisories := make([]types.PackageAdvisory, 0, len(result.Vulns))
	for _, v := range result.Vulns {
		advisories = append(advisories, types.PackageAdvisory{
			ID:            v.ID,
			Aliases:       v.Aliases,
			FixedVersions: fixedVersions(v),
		})
	}

	c.logger.Debug("OSV query complete", zap.Int("advisories", len(advisories)))
	return advisories, nil
}

// fixedVersions collects vulns[].affected[].ranges[].events[].fixed,
// skipping events without a fixed version (spec §6).
func fixedVersions(v vulnerability) []string {
	var out []string
	for _, a := range v.Affected {
		for _, r := range a.Ranges {
			for _, e := range r.Events {
				if e.Fixed != "" {
					out = append(out, e.Fixed)
				}
			}
		}
	}
	return out
}
