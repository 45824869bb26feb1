package osvclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/safe-pkgs/safe-pkgs/internal/registryapi"
)

func withTestServer(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	t.Setenv("SAFE_PKGS_OSV_API_BASE_URL", srv.URL)
	return New(zap.NewNop())
}

func TestFetchAdvisories_ParsesFixedVersionsFromRanges(t *testing.T) {
	c := withTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/query", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"vulns": [
				{
					"id": "GHSA-xxxx",
					"aliases": ["CVE-2020-0001"],
					"affected": [
						{"ranges": [{"events": [{"introduced": "0"}, {"fixed": "1.2.4"}]}]}
					]
				}
			]
		}`))
	})

	advisories, err := c.FetchAdvisories(context.Background(), "npm", "left-pad", "1.2.3")
	require.NoError(t, err)
	require.Len(t, advisories, 1)
	assert.Equal(t, "GHSA-xxxx", advisories[0].ID)
	assert.Equal(t, []string{"CVE-2020-0001"}, advisories[0].Aliases)
	assert.Equal(t, []string{"1.2.4"}, advisories[0].FixedVersions)
}

func TestFetchAdvisories_NotFoundReturnsEmptyNoError(t *testing.T) {
	c := withTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	advisories, err := c.FetchAdvisories(context.Background(), "npm", "ghost-package", "1.0.0")
	require.NoError(t, err)
	assert.Empty(t, advisories)
}

func TestFetchAdvisories_ServerErrorWrapsTransportError(t *testing.T) {
	c := withTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("boom"))
	})

	_, err := c.FetchAdvisories(context.Background(), "npm", "pkg", "1.0.0")
	var transportErr *registryapi.TransportError
	require.ErrorAs(t, err, &transportErr)
	assert.Equal(t, "npm", transportErr.Registry)
}

func TestFetchAdvisories_MalformedBodyWrapsInvalidResponseError(t *testing.T) {
	c := withTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte("not json"))
	})

	_, err := c.FetchAdvisories(context.Background(), "PyPI", "pkg", "1.0.0")
	var invalidErr *registryapi.InvalidResponseError
	require.ErrorAs(t, err, &invalidErr)
	assert.Equal(t, "PyPI", invalidErr.Registry)
}
