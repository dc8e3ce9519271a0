package symbols

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// registryBaseURL is the registry's symbol-package retrieval endpoint.
// Not configurable: eligibility is decided by package provenance, and the
// provenance check is tied to this registry.
const registryBaseURL = "https://www.nuget.org/api/v2/symbolpackage"

// RegistryHostSuffix is the registry domain a package's repository-signature
// service index must match for the registry tier to apply.
const RegistryHostSuffix = "nuget.org"

// RegistrySource fetches companion symbol packages (.snupkg) from the
// package registry.
type RegistrySource struct {
	baseURL string
	client  *http.Client
}

// NewRegistrySource creates a registry symbol-package source.
func NewRegistrySource(timeout time.Duration) *RegistrySource {
	return &RegistrySource{
		baseURL: registryBaseURL,
		client:  newHTTPClient(timeout),
	}
}

// RegistryKey builds the lookup key for a package's symbol package.
func RegistryKey(id, version string) Key {
	return Key{Path: fmt.Sprintf("%s/%s", strings.ToLower(id), strings.ToLower(version))}
}

// EligibleHost reports whether a repository-signature service index host
// belongs to the trusted registry.
func EligibleHost(host string) bool {
	h := strings.ToLower(host)
	return h == RegistryHostSuffix || strings.HasSuffix(h, "."+RegistryHostSuffix)
}

// Fetch retrieves the symbol package archive. The caller owns the returned
// stream.
func (s *RegistrySource) Fetch(ctx context.Context, key Key) (io.ReadCloser, error) {
	url := fmt.Sprintf("%s/%s", s.baseURL, key.Path)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("symbol package request failed: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		if resp.StatusCode == http.StatusNotFound {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("symbol package request: HTTP %d", resp.StatusCode)
	}

	return resp.Body, nil
}
