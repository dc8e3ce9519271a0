package symbols

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// serverBaseURL is the platform symbol server. Fixed by design: only
// vendor-signed binaries are ever looked up here.
const serverBaseURL = "https://msdl.microsoft.com/download/symbols"

// ServerSource fetches individual symbol files from the platform symbol
// server by symbol key.
type ServerSource struct {
	baseURL string
	client  *http.Client
}

// NewServerSource creates a platform symbol-server source.
func NewServerSource(timeout time.Duration) *ServerSource {
	return &ServerSource{
		baseURL: serverBaseURL,
		client:  newHTTPClient(timeout),
	}
}

// Fetch retrieves one symbol file. A non-success status is ErrNotFound so
// callers can advance to the next candidate key.
func (s *ServerSource) Fetch(ctx context.Context, key Key) (io.ReadCloser, error) {
	url := fmt.Sprintf("%s/%s", s.baseURL, key.Path)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if len(key.Checksums) > 0 {
		req.Header.Set(checksumHeader, strings.Join(key.Checksums, ";"))
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("symbol server request failed: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		return nil, ErrNotFound
	}

	return resp.Body, nil
}
