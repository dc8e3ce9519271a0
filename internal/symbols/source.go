// Package symbols provides best-effort remote retrieval of debug symbols:
// the package registry's symbol-package mirror and the platform symbol
// server. Both are fixed, well-known endpoints; callers decide eligibility.
package symbols

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"
)

// ErrNotFound is returned when a source responds but has no content for the
// key. Transport-level failures are returned as-is.
var ErrNotFound = errors.New("symbol not found")

// checksumHeader carries PDB checksums so the server can disambiguate
// between symbol files sharing a lookup key.
const checksumHeader = "SymbolChecksum"

// Key identifies one remote lookup.
type Key struct {
	// Path is the server-relative lookup path.
	Path string
	// Checksums holds optional "ALG:hex" values for the checksum header.
	Checksums []string
}

// Source fetches symbol content by key. Implementations are best-effort
// network clients; callers must treat every error as "tier unavailable for
// this file" and carry on.
type Source interface {
	Fetch(ctx context.Context, key Key) (io.ReadCloser, error)
}

// newHTTPClient builds the shared client used by both sources.
func newHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &http.Client{Timeout: timeout}
}
