package registry

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/pithecene-io/strata/iox"
)

// DefaultHTTPTimeout bounds a remote index fetch.
const DefaultHTTPTimeout = 30 * time.Second

// maxIndexSize caps a remote registry index (8 MiB). An index larger
// than this is malformed or hostile.
const maxIndexSize = 8 * 1024 * 1024

// HTTPSource loads a registry snapshot from a remote YAML index.
type HTTPSource struct {
	// URL is the index location (required).
	URL string
	// Client is the HTTP client; nil uses a client with
	// DefaultHTTPTimeout.
	Client *http.Client
}

// Load implements Source.
func (s HTTPSource) Load(ctx context.Context) (*Registry, error) {
	client := s.Client
	if client == nil {
		client = &http.Client{Timeout: DefaultHTTPTimeout}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("registry index request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("registry index fetch %s: %w", s.URL, err)
	}
	defer iox.DiscardClose(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("registry index fetch %s: status %d", s.URL, resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxIndexSize+1))
	if err != nil {
		return nil, fmt.Errorf("registry index read %s: %w", s.URL, err)
	}
	if len(data) > maxIndexSize {
		return nil, fmt.Errorf("registry index %s exceeds %d bytes", s.URL, maxIndexSize)
	}

	return Decode(data)
}
