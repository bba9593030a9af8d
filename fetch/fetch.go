// Package fetch defines the network capability boundary.
//
// This is the sole point where strata trusts external bytes: every fetch
// carries a declared checksum and content that disagrees is rejected,
// never accepted.
package fetch

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/pithecene-io/strata/iox"
	"github.com/pithecene-io/strata/types"
)

// DefaultTimeout bounds a single fetch attempt when the caller supplies
// no deadline of its own.
const DefaultTimeout = 5 * time.Minute

// Fetcher downloads artifact bytes.
type Fetcher interface {
	// Fetch downloads url and verifies the sha256 hex digest of the body
	// against expectedChecksum. Returns ErrChecksumMismatch on
	// disagreement, ErrFetchTimeout on deadline expiry, and
	// ErrFetchFailed for other transport failures. All three are
	// retryable.
	Fetch(ctx context.Context, url, expectedChecksum string) ([]byte, error)
}

// HTTPFetcher fetches artifacts over HTTP(S).
type HTTPFetcher struct {
	// Client is the HTTP client; nil uses http.DefaultClient.
	Client *http.Client
	// Timeout bounds each attempt; zero uses DefaultTimeout.
	Timeout time.Duration
}

// Fetch implements Fetcher.
func (f *HTTPFetcher) Fetch(ctx context.Context, url, expectedChecksum string) ([]byte, error) {
	timeout := f.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, types.NewError(types.ErrFetchFailed, "fetch", url, err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, classify(url, err)
	}
	defer iox.DiscardClose(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return nil, types.NewError(types.ErrFetchFailed, "fetch", url,
			fmt.Errorf("status %d", resp.StatusCode))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, classify(url, err)
	}

	sum := sha256.Sum256(body)
	if got := hex.EncodeToString(sum[:]); got != expectedChecksum {
		return nil, types.NewError(types.ErrChecksumMismatch, "fetch", url,
			fmt.Errorf("declared %s, got %s", expectedChecksum, got))
	}
	return body, nil
}

// classify maps a transport error to the fetch taxonomy.
func classify(url string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return types.NewError(types.ErrFetchTimeout, "fetch", url, err)
	}
	var timeoutErr interface{ Timeout() bool }
	if errors.As(err, &timeoutErr) && timeoutErr.Timeout() {
		return types.NewError(types.ErrFetchTimeout, "fetch", url, err)
	}
	return types.NewError(types.ErrFetchFailed, "fetch", url, err)
}

// StubFetcher serves fetches from an in-memory table. For tests.
type StubFetcher struct {
	mu sync.Mutex
	// Responses maps url -> body. Bodies are returned as-is; checksum
	// verification still applies.
	Responses map[string][]byte
	// Fail maps url -> error returned instead of a body.
	Fail map[string]error
	// Calls records fetched URLs in order.
	Calls []string
}

// NewStubFetcher creates an empty stub fetcher.
func NewStubFetcher() *StubFetcher {
	return &StubFetcher{
		Responses: make(map[string][]byte),
		Fail:      make(map[string]error),
	}
}

// Fetch implements Fetcher.
func (s *StubFetcher) Fetch(_ context.Context, url, expectedChecksum string) ([]byte, error) {
	s.mu.Lock()
	s.Calls = append(s.Calls, url)
	failErr := s.Fail[url]
	body, ok := s.Responses[url]
	s.mu.Unlock()

	if failErr != nil {
		return nil, failErr
	}
	if !ok {
		return nil, types.NewError(types.ErrFetchFailed, "fetch", url,
			errors.New("no stub response"))
	}

	sum := sha256.Sum256(body)
	if got := hex.EncodeToString(sum[:]); got != expectedChecksum {
		return nil, types.NewError(types.ErrChecksumMismatch, "fetch", url,
			fmt.Errorf("declared %s, got %s", expectedChecksum, got))
	}
	return body, nil
}

// FetchCount returns the number of fetches issued for url.
func (s *StubFetcher) FetchCount(url string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.Calls {
		if c == url {
			n++
		}
	}
	return n
}
