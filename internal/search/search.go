// Package search proxies the third-party media databases used to fill chart cells.
// Each client turns a free-text query into a list of normalized domain.SearchResult.
package search

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/straye-as/chart-api/internal/domain"
)

// maxResults is the page size requested from both upstreams
const maxResults = 24

// maxErrorBody caps how much of an upstream error body is kept
const maxErrorBody = 4096

// ErrMissingCredentials is returned when the game search client has no Twitch credentials
var ErrMissingCredentials = errors.New("IGDB client credentials are not configured")

// Searcher is implemented by every upstream client
type Searcher interface {
	Search(ctx context.Context, query string) ([]domain.SearchResult, error)
}

// SearcherFunc adapts a function to the Searcher interface
type SearcherFunc func(ctx context.Context, query string) ([]domain.SearchResult, error)

func (f SearcherFunc) Search(ctx context.Context, query string) ([]domain.SearchResult, error) {
	return f(ctx, query)
}

// UpstreamError carries a non-success upstream response.
// Message is the upstream's raw error text and is passed through to clients.
type UpstreamError struct {
	Upstream   string
	StatusCode int
	Message    string
}

func (e *UpstreamError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s returned status %d", e.Upstream, e.StatusCode)
	}
	return e.Message
}

// newUpstreamError reads (a bounded prefix of) the body of a failed response
func newUpstreamError(upstream string, resp *http.Response) *UpstreamError {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	msg := strings.TrimSpace(string(body))
	if msg == "" {
		msg = resp.Status
	}
	return &UpstreamError{
		Upstream:   upstream,
		StatusCode: resp.StatusCode,
		Message:    msg,
	}
}

func isSuccess(code int) bool {
	return code >= 200 && code < 300
}

func intPtr(v int) *int {
	return &v
}
