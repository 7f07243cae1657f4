package chart

import (
	"context"
	"errors"
	"fmt"

	"github.com/straye-as/chart-api/internal/domain"
	"github.com/straye-as/chart-api/internal/search"
)

// EscapeKey closes the modal
const EscapeKey = "Escape"

var (
	// ErrUnknownDomain is returned for a search domain other than anime or game
	ErrUnknownDomain = errors.New("unknown search type")

	// ErrModalClosed is returned when a modal operation needs the modal open
	ErrModalClosed = errors.New("search modal is not open")
)

// Searchers maps each search domain to its backend
type Searchers map[domain.SearchDomain]search.Searcher

// Modal is the search dialog state. Searches are split into Begin/Finish so the caller
// can run the upstream call without holding its lock; Finish drops a result whose
// generation has been superseded by a newer search or by closing the modal.
type Modal struct {
	open       bool
	domain     domain.SearchDomain
	query      string
	results    []domain.SearchResult
	loading    bool
	errMessage string
	generation uint64
}

// ModalSnapshot is a copy of the modal state
type ModalSnapshot struct {
	Open         bool
	Domain       domain.SearchDomain
	Query        string
	Results      []domain.SearchResult
	Loading      bool
	Error        string
	ScrollLocked bool
}

// PendingSearch is a search that has been started but not yet finished
type PendingSearch struct {
	Generation uint64
	Domain     domain.SearchDomain
	Query      string
}

// NewModal returns a closed modal searching anime
func NewModal() *Modal {
	return &Modal{domain: domain.SearchDomainAnime}
}

// Open shows the modal
func (m *Modal) Open() {
	m.open = true
}

// IsOpen reports whether the modal is shown
func (m *Modal) IsOpen() bool {
	return m.open
}

// ScrollLocked reports whether background scrolling is suppressed
func (m *Modal) ScrollLocked() bool {
	return m.open
}

// Close hides the modal and discards its results, error and loading state
func (m *Modal) Close() {
	m.open = false
	m.results = nil
	m.errMessage = ""
	m.loading = false
	m.generation++
}

// HandleKey closes the modal on Escape and reports whether the key was handled
func (m *Modal) HandleKey(key string) bool {
	if key != EscapeKey || !m.open {
		return false
	}
	m.Close()
	return true
}

// SetDomain switches between anime and game search
func (m *Modal) SetDomain(d domain.SearchDomain) error {
	if !d.IsValid() {
		return fmt.Errorf("%w: %q", ErrUnknownDomain, d)
	}
	m.domain = d
	return nil
}

// SetQuery stores the query text
func (m *Modal) SetQuery(q string) {
	m.query = q
}

// BeginSearch clears prior results and error and marks the modal loading
func (m *Modal) BeginSearch() PendingSearch {
	m.generation++
	m.results = nil
	m.errMessage = ""
	m.loading = true
	return PendingSearch{Generation: m.generation, Domain: m.domain, Query: m.query}
}

// FinishSearch applies a search outcome if p is still the latest search.
// It reports whether the outcome was applied.
func (m *Modal) FinishSearch(p PendingSearch, results []domain.SearchResult, err error) bool {
	if p.Generation != m.generation {
		return false
	}
	m.loading = false
	if err != nil {
		m.results = nil
		m.errMessage = "Search failed: " + err.Error()
		return true
	}
	if results == nil {
		results = []domain.SearchResult{}
	}
	m.results = results
	return true
}

// Search runs a search against the backend for the current domain and applies it
func (m *Modal) Search(ctx context.Context, searchers Searchers) error {
	p := m.BeginSearch()
	results, err := Run(ctx, searchers, p)
	m.FinishSearch(p, results, err)
	return err
}

// Run executes a pending search without touching modal state
func Run(ctx context.Context, searchers Searchers, p PendingSearch) ([]domain.SearchResult, error) {
	s, ok := searchers[p.Domain]
	if !ok || s == nil {
		return nil, fmt.Errorf("%w: %q", ErrUnknownDomain, p.Domain)
	}
	return s.Search(ctx, p.Query)
}

// Choose assigns result i's image to the editor's selected cell and closes the modal.
// Without a selection the modal stays open.
func (m *Modal) Choose(i int, e *Editor) error {
	if i < 0 || i >= len(m.results) {
		return fmt.Errorf("result %d: %w", i, ErrIndexOutOfRange)
	}
	url := m.results[i].ImageURL
	if err := e.PatchSelected(CellPatch{ImageURL: &url}); err != nil {
		return err
	}
	m.Close()
	return nil
}

// Snapshot returns a copy of the modal state
func (m *Modal) Snapshot() ModalSnapshot {
	var results []domain.SearchResult
	if m.results != nil {
		results = make([]domain.SearchResult, len(m.results))
		copy(results, m.results)
	}
	return ModalSnapshot{
		Open:         m.open,
		Domain:       m.domain,
		Query:        m.query,
		Results:      results,
		Loading:      m.loading,
		Error:        m.errMessage,
		ScrollLocked: m.ScrollLocked(),
	}
}
