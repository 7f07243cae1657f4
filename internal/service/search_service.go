package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/straye-as/chart-api/internal/chart"
	"github.com/straye-as/chart-api/internal/domain"
	"go.uber.org/zap"
)

// SearchService fronts the upstream search clients for the public proxy endpoints
type SearchService struct {
	searchers chart.Searchers
	logger    *zap.Logger
}

// NewSearchService creates a new SearchService instance
func NewSearchService(searchers chart.Searchers, logger *zap.Logger) *SearchService {
	return &SearchService{
		searchers: searchers,
		logger:    logger,
	}
}

// Searchers exposes the backends so chart sessions search the same upstreams
func (s *SearchService) Searchers() chart.Searchers {
	return s.searchers
}

// Search runs query against the backend for d. A blank query returns an empty list.
func (s *SearchService) Search(ctx context.Context, d domain.SearchDomain, query string) ([]domain.SearchResult, error) {
	if !d.IsValid() {
		return nil, fmt.Errorf("%w: unknown search type %q", ErrInvalidInput, d)
	}
	if strings.TrimSpace(query) == "" {
		return []domain.SearchResult{}, nil
	}

	searcher, ok := s.searchers[d]
	if !ok || searcher == nil {
		return nil, fmt.Errorf("%w: %s", ErrSearchUnavailable, d)
	}

	start := time.Now()
	results, err := searcher.Search(ctx, query)
	if err != nil {
		s.logger.Warn("search failed",
			zap.String("type", string(d)),
			zap.String("query", query),
			zap.Error(err),
		)
		return nil, err
	}

	s.logger.Debug("search completed",
		zap.String("type", string(d)),
		zap.Int("results", len(results)),
		zap.Duration("duration", time.Since(start)),
	)
	return results, nil
}
