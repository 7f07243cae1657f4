package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/straye-as/chart-api/internal/domain"
	"go.uber.org/zap"
)

const aniListQuery = `query ($search: String, $perPage: Int) {
  Page(perPage: $perPage) {
    media(search: $search, type: ANIME, sort: POPULARITY_DESC) {
      id
      title { english romaji native }
      seasonYear
      startDate { year }
      coverImage { extraLarge large medium }
    }
  }
}`

// AniListClient searches anime on the AniList GraphQL API
type AniListClient struct {
	endpoint   string
	httpClient *http.Client
	logger     *zap.Logger
}

type aniListRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables"`
}

type aniListResponse struct {
	Data struct {
		Page struct {
			Media []aniListMedia `json:"media"`
		} `json:"Page"`
	} `json:"data"`
	Errors []struct {
		Message string `json:"message"`
		Status  int    `json:"status"`
	} `json:"errors"`
}

type aniListMedia struct {
	ID    int `json:"id"`
	Title struct {
		English *string `json:"english"`
		Romaji  *string `json:"romaji"`
		Native  *string `json:"native"`
	} `json:"title"`
	SeasonYear *int `json:"seasonYear"`
	StartDate  struct {
		Year *int `json:"year"`
	} `json:"startDate"`
	CoverImage struct {
		ExtraLarge *string `json:"extraLarge"`
		Large      *string `json:"large"`
		Medium     *string `json:"medium"`
	} `json:"coverImage"`
}

// NewAniListClient creates a client for the given GraphQL endpoint
func NewAniListClient(endpoint string, timeout time.Duration, logger *zap.Logger) *AniListClient {
	return &AniListClient{
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// Search returns up to 24 anime sorted by popularity. A blank query returns no results
// and makes no upstream call.
func (c *AniListClient) Search(ctx context.Context, query string) ([]domain.SearchResult, error) {
	q := strings.TrimSpace(query)
	if q == "" {
		return []domain.SearchResult{}, nil
	}

	payload, err := json.Marshal(aniListRequest{
		Query: aniListQuery,
		Variables: map[string]any{
			"search":  q,
			"perPage": maxResults,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	if !isSuccess(resp.StatusCode) {
		upstreamErr := newUpstreamError("AniList", resp)
		c.logger.Warn("AniList search failed",
			zap.Int("status_code", resp.StatusCode),
			zap.String("query", q),
			zap.Duration("duration", time.Since(start)),
		)
		return nil, upstreamErr
	}

	var body aniListResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}

	if len(body.Errors) > 0 {
		messages := make([]string, 0, len(body.Errors))
		for _, e := range body.Errors {
			messages = append(messages, e.Message)
		}
		return nil, &UpstreamError{
			Upstream:   "AniList",
			StatusCode: resp.StatusCode,
			Message:    strings.Join(messages, "; "),
		}
	}

	results := make([]domain.SearchResult, 0, len(body.Data.Page.Media))
	for _, m := range body.Data.Page.Media {
		if r, ok := normalizeAniListMedia(m); ok {
			results = append(results, r)
		}
	}

	c.logger.Debug("AniList search completed",
		zap.String("query", q),
		zap.Int("upstream_items", len(body.Data.Page.Media)),
		zap.Int("results", len(results)),
		zap.Duration("duration", time.Since(start)),
	)

	return results, nil
}

// normalizeAniListMedia maps one media item; ok is false when the item has no cover image
func normalizeAniListMedia(m aniListMedia) (domain.SearchResult, bool) {
	image := firstPresent(m.CoverImage.ExtraLarge, m.CoverImage.Large, m.CoverImage.Medium)
	if image == "" {
		return domain.SearchResult{}, false
	}

	title := firstPresent(m.Title.English, m.Title.Romaji, m.Title.Native)
	if title == "" {
		title = domain.UntitledTitle
	}

	var year *int
	switch {
	case m.SeasonYear != nil && *m.SeasonYear > 0:
		year = intPtr(*m.SeasonYear)
	case m.StartDate.Year != nil && *m.StartDate.Year > 0:
		year = intPtr(*m.StartDate.Year)
	}

	return domain.SearchResult{
		ID:       strconv.Itoa(m.ID),
		Title:    title,
		Year:     year,
		ImageURL: image,
	}, true
}

func firstPresent(values ...*string) string {
	for _, v := range values {
		if v != nil && strings.TrimSpace(*v) != "" {
			return *v
		}
	}
	return ""
}
