package search

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/straye-as/chart-api/internal/config"
	"github.com/straye-as/chart-api/internal/domain"
	"go.uber.org/zap"
)

// excludedGameCategories are the IGDB categories that are not standalone base games:
// DLC, expansion, bundle, standalone expansion, mod, episode, season, update, fork
const excludedGameCategories = "1,2,3,4,5,6,7,13,14"

// IGDBClient searches games on IGDB, authenticating with a Twitch client-credentials token
type IGDBClient struct {
	clientID     string
	clientSecret string
	tokenURL     string
	endpoint     string
	imageBaseURL string
	tokens       *TokenCache
	clock        Clock
	httpClient   *http.Client
	logger       *zap.Logger
}

type twitchTokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
	TokenType   string `json:"token_type"`
}

type igdbGame struct {
	ID               int64  `json:"id"`
	Name             string `json:"name"`
	FirstReleaseDate *int64 `json:"first_release_date"`
	Cover            *struct {
		ImageID string `json:"image_id"`
	} `json:"cover"`
}

// NewIGDBClient creates a game search client. It fails with ErrMissingCredentials when
// either Twitch credential is blank. A nil clock means the wall clock.
func NewIGDBClient(cfg *config.IGDBConfig, clock Clock, logger *zap.Logger) (*IGDBClient, error) {
	if cfg == nil || !cfg.HasCredentials() {
		return nil, ErrMissingCredentials
	}
	if clock == nil {
		clock = SystemClock{}
	}

	return &IGDBClient{
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		tokenURL:     cfg.TokenURL,
		endpoint:     cfg.Endpoint,
		imageBaseURL: cfg.ImageBaseURL,
		tokens:       NewTokenCache(clock),
		clock:        clock,
		httpClient:   &http.Client{Timeout: cfg.TimeoutDuration()},
		logger:       logger,
	}, nil
}

// Search returns up to 24 base games matching the query. A blank query returns no
// results and makes no upstream call.
func (c *IGDBClient) Search(ctx context.Context, query string) ([]domain.SearchResult, error) {
	q := SanitizeGameQuery(query)
	if q == "" {
		return []domain.SearchResult{}, nil
	}

	token, err := c.tokens.Get(ctx, c.fetchToken)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, strings.NewReader(BuildGameQuery(q)))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Client-ID", c.clientID)
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "text/plain")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	if !isSuccess(resp.StatusCode) {
		if resp.StatusCode == http.StatusUnauthorized {
			// the next search fetches a new token
			c.tokens.Invalidate()
		}
		c.logger.Warn("IGDB search failed",
			zap.Int("status_code", resp.StatusCode),
			zap.String("query", q),
			zap.Duration("duration", time.Since(start)),
		)
		return nil, newUpstreamError("IGDB", resp)
	}

	var games []igdbGame
	if err := json.NewDecoder(resp.Body).Decode(&games); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}

	results := make([]domain.SearchResult, 0, len(games))
	for _, g := range games {
		if r, ok := c.normalizeGame(g); ok {
			results = append(results, r)
		}
	}

	c.logger.Debug("IGDB search completed",
		zap.String("query", q),
		zap.Int("upstream_items", len(games)),
		zap.Int("results", len(results)),
		zap.Duration("duration", time.Since(start)),
	)

	return results, nil
}

// fetchToken performs the client-credentials exchange
func (c *IGDBClient) fetchToken(ctx context.Context) (Token, error) {
	form := url.Values{}
	form.Set("client_id", c.clientID)
	form.Set("client_secret", c.clientSecret)
	form.Set("grant_type", "client_credentials")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return Token{}, fmt.Errorf("creating token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Token{}, fmt.Errorf("executing token request: %w", err)
	}
	defer resp.Body.Close()

	if !isSuccess(resp.StatusCode) {
		c.logger.Error("Twitch token exchange failed", zap.Int("status_code", resp.StatusCode))
		return Token{}, newUpstreamError("Twitch", resp)
	}

	var body twitchTokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return Token{}, fmt.Errorf("decoding token response: %w", err)
	}
	if body.AccessToken == "" {
		return Token{}, fmt.Errorf("token response has no access_token")
	}

	expiresAt := c.clock.Now().Add(time.Duration(body.ExpiresIn) * time.Second)
	c.logger.Info("Obtained IGDB access token", zap.Time("expires_at", expiresAt))

	return Token{Value: body.AccessToken, ExpiresAt: expiresAt}, nil
}

func (c *IGDBClient) normalizeGame(g igdbGame) (domain.SearchResult, bool) {
	if g.Cover == nil || g.Cover.ImageID == "" {
		return domain.SearchResult{}, false
	}

	title := strings.TrimSpace(g.Name)
	if title == "" {
		title = domain.UntitledTitle
	}

	var year *int
	if g.FirstReleaseDate != nil {
		year = intPtr(time.Unix(*g.FirstReleaseDate, 0).UTC().Year())
	}

	return domain.SearchResult{
		ID:       strconv.FormatInt(g.ID, 10),
		Title:    title,
		Year:     year,
		ImageURL: c.imageBaseURL + g.Cover.ImageID + ".jpg",
	}, true
}

// SanitizeGameQuery trims the query and strips double quotes, backslashes and control
// characters so it cannot escape or break the quoted search clause
func SanitizeGameQuery(query string) string {
	return strings.TrimSpace(strings.Map(func(r rune) rune {
		if r == '"' || r == '\\' || unicode.IsControl(r) {
			return -1
		}
		return r
	}, query))
}

// BuildGameQuery renders the IGDB query body for an already sanitized query
func BuildGameQuery(q string) string {
	return fmt.Sprintf(
		`search "%s"; fields id,name,first_release_date,cover.image_id; where version_parent = null & category != (%s); limit %d;`,
		q, excludedGameCategories, maxResults,
	)
}
