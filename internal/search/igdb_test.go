package search_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/straye-as/chart-api/internal/config"
	"github.com/straye-as/chart-api/internal/search"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type igdbFake struct {
	mu          sync.Mutex
	tokenCalls  int
	searchCalls int
	lastBody    string
	lastAuth    string
	lastClient  string
	gamesJSON   string
	searchCode  int
}

func (f *igdbFake) server(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth2/token", func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "client_credentials", r.PostForm.Get("grant_type"))
		assert.Equal(t, "cid", r.PostForm.Get("client_id"))
		assert.Equal(t, "secret", r.PostForm.Get("client_secret"))

		f.mu.Lock()
		f.tokenCalls++
		n := f.tokenCalls
		f.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"access_token":"tok-`+string(rune('0'+n))+`","expires_in":3600,"token_type":"bearer"}`)
	})
	mux.HandleFunc("/v4/games", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		f.mu.Lock()
		f.searchCalls++
		f.lastBody = string(body)
		f.lastAuth = r.Header.Get("Authorization")
		f.lastClient = r.Header.Get("Client-ID")
		code := f.searchCode
		games := f.gamesJSON
		f.mu.Unlock()

		if code != 0 {
			w.WriteHeader(code)
			_, _ = io.WriteString(w, "upstream says no")
			return
		}
		if games == "" {
			games = "[]"
		}
		_, _ = io.WriteString(w, games)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newIGDBClient(t *testing.T, fake *igdbFake, clock search.Clock) *search.IGDBClient {
	t.Helper()
	srv := fake.server(t)
	client, err := search.NewIGDBClient(&config.IGDBConfig{
		ClientID:     "cid",
		ClientSecret: "secret",
		TokenURL:     srv.URL + "/oauth2/token",
		Endpoint:     srv.URL + "/v4/games",
		ImageBaseURL: "https://images.igdb.com/igdb/image/upload/t_cover_big/",
		Timeout:      5,
	}, clock, zap.NewNop())
	require.NoError(t, err)
	return client
}

func TestNewIGDBClient_MissingCredentials(t *testing.T) {
	_, err := search.NewIGDBClient(&config.IGDBConfig{ClientID: "cid"}, nil, zap.NewNop())
	assert.ErrorIs(t, err, search.ErrMissingCredentials)

	_, err = search.NewIGDBClient(&config.IGDBConfig{ClientSecret: "s"}, nil, zap.NewNop())
	assert.ErrorIs(t, err, search.ErrMissingCredentials)

	_, err = search.NewIGDBClient(nil, nil, zap.NewNop())
	assert.ErrorIs(t, err, search.ErrMissingCredentials)
}

func TestIGDBClient_ReusesTokenWithinWindow(t *testing.T) {
	fake := &igdbFake{}
	clock := newFakeClock()
	client := newIGDBClient(t, fake, clock)

	_, err := client.Search(context.Background(), "zelda")
	require.NoError(t, err)
	assert.Equal(t, "Bearer tok-1", fake.lastAuth)
	assert.Equal(t, "cid", fake.lastClient)

	// 3600s token, 60s margin: still valid after 58 minutes
	clock.Advance(58 * time.Minute)
	_, err = client.Search(context.Background(), "mario")
	require.NoError(t, err)

	assert.Equal(t, 1, fake.tokenCalls)
	assert.Equal(t, 2, fake.searchCalls)
	assert.Equal(t, "Bearer tok-1", fake.lastAuth)
}

func TestIGDBClient_RefreshesNearExpiry(t *testing.T) {
	fake := &igdbFake{}
	clock := newFakeClock()
	client := newIGDBClient(t, fake, clock)

	_, err := client.Search(context.Background(), "zelda")
	require.NoError(t, err)

	clock.Advance(3600*time.Second - 59*time.Second)
	_, err = client.Search(context.Background(), "zelda")
	require.NoError(t, err)

	assert.Equal(t, 2, fake.tokenCalls)
	assert.Equal(t, "Bearer tok-2", fake.lastAuth)
}

func TestIGDBClient_StripsQuotes(t *testing.T) {
	fake := &igdbFake{}
	client := newIGDBClient(t, fake, newFakeClock())

	_, err := client.Search(context.Background(), `the "legend" of zelda"; fields *;`)
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(fake.lastBody, `search "the legend of zelda; fields *;";`), fake.lastBody)
	assert.Equal(t, 2, strings.Count(fake.lastBody, `"`))
	assert.Contains(t, fake.lastBody, "where version_parent = null")
	assert.Contains(t, fake.lastBody, "limit 24;")
}

func TestIGDBClient_BlankQuery(t *testing.T) {
	fake := &igdbFake{}
	client := newIGDBClient(t, fake, newFakeClock())

	results, err := client.Search(context.Background(), `  "" `)
	require.NoError(t, err)
	assert.Empty(t, results)
	assert.Equal(t, 0, fake.tokenCalls)
	assert.Equal(t, 0, fake.searchCalls)
}

func TestIGDBClient_NormalizesResults(t *testing.T) {
	fake := &igdbFake{gamesJSON: `[
		{"id":1026,"name":"The Legend of Zelda","first_release_date":509328000,"cover":{"id":1,"image_id":"co1uii"}},
		{"id":7,"name":"No Cover","first_release_date":509328000},
		{"id":8,"name":"","cover":{"id":2,"image_id":"abc"}}
	]`}
	client := newIGDBClient(t, fake, newFakeClock())

	results, err := client.Search(context.Background(), "zelda")
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, "1026", results[0].ID)
	assert.Equal(t, "The Legend of Zelda", results[0].Title)
	require.NotNil(t, results[0].Year)
	assert.Equal(t, 1986, *results[0].Year)
	assert.Equal(t, "https://images.igdb.com/igdb/image/upload/t_cover_big/co1uii.jpg", results[0].ImageURL)

	assert.Equal(t, "Untitled", results[1].Title)
	assert.Nil(t, results[1].Year)
}

func TestIGDBClient_UpstreamFailure(t *testing.T) {
	fake := &igdbFake{searchCode: http.StatusBadRequest}
	client := newIGDBClient(t, fake, newFakeClock())

	_, err := client.Search(context.Background(), "zelda")
	var upstreamErr *search.UpstreamError
	require.True(t, errors.As(err, &upstreamErr))
	assert.Equal(t, "upstream says no", upstreamErr.Error())
	assert.Equal(t, http.StatusBadRequest, upstreamErr.StatusCode)
}

func TestIGDBClient_UnauthorizedDropsToken(t *testing.T) {
	fake := &igdbFake{searchCode: http.StatusUnauthorized}
	client := newIGDBClient(t, fake, newFakeClock())

	_, err := client.Search(context.Background(), "zelda")
	require.Error(t, err)

	fake.mu.Lock()
	fake.searchCode = 0
	fake.mu.Unlock()

	_, err = client.Search(context.Background(), "zelda")
	require.NoError(t, err)
	assert.Equal(t, 2, fake.tokenCalls)
}

func TestSanitizeGameQuery(t *testing.T) {
	assert.Equal(t, "halo 3", search.SanitizeGameQuery(`  "halo" 3 `))
	assert.Equal(t, "", search.SanitizeGameQuery(`"""`))
	assert.Equal(t, "halo", search.SanitizeGameQuery(`halo\`))
	assert.Equal(t, "zelda; limit 500;", search.SanitizeGameQuery("zelda\\\"; limit 500;"))
	assert.Equal(t, "metroid prime", search.SanitizeGameQuery("metroid\n prime\t"))
}

func TestBuildGameQuery_TrailingBackslashStaysQuoted(t *testing.T) {
	body := search.BuildGameQuery(search.SanitizeGameQuery(`halo\`))
	assert.True(t, strings.HasPrefix(body, `search "halo"; fields `), body)
	assert.NotContains(t, body, `\`)
}
