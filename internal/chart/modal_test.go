package chart_test

import (
	"context"
	"errors"
	"testing"

	"github.com/straye-as/chart-api/internal/chart"
	"github.com/straye-as/chart-api/internal/domain"
	"github.com/straye-as/chart-api/internal/search"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedSearchers(anime, game []domain.SearchResult) chart.Searchers {
	return chart.Searchers{
		domain.SearchDomainAnime: search.SearcherFunc(func(ctx context.Context, q string) ([]domain.SearchResult, error) {
			return anime, nil
		}),
		domain.SearchDomainGame: search.SearcherFunc(func(ctx context.Context, q string) ([]domain.SearchResult, error) {
			return game, nil
		}),
	}
}

func TestModal_OpenCloseAndScrollLock(t *testing.T) {
	m := chart.NewModal()
	assert.False(t, m.ScrollLocked())

	m.Open()
	assert.True(t, m.IsOpen())
	assert.True(t, m.ScrollLocked())

	assert.False(t, m.HandleKey("Enter"))
	assert.True(t, m.IsOpen())

	assert.True(t, m.HandleKey("Escape"))
	assert.False(t, m.IsOpen())
	assert.False(t, m.ScrollLocked())
}

func TestModal_SearchUsesDomainBackend(t *testing.T) {
	m := chart.NewModal()
	m.Open()
	searchers := fixedSearchers(
		[]domain.SearchResult{{ID: "a", Title: "Anime", ImageURL: "http://x/a.jpg"}},
		[]domain.SearchResult{{ID: "g", Title: "Game", ImageURL: "http://x/g.jpg"}},
	)

	m.SetQuery("zelda")
	require.NoError(t, m.SetDomain(domain.SearchDomainGame))
	require.NoError(t, m.Search(context.Background(), searchers))

	snap := m.Snapshot()
	assert.False(t, snap.Loading)
	assert.Empty(t, snap.Error)
	require.Len(t, snap.Results, 1)
	assert.Equal(t, "g", snap.Results[0].ID)

	assert.ErrorIs(t, m.SetDomain("books"), chart.ErrUnknownDomain)
}

func TestModal_SearchFailureSetsMessage(t *testing.T) {
	m := chart.NewModal()
	m.Open()
	searchers := chart.Searchers{
		domain.SearchDomainAnime: search.SearcherFunc(func(ctx context.Context, q string) ([]domain.SearchResult, error) {
			return nil, errors.New("Too Many Requests.")
		}),
	}

	err := m.Search(context.Background(), searchers)
	require.Error(t, err)

	snap := m.Snapshot()
	assert.Equal(t, "Search failed: Too Many Requests.", snap.Error)
	assert.False(t, snap.Loading)
	assert.Empty(t, snap.Results)
}

func TestModal_SearchClearsPreviousState(t *testing.T) {
	m := chart.NewModal()
	m.Open()

	p := m.BeginSearch()
	m.FinishSearch(p, nil, errors.New("boom"))
	require.NotEmpty(t, m.Snapshot().Error)

	m.BeginSearch()
	snap := m.Snapshot()
	assert.Empty(t, snap.Error)
	assert.Empty(t, snap.Results)
	assert.True(t, snap.Loading)
}

func TestModal_StaleSearchIsDropped(t *testing.T) {
	m := chart.NewModal()
	m.Open()

	slow := m.BeginSearch()
	fast := m.BeginSearch()

	assert.True(t, m.FinishSearch(fast, []domain.SearchResult{{ID: "fresh"}}, nil))
	assert.False(t, m.FinishSearch(slow, []domain.SearchResult{{ID: "stale"}}, nil))

	snap := m.Snapshot()
	require.Len(t, snap.Results, 1)
	assert.Equal(t, "fresh", snap.Results[0].ID)
}

func TestModal_ResultAfterCloseIsDropped(t *testing.T) {
	m := chart.NewModal()
	m.Open()

	p := m.BeginSearch()
	m.Close()
	assert.False(t, m.FinishSearch(p, []domain.SearchResult{{ID: "late"}}, nil))
	assert.Empty(t, m.Snapshot().Results)
}

func TestModal_ChooseAssignsImageAndCloses(t *testing.T) {
	e := chart.NewEditor()
	m := chart.NewModal()
	m.Open()
	require.NoError(t, m.Search(context.Background(), fixedSearchers(
		[]domain.SearchResult{{ID: "1", Title: "Y", ImageURL: "http://x/y.jpg"}}, nil,
	)))

	require.NoError(t, e.Select(5))
	require.NoError(t, m.Choose(0, e))

	c, _ := e.Cell(5)
	assert.Equal(t, "http://x/y.jpg", c.ImageURL)
	assert.False(t, m.IsOpen())
	assert.Empty(t, m.Snapshot().Results)
}

func TestModal_ChooseErrors(t *testing.T) {
	e := chart.NewEditor()
	m := chart.NewModal()
	m.Open()
	require.NoError(t, m.Search(context.Background(), fixedSearchers(
		[]domain.SearchResult{{ID: "1", ImageURL: "http://x/y.jpg"}}, nil,
	)))

	assert.ErrorIs(t, m.Choose(0, e), chart.ErrNoSelection)
	assert.True(t, m.IsOpen())

	require.NoError(t, e.Select(0))
	assert.ErrorIs(t, m.Choose(1, e), chart.ErrIndexOutOfRange)
	assert.ErrorIs(t, m.Choose(-1, e), chart.ErrIndexOutOfRange)
	assert.True(t, m.IsOpen())
}
