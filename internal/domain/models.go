package domain

// GridRows and GridColumns fix the chart layout; every chart has exactly GridSize cells
const (
	GridRows    = 3
	GridColumns = 6
	GridSize    = GridRows * GridColumns
)

// DefaultTitle is the title of a freshly created chart
const DefaultTitle = "My Anime & Games Chart"

// DefaultLabels are the cell labels of a freshly created chart, in grid order
var DefaultLabels = [GridSize]string{
	"Favorite",
	"Best Story",
	"Best Soundtrack",
	"Best Art Style",
	"Best Characters",
	"Best Ending",
	"Most Overrated",
	"Most Underrated",
	"Guilty Pleasure",
	"Comfort Pick",
	"Made Me Cry",
	"Best Protagonist",
	"Best Villain",
	"Best Opening",
	"Hidden Gem",
	"Want to Revisit",
	"Didn't Finish",
	"Least Favorite",
}

// Cell is one grid slot. ImageURL is empty, an http(s) URL, or a data: URL.
type Cell struct {
	Label    string `json:"label"`
	ImageURL string `json:"imageUrl,omitempty"`
}

// HasImage reports whether the cell carries an image
func (c Cell) HasImage() bool {
	return c.ImageURL != ""
}

// SearchDomain selects which upstream a search goes to
type SearchDomain string

const (
	SearchDomainAnime SearchDomain = "anime"
	SearchDomainGame  SearchDomain = "game"
)

// IsValid returns true if the domain is one of the known upstreams
func (d SearchDomain) IsValid() bool {
	switch d {
	case SearchDomainAnime, SearchDomainGame:
		return true
	}
	return false
}

// SearchResult is the normalized shape returned by both search proxies
type SearchResult struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Year     *int   `json:"year,omitempty"`
	ImageURL string `json:"imageUrl"`
}

// UntitledTitle is used when an upstream item has no usable title
const UntitledTitle = "Untitled"
