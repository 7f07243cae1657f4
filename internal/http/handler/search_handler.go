package handler

import (
	"net/http"

	"github.com/straye-as/chart-api/internal/domain"
	"github.com/straye-as/chart-api/internal/mapper"
	"github.com/straye-as/chart-api/internal/service"
	"go.uber.org/zap"
)

type SearchHandler struct {
	searchService *service.SearchService
	logger        *zap.Logger
}

func NewSearchHandler(searchService *service.SearchService, logger *zap.Logger) *SearchHandler {
	return &SearchHandler{
		searchService: searchService,
		logger:        logger,
	}
}

// Anime proxies a title search to AniList.
// GET /api/search/anime?q=
func (h *SearchHandler) Anime(w http.ResponseWriter, r *http.Request) {
	h.search(w, r, domain.SearchDomainAnime)
}

// Game proxies a title search to IGDB.
// GET /api/search/game?q=
func (h *SearchHandler) Game(w http.ResponseWriter, r *http.Request) {
	h.search(w, r, domain.SearchDomainGame)
}

func (h *SearchHandler) search(w http.ResponseWriter, r *http.Request, d domain.SearchDomain) {
	results, err := h.searchService.Search(r.Context(), d, r.URL.Query().Get("q"))
	if err != nil {
		handleError(w, r, h.logger, err)
		return
	}

	respondJSON(w, http.StatusOK, mapper.ToSearchResponseDTO(results))
}
