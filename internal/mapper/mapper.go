package mapper

import (
	"time"

	"github.com/straye-as/chart-api/internal/chart"
	"github.com/straye-as/chart-api/internal/domain"
)

const timestampLayout = "2006-01-02T15:04:05Z"

// ToChartDTO converts a session's editor and modal snapshots to ChartDTO
func ToChartDTO(session *chart.Session, editor chart.Snapshot, modal chart.ModalSnapshot, updatedAt time.Time) domain.ChartDTO {
	return domain.ChartDTO{
		ID:        session.ID.String(),
		Title:     editor.Title,
		Cells:     editor.Cells,
		Selected:  editor.Selected,
		Modal:     ToModalDTO(modal),
		Exporting: session.Exporter().InProgress(),
		CreatedAt: session.CreatedAt.UTC().Format(timestampLayout),
		UpdatedAt: updatedAt.UTC().Format(timestampLayout),
	}
}

// ToModalDTO converts a modal snapshot to ModalDTO. Results are never null in JSON.
func ToModalDTO(modal chart.ModalSnapshot) domain.ModalDTO {
	results := modal.Results
	if results == nil {
		results = []domain.SearchResult{}
	}
	return domain.ModalDTO{
		Open:         modal.Open,
		Type:         modal.Domain,
		Query:        modal.Query,
		Results:      results,
		Loading:      modal.Loading,
		Error:        modal.Error,
		ScrollLocked: modal.ScrollLocked,
	}
}

// ToSearchResponseDTO wraps search results, mapping nil to an empty list
func ToSearchResponseDTO(results []domain.SearchResult) domain.SearchResponseDTO {
	if results == nil {
		results = []domain.SearchResult{}
	}
	return domain.SearchResponseDTO{Results: results}
}
