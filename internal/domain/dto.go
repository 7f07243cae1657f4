package domain

// SearchResponseDTO is the body of both /api/search endpoints
type SearchResponseDTO struct {
	Results []SearchResult `json:"results"`
}

// ChartDTO is the client view of a chart session
type ChartDTO struct {
	ID        string   `json:"id"`
	Title     string   `json:"title"`
	Cells     []Cell   `json:"cells"`
	Selected  *int     `json:"selected"`
	Modal     ModalDTO `json:"modal"`
	Exporting bool     `json:"exporting"`
	CreatedAt string   `json:"createdAt"`
	UpdatedAt string   `json:"updatedAt"`
}

// ModalDTO is the client view of the search modal
type ModalDTO struct {
	Open         bool           `json:"open"`
	Type         SearchDomain   `json:"type"`
	Query        string         `json:"query"`
	Results      []SearchResult `json:"results"`
	Loading      bool           `json:"loading"`
	Error        string         `json:"error,omitempty"`
	ScrollLocked bool           `json:"scrollLocked"`
}

// UpdateTitleRequest sets the chart title
type UpdateTitleRequest struct {
	Title string `json:"title" validate:"max=120"`
}

// SelectCellRequest selects a cell by grid index
type SelectCellRequest struct {
	Index *int `json:"index" validate:"required,gte=0,lt=18"`
}

// PatchCellRequest updates the selected cell; absent fields are left alone
type PatchCellRequest struct {
	Label    *string `json:"label,omitempty" validate:"omitempty,max=80"`
	ImageURL *string `json:"imageUrl,omitempty" validate:"omitempty,max=2048"`
}

// ModalKeyRequest forwards a key press to the search modal
type ModalKeyRequest struct {
	Key string `json:"key" validate:"required,max=32"`
}

// ModalSearchRequest runs a search in the modal
type ModalSearchRequest struct {
	Type  SearchDomain `json:"type" validate:"required,oneof=anime game"`
	Query string       `json:"query" validate:"max=200"`
}

// ModalChooseRequest assigns one of the modal's results to the selected cell
type ModalChooseRequest struct {
	Index *int `json:"index" validate:"required,gte=0"`
}
