package handler

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/straye-as/chart-api/internal/domain"
	"github.com/straye-as/chart-api/internal/http/middleware"
	"github.com/straye-as/chart-api/internal/service"
	"go.uber.org/zap"
)

// multipartOverhead is the allowance for multipart framing on top of the file itself
const multipartOverhead = 1 << 20

// uploadField is the multipart form field that carries the image
const uploadField = "file"

type ChartHandler struct {
	chartService   *service.ChartService
	maxUploadBytes int64
	logger         *zap.Logger
}

func NewChartHandler(chartService *service.ChartService, maxUploadBytes int64, logger *zap.Logger) *ChartHandler {
	return &ChartHandler{
		chartService:   chartService,
		maxUploadBytes: maxUploadBytes,
		logger:         logger,
	}
}

// Create starts a new chart session
// POST /api/charts
func (h *ChartHandler) Create(w http.ResponseWriter, r *http.Request) {
	dto, err := h.chartService.Create(r.Context(), middleware.ClientIP(r))
	if err != nil {
		handleError(w, r, h.logger, err)
		return
	}

	w.Header().Set("Location", fmt.Sprintf("/api/charts/%s", dto.ID))
	respondJSON(w, http.StatusCreated, dto)
}

// GetByID returns the chart state
// GET /api/charts/{id}
func (h *ChartHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r)(h.chartService.Get(r.Context(), chartID(r)))
}

// UpdateTitle replaces the chart title
// PUT /api/charts/{id}/title
func (h *ChartHandler) UpdateTitle(w http.ResponseWriter, r *http.Request) {
	var req domain.UpdateTitleRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	h.respond(w, r)(h.chartService.SetTitle(r.Context(), chartID(r), req.Title))
}

// Select points the editor at a cell
// POST /api/charts/{id}/select
func (h *ChartHandler) Select(w http.ResponseWriter, r *http.Request) {
	var req domain.SelectCellRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	h.respond(w, r)(h.chartService.Select(r.Context(), chartID(r), *req.Index))
}

// Deselect clears the selection
// DELETE /api/charts/{id}/select
func (h *ChartHandler) Deselect(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r)(h.chartService.Deselect(r.Context(), chartID(r)))
}

// PatchSelected edits the selected cell's label and/or image URL
// PATCH /api/charts/{id}/selected
func (h *ChartHandler) PatchSelected(w http.ResponseWriter, r *http.Request) {
	var req domain.PatchCellRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	h.respond(w, r)(h.chartService.PatchSelected(r.Context(), chartID(r), &req))
}

// ClearSelectedImage removes the selected cell's image
// DELETE /api/charts/{id}/selected/image
func (h *ChartHandler) ClearSelectedImage(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r)(h.chartService.ClearSelectedImage(r.Context(), chartID(r)))
}

// Upload stores a local image on the selected cell.
// The multipart body is streamed; only the "file" part is read.
// POST /api/charts/{id}/selected/upload
func (h *ChartHandler) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes+multipartOverhead)

	mr, err := r.MultipartReader()
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Expected a multipart/form-data body")
		return
	}

	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			respondJSON(w, http.StatusBadRequest, domain.APIError{
				Type:   domain.ErrorTypeValidation,
				Title:  "Validation Error",
				Status: http.StatusBadRequest,
				Detail: "One or more fields failed validation",
				Errors: map[string]string{uploadField: uploadField + " is required"},
			})
			return
		}
		if err != nil {
			var maxErr *http.MaxBytesError
			if errors.As(err, &maxErr) {
				handleError(w, r, h.logger, err)
				return
			}
			respondWithError(w, http.StatusBadRequest, "Invalid multipart body: "+err.Error())
			return
		}

		if part.FormName() != uploadField {
			_ = part.Close()
			continue
		}

		dto, err := h.chartService.Upload(r.Context(), chartID(r), part.Header.Get("Content-Type"), part)
		_ = part.Close()
		h.respond(w, r)(dto, err)
		return
	}
}

// OpenModal shows the search modal
// POST /api/charts/{id}/modal/open
func (h *ChartHandler) OpenModal(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r)(h.chartService.OpenModal(r.Context(), chartID(r)))
}

// CloseModal hides the search modal
// POST /api/charts/{id}/modal/close
func (h *ChartHandler) CloseModal(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r)(h.chartService.CloseModal(r.Context(), chartID(r)))
}

// ModalKey forwards a key press to the modal
// POST /api/charts/{id}/modal/key
func (h *ChartHandler) ModalKey(w http.ResponseWriter, r *http.Request) {
	var req domain.ModalKeyRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	h.respond(w, r)(h.chartService.ModalKey(r.Context(), chartID(r), req.Key))
}

// ModalSearch runs a search inside the open modal
// POST /api/charts/{id}/modal/search
func (h *ChartHandler) ModalSearch(w http.ResponseWriter, r *http.Request) {
	var req domain.ModalSearchRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	modal, err := h.chartService.ModalSearch(r.Context(), chartID(r), req.Type, req.Query)
	if err != nil {
		handleError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, modal)
}

// ModalChoose assigns a result's image to the selected cell
// POST /api/charts/{id}/modal/choose
func (h *ChartHandler) ModalChoose(w http.ResponseWriter, r *http.Request) {
	var req domain.ModalChooseRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	h.respond(w, r)(h.chartService.ModalChoose(r.Context(), chartID(r), *req.Index))
}

// Export downloads the chart as a PNG
// GET /api/charts/{id}/export
func (h *ChartHandler) Export(w http.ResponseWriter, r *http.Request) {
	out, err := h.chartService.Export(r.Context(), chartID(r))
	if err != nil {
		handleError(w, r, h.logger, err)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Disposition", contentDisposition(out.Filename))
	w.Header().Set("Content-Length", strconv.Itoa(len(out.PNG)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(out.PNG)
}

// Preview renders the exported region as HTML
// GET /api/charts/{id}/preview
func (h *ChartHandler) Preview(w http.ResponseWriter, r *http.Request) {
	page, err := h.chartService.Preview(r.Context(), chartID(r))
	if err != nil {
		handleError(w, r, h.logger, err)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(page)
}

// respond writes a chart DTO or maps the error
func (h *ChartHandler) respond(w http.ResponseWriter, r *http.Request) func(*domain.ChartDTO, error) {
	return func(dto *domain.ChartDTO, err error) {
		if err != nil {
			handleError(w, r, h.logger, err)
			return
		}
		respondJSON(w, http.StatusOK, dto)
	}
}

func chartID(r *http.Request) string {
	return chi.URLParam(r, "id")
}

// contentDisposition builds an attachment header. Non-ASCII names are sent in the
// RFC 2231 filename* form.
func contentDisposition(filename string) string {
	if v := mime.FormatMediaType("attachment", map[string]string{"filename": filename}); v != "" {
		return v
	}
	return "attachment"
}
