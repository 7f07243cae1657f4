package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/straye-as/chart-api/internal/chart"
	"github.com/straye-as/chart-api/internal/config"
	"github.com/straye-as/chart-api/internal/domain"
	"github.com/straye-as/chart-api/internal/logger"
	"github.com/straye-as/chart-api/internal/mapper"
	"github.com/straye-as/chart-api/internal/render"
	"github.com/straye-as/chart-api/internal/repository"
	"go.uber.org/zap"
)

// ChartService handles business logic for chart sessions
type ChartService struct {
	sessionRepo *repository.SessionRepository
	searchers   chart.Searchers
	renderer    chart.Renderer
	idleTTL     time.Duration
	limits      chart.UploadLimits
	pixelRatio  int
	now         func() time.Time
	logger      *zap.Logger
}

// NewChartService creates a new ChartService instance
func NewChartService(
	sessionRepo *repository.SessionRepository,
	searchers chart.Searchers,
	renderer chart.Renderer,
	sessionsCfg *config.SessionsConfig,
	exportCfg *config.ExportConfig,
	logger *zap.Logger,
) *ChartService {
	return &ChartService{
		sessionRepo: sessionRepo,
		searchers:   searchers,
		renderer:    renderer,
		idleTTL:     sessionsCfg.IdleTTLDuration(),
		limits: chart.UploadLimits{
			MaxBytes:  sessionsCfg.MaxUploadBytes(),
			MaxPixels: exportCfg.MaxImagePixels,
		},
		pixelRatio:  exportCfg.PixelRatio,
		now:         time.Now,
		logger:      logger,
	}
}

// SetClock replaces the time source (tests)
func (s *ChartService) SetClock(now func() time.Time) {
	s.now = now
}

// Create starts a new chart session with the default title and labels.
// client identifies the caller for the per-client session quota; when the quota is
// full the caller's least recently active chart is dropped.
func (s *ChartService) Create(ctx context.Context, client string) (*domain.ChartDTO, error) {
	session := chart.NewSession(s.now(), s.renderer, s.pixelRatio)

	evicted, err := s.sessionRepo.Create(ctx, session, client)
	if evicted != nil {
		logger.WithSession(s.logger, evicted.String()).Info("chart evicted by client quota",
			zap.String("client", client),
		)
	}
	if err != nil {
		if errors.Is(err, repository.ErrLimitReached) {
			s.logger.Warn("chart session limit reached", zap.Int("sessions", s.sessionRepo.Count(ctx)))
			return nil, ErrTooManySessions
		}
		return nil, fmt.Errorf("failed to create chart: %w", err)
	}

	logger.WithSession(s.logger, session.ID.String()).Info("chart created")

	return s.view(session), nil
}

// Get returns the current state of a chart
func (s *ChartService) Get(ctx context.Context, id string) (*domain.ChartDTO, error) {
	session, err := s.session(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.view(session), nil
}

// SetTitle replaces the chart title
func (s *ChartService) SetTitle(ctx context.Context, id string, title string) (*domain.ChartDTO, error) {
	return s.mutate(ctx, id, func(e *chart.Editor, m *chart.Modal) error {
		e.SetTitle(title)
		return nil
	})
}

// Select points the editor at a cell
func (s *ChartService) Select(ctx context.Context, id string, index int) (*domain.ChartDTO, error) {
	return s.mutate(ctx, id, func(e *chart.Editor, m *chart.Modal) error {
		return e.Select(index)
	})
}

// Deselect clears the selected cell
func (s *ChartService) Deselect(ctx context.Context, id string) (*domain.ChartDTO, error) {
	return s.mutate(ctx, id, func(e *chart.Editor, m *chart.Modal) error {
		e.Deselect()
		return nil
	})
}

// PatchSelected updates the label and/or image of the selected cell
func (s *ChartService) PatchSelected(ctx context.Context, id string, req *domain.PatchCellRequest) (*domain.ChartDTO, error) {
	return s.mutate(ctx, id, func(e *chart.Editor, m *chart.Modal) error {
		return e.PatchSelected(chart.CellPatch{Label: req.Label, ImageURL: req.ImageURL})
	})
}

// ClearSelectedImage removes the selected cell's image
func (s *ChartService) ClearSelectedImage(ctx context.Context, id string) (*domain.ChartDTO, error) {
	return s.mutate(ctx, id, func(e *chart.Editor, m *chart.Modal) error {
		return e.ClearSelectedImage()
	})
}

// Upload stores an uploaded image on the cell that is selected when the upload starts.
// The file is read without holding the session lock.
func (s *ChartService) Upload(ctx context.Context, id string, contentType string, r io.Reader) (*domain.ChartDTO, error) {
	session, err := s.session(ctx, id)
	if err != nil {
		return nil, err
	}

	var target int
	err = session.Do(s.now(), func(e *chart.Editor, m *chart.Modal) error {
		var err error
		target, err = e.BeginUpload()
		return err
	})
	if err != nil {
		return nil, err
	}

	upload, err := chart.ReadUpload(ctx, target, contentType, r, s.limits)
	if err != nil {
		logger.WithSession(s.logger, id).Info("image upload rejected",
			zap.Int("cell", target),
			zap.String("content_type", contentType),
			zap.Error(err),
		)
		return nil, err
	}

	return s.mutateSession(session, func(e *chart.Editor, m *chart.Modal) error {
		return e.ApplyUpload(upload)
	})
}

// OpenModal shows the search modal
func (s *ChartService) OpenModal(ctx context.Context, id string) (*domain.ChartDTO, error) {
	return s.mutate(ctx, id, func(e *chart.Editor, m *chart.Modal) error {
		m.Open()
		return nil
	})
}

// CloseModal hides the search modal and discards its results
func (s *ChartService) CloseModal(ctx context.Context, id string) (*domain.ChartDTO, error) {
	return s.mutate(ctx, id, func(e *chart.Editor, m *chart.Modal) error {
		m.Close()
		return nil
	})
}

// ModalKey forwards a key press to the modal
func (s *ChartService) ModalKey(ctx context.Context, id string, key string) (*domain.ChartDTO, error) {
	return s.mutate(ctx, id, func(e *chart.Editor, m *chart.Modal) error {
		m.HandleKey(key)
		return nil
	})
}

// ModalSearch runs a search inside the modal. The upstream call happens without the
// session lock; if another search or a close happened meanwhile the result is dropped.
// Upstream failures are reported through the modal's error message, not as an error.
func (s *ChartService) ModalSearch(ctx context.Context, id string, d domain.SearchDomain, query string) (*domain.ModalDTO, error) {
	session, err := s.session(ctx, id)
	if err != nil {
		return nil, err
	}

	var pending chart.PendingSearch
	err = session.Do(s.now(), func(e *chart.Editor, m *chart.Modal) error {
		if !m.IsOpen() {
			return chart.ErrModalClosed
		}
		if err := m.SetDomain(d); err != nil {
			return err
		}
		m.SetQuery(query)
		pending = m.BeginSearch()
		return nil
	})
	if err != nil {
		return nil, err
	}

	log := logger.WithSession(s.logger, id)
	results, searchErr := chart.Run(ctx, s.searchers, pending)
	if searchErr != nil {
		log.Warn("modal search failed", zap.String("type", string(d)), zap.Error(searchErr))
	}

	var dto domain.ModalDTO
	_ = session.Do(s.now(), func(e *chart.Editor, m *chart.Modal) error {
		if !m.FinishSearch(pending, results, searchErr) {
			log.Debug("discarding superseded search result", zap.Uint64("generation", pending.Generation))
		}
		dto = mapper.ToModalDTO(m.Snapshot())
		return nil
	})
	return &dto, nil
}

// ModalChoose assigns a search result's image to the selected cell and closes the modal
func (s *ChartService) ModalChoose(ctx context.Context, id string, index int) (*domain.ChartDTO, error) {
	return s.mutate(ctx, id, func(e *chart.Editor, m *chart.Modal) error {
		return m.Choose(index, e)
	})
}

// Export renders the chart's title and grid to PNG
func (s *ChartService) Export(ctx context.Context, id string) (*chart.Export, error) {
	session, err := s.session(ctx, id)
	if err != nil {
		return nil, err
	}

	var snap chart.Snapshot
	session.View(s.now(), func(e *chart.Editor, m *chart.Modal) {
		snap = e.Snapshot()
	})

	start := time.Now()
	out, err := session.Exporter().Export(ctx, snap)
	log := logger.WithSession(s.logger, id)
	if err != nil {
		if !errors.Is(err, chart.ErrExportInProgress) {
			log.Error("chart export failed", zap.Error(err))
		}
		return nil, err
	}

	log.Info("chart exported",
		zap.String("filename", out.Filename),
		zap.Int("bytes", len(out.PNG)),
		zap.Duration("duration", time.Since(start)),
	)
	return out, nil
}

// Preview renders the exported region as an HTML page
func (s *ChartService) Preview(ctx context.Context, id string) ([]byte, error) {
	session, err := s.session(ctx, id)
	if err != nil {
		return nil, err
	}

	var snap chart.Snapshot
	session.View(s.now(), func(e *chart.Editor, m *chart.Modal) {
		snap = e.Snapshot()
	})
	return render.HTML(chart.RegionFromSnapshot(snap, s.pixelRatio))
}

// SweepIdle evicts sessions unused for longer than the idle TTL and returns how many
func (s *ChartService) SweepIdle(ctx context.Context) int {
	cutoff := s.now().Add(-s.idleTTL)
	ids := s.sessionRepo.DeleteIdle(ctx, cutoff)
	for _, id := range ids {
		logger.WithSession(s.logger, id.String()).Debug("chart session expired")
	}
	return len(ids)
}

// Count returns the number of live sessions
func (s *ChartService) Count(ctx context.Context) int {
	return s.sessionRepo.Count(ctx)
}

func (s *ChartService) session(ctx context.Context, id string) (*chart.Session, error) {
	sessionID, err := uuid.Parse(id)
	if err != nil {
		return nil, ErrNotFound
	}
	session, err := s.sessionRepo.GetByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, repository.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load chart: %w", err)
	}
	return session, nil
}

func (s *ChartService) mutate(ctx context.Context, id string, fn func(e *chart.Editor, m *chart.Modal) error) (*domain.ChartDTO, error) {
	session, err := s.session(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.mutateSession(session, fn)
}

func (s *ChartService) mutateSession(session *chart.Session, fn func(e *chart.Editor, m *chart.Modal) error) (*domain.ChartDTO, error) {
	var dto domain.ChartDTO
	err := session.Do(s.now(), func(e *chart.Editor, m *chart.Modal) error {
		if err := fn(e, m); err != nil {
			return err
		}
		dto = mapper.ToChartDTO(session, e.Snapshot(), m.Snapshot(), session.UpdatedAt())
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &dto, nil
}

func (s *ChartService) view(session *chart.Session) *domain.ChartDTO {
	var dto domain.ChartDTO
	session.View(s.now(), func(e *chart.Editor, m *chart.Modal) {
		dto = mapper.ToChartDTO(session, e.Snapshot(), m.Snapshot(), session.UpdatedAt())
	})
	return &dto
}
