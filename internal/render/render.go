package render

import (
	"github.com/straye-as/chart-api/internal/chart"
	"github.com/straye-as/chart-api/internal/config"
	"go.uber.org/zap"
)

// Renderer modes accepted by config
const (
	ModeCompose = "compose"
	ModeBrowser = "browser"
)

// New returns the renderer selected by cfg.Renderer and a shutdown hook
func New(cfg *config.ExportConfig, logger *zap.Logger) (chart.Renderer, func() error) {
	if cfg.Renderer == ModeBrowser {
		b := NewBrowser(cfg, logger)
		return b, b.Close
	}
	return NewCompositor(cfg, logger), func() error { return nil }
}
