package container

import (
	"fmt"
	"net/http"

	"crop-vision-api/internal/config"
	"crop-vision-api/internal/intake"
	"crop-vision-api/internal/provider"
	"crop-vision-api/internal/service"
	"crop-vision-api/internal/transport"
)

// Container holds all application dependencies
type Container struct {
	config          *config.Config
	intake          *intake.Intake
	analysisService service.AnalysisService
	handler         http.Handler
}

// NewContainer wires the dependency graph: config → HTTP client → intake →
// pipeline service → transport handler.
func NewContainer(cfg *config.Config) (*Container, error) {
	in, err := intake.NewIntake(cfg.UploadTempDir)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize upload intake: %w", err)
	}

	client := provider.NewClient(cfg)
	analysisService := service.NewAnalysisService(cfg, client)
	handler := transport.NewHandler(analysisService, in, cfg)

	return &Container{
		config:          cfg,
		intake:          in,
		analysisService: analysisService,
		handler:         handler,
	}, nil
}

// Handler returns the HTTP handler
func (c *Container) Handler() http.Handler {
	return c.handler
}

// Config returns the configuration
func (c *Container) Config() *config.Config {
	return c.config
}
