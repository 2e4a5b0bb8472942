package service

import (
	"context"

	"crop-vision-api/internal/config"
	"crop-vision-api/internal/intake"
	"crop-vision-api/internal/normalizer"
	"crop-vision-api/internal/provider"
	"crop-vision-api/pkg/models"

	"github.com/go-resty/resty/v2"
)

// AnalysisService runs the full pipeline for one request: resolve the
// provider variant, issue the single analysis call, normalize the response.
type AnalysisService interface {
	AnalyzeUpload(ctx context.Context, img *intake.ValidatedImage, variant string) (*models.AnalysisResponse, error)
	AnalyzeURL(ctx context.Context, imageURL string, variant string) (*models.AnalysisResponse, error)
}

type analysisService struct {
	cfg    *config.Config
	client *resty.Client
}

// NewAnalysisService creates the analysis service. Analyzers are constructed
// per request so a missing credential surfaces as a configuration error on
// the request that needs it, before any outbound call.
func NewAnalysisService(cfg *config.Config, client *resty.Client) AnalysisService {
	return &analysisService{cfg: cfg, client: client}
}

func (s *analysisService) AnalyzeUpload(ctx context.Context, img *intake.ValidatedImage, variant string) (*models.AnalysisResponse, error) {
	return s.analyze(ctx, provider.UploadInput(img), variant)
}

func (s *analysisService) AnalyzeURL(ctx context.Context, imageURL string, variant string) (*models.AnalysisResponse, error) {
	return s.analyze(ctx, provider.URLInput(imageURL), variant)
}

func (s *analysisService) analyze(ctx context.Context, img provider.ImageInput, variant string) (*models.AnalysisResponse, error) {
	analyzer, err := provider.New(variant, s.cfg, s.client)
	if err != nil {
		return nil, err
	}

	raw, err := analyzer.Analyze(ctx, img, provider.CropAnalysisPrompt)
	if err != nil {
		return nil, err
	}

	return &models.AnalysisResponse{
		Analysis: normalizer.Normalize(raw, variant),
		Raw:      raw,
	}, nil
}
