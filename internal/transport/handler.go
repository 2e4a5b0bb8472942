package transport

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"crop-vision-api/internal/config"
	apperrors "crop-vision-api/internal/errors"
	"crop-vision-api/internal/intake"
	"crop-vision-api/internal/logger"
	"crop-vision-api/internal/service"
	"crop-vision-api/pkg/models"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

func NewHandler(svc service.AnalysisService, in *intake.Intake, cfg *config.Config) http.Handler {
	r := gin.New()
	r.Use(gin.Recovery())

	// Wrong method on a known route answers 405, not 404
	r.HandleMethodNotAllowed = true
	r.NoMethod(func(c *gin.Context) {
		respondError(c, apperrors.NewMethodError())
	})

	r.Use(
		requestSizeLimiter(cfg.MaxRequestBodySize),
		apiKeyAuth(cfg.ServiceAPIKey),
	)

	r.GET("/health", healthCheck)
	r.POST("/api/v1/analyze/:provider", analyzeImage(svc, in))

	return r
}

func analyzeImage(svc service.AnalysisService, in *intake.Intake) gin.HandlerFunc {
	return func(c *gin.Context) {
		startTime := time.Now()
		variant := c.Param("provider")

		logger.WithFields(logrus.Fields{
			"method":   c.Request.Method,
			"path":     c.Request.URL.Path,
			"provider": variant,
			"ip":       c.ClientIP(),
		}).Info("Processing crop analysis request")

		result, err := runPipeline(c, svc, in, variant)
		if err != nil {
			respondError(c, err)
			return
		}

		logger.WithFields(logrus.Fields{
			"provider":           variant,
			"processing_time_ms": time.Since(startTime).Milliseconds(),
			"analysis_chars":     len(result.Analysis),
		}).Info("Crop analysis completed")

		c.JSON(http.StatusOK, result)
	}
}

// runPipeline dispatches on content type: multipart carries an uploaded
// file, anything else is treated as the JSON imageUrl body.
func runPipeline(c *gin.Context, svc service.AnalysisService, in *intake.Intake, variant string) (*models.AnalysisResponse, error) {
	ctx := c.Request.Context()

	if strings.HasPrefix(c.ContentType(), "multipart/form-data") {
		img, err := in.FromMultipart(c)
		if err != nil {
			return nil, err
		}
		return svc.AnalyzeUpload(ctx, img, variant)
	}

	imageURL, err := in.FromJSON(c)
	if err != nil {
		return nil, err
	}
	return svc.AnalyzeURL(ctx, imageURL, variant)
}

func healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "available",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

func requestSizeLimiter(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// apiKeyAuth enforces the optional static API key. An empty configured key
// disables the check entirely.
func apiKeyAuth(key string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if key == "" || c.Request.URL.Path == "/health" {
			c.Next()
			return
		}
		if c.GetHeader("X-API-Key") != key {
			respondError(c, apperrors.NewUnauthorizedError("invalid or missing API key"))
			return
		}
		c.Next()
	}
}

func respondError(c *gin.Context, err error) {
	appErr, ok := err.(*apperrors.AppError)
	if !ok {
		if errors.Is(err, context.DeadlineExceeded) {
			appErr = apperrors.NewProviderError("provider request timed out", err)
		} else {
			appErr = apperrors.NewInternalError("unexpected error", err)
		}
	}

	// Full detail stays server-side; the response carries only the message
	// and an optional short detail string.
	logger.WithError(appErr).WithFields(logrus.Fields{
		"status_code": appErr.StatusCode,
		"error_type":  string(appErr.Type),
		"path":        c.Request.URL.Path,
		"method":      c.Request.Method,
		"ip":          c.ClientIP(),
	}).Error("Request failed")

	c.AbortWithStatusJSON(appErr.StatusCode, models.ErrorResponse{
		Error:   appErr.Message,
		Details: appErr.Details,
	})
}
