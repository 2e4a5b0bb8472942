package intake

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	apperrors "crop-vision-api/internal/errors"
	"crop-vision-api/internal/logger"
	"crop-vision-api/pkg/models"
	"crop-vision-api/pkg/validation"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// FileFieldName is the single multipart field the intake accepts.
const FileFieldName = "image"

// allowedExtensions is the fixed extension allow-list, checked alongside the
// declared MIME type. The MIME header is attacker-controlled, so the
// extension acts as a second independent signal, not a replacement.
var allowedExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".webp": true,
	".gif":  true,
}

// ValidatedImage is an upload that passed the allow-list checks. It is owned
// by the request that produced it and never shared across requests.
type ValidatedImage struct {
	Data     []byte
	MIMEType string
}

// Intake validates inbound images, either uploaded as multipart files or
// referenced by URL.
type Intake struct {
	tempDir      string
	urlValidator *validation.URLValidator
}

func NewIntake(tempDir string) (*Intake, error) {
	if err := os.MkdirAll(tempDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create upload temp dir %s: %w", tempDir, err)
	}
	return &Intake{
		tempDir:      tempDir,
		urlValidator: validation.NewURLValidator(),
	}, nil
}

// FromMultipart extracts and validates the uploaded file from a multipart
// request. The stored temp artifact is removed on every exit path; only the
// in-memory copy survives the call.
func (i *Intake) FromMultipart(c *gin.Context) (*ValidatedImage, error) {
	fileHeader, err := c.FormFile(FileFieldName)
	if err != nil {
		return nil, apperrors.NewValidationError("no image file provided", err)
	}

	mimeType := fileHeader.Header.Get("Content-Type")
	ext := strings.ToLower(filepath.Ext(fileHeader.Filename))
	if !strings.HasPrefix(mimeType, "image/") || !allowedExtensions[ext] {
		return nil, apperrors.NewValidationError("disallowed file type", nil).
			WithDetails(fmt.Sprintf("got %s (%s); allowed extensions: .jpg, .jpeg, .png, .webp, .gif", ext, mimeType))
	}

	storedPath := filepath.Join(i.tempDir, uuid.NewString()+ext)

	// Removal is registered before the save so a partially written artifact
	// from a failed copy is still cleaned up on the error return.
	defer func() {
		if err := os.Remove(storedPath); err != nil && !os.IsNotExist(err) {
			logger.WithError(err).WithField("path", storedPath).Warn("Failed to remove temp upload")
		}
	}()

	if err := c.SaveUploadedFile(fileHeader, storedPath); err != nil {
		return nil, apperrors.NewInternalError("failed to store uploaded file", err)
	}

	// Re-check the stored path's extension before touching its contents, in
	// case the persisted name diverged from the declared one.
	if !allowedExtensions[strings.ToLower(filepath.Ext(storedPath))] {
		return nil, apperrors.NewValidationError("disallowed file type", nil)
	}

	data, err := os.ReadFile(storedPath)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to read uploaded file", err)
	}

	logger.WithFields(logrus.Fields{
		"filename": fileHeader.Filename,
		"mime":     mimeType,
		"bytes":    len(data),
	}).Debug("Upload accepted")

	return &ValidatedImage{Data: data, MIMEType: mimeType}, nil
}

// FromJSON extracts and validates an image URL from a JSON request body.
// The bytes behind the URL are not inspected; the provider fetches them.
func (i *Intake) FromJSON(c *gin.Context) (string, error) {
	var req models.URLAnalysisRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		return "", apperrors.NewValidationError("invalid request body", err)
	}
	if err := i.urlValidator.ValidateImageURL(req.ImageURL); err != nil {
		return "", err
	}
	return req.ImageURL, nil
}
