// Package ocr implements the quota-gated receipt scanning action.
package ocr

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jordanlanch/familycart/pkg/entitlement"
	"github.com/jordanlanch/familycart/pkg/logger"
	"github.com/jordanlanch/familycart/pkg/metrics"
	"github.com/jordanlanch/familycart/pkg/models"
	"github.com/jordanlanch/familycart/pkg/storage"
)

// MaxImageBytes caps decoded image size.
const MaxImageBytes = 10 << 20

var (
	// ErrNotConfigured is returned when no vision API key is set.
	ErrNotConfigured = errors.New("receipt scanning is not configured")
	// ErrInvalidImage is returned for undecodable or unsupported images.
	ErrInvalidImage = errors.New("invalid receipt image")
	// ErrVisionFailed wraps upstream vision errors.
	ErrVisionFailed = errors.New("receipt text extraction failed")
)

var imageExtensions = map[string]string{
	"image/jpeg": "jpg",
	"image/png":  "png",
	"image/webp": "webp",
	"image/gif":  "gif",
}

// Store persists scan results.
type Store interface {
	SaveReceiptScan(ctx context.Context, scan *models.ReceiptScan) error
}

// Quota gates an action on the caller's entitlement.
type Quota interface {
	Require(ctx context.Context, req entitlement.Request) (*models.EntitlementResult, error)
}

// Members verifies family group membership.
type Members interface {
	RequireMember(ctx context.Context, userID, groupID string) error
}

// Archive stores the original image.
type Archive interface {
	Put(ctx context.Context, key string, body []byte, contentType string) error
	Delete(ctx context.Context, key string) error
}

// Service runs receipt scans
type Service struct {
	store   Store
	quota   Quota
	members Members
	vision  Vision
	archive Archive
	log     logger.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

// NewService creates an OCR service. vision and archive may be nil: without
// vision every scan fails with ErrNotConfigured, without archive images are
// not kept.
func NewService(s Store, q Quota, m Members, vision Vision, archive Archive, log logger.Logger, mt *metrics.Metrics) *Service {
	return &Service{
		store:   s,
		quota:   q,
		members: m,
		vision:  vision,
		archive: archive,
		log:     log.With("component", "ocr"),
		metrics: mt,
		now:     time.Now,
	}
}

// Process checks the ocr quota, extracts the receipt text and records the scan
func (s *Service) Process(ctx context.Context, userID string, admin bool, req models.ProcessOCRRequest) (*models.ProcessOCRResponse, error) {
	image, mimeType, err := DecodeImage(req.Image)
	if err != nil {
		return nil, err
	}
	if err := s.members.RequireMember(ctx, userID, req.FamilyGroupID); err != nil {
		return nil, err
	}

	if _, err := s.quota.Require(ctx, entitlement.Request{
		UserID:        userID,
		FamilyGroupID: req.FamilyGroupID,
		Category:      models.CategoryOCR,
		Admin:         admin,
	}); err != nil {
		return nil, err
	}

	if s.vision == nil {
		return nil, ErrNotConfigured
	}

	start := time.Now()
	text, err := s.vision.ExtractText(ctx, image, mimeType)
	s.metrics.RecordOCRRequest(time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrVisionFailed, err)
	}

	scan := &models.ReceiptScan{
		ID:            uuid.NewString(),
		UserID:        userID,
		FamilyGroupID: req.FamilyGroupID,
		Text:          text,
		CreatedAt:     s.now().UTC(),
	}

	if s.archive != nil {
		key := storage.ReceiptKey(userID, scan.ID, imageExtensions[mimeType])
		if err := s.archive.Put(ctx, key, image, mimeType); err != nil {
			s.log.Warn("failed to archive receipt image", "scan_id", scan.ID, "error", err)
		} else {
			scan.ArchiveKey = key
		}
	}

	if err := s.store.SaveReceiptScan(ctx, scan); err != nil {
		if scan.ArchiveKey != "" {
			if delErr := s.archive.Delete(ctx, scan.ArchiveKey); delErr != nil {
				s.log.Warn("failed to remove orphaned receipt image", "key", scan.ArchiveKey, "error", delErr)
			}
		}
		return nil, err
	}

	s.log.Info("receipt scanned", "scan_id", scan.ID, "user_id", userID, "chars", len(text))
	return &models.ProcessOCRResponse{ScanID: scan.ID, Text: text}, nil
}

// DecodeImage accepts raw base64 or a data URL and returns the bytes and the
// sniffed content type.
func DecodeImage(encoded string) ([]byte, string, error) {
	encoded = strings.TrimSpace(encoded)
	if strings.HasPrefix(encoded, "data:") {
		comma := strings.IndexByte(encoded, ',')
		if comma < 0 {
			return nil, "", fmt.Errorf("%w: malformed data URL", ErrInvalidImage)
		}
		encoded = encoded[comma+1:]
	}
	if base64.StdEncoding.DecodedLen(len(encoded)) > MaxImageBytes+3 {
		return nil, "", fmt.Errorf("%w: image larger than %d bytes", ErrInvalidImage, MaxImageBytes)
	}

	image, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}
	if len(image) == 0 || len(image) > MaxImageBytes {
		return nil, "", fmt.Errorf("%w: bad image size", ErrInvalidImage)
	}

	mimeType := http.DetectContentType(image)
	if _, ok := imageExtensions[mimeType]; !ok {
		return nil, "", fmt.Errorf("%w: unsupported type %s", ErrInvalidImage, mimeType)
	}
	return image, mimeType, nil
}
