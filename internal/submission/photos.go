package submission

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/OpenCamTrap/camtrap/internal/apperr"
	"github.com/OpenCamTrap/camtrap/internal/assetmanager"
	"github.com/OpenCamTrap/camtrap/internal/geometry"
	"github.com/OpenCamTrap/camtrap/internal/uploads"
)

// maxPhotosPerBatch caps one upload request.
const maxPhotosPerBatch = 10

// PhotoInput is one uploaded file, as received from the HTTP layer.
type PhotoInput struct {
	FileName string
	Reader   io.Reader
	Size     int64
	MimeType string
}

// GPSTag is the submission's camera location in DMS form, reported back to
// the caller alongside the pushed assets.
type GPSTag struct {
	Longitude string `json:"longitude"`
	Latitude  string `json:"latitude"`
}

// PushResult describes one completed push to the asset manager.
type PushResult struct {
	FolderID string   `json:"folderId"`
	AssetIDs []string `json:"assetIds"`
	GPS      *GPSTag  `json:"gps,omitempty"`
}

// PhotoService stages uploaded photos and pushes them into the asset
// manager under the submission's camera folder. Staged copies and photo
// rows are removed once the push succeeds.
type PhotoService struct {
	db      *gorm.DB
	staging *uploads.Staging
	assets  *assetmanager.Client
}

func NewPhotoService(db *gorm.DB, staging *uploads.Staging, assets *assetmanager.Client) *PhotoService {
	return &PhotoService{db: db, staging: staging, assets: assets}
}

// Attach stages the uploaded files and records them against the submission.
func (s *PhotoService) Attach(ctx context.Context, sub *Submission, files []PhotoInput) ([]Photo, error) {
	if len(files) == 0 {
		return nil, apperr.Validation("photos", "at least one file is required")
	}
	if len(files) > maxPhotosPerBatch {
		return nil, apperr.Validation("photos", "at most %d files per upload, got %d", maxPhotosPerBatch, len(files))
	}

	photos := make([]Photo, 0, len(files))
	for _, f := range files {
		staged, err := s.staging.Stage(ctx, f.FileName, f.Reader, f.Size, f.MimeType)
		if err != nil {
			return nil, fmt.Errorf("failed to stage %s: %w", f.FileName, err)
		}
		photo := Photo{
			SubmissionID: sub.ID,
			StorageKey:   staged.Key,
			FileName:     staged.Name,
		}
		if err := s.db.WithContext(ctx).Create(&photo).Error; err != nil {
			return nil, fmt.Errorf("failed to record photo: %w", err)
		}
		photos = append(photos, photo)
	}
	return photos, nil
}

// Push uploads every staged photo of the submission to the asset manager,
// then discards the staged copies and photo rows. With tagGPS set, the
// submission's coordinates are written into each JPEG's EXIF GPS block
// before upload and reported in DMS form on the result.
func (s *PhotoService) Push(ctx context.Context, sub *Submission, tagGPS bool) (*PushResult, error) {
	var photos []Photo
	if err := s.db.WithContext(ctx).
		Where("submission_id = ?", sub.ID).
		Order("created_at ASC").
		Find(&photos).Error; err != nil {
		return nil, fmt.Errorf("failed to load photos: %w", err)
	}
	if len(photos) == 0 {
		return nil, apperr.Validation("photos", "submission %s has no staged photos", sub.ID)
	}

	folderID, err := s.assets.CreateFolder(ctx, sub.CameraFolder)
	if err != nil {
		return nil, err
	}

	result := &PushResult{FolderID: folderID}
	if tagGPS {
		result.GPS = s.gpsTag(sub)
	}
	for _, photo := range photos {
		assetID, err := s.pushOne(ctx, folderID, photo, sub, result.GPS != nil)
		if err != nil {
			return nil, err
		}
		result.AssetIDs = append(result.AssetIDs, assetID)
	}

	if err := s.db.WithContext(ctx).
		Where("submission_id = ?", sub.ID).
		Delete(&Photo{}).Error; err != nil {
		return nil, fmt.Errorf("failed to clear photo records: %w", err)
	}

	slog.Info("Pushed photos to asset manager",
		"cameraFolder", sub.CameraFolder, "count", len(result.AssetIDs))
	return result, nil
}

func (s *PhotoService) pushOne(ctx context.Context, folderID string, photo Photo, sub *Submission, decorateGPS bool) (string, error) {
	reader, _, err := s.staging.Open(ctx, photo.StorageKey)
	if err != nil {
		return "", fmt.Errorf("failed to open staged photo %s: %w", photo.FileName, err)
	}
	defer reader.Close()

	var content io.Reader = reader
	if decorateGPS && isJPEG(photo.FileName) {
		data, err := io.ReadAll(reader)
		if err != nil {
			return "", fmt.Errorf("failed to read staged photo %s: %w", photo.FileName, err)
		}
		lon, lat, _ := sub.Coordinates()
		decorated, err := writeGPSExif(data, lon, lat)
		if err != nil {
			// An undecoratable photo is still worth pushing.
			slog.Warn("Failed to write GPS EXIF, pushing photo as-is",
				"photo", photo.FileName, "error", err)
			decorated = data
		}
		content = bytes.NewReader(decorated)
	}

	assetID, err := s.assets.Upload(ctx, content, photo.FileName, folderID)
	if err != nil {
		return "", err
	}
	if err := s.staging.Discard(ctx, photo.StorageKey); err != nil {
		slog.Warn("Failed to discard staged photo", "key", photo.StorageKey, "error", err)
	}
	return assetID, nil
}

// StagedURL returns a URL for the submission's first staged photo, or ""
// when none is staged.
func (s *PhotoService) StagedURL(ctx context.Context, submissionID uuid.UUID) (string, error) {
	var photo Photo
	err := s.db.WithContext(ctx).
		Where("submission_id = ?", submissionID).
		Order("created_at ASC").
		First(&photo).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to load photo: %w", err)
	}
	return s.staging.PublicURL(ctx, photo.StorageKey)
}

func (s *PhotoService) gpsTag(sub *Submission) *GPSTag {
	lon, lat, ok := sub.Coordinates()
	if !ok {
		return nil
	}
	lonDMS, latDMS := geometry.LonLatToDMS(lon, lat)
	return &GPSTag{Longitude: lonDMS.String(), Latitude: latDMS.String()}
}
