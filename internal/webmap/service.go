package webmap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/OpenCamTrap/camtrap/internal/apperr"
	"github.com/OpenCamTrap/camtrap/internal/approval"
	"github.com/OpenCamTrap/camtrap/internal/assetmanager"
	"github.com/OpenCamTrap/camtrap/internal/config"
	"github.com/OpenCamTrap/camtrap/internal/geometry"
	"github.com/OpenCamTrap/camtrap/internal/mapservice"
	"github.com/OpenCamTrap/camtrap/internal/normalize"
	"github.com/OpenCamTrap/camtrap/internal/submission"
)

// CreateMapResult is a created map plus the approval URL the requester
// must be sent to before the map becomes public.
type CreateMapResult struct {
	Map        *Map   `json:"map"`
	SigningURL string `json:"signingUrl"`
}

// Service assembles web maps from matched submissions and routes their
// publication through approval.
type Service struct {
	db       *gorm.DB
	matcher  *submission.Matcher
	photos   *submission.PhotoService
	assets   *assetmanager.Client
	maps     *mapservice.Client
	tracker  *approval.Tracker
	metadata config.MetadataConfig
}

func NewService(db *gorm.DB, matcher *submission.Matcher, photos *submission.PhotoService,
	assets *assetmanager.Client, maps *mapservice.Client, tracker *approval.Tracker,
	metadata config.MetadataConfig) *Service {
	return &Service{
		db:       db,
		matcher:  matcher,
		photos:   photos,
		assets:   assets,
		maps:     maps,
		tracker:  tracker,
		metadata: metadata,
	}
}

// CreateMap resolves the camera folders, freezes their attributes, renders
// and creates the web map, and opens a MAP_PUBLISH approval request.
func (s *Service) CreateMap(ctx context.Context, title string, cameraFolders []string, requestedBy string) (*CreateMapResult, error) {
	if len(cameraFolders) == 0 {
		return nil, apperr.Validation("cameraFolders", "at least one camera folder is required")
	}
	if strings.TrimSpace(title) == "" {
		return nil, apperr.Validation("title", "a map title is required")
	}

	attributes := make(map[string]FeatureAttributes, len(cameraFolders))
	for _, folder := range cameraFolders {
		attrs, err := s.featureAttributes(ctx, folder)
		if err != nil {
			return nil, err
		}
		attributes[folder] = attrs
	}

	doc, err := RenderDocument(attributes)
	if err != nil {
		return nil, fmt.Errorf("failed to render map document: %w", err)
	}

	item, err := s.maps.CreateWebMap(ctx, doc, title, cameraFolders, "Camera trap locations")
	if err != nil {
		return nil, err
	}

	// The approval request is created first: correlation_token is a
	// unique column and the map row must never be inserted with the zero
	// UUID, or concurrent creates collide on the index.
	m := &Map{
		Title:                title,
		Status:               approval.StatusPending,
		SubmissionAttributes: attributes,
		WebMapID:             item.ID,
		WebMapURL:            item.HomepageURL,
		WebMapJSON:           string(doc),
	}
	m.ID = uuid.New()

	fields := url.Values{}
	fields.Set("map_title", title)
	fields.Set("map_url", item.HomepageURL)
	req, signingURL, err := s.tracker.Create(ctx, approval.KindMapPublish, approval.Binding{
		MapID:       &m.ID,
		RequestedBy: requestedBy,
	}, fields)
	if err != nil {
		return nil, err
	}

	m.CorrelationToken = req.CorrelationToken
	if err := s.db.WithContext(ctx).Create(m).Error; err != nil {
		return nil, fmt.Errorf("failed to create map record: %w", err)
	}

	slog.Info("Created web map", "mapID", m.ID, "itemID", item.ID, "folders", len(cameraFolders))
	return &CreateMapResult{Map: m, SigningURL: signingURL}, nil
}

// Get loads a stored map. A pending map mirrors the terminal status of its
// approval request, so a decline observed through the approvals endpoint
// also shows up here.
func (s *Service) Get(ctx context.Context, id string) (*Map, error) {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, apperr.Validation("mapID", "%q is not a valid map ID", id)
	}
	var m Map
	err = s.db.WithContext(ctx).Where("id = ?", parsed).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("map", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load map: %w", err)
	}

	if m.Status == approval.StatusPending {
		if err := s.syncStatus(ctx, &m); err != nil {
			return nil, err
		}
	}
	return &m, nil
}

func (s *Service) syncStatus(ctx context.Context, m *Map) error {
	var req approval.Request
	err := s.db.WithContext(ctx).Where("map_id = ?", m.ID).First(&req).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load map approval request: %w", err)
	}
	if !req.Terminal() || req.Status == m.Status {
		return nil
	}

	if err := s.db.WithContext(ctx).Model(m).Update("status", req.Status).Error; err != nil {
		return fmt.Errorf("failed to sync map status: %w", err)
	}
	m.Status = req.Status
	return nil
}

// featureAttributes resolves one camera folder into its frozen map
// attributes: projected coordinates, a representative image, and the
// aggregated description.
func (s *Service) featureAttributes(ctx context.Context, folder string) (FeatureAttributes, error) {
	sub, err := s.matcher.Match(ctx, folder)
	if err != nil {
		return FeatureAttributes{}, err
	}

	lon, lat, ok := sub.Coordinates()
	if !ok {
		return FeatureAttributes{}, apperr.Configuration("submission for %q carries no usable x/y coordinates", folder)
	}
	x, y, err := geometry.Project(lon, lat)
	if err != nil {
		return FeatureAttributes{}, err
	}

	tagSet, err := normalize.Split(sub.Canonical, s.metadata.DirectAttributes)
	if err != nil {
		return FeatureAttributes{}, err
	}

	imageURL, err := s.imageURL(ctx, sub)
	if err != nil {
		return FeatureAttributes{}, err
	}

	return FeatureAttributes{
		X:           x,
		Y:           y,
		Title:       folder,
		ImageURL:    imageURL,
		Description: tagSet.Description,
	}, nil
}

// imageURL prefers a still-staged photo; otherwise the first asset already
// pushed to the asset manager. A folder with neither gets no popup image.
func (s *Service) imageURL(ctx context.Context, sub *submission.Submission) (string, error) {
	staged, err := s.photos.StagedURL(ctx, sub.ID)
	if err != nil {
		return "", err
	}
	if staged != "" {
		return staged, nil
	}

	folderID, err := s.assets.FindFolder(ctx, sub.CameraFolder)
	if apperr.IsNotFound(err) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	assets, err := s.assets.ListAssets(ctx, folderID)
	if err != nil {
		return "", err
	}
	if len(assets) == 0 {
		return "", nil
	}
	return assets[0].DownloadURL, nil
}
