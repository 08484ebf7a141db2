package webmap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"gorm.io/gorm"

	"github.com/OpenCamTrap/camtrap/internal/apperr"
	"github.com/OpenCamTrap/camtrap/internal/approval"
	"github.com/OpenCamTrap/camtrap/internal/mapservice"
)

// PublishAction is the side effect bound to MAP_PUBLISH approvals: share
// the web-map item publicly and store the public viewer URL. It runs once,
// on the approving transition.
type PublishAction struct {
	db   *gorm.DB
	maps *mapservice.Client
}

func NewPublishAction(db *gorm.DB, maps *mapservice.Client) *PublishAction {
	return &PublishAction{db: db, maps: maps}
}

func (a *PublishAction) Execute(ctx context.Context, req *approval.Request, formData map[string]string) error {
	if req.MapID == nil {
		return apperr.Configuration("publish request %s is not linked to a map", req.ID)
	}
	var m Map
	err := a.db.WithContext(ctx).Where("id = ?", req.MapID).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperr.NotFound("map", req.MapID.String())
	}
	if err != nil {
		return fmt.Errorf("failed to load map for publish request: %w", err)
	}

	itemID := m.WebMapID
	if itemID == "" {
		itemID, err = mapservice.ItemIDFromHomepageURL(m.WebMapURL)
		if err != nil {
			return err
		}
	}

	if err := a.maps.Share(ctx, itemID); err != nil {
		return err
	}
	publicURL, err := mapservice.PublicViewerURL(m.WebMapURL, itemID)
	if err != nil {
		return err
	}

	if err := a.db.WithContext(ctx).Model(&m).Updates(&Map{
		Status:          approval.StatusApproved,
		WebMapPublicURL: publicURL,
	}).Error; err != nil {
		return fmt.Errorf("failed to store public map URL: %w", err)
	}

	slog.Info("Published web map", "mapID", m.ID, "publicURL", publicURL)
	return nil
}
