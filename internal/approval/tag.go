package approval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"

	"gorm.io/gorm"

	"github.com/OpenCamTrap/camtrap/internal/apperr"
	"github.com/OpenCamTrap/camtrap/internal/assetmanager"
	"github.com/OpenCamTrap/camtrap/internal/config"
	"github.com/OpenCamTrap/camtrap/internal/normalize"
	"github.com/OpenCamTrap/camtrap/internal/submission"
)

// TagAction applies attribute values to every asset in a submission's
// camera folder. As the Action bound to KindTag it prefers the approver's
// edited values over the originally proposed ones.
type TagAction struct {
	db     *gorm.DB
	assets *assetmanager.Client
}

func NewTagAction(db *gorm.DB, assets *assetmanager.Client) *TagAction {
	return &TagAction{db: db, assets: assets}
}

func (a *TagAction) Execute(ctx context.Context, req *Request, formData map[string]string) error {
	if req.SubmissionID == nil {
		return apperr.Configuration("tag request %s is not linked to a submission", req.ID)
	}
	var sub submission.Submission
	err := a.db.WithContext(ctx).Where("id = ?", req.SubmissionID).First(&sub).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperr.NotFound("submission", req.SubmissionID.String())
	}
	if err != nil {
		return fmt.Errorf("failed to load submission for tag request: %w", err)
	}

	// The approver may have edited any proposed value. Keys that are not
	// part of the original payload (the correlation token, signer fields)
	// are not attributes and are dropped.
	attrs := make(map[string]string, len(req.OriginalPayload))
	for name, original := range req.OriginalPayload {
		attrs[name] = original
		if edited, ok := formData[name]; ok && edited != "" {
			attrs[name] = edited
		}
	}

	return a.Tag(ctx, &sub, attrs)
}

// Tag sets the attribute values on all assets in the submission's folder.
// Used directly when tagging is configured to skip approval.
func (a *TagAction) Tag(ctx context.Context, sub *submission.Submission, attrs map[string]string) error {
	folderID, err := a.assets.FindFolder(ctx, sub.CameraFolder)
	if err != nil {
		return err
	}
	assets, err := a.assets.ListAssets(ctx, folderID)
	if err != nil {
		return err
	}
	if len(assets) == 0 {
		return apperr.NotFound("assets", sub.CameraFolder)
	}

	assetIDs := make([]string, 0, len(assets))
	for _, asset := range assets {
		assetIDs = append(assetIDs, asset.ID)
	}
	if err := a.assets.TagAssets(ctx, attrs, assetIDs); err != nil {
		return err
	}
	slog.Info("Tagged assets", "cameraFolder", sub.CameraFolder, "assets", len(assetIDs))
	return nil
}

// TagOutcome reports how a tag request was handled: either assets were
// tagged immediately, or an approval request was opened and the approver
// must be sent to SigningURL.
type TagOutcome struct {
	Tagged     bool     `json:"tagged"`
	Request    *Request `json:"request,omitempty"`
	SigningURL string   `json:"signingUrl,omitempty"`
}

// TagService derives the attribute values for a submission and routes them
// through approval, or applies them directly when approval is disabled.
type TagService struct {
	tracker         *Tracker
	action          *TagAction
	metadata        config.MetadataConfig
	requireApproval bool
}

func NewTagService(tracker *Tracker, action *TagAction, metadata config.MetadataConfig, requireApproval bool) *TagService {
	return &TagService{
		tracker:         tracker,
		action:          action,
		metadata:        metadata,
		requireApproval: requireApproval,
	}
}

// RequestTagging splits the submission's canonical attributes into the
// outbound attribute set and either tags immediately or opens a TAG
// approval request.
func (s *TagService) RequestTagging(ctx context.Context, sub *submission.Submission, requestedBy string) (*TagOutcome, error) {
	tagSet, err := normalize.Split(sub.Canonical, s.metadata.DirectAttributes)
	if err != nil {
		return nil, err
	}
	attrs := tagSet.Attributes(s.metadata.DescriptionAttribute)

	if !s.requireApproval {
		if err := s.action.Tag(ctx, sub, attrs); err != nil {
			return nil, err
		}
		return &TagOutcome{Tagged: true}, nil
	}

	fields := make(url.Values, len(attrs))
	for name, value := range attrs {
		fields.Set(name, value)
	}
	req, signingURL, err := s.tracker.Create(ctx, KindTag, Binding{
		SubmissionID: &sub.ID,
		RequestedBy:  requestedBy,
	}, fields)
	if err != nil {
		return nil, err
	}
	return &TagOutcome{Request: req, SigningURL: signingURL}, nil
}
