package submission

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/OpenCamTrap/camtrap/internal/apperr"
	"github.com/OpenCamTrap/camtrap/internal/config"
	"github.com/OpenCamTrap/camtrap/internal/normalize"
	"github.com/OpenCamTrap/camtrap/internal/survey"
)

// Matcher resolves a camera-folder name to a submission. Matching is
// cache-first: a folder that was already matched is answered from the
// database without calling the survey service.
type Matcher struct {
	db       *gorm.DB
	source   survey.Source
	schema   *normalize.Schema
	cfg      config.SurveyConfig
	folderRe *regexp.Regexp
}

func NewMatcher(db *gorm.DB, source survey.Source, schema *normalize.Schema, cfg config.SurveyConfig) (*Matcher, error) {
	re, err := regexp.Compile(cfg.CameraFolderPattern)
	if err != nil {
		return nil, apperr.Configuration("invalid camera folder pattern %q: %v", cfg.CameraFolderPattern, err)
	}
	return &Matcher{
		db:       db,
		source:   source,
		schema:   schema,
		cfg:      cfg,
		folderRe: re,
	}, nil
}

// Match returns the submission for cameraFolder, creating it from survey
// data on first use. When several survey records match the folder, the
// most recently created record wins.
func (m *Matcher) Match(ctx context.Context, cameraFolder string) (*Submission, error) {
	cameraFolder = strings.TrimSpace(cameraFolder)
	if !m.folderRe.MatchString(cameraFolder) {
		return nil, apperr.Validation("cameraFolder", "%q does not match the required {camera_id}_{date} form", cameraFolder)
	}

	if sub, err := m.latest(ctx, cameraFolder); err == nil {
		return sub, nil
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("failed to look up submission: %w", err)
	}

	record, err := m.findRecord(ctx, cameraFolder)
	if err != nil {
		return nil, err
	}

	canonical, err := m.schema.Normalize(record)
	if err != nil {
		return nil, err
	}

	sub := &Submission{
		CameraFolder: cameraFolder,
		Raw:          record,
		Canonical:    canonical,
	}
	if err := m.db.WithContext(ctx).Create(sub).Error; err != nil {
		return nil, fmt.Errorf("failed to create submission: %w", err)
	}
	slog.Info("Matched submission", "cameraFolder", cameraFolder, "submissionID", sub.ID)
	return sub, nil
}

// Lookup returns the latest already-matched submission for cameraFolder
// without consulting the survey service.
func (m *Matcher) Lookup(ctx context.Context, cameraFolder string) (*Submission, error) {
	sub, err := m.latest(ctx, cameraFolder)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("submission", cameraFolder)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up submission: %w", err)
	}
	return sub, nil
}

// Get loads a single submission by ID.
func (m *Matcher) Get(ctx context.Context, id string) (*Submission, error) {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, apperr.Validation("submissionID", "%q is not a valid submission ID", id)
	}
	var sub Submission
	err = m.db.WithContext(ctx).Where("id = ?", parsed).First(&sub).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("submission", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load submission: %w", err)
	}
	return &sub, nil
}

func (m *Matcher) latest(ctx context.Context, cameraFolder string) (*Submission, error) {
	var sub Submission
	err := m.db.WithContext(ctx).
		Where("camera_folder = ?", cameraFolder).
		Order("created_at DESC").
		First(&sub).Error
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

// findRecord pulls current survey data and picks the record whose camera
// id and setup date both match the folder name.
func (m *Matcher) findRecord(ctx context.Context, cameraFolder string) (survey.Record, error) {
	cameraID, dateStr, ok := strings.Cut(cameraFolder, "_")
	if !ok {
		return nil, apperr.Validation("cameraFolder", "%q has no date component", cameraFolder)
	}
	setupDate, err := time.Parse(m.cfg.SetupDateLayout, dateStr)
	if err != nil {
		return nil, apperr.Validation("cameraFolder", "%q has an unparseable date component: %v", cameraFolder, err)
	}

	records, err := m.source.ListSubmissions(ctx)
	if err != nil {
		return nil, err
	}

	var (
		best     survey.Record
		bestTime time.Time
	)
	for _, rec := range records {
		if rec.CameraID() != cameraID {
			continue
		}
		ts, ok := rec.Time(m.cfg.SetupDateField)
		if !ok || !sameDay(ts, setupDate) {
			continue
		}
		created, _ := rec.CreationTime()
		if best == nil || created.After(bestTime) {
			best = rec
			bestTime = created
		}
	}
	if best == nil {
		return nil, apperr.Validation("cameraFolder", "no survey submission matches %q", cameraFolder)
	}
	return best, nil
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	return ay == by && am == bm && ad == bd
}
