package approval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/OpenCamTrap/camtrap/internal/apperr"
	"github.com/OpenCamTrap/camtrap/internal/config"
	"github.com/OpenCamTrap/camtrap/internal/esign"
)

// CorrelationField is the envelope custom field carrying our token. The
// signing URL prefills it through the EnvelopeField_ query convention, and
// Poll locates envelopes by it.
const CorrelationField = "correlation_token"

const envelopeFieldPrefix = "EnvelopeField_"

// GrantedByField is the optional powerform field naming the approver.
const GrantedByField = "approved_by"

// EnvelopeAPI is the slice of the signature service the tracker needs.
type EnvelopeAPI interface {
	ListEnvelopesByCustomField(ctx context.Context, field, value string, since time.Time) ([]esign.Envelope, error)
	GetFormData(ctx context.Context, powerFormID, envelopeID string) (map[string]string, error)
}

// Action is the side effect bound to a request kind. Execute runs at most
// once per request, on the transition into APPROVED, with the approver's
// form data.
type Action interface {
	Execute(ctx context.Context, req *Request, formData map[string]string) error
}

// Binding links a new request to the records it concerns.
type Binding struct {
	SubmissionID *uuid.UUID
	MapID        *uuid.UUID
	RequestedBy  string
}

// Tracker creates approval requests and advances them from polled
// envelope status.
type Tracker struct {
	db        *gorm.DB
	envelopes EnvelopeAPI
	cfg       config.ESignConfig
	actions   map[Kind]Action
	now       func() time.Time
}

func NewTracker(db *gorm.DB, envelopes EnvelopeAPI, cfg config.ESignConfig, now func() time.Time) *Tracker {
	if now == nil {
		now = time.Now
	}
	return &Tracker{
		db:        db,
		envelopes: envelopes,
		cfg:       cfg,
		actions:   make(map[Kind]Action),
		now:       now,
	}
}

// Bind registers the side effect for a request kind.
func (t *Tracker) Bind(kind Kind, action Action) {
	t.actions[kind] = action
}

// Create mints a correlation token, composes the signing URL with the
// token and all payload fields prefilled, and persists the request as
// PENDING. The returned URL is where the approver is sent.
func (t *Tracker) Create(ctx context.Context, kind Kind, bind Binding, fields url.Values) (*Request, string, error) {
	base, err := t.powerFormURL(kind)
	if err != nil {
		return nil, "", err
	}
	parsed, err := url.Parse(base)
	if err != nil {
		return nil, "", apperr.Configuration("invalid powerform URL for kind %s: %v", kind, err)
	}

	token := uuid.New()
	payload := make(map[string]string, len(fields))
	query := parsed.Query()
	query.Set(envelopeFieldPrefix+CorrelationField, token.String())
	for name := range fields {
		value := fields.Get(name)
		query.Set(envelopeFieldPrefix+name, value)
		payload[name] = value
	}
	parsed.RawQuery = query.Encode()

	req := &Request{
		Kind:             kind,
		CorrelationToken: token,
		Status:           StatusPending,
		OriginalPayload:  payload,
		SigningURL:       parsed.String(),
		SubmissionID:     bind.SubmissionID,
		MapID:            bind.MapID,
		RequestedAt:      t.now().UTC(),
		RequestedBy:      bind.RequestedBy,
	}
	if err := t.db.WithContext(ctx).Create(req).Error; err != nil {
		return nil, "", fmt.Errorf("failed to create approval request: %w", err)
	}

	slog.Info("Created approval request",
		"kind", kind, "requestID", req.ID, "correlationToken", token)
	return req, req.SigningURL, nil
}

// Poll loads the request for a correlation token and advances it from the
// signature service's envelope status. Terminal requests are returned
// as-is without touching the provider; repeated polls after a decision
// never re-run the side effect. Exactly one envelope must carry the token
// once any does.
func (t *Tracker) Poll(ctx context.Context, token string) (*Request, error) {
	correlation, err := uuid.Parse(token)
	if err != nil {
		return nil, apperr.Validation("token", "%q is not a valid correlation token", token)
	}

	req, err := t.byToken(ctx, correlation)
	if err != nil {
		return nil, err
	}
	if req.Terminal() {
		return req, nil
	}

	envelopes, err := t.envelopes.ListEnvelopesByCustomField(ctx, CorrelationField, correlation.String(), req.RequestedAt)
	if err != nil {
		return nil, err
	}
	if len(envelopes) != 1 {
		return nil, apperr.External("esign", "envelope lookup",
			fmt.Errorf("expected exactly one envelope for token %s, found %d", correlation, len(envelopes)))
	}

	envelope := envelopes[0]
	switch envelope.Status {
	case esign.EnvelopeStatusCompleted:
		return t.approve(ctx, req, envelope)
	case esign.EnvelopeStatusDeclined:
		return t.reject(ctx, req, envelope)
	default:
		return req, nil
	}
}

// approve fetches the approver's form data, then transitions the request
// with a compare-and-set on the PENDING status. Only the winning poll runs
// the bound action; a concurrent poll that lost the race observes the
// stored terminal state instead.
func (t *Tracker) approve(ctx context.Context, req *Request, envelope esign.Envelope) (*Request, error) {
	powerFormURL, err := t.powerFormURL(req.Kind)
	if err != nil {
		return nil, err
	}
	powerFormID, err := esign.PowerFormIDFromURL(powerFormURL)
	if err != nil {
		return nil, err
	}
	formData, err := t.envelopes.GetFormData(ctx, powerFormID, envelope.EnvelopeID)
	if err != nil {
		return nil, err
	}

	now := t.now().UTC()
	update := t.db.WithContext(ctx).
		Model(&Request{}).
		Where("id = ? AND status = ?", req.ID, StatusPending).
		Updates(&Request{
			Status:        StatusApproved,
			EditedPayload: formData,
			EnvelopeID:    envelope.EnvelopeID,
			GrantedAt:     &now,
			GrantedBy:     formData[GrantedByField],
		})
	if update.Error != nil {
		return nil, fmt.Errorf("failed to approve request: %w", update.Error)
	}
	if update.RowsAffected == 0 {
		// Another poll decided first.
		return t.byToken(ctx, req.CorrelationToken)
	}

	req.Status = StatusApproved
	req.EditedPayload = formData
	req.EnvelopeID = envelope.EnvelopeID
	req.GrantedAt = &now
	req.GrantedBy = formData[GrantedByField]

	if action, ok := t.actions[req.Kind]; ok {
		if err := action.Execute(ctx, req, formData); err != nil {
			return req, fmt.Errorf("approval side effect for request %s failed: %w", req.ID, err)
		}
	}
	slog.Info("Approval granted", "kind", req.Kind, "requestID", req.ID, "envelopeID", envelope.EnvelopeID)
	return req, nil
}

func (t *Tracker) reject(ctx context.Context, req *Request, envelope esign.Envelope) (*Request, error) {
	update := t.db.WithContext(ctx).
		Model(&Request{}).
		Where("id = ? AND status = ?", req.ID, StatusPending).
		Updates(&Request{Status: StatusRejected, EnvelopeID: envelope.EnvelopeID})
	if update.Error != nil {
		return nil, fmt.Errorf("failed to reject request: %w", update.Error)
	}
	if update.RowsAffected == 0 {
		return t.byToken(ctx, req.CorrelationToken)
	}

	req.Status = StatusRejected
	req.EnvelopeID = envelope.EnvelopeID
	slog.Info("Approval declined", "kind", req.Kind, "requestID", req.ID, "envelopeID", envelope.EnvelopeID)
	return req, nil
}

func (t *Tracker) byToken(ctx context.Context, token uuid.UUID) (*Request, error) {
	var req Request
	err := t.db.WithContext(ctx).Where("correlation_token = ?", token).First(&req).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("approval request", token.String())
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load approval request: %w", err)
	}
	return &req, nil
}

func (t *Tracker) powerFormURL(kind Kind) (string, error) {
	var formURL string
	switch kind {
	case KindTag:
		formURL = t.cfg.TagPowerFormURL
	case KindMapPublish:
		formURL = t.cfg.MapPublishPowerFormURL
	default:
		return "", apperr.Configuration("unknown approval kind %q", kind)
	}
	if formURL == "" {
		return "", apperr.Configuration("no powerform URL configured for approval kind %s", kind)
	}
	return formURL, nil
}
