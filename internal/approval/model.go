// Package approval tracks e-signature approval requests and runs their
// side effects. A request is created PENDING with a freshly minted
// correlation token, moves to APPROVED or REJECTED from polled envelope
// status, and never leaves a terminal state. The side effect bound to a
// request kind runs exactly once, on the approving transition.
package approval

import (
	"time"

	"github.com/google/uuid"

	"github.com/OpenCamTrap/camtrap/internal/model"
)

// Kind selects the side effect bound to a request.
type Kind string

const (
	KindTag        Kind = "TAG"
	KindMapPublish Kind = "MAP_PUBLISH"
)

// Status of an approval request. APPROVED and REJECTED are terminal.
type Status string

const (
	StatusPending  Status = "PENDING"
	StatusApproved Status = "APPROVED"
	StatusRejected Status = "REJECTED"
)

// Request is one approval request routed through the signature service.
// OriginalPayload holds the field values embedded in the outbound signing
// URL and is immutable; EditedPayload holds the values the approver
// submitted and is written only on the approving transition.
type Request struct {
	model.BaseModel
	Kind             Kind      `gorm:"type:varchar(16);column:kind;not null" json:"kind"`
	CorrelationToken uuid.UUID `gorm:"type:uuid;column:correlation_token;uniqueIndex;not null" json:"correlationToken"`
	Status           Status    `gorm:"type:varchar(16);column:status;not null" json:"status"`

	OriginalPayload map[string]string `gorm:"type:jsonb;column:original_payload;serializer:json" json:"originalPayload"`
	EditedPayload   map[string]string `gorm:"type:jsonb;column:edited_payload;serializer:json" json:"editedPayload,omitempty"`
	SigningURL      string            `gorm:"type:text;column:signing_url;not null" json:"signingUrl"`
	EnvelopeID      string            `gorm:"type:varchar(64);column:envelope_id" json:"envelopeId,omitempty"`

	SubmissionID *uuid.UUID `gorm:"type:uuid;column:submission_id;index" json:"submissionId,omitempty"`
	MapID        *uuid.UUID `gorm:"type:uuid;column:map_id;index" json:"mapId,omitempty"`

	RequestedAt time.Time  `gorm:"column:requested_at;type:timestamptz;not null" json:"requestedAt"`
	GrantedAt   *time.Time `gorm:"column:granted_at;type:timestamptz" json:"grantedAt,omitempty"`
	RequestedBy string     `gorm:"type:varchar(255);column:requested_by" json:"requestedBy,omitempty"`
	GrantedBy   string     `gorm:"type:varchar(255);column:granted_by" json:"grantedBy,omitempty"`
}

func (r *Request) TableName() string {
	return "approval_requests"
}

// Terminal reports whether the request has reached a final status.
func (r *Request) Terminal() bool {
	return r.Status == StatusApproved || r.Status == StatusRejected
}
