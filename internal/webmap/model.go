// Package webmap assembles published camera-trap maps: a frozen set of
// submission attributes rendered into a web-map document, created on the
// mapping platform, and shared publicly once the publish approval is
// granted.
package webmap

import (
	"github.com/google/uuid"

	"github.com/OpenCamTrap/camtrap/internal/approval"
	"github.com/OpenCamTrap/camtrap/internal/model"
)

// FeatureAttributes is the frozen per-folder attribute set a map renders.
// Coordinates are web-mercator meters.
type FeatureAttributes struct {
	X           float64 `json:"x"`
	Y           float64 `json:"y"`
	Title       string  `json:"title"`
	ImageURL    string  `json:"imageUrl"`
	Description string  `json:"description"`
}

// Map is one created web map. The attributes and rendered document are
// immutable after creation; only status and the public URL change, on the
// publish approval.
type Map struct {
	model.BaseModel
	Title            string          `gorm:"type:varchar(255);column:title;not null" json:"title"`
	CorrelationToken uuid.UUID       `gorm:"type:uuid;column:correlation_token;uniqueIndex" json:"correlationToken"`
	Status           approval.Status `gorm:"type:varchar(16);column:status;not null" json:"status"`

	SubmissionAttributes map[string]FeatureAttributes `gorm:"type:jsonb;column:submission_attributes;serializer:json;not null" json:"submissionAttributes"`

	WebMapID        string `gorm:"type:varchar(64);column:web_map_id" json:"webMapId"`
	WebMapURL       string `gorm:"type:text;column:web_map_url" json:"webMapUrl"`
	WebMapPublicURL string `gorm:"type:text;column:web_map_public_url" json:"webMapPublicUrl,omitempty"`
	WebMapJSON      string `gorm:"type:jsonb;column:web_map_json" json:"-"`
}

func (m *Map) TableName() string {
	return "maps"
}
