package submission

import (
	"strconv"

	"github.com/google/uuid"

	"github.com/OpenCamTrap/camtrap/internal/model"
	"github.com/OpenCamTrap/camtrap/internal/normalize"
)

// Submission is one matched camera-trap deployment. The raw record is kept
// exactly as received; the canonical attributes are derived once at
// creation and never rewritten.
//
// CameraFolder is deliberately not unique: re-matching the same folder
// creates a new row and lookups take the latest one.
type Submission struct {
	model.BaseModel
	CameraFolder string              `gorm:"type:varchar(64);column:camera_folder;not null;index" json:"cameraFolder"`
	Raw          map[string]any      `gorm:"type:jsonb;column:raw_record;serializer:json;not null" json:"rawRecord"`
	Canonical    normalize.Canonical `gorm:"type:jsonb;column:canonical_attributes;serializer:json;not null" json:"canonicalAttributes"`

	// Relationships
	Photos []Photo `gorm:"foreignKey:SubmissionID;references:ID" json:"photos,omitempty"`
}

func (s *Submission) TableName() string {
	return "submissions"
}

// Coordinates returns the submission's camera location in decimal
// longitude/latitude, from the canonical x/y attributes.
func (s *Submission) Coordinates() (lon, lat float64, ok bool) {
	lon, ok = canonicalFloat(s.Canonical, "x")
	if !ok {
		return 0, 0, false
	}
	lat, ok = canonicalFloat(s.Canonical, "y")
	if !ok {
		return 0, 0, false
	}
	return lon, lat, true
}

func canonicalFloat(canonical normalize.Canonical, key string) (float64, bool) {
	attr, ok := canonical[key]
	if !ok {
		return 0, false
	}
	switch v := attr.Value.(type) {
	case float64:
		return v, true
	case string:
		f, err := strconv.ParseFloat(v, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// Photo is one staged photo attached to a submission. Rows are transient:
// they exist between user upload and the push to the asset manager.
type Photo struct {
	model.BaseModel
	SubmissionID uuid.UUID `gorm:"type:uuid;column:submission_id;not null;index" json:"submissionId"`
	StorageKey   string    `gorm:"type:varchar(255);column:storage_key;not null" json:"storageKey"`
	FileName     string    `gorm:"type:varchar(255);column:file_name;not null" json:"fileName"`
}

func (p *Photo) TableName() string {
	return "photos"
}
