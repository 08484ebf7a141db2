// Package survey reads camera-trap submissions from the external survey
// service. Records are kept as raw field maps; interpretation happens in
// the normalize and submission packages.
package survey

import (
	"context"
	"time"
)

// Record is one raw survey submission, all fields exactly as received.
type Record map[string]any

// Well-known record fields. Everything else is survey-defined.
const (
	FieldCameraID     = "camera_id"
	FieldCreationDate = "CreationDate"
)

// Source lists raw submissions from the survey service.
type Source interface {
	ListSubmissions(ctx context.Context) ([]Record, error)
}

// CameraID returns the record's camera identifier, or "" when absent.
func (r Record) CameraID() string {
	id, _ := r[FieldCameraID].(string)
	return id
}

// Time parses the named field as a timestamp. Survey exports carry
// timestamps either as epoch milliseconds, RFC3339 strings, or (in-process)
// time.Time values.
func (r Record) Time(field string) (time.Time, bool) {
	switch v := r[field].(type) {
	case time.Time:
		return v, true
	case float64:
		return time.UnixMilli(int64(v)).UTC(), true
	case int64:
		return time.UnixMilli(v).UTC(), true
	case string:
		for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"} {
			if ts, err := time.Parse(layout, v); err == nil {
				return ts, true
			}
		}
	}
	return time.Time{}, false
}

// CreationTime returns the record's creation timestamp, the tie-breaker
// when several submissions match one camera folder.
func (r Record) CreationTime() (time.Time, bool) {
	return r.Time(FieldCreationDate)
}
