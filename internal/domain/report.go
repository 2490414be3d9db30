package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Category is the closed set of incident types a citizen can report.
type Category string

const (
	CategoryPoorLighting        Category = "Poor Lighting"
	CategorySuspiciousLoitering Category = "Suspicious Loitering"
	CategoryVerbalHarassment    Category = "Verbal Harassment"
	CategoryPhysicalThreat      Category = "Physical Threat"
	CategoryAbandonedDarkArea   Category = "Abandoned/Dark Area"
	CategoryUnsafeCrowdBehavior Category = "Unsafe Crowd Behavior"
)

// Categories lists every known category in display order.
var Categories = []Category{
	CategoryPoorLighting,
	CategorySuspiciousLoitering,
	CategoryVerbalHarassment,
	CategoryPhysicalThreat,
	CategoryAbandonedDarkArea,
	CategoryUnsafeCrowdBehavior,
}

// Valid reports whether c is one of the known categories.
func (c Category) Valid() bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

// AffectsLighting reports whether the category degrades the lighting estimate.
func (c Category) AffectsLighting() bool {
	return c == CategoryPoorLighting || c == CategoryAbandonedDarkArea
}

// AffectsCrowd reports whether the category degrades the crowd estimate.
func (c Category) AffectsCrowd() bool {
	return c == CategorySuspiciousLoitering || c == CategoryUnsafeCrowdBehavior
}

const maxDescriptionLen = 500

// Report is one immutable incident observation.
type Report struct {
	ID          string     `json:"id"`
	Category    Category   `json:"category"`
	CreatedAt   time.Time  `json:"created_at"`
	Location    Coordinate `json:"coordinates"`
	DeviceID    string     `json:"device_id"`
	HasImage    bool       `json:"has_image"`
	Description string     `json:"description,omitempty"`
}

// ReportSubmission is what a device sends; the store assigns ID and CreatedAt.
type ReportSubmission struct {
	Category    Category   `json:"category"`
	Location    Coordinate `json:"coordinates"`
	DeviceID    string     `json:"device_id"`
	HasImage    bool       `json:"has_image"`
	Description string     `json:"description,omitempty"`
}

// Validate checks the category, device id and coordinate.
func (s ReportSubmission) Validate() error {
	if !s.Category.Valid() {
		return fmt.Errorf("%w: unknown category %q", ErrInvalidReport, s.Category)
	}
	if strings.TrimSpace(s.DeviceID) == "" {
		return fmt.Errorf("%w: device_id is required", ErrInvalidReport)
	}
	if err := s.Location.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidReport, err)
	}
	return nil
}

// NewReport stamps a submission with a fresh identifier and creation time.
func NewReport(s ReportSubmission, createdAt time.Time) Report {
	desc := strings.TrimSpace(s.Description)
	if len(desc) > maxDescriptionLen {
		desc = desc[:maxDescriptionLen]
	}
	return Report{
		ID:          "rep_" + uuid.NewString(),
		Category:    s.Category,
		CreatedAt:   createdAt,
		Location:    s.Location,
		DeviceID:    strings.TrimSpace(s.DeviceID),
		HasImage:    s.HasImage,
		Description: desc,
	}
}

// ParseReportMessage deserializes a RawEvent value into a validated submission.
// The message key stands in for the device id when the payload omits it.
func ParseReportMessage(raw RawEvent) (ReportSubmission, error) {
	var sub ReportSubmission
	if err := json.Unmarshal(raw.Value, &sub); err != nil {
		return ReportSubmission{}, fmt.Errorf("parse report message: %w", err)
	}
	if strings.TrimSpace(sub.DeviceID) == "" && len(raw.Key) > 0 {
		sub.DeviceID = string(raw.Key)
	}
	if err := sub.Validate(); err != nil {
		return ReportSubmission{}, err
	}
	return sub, nil
}
