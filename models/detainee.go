package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Gender values accepted for a detainee record. Empty input is normalized to
// GenderUnspecified before insert.
const (
	GenderMale        = "male"
	GenderFemale      = "female"
	GenderUnspecified = "unspecified"
)

// Detention status values. Empty input is normalized to StatusUnknown.
const (
	StatusDetained = "detained"
	StatusMissing  = "missing"
	StatusReleased = "released"
	StatusDeceased = "deceased"
	StatusUnknown  = "unknown"
)

// UpdateSeparator joins old and new free-text values on correction. Both
// sides are always preserved; corrections never overwrite contact_info or
// additional_notes.
const UpdateSeparator = "\n---\n"

// UpdateHistoryEntry captures the previous values of the fields changed by
// one correction, together with the operator-supplied reason.
type UpdateHistoryEntry struct {
	PreviousValues map[string]string `json:"previous_values"`
	Reason         string            `json:"reason"`
	UpdatedAt      time.Time         `json:"updated_at"`
}

// UpdateHistory is an append-only jsonb column; entries are never removed or
// rewritten.
type UpdateHistory []UpdateHistoryEntry

func (h UpdateHistory) Value() (driver.Value, error) {
	if h == nil {
		h = UpdateHistory{}
	}
	return json.Marshal(h)
}

func (h *UpdateHistory) Scan(value interface{}) error {
	if value == nil {
		*h = UpdateHistory{}
		return nil
	}
	b, ok := value.([]byte)
	if !ok {
		if s, ok := value.(string); ok {
			b = []byte(s)
		} else {
			return fmt.Errorf("unsupported type %T for update history", value)
		}
	}
	return json.Unmarshal(b, h)
}

// Detainee is one persisted record of a detained or missing person.
// NormalizedName and NormalizedLocation carry the search-canonical forms and
// are refreshed whenever the source fields change.
type Detainee struct {
	ID                  uint `gorm:"primaryKey" json:"id"`
	CreatedAt           time.Time
	UpdatedAt           time.Time
	FullName            string        `gorm:"size:512;not null;index" json:"full_name"`
	NormalizedName      string        `gorm:"size:512;index" json:"-"`
	DateOfDetention     time.Time     `gorm:"type:date;not null;index" json:"date_of_detention"`
	LastSeenLocation    string        `gorm:"size:512" json:"last_seen_location"`
	NormalizedLocation  string        `gorm:"size:512;index" json:"-"`
	ContactInfo         string        `gorm:"type:text" json:"contact_info"`
	DetentionFacility   string        `gorm:"size:512" json:"detention_facility"`
	PhysicalDescription string        `gorm:"type:text" json:"physical_description"`
	AgeAtDetention      *int          `json:"age_at_detention"`
	Gender              string        `gorm:"size:16;not null;default:'unspecified'" json:"gender"`
	Status              string        `gorm:"size:16;not null;default:'unknown';index" json:"status"`
	AdditionalNotes     string        `gorm:"type:text" json:"additional_notes"`
	Organization        string        `gorm:"size:255" json:"organization"`
	SourceFile          string        `gorm:"size:255" json:"source_file,omitempty"`
	LastUpdateDate      *time.Time    `json:"last_update_date,omitempty"`
	LastUpdateReason    string        `gorm:"size:512" json:"last_update_reason,omitempty"`
	UpdateHistory       UpdateHistory `gorm:"type:jsonb;default:'[]'" json:"update_history,omitempty"`
	Documents           []Document    `gorm:"foreignKey:DetaineeID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"-"`
}

// mergeable reports whether a field keeps old and new values joined by
// UpdateSeparator instead of being overwritten.
func mergeable(field string) bool {
	return field == "contact_info" || field == "additional_notes"
}

// ApplyUpdates merges a correction onto the record and appends one history
// entry with the previous values of every changed field. Unknown field names
// are ignored. Returns the set of fields that actually changed.
func (d *Detainee) ApplyUpdates(updates map[string]string, reason string, now time.Time) []string {
	prev := map[string]string{}
	var changed []string

	apply := func(field string, target *string, value string) {
		value = strings.TrimSpace(value)
		if value == "" || value == *target {
			return
		}
		prev[field] = *target
		if mergeable(field) && *target != "" {
			*target = *target + UpdateSeparator + value
		} else {
			*target = value
		}
		changed = append(changed, field)
	}

	for field, value := range updates {
		switch field {
		case "contact_info":
			apply(field, &d.ContactInfo, value)
		case "additional_notes":
			apply(field, &d.AdditionalNotes, value)
		case "last_seen_location":
			apply(field, &d.LastSeenLocation, value)
		case "detention_facility":
			apply(field, &d.DetentionFacility, value)
		case "physical_description":
			apply(field, &d.PhysicalDescription, value)
		case "status":
			apply(field, &d.Status, value)
		case "gender":
			apply(field, &d.Gender, value)
		}
	}

	if len(changed) == 0 {
		return nil
	}
	d.UpdateHistory = append(d.UpdateHistory, UpdateHistoryEntry{
		PreviousValues: prev,
		Reason:         reason,
		UpdatedAt:      now,
	})
	d.LastUpdateDate = &now
	d.LastUpdateReason = reason
	return changed
}
