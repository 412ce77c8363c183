// model.go defines the persistent data model for the incident registry.
package datastore

import (
	"encoding/json"
	"strings"
	"time"
)

// Incident statuses. A fixed incident is terminal and immutable.
const (
	StatusReported   = "reported"
	StatusInProgress = "in_progress"
	StatusFixed      = "fixed"
)

// Incident sources.
const (
	SourceAI     = "ai"
	SourceManual = "manual"
	SourceVideo  = "video"
)

// Detection methods. A record is "manual" when its coordinates or severity
// were supplied by a person rather than extracted from the media.
const (
	MethodAutomatic = "automatic"
	MethodManual    = "manual"
)

// Incident is a single confirmed road defect record.
type Incident struct {
	ID        uint   `gorm:"primaryKey"`
	Reference string `gorm:"uniqueIndex;size:20"`

	Class           string `gorm:"size:40"`
	Severity        string `gorm:"index:idx_incidents_severity;size:10"`
	Status          string `gorm:"index:idx_incidents_status;size:20"`
	ConfidencePct   float64
	DiagnosticScore float64
	Description     string `gorm:"type:text"`
	Source          string `gorm:"size:10"`
	Method          string `gorm:"size:10"`

	// PriorityScore is the boost counter, distinct from the computed ranking
	// score. Starts at 1 and only ever increases.
	PriorityScore int `gorm:"default:1"`

	// Coordinates are optional: manual reports without usable EXIF data are
	// persisted without a location and never participate in dedup.
	Latitude  *float64
	Longitude *float64

	// Region tags are resolved once at creation and never rewritten.
	State    string `gorm:"index:idx_incidents_state;size:100"`
	District string `gorm:"index:idx_incidents_district;size:100"`
	Mandal   string `gorm:"index:idx_incidents_mandal;size:100"`

	ImageURL      string `gorm:"size:255"`
	ReporterEmail string `gorm:"size:255"`
	// Reporters holds a JSON array of every reporter email that has been
	// merged into this record via dedup.
	Reporters   string `gorm:"type:text"`
	ReportCount int    `gorm:"default:1"`

	CreatedAt time.Time `gorm:"index:idx_incidents_created"`
	UpdatedAt time.Time
	FixedAt   *time.Time
}

// HasCoordinates reports whether the record carries a usable location.
func (i *Incident) HasCoordinates() bool {
	return i.Latitude != nil && i.Longitude != nil
}

// IsFixed reports whether the record is in its terminal state.
func (i *Incident) IsFixed() bool {
	return i.Status == StatusFixed
}

// ReporterList decodes the merged reporter emails. A malformed or empty
// payload decodes as an empty list.
func (i *Incident) ReporterList() []string {
	if i.Reporters == "" {
		return nil
	}
	var out []string
	if err := json.Unmarshal([]byte(i.Reporters), &out); err != nil {
		return nil
	}
	return out
}

// AddReporter records another reporter for this defect, skipping duplicates.
// It returns true when the email was newly added.
func (i *Incident) AddReporter(email string) bool {
	email = strings.TrimSpace(email)
	if email == "" {
		return false
	}
	list := i.ReporterList()
	for _, e := range list {
		if strings.EqualFold(e, email) {
			return false
		}
	}
	list = append(list, email)
	encoded, err := json.Marshal(list)
	if err != nil {
		return false
	}
	i.Reporters = string(encoded)
	return true
}

// User is a registered account. Role and jurisdiction area drive the access
// filter; see the access package.
type User struct {
	ID               uint   `gorm:"primaryKey"`
	Email            string `gorm:"uniqueIndex;size:255"`
	PasswordHash     string `gorm:"size:100"`
	Name             string `gorm:"size:100"`
	Role             string `gorm:"size:30"`
	JurisdictionArea string `gorm:"size:100"`
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// InvitationCode gates registration for privileged roles. Codes are single
// use and expire.
type InvitationCode struct {
	ID               uint       `gorm:"primaryKey" json:"id"`
	Code             string     `gorm:"uniqueIndex;size:20" json:"code"`
	Role             string     `gorm:"size:30" json:"role"`
	JurisdictionArea string     `gorm:"size:100" json:"jurisdiction_area"`
	Email            string     `gorm:"size:255" json:"email,omitempty"`
	CreatedBy        string     `gorm:"size:255" json:"created_by"`
	ExpiresAt        time.Time  `json:"expires_at"`
	UsedAt           *time.Time `json:"used_at,omitempty"`
	UsedBy           string     `gorm:"size:255" json:"used_by,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
}

// Usable reports whether the code can still redeem a registration at t.
func (c *InvitationCode) Usable(t time.Time) bool {
	return c.UsedAt == nil && t.Before(c.ExpiresAt)
}
