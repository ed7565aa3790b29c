package models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Authorization levels. Level 3 may reach the enrollment surface directly.
const (
	LevelGeneral  = 1
	LevelBoard    = 2
	LevelMinister = 3
)

// LevelLabel returns the display label for an authorization level.
func LevelLabel(level int) string {
	switch level {
	case LevelGeneral:
		return "General Access"
	case LevelBoard:
		return "Board"
	case LevelMinister:
		return "Minister"
	default:
		return "Unknown"
	}
}

// Identity represents an enrolled person. The registry is the sole source
// of truth for the authorization level; the trained model and the label map
// are caches derived from it.
type Identity struct {
	gorm.Model
	Name          string `gorm:"not null"`            // display name as entered at enrollment
	NameKey       string `gorm:"uniqueIndex;not null"` // lowercased key for case-insensitive matching
	Level         int    `gorm:"not null;default:1"`
	ReferencePath string // most recent face crop, relative to the faces dir
	Samples       []FaceSample `gorm:"foreignKey:IdentityID;constraint:OnDelete:CASCADE;"`
}

// FaceSample is one stored face crop for an identity. Samples are append-only:
// every enrollment or update adds a new file under a fresh timestamped name,
// prior samples are never overwritten or deleted.
type FaceSample struct {
	gorm.Model
	IdentityID uint   `gorm:"index;not null"`
	Path       string `gorm:"not null"` // relative to the faces dir
}

// EventLog is one security-relevant decision in the append-only audit trail.
type EventLog struct {
	gorm.Model
	Timestamp time.Time `gorm:"index"`
	Status    string    `gorm:"index"` // status tag, e.g. auth_ok, access_denied
	UserName  string    `gorm:"index"`
	Score     *float64  // recognition distance where applicable
	Note      string
	Details   datatypes.JSON `gorm:"type:json;null"` // free-form context for the decision
}
