package repository

import (
	"errors"
	"strings"
	"time"

	"facegate/internal/core/models"

	"gorm.io/gorm"
)

// Repository defines the database operations for the identity registry
// and the audit trail.
type Repository interface {
	// Identity methods. Name matching is case-insensitive everywhere.
	UpsertByName(name string, level int, path string) (bool, error)
	UpdateLevel(name string, level int) (bool, error)
	UpdateReferencePath(name string, path string) (bool, error)
	FindByName(name string) (*models.Identity, error)
	ListAll() ([]models.Identity, error)
	CountIdentities() (int64, error)

	// Sample methods
	AddSample(identityID uint, path string) error
	SamplesByIdentity(identityID uint) ([]models.FaceSample, error)

	// Event log methods
	AppendEvent(event *models.EventLog) error
	RecentEvents(limit int) ([]models.EventLog, error)
	PruneEventsBefore(cutoff time.Time) (int64, error)
}

// SQLiteRepository implements Repository on top of gorm/SQLite.
type SQLiteRepository struct {
	db *gorm.DB
}

// NewSQLiteRepository creates a new SQLite repository instance.
func NewSQLiteRepository(db *gorm.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// NameKey normalizes a name into its case-insensitive registry key.
func NameKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// FindByName looks up an identity by name, case-insensitively.
// Returns (nil, nil) when no identity matches.
func (r *SQLiteRepository) FindByName(name string) (*models.Identity, error) {
	var identity models.Identity
	result := r.db.Where("name_key = ?", NameKey(name)).First(&identity)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, result.Error
	}
	return &identity, nil
}

// UpsertByName creates the identity if absent, otherwise updates level and
// reference path only where they differ from the stored values. Returns
// whether anything was written, so a repeated call with identical arguments
// reports false.
func (r *SQLiteRepository) UpsertByName(name string, level int, path string) (bool, error) {
	existing, err := r.FindByName(name)
	if err != nil {
		return false, err
	}

	if existing == nil {
		identity := models.Identity{
			Name:          strings.TrimSpace(name),
			NameKey:       NameKey(name),
			Level:         level,
			ReferencePath: strings.TrimSpace(path),
		}
		if err := r.db.Create(&identity).Error; err != nil {
			return false, err
		}
		return true, nil
	}

	changed := false
	if level > 0 && existing.Level != level {
		existing.Level = level
		changed = true
	}
	newPath := strings.TrimSpace(path)
	if newPath != "" && existing.ReferencePath != newPath {
		existing.ReferencePath = newPath
		changed = true
	}
	if !changed {
		return false, nil
	}
	if err := r.db.Save(existing).Error; err != nil {
		return false, err
	}
	return true, nil
}

// UpdateLevel sets a new level for the named identity. Returns whether the
// stored value changed.
func (r *SQLiteRepository) UpdateLevel(name string, level int) (bool, error) {
	existing, err := r.FindByName(name)
	if err != nil {
		return false, err
	}
	if existing == nil || existing.Level == level {
		return false, nil
	}
	existing.Level = level
	if err := r.db.Save(existing).Error; err != nil {
		return false, err
	}
	return true, nil
}

// UpdateReferencePath sets a new reference crop path for the named identity.
func (r *SQLiteRepository) UpdateReferencePath(name string, path string) (bool, error) {
	existing, err := r.FindByName(name)
	if err != nil {
		return false, err
	}
	newPath := strings.TrimSpace(path)
	if existing == nil || newPath == "" || existing.ReferencePath == newPath {
		return false, nil
	}
	existing.ReferencePath = newPath
	if err := r.db.Save(existing).Error; err != nil {
		return false, err
	}
	return true, nil
}

// ListAll returns every identity in enrollment order. This order determines
// the label assignment on the next retrain.
func (r *SQLiteRepository) ListAll() ([]models.Identity, error) {
	var identities []models.Identity
	result := r.db.Order("id ASC").Find(&identities)
	if result.Error != nil {
		return nil, result.Error
	}
	return identities, nil
}

// CountIdentities returns the number of enrolled identities.
func (r *SQLiteRepository) CountIdentities() (int64, error) {
	var count int64
	if err := r.db.Model(&models.Identity{}).Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// AddSample appends a face crop path to the identity's sample history.
func (r *SQLiteRepository) AddSample(identityID uint, path string) error {
	sample := models.FaceSample{
		IdentityID: identityID,
		Path:       path,
	}
	return r.db.Create(&sample).Error
}

// SamplesByIdentity returns all stored samples for an identity, oldest first.
func (r *SQLiteRepository) SamplesByIdentity(identityID uint) ([]models.FaceSample, error) {
	var samples []models.FaceSample
	result := r.db.Where("identity_id = ?", identityID).Order("id ASC").Find(&samples)
	if result.Error != nil {
		return nil, result.Error
	}
	return samples, nil
}

// AppendEvent stores one audit trail entry.
func (r *SQLiteRepository) AppendEvent(event *models.EventLog) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	return r.db.Create(event).Error
}

// RecentEvents returns the newest audit entries, newest first.
func (r *SQLiteRepository) RecentEvents(limit int) ([]models.EventLog, error) {
	if limit <= 0 {
		limit = 100
	}
	var events []models.EventLog
	result := r.db.Order("timestamp DESC").Limit(limit).Find(&events)
	if result.Error != nil {
		return nil, result.Error
	}
	return events, nil
}

// PruneEventsBefore deletes audit entries older than the cutoff and returns
// how many rows were removed.
func (r *SQLiteRepository) PruneEventsBefore(cutoff time.Time) (int64, error) {
	result := r.db.Unscoped().Where("timestamp < ?", cutoff).Delete(&models.EventLog{})
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}
