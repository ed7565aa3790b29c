package audit_test

import (
	"encoding/json"
	"testing"

	"facegate/internal/audit"
	"facegate/internal/core/models"
	"facegate/internal/db/repository"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type capturePublisher struct {
	events []models.EventLog
}

func (p *capturePublisher) PublishEvent(event models.EventLog) {
	p.events = append(p.events, event)
}

func newTestRepo(t *testing.T) repository.Repository {
	t.Helper()
	gdb, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, gdb.AutoMigrate(&models.EventLog{}))
	return repository.NewSQLiteRepository(gdb)
}

func TestRecordPersistsAndPublishes(t *testing.T) {
	repo := newTestRepo(t)
	pub := &capturePublisher{}
	rec := audit.NewRecorder(repo, pub)

	rec.Record(audit.StatusAuthOK, "Ana", audit.Score(42.5), "level 2")

	events, err := repo.RecentEvents(10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, audit.StatusAuthOK, events[0].Status)
	assert.Equal(t, "Ana", events[0].UserName)
	require.NotNil(t, events[0].Score)
	assert.Equal(t, 42.5, *events[0].Score)
	assert.False(t, events[0].Timestamp.IsZero())

	require.Len(t, pub.events, 1)
	assert.Equal(t, audit.StatusAuthOK, pub.events[0].Status)
}

func TestRecordDetailsPersistsStructuredContext(t *testing.T) {
	repo := newTestRepo(t)
	pub := &capturePublisher{}
	rec := audit.NewRecorder(repo, pub)

	rec.RecordDetails(audit.StatusAuthFailed, "", audit.Score(81.2), "distance above threshold after recovery",
		audit.Details{"reason": "no correspondence", "distance": 81.2, "threshold": 70.0})

	events, err := repo.RecentEvents(10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.NotEmpty(t, events[0].Details)

	var details map[string]any
	require.NoError(t, json.Unmarshal(events[0].Details, &details))
	assert.Equal(t, "no correspondence", details["reason"])
	assert.Equal(t, 81.2, details["distance"])
	assert.Equal(t, 70.0, details["threshold"])

	// Publishers see the same stored column.
	require.Len(t, pub.events, 1)
	assert.JSONEq(t, string(events[0].Details), string(pub.events[0].Details))
}

func TestRecordLeavesDetailsEmpty(t *testing.T) {
	repo := newTestRepo(t)
	rec := audit.NewRecorder(repo)

	rec.Record(audit.StatusLogout, "Ana", nil, "session cleared")

	events, err := repo.RecentEvents(10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Empty(t, events[0].Details)
}

func TestRecordWithoutRepoDoesNotPanic(t *testing.T) {
	pub := &capturePublisher{}
	rec := audit.NewRecorder(nil, pub)

	rec.Record(audit.StatusLogout, "", nil, "")
	assert.Len(t, pub.events, 1)
}
