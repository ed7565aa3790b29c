package cleanup

import (
	"testing"
	"time"

	"facegate/internal/core/models"
	"facegate/internal/db/repository"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestRepo(t *testing.T) repository.Repository {
	t.Helper()
	gdb, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, gdb.AutoMigrate(&models.EventLog{}))
	return repository.NewSQLiteRepository(gdb)
}

func TestNewServiceDisabled(t *testing.T) {
	assert.Nil(t, NewService(newTestRepo(t), 0, time.Hour))
	assert.Nil(t, NewService(newTestRepo(t), -1, time.Hour))

	// Nil receivers are safe no-ops.
	var svc *Service
	svc.Start()
	svc.Stop()
	svc.RunCycle()
}

func TestRunCyclePrunesOldEvents(t *testing.T) {
	repo := newTestRepo(t)
	svc := NewService(repo, 30, time.Hour)
	require.NotNil(t, svc)

	old := models.EventLog{Timestamp: time.Now().AddDate(0, 0, -31), Status: "auth_failed"}
	recent := models.EventLog{Timestamp: time.Now(), Status: "auth_ok"}
	require.NoError(t, repo.AppendEvent(&old))
	require.NoError(t, repo.AppendEvent(&recent))

	svc.RunCycle()

	events, err := repo.RecentEvents(10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "auth_ok", events[0].Status)
}
