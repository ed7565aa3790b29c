package repository

import (
	"testing"
	"time"

	"facegate/internal/core/models"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()

	gdb, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, gdb.AutoMigrate(&models.Identity{}, &models.FaceSample{}, &models.EventLog{}))

	return NewSQLiteRepository(gdb)
}

func TestUpsertByNameCreatesAndUpdates(t *testing.T) {
	repo := newTestRepo(t)

	changed, err := repo.UpsertByName("Ana", 2, "ana_L2_1.png")
	require.NoError(t, err)
	assert.True(t, changed)

	// Identical call writes nothing.
	changed, err = repo.UpsertByName("Ana", 2, "ana_L2_1.png")
	require.NoError(t, err)
	assert.False(t, changed)

	// Level change is persisted.
	changed, err = repo.UpsertByName("Ana", 3, "ana_L2_1.png")
	require.NoError(t, err)
	assert.True(t, changed)

	identity, err := repo.FindByName("Ana")
	require.NoError(t, err)
	require.NotNil(t, identity)
	assert.Equal(t, 3, identity.Level)
}

func TestFindByNameIsCaseInsensitive(t *testing.T) {
	repo := newTestRepo(t)

	_, err := repo.UpsertByName("Ana", 1, "")
	require.NoError(t, err)

	for _, name := range []string{"ana", "ANA", " Ana "} {
		identity, err := repo.FindByName(name)
		require.NoError(t, err)
		require.NotNil(t, identity, "lookup %q", name)
		assert.Equal(t, "Ana", identity.Name)
	}

	// A different casing must not create a second identity.
	_, err = repo.UpsertByName("ANA", 2, "")
	require.NoError(t, err)

	count, err := repo.CountIdentities()
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestFindByNameMissingReturnsNil(t *testing.T) {
	repo := newTestRepo(t)

	identity, err := repo.FindByName("nobody")
	require.NoError(t, err)
	assert.Nil(t, identity)
}

func TestListAllPreservesEnrollmentOrder(t *testing.T) {
	repo := newTestRepo(t)

	for _, name := range []string{"Carla", "Ana", "Bruno"} {
		_, err := repo.UpsertByName(name, 1, "")
		require.NoError(t, err)
	}

	identities, err := repo.ListAll()
	require.NoError(t, err)
	require.Len(t, identities, 3)
	assert.Equal(t, "Carla", identities[0].Name)
	assert.Equal(t, "Ana", identities[1].Name)
	assert.Equal(t, "Bruno", identities[2].Name)
}

func TestUpdateLevelReportsChange(t *testing.T) {
	repo := newTestRepo(t)

	_, err := repo.UpsertByName("Ana", 1, "")
	require.NoError(t, err)

	changed, err := repo.UpdateLevel("ana", 3)
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = repo.UpdateLevel("ana", 3)
	require.NoError(t, err)
	assert.False(t, changed)

	changed, err = repo.UpdateLevel("nobody", 2)
	require.NoError(t, err)
	assert.False(t, changed)
}

func TestSamplesAreAppendOnly(t *testing.T) {
	repo := newTestRepo(t)

	_, err := repo.UpsertByName("Ana", 1, "ana_1.png")
	require.NoError(t, err)
	identity, err := repo.FindByName("Ana")
	require.NoError(t, err)

	require.NoError(t, repo.AddSample(identity.ID, "ana_1.png"))
	require.NoError(t, repo.AddSample(identity.ID, "ana_2.png"))

	samples, err := repo.SamplesByIdentity(identity.ID)
	require.NoError(t, err)
	require.Len(t, samples, 2)
	assert.Equal(t, "ana_1.png", samples[0].Path)
	assert.Equal(t, "ana_2.png", samples[1].Path)
}

func TestEventLogRecentAndPrune(t *testing.T) {
	repo := newTestRepo(t)

	old := models.EventLog{Timestamp: time.Now().AddDate(0, 0, -40), Status: "auth_failed"}
	recent := models.EventLog{Timestamp: time.Now(), Status: "auth_ok", UserName: "Ana"}
	require.NoError(t, repo.AppendEvent(&old))
	require.NoError(t, repo.AppendEvent(&recent))

	events, err := repo.RecentEvents(10)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "auth_ok", events[0].Status)

	deleted, err := repo.PruneEventsBefore(time.Now().AddDate(0, 0, -30))
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	events, err = repo.RecentEvents(10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "auth_ok", events[0].Status)
}
