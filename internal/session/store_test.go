package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreLifecycle(t *testing.T) {
	store := NewStore()

	sess := store.New()
	require.NotEmpty(t, sess.ID)
	assert.Equal(t, 1, store.Count())

	got := store.Get(sess.ID)
	assert.Same(t, sess, got)

	assert.Nil(t, store.Get("missing"))
	assert.Nil(t, store.Get(""))

	store.Destroy(sess.ID)
	assert.Nil(t, store.Get(sess.ID))
	assert.Equal(t, 0, store.Count())
}

func TestGetOrCreate(t *testing.T) {
	store := NewStore()

	sess := store.GetOrCreate("")
	require.NotNil(t, sess)

	same := store.GetOrCreate(sess.ID)
	assert.Same(t, sess, same)
	assert.Equal(t, 1, store.Count())
}

func TestSessionLivenessFresh(t *testing.T) {
	now := time.Now()
	sess := &Session{}

	assert.False(t, sess.LivenessFresh(now))

	sess.LivenessOK = true
	sess.LivenessValidUntil = now.Add(10 * time.Second)
	assert.True(t, sess.LivenessFresh(now))
	assert.True(t, sess.LivenessFresh(now.Add(10*time.Second)), "validity is inclusive at the boundary")
	assert.False(t, sess.LivenessFresh(now.Add(11*time.Second)))

	sess.ConsumeLiveness()
	assert.False(t, sess.LivenessFresh(now))
}

func TestSessionReset(t *testing.T) {
	sess := &Session{
		ID:            "keep",
		UserName:      "Ana",
		Level:         3,
		AdminOverride: true,
		LivenessOK:    true,
		Challenge:     &Challenge{Nonce: "n"},
	}

	sess.Reset()
	assert.Equal(t, "keep", sess.ID)
	assert.False(t, sess.Authenticated())
	assert.Equal(t, 0, sess.Level)
	assert.False(t, sess.AdminOverride)
	assert.False(t, sess.LivenessOK)
	assert.Nil(t, sess.Challenge)
}
