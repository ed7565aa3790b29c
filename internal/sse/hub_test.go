package sse

import (
	"encoding/json"
	"testing"
	"time"

	"facegate/internal/core/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHubBroadcastsToRegisteredClients(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	client := make(Client, 4)
	hub.Register(client)
	defer hub.Unregister(client)

	hub.PublishEvent(models.EventLog{
		Timestamp: time.Now(),
		Status:    "auth_ok",
		UserName:  "Ana",
	})

	select {
	case msg := <-client:
		var data EventData
		require.NoError(t, json.Unmarshal(msg, &data))
		assert.Equal(t, "auth_ok", data.Status)
		assert.Equal(t, "Ana", data.UserName)
	case <-time.After(time.Second):
		t.Fatal("no SSE message received")
	}
}

func TestUnregisterClosesClient(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	client := make(Client, 1)
	hub.Register(client)
	hub.Unregister(client)

	select {
	case _, ok := <-client:
		assert.False(t, ok, "channel must be closed after unregister")
	case <-time.After(time.Second):
		t.Fatal("client channel was not closed")
	}
}
