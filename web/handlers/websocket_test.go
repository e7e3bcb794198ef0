package handlers

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/casefile/internal/notify"
)

func newMockClient() *MockClient {
	return &MockClient{SendChan: make(chan []byte, 8)}
}

func receive(t *testing.T, ch chan []byte) []byte {
	t.Helper()
	select {
	case data := <-ch:
		return data
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for broadcast")
		return nil
	}
}

func TestWebSocketHubBroadcast(t *testing.T) {
	hub := NewWebSocketHub("localhost", 0)
	go hub.Run()
	defer hub.Stop()

	c1 := newMockClient()
	c2 := newMockClient()
	hub.Register(c1)
	hub.Register(c2)

	hub.Broadcast(map[string]string{"type": "refresh_complete"})

	for _, c := range []*MockClient{c1, c2} {
		var msg map[string]string
		require.NoError(t, json.Unmarshal(receive(t, c.SendChan), &msg))
		assert.Equal(t, "refresh_complete", msg["type"])
	}
}

func TestWebSocketHubUnregisterClosesSendChannel(t *testing.T) {
	hub := NewWebSocketHub("localhost", 0)
	go hub.Run()
	defer hub.Stop()

	c := newMockClient()
	hub.Register(c)
	hub.Unregister(c)

	select {
	case _, ok := <-c.SendChan:
		assert.False(t, ok, "send channel should be closed")
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for channel close")
	}
}

func TestWebSocketHubDropsSlowClients(t *testing.T) {
	hub := NewWebSocketHub("localhost", 0)
	go hub.Run()
	defer hub.Stop()

	slow := &MockClient{SendChan: make(chan []byte)} // unbuffered, never drained
	hub.Register(slow)

	hub.Broadcast("first")

	select {
	case _, ok := <-slow.SendChan:
		assert.False(t, ok, "slow client should have been disconnected")
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for slow client disconnect")
	}
}

func TestWebSocketHubAttachForwardsEvents(t *testing.T) {
	events := notify.NewHub()
	hub := NewWebSocketHub("localhost", 0)
	go hub.Run()
	defer hub.Stop()

	c := newMockClient()
	hub.Register(c)
	hub.Attach(events)

	// Subscribe happens synchronously in Attach, so the publish is not racy.
	events.Publish(notify.Event{Type: notify.EventRefreshComplete, ChangedFiles: 3})

	var evt notify.Event
	require.NoError(t, json.Unmarshal(receive(t, c.SendChan), &evt))
	assert.Equal(t, notify.EventRefreshComplete, evt.Type)
	assert.Equal(t, 3, evt.ChangedFiles)
}
