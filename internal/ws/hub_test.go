package ws

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"messaging-service/internal/models"
)

func newTestClient(id, username string, buffer int) *Client {
	return NewClient(nil, ConnInfo{ConnID: id, Username: username, ConnectedAt: time.Now()}, buffer)
}

func readEvent(t *testing.T, c *Client) models.HubEvent {
	t.Helper()
	select {
	case payload := <-c.send:
		var event models.HubEvent
		require.NoError(t, json.Unmarshal(payload, &event))
		return event
	default:
		t.Fatalf("expected event for %s", c.ID())
		return models.HubEvent{}
	}
}

func assertNoEvent(t *testing.T, c *Client) {
	t.Helper()
	select {
	case payload := <-c.send:
		t.Fatalf("unexpected event for %s: %s", c.ID(), payload)
	default:
	}
}

func TestHubRoomMembership(t *testing.T) {
	hub := NewHub(KindMessage, nil)
	a := newTestClient("a", "amy", 4)
	b := newTestClient("b", "bob", 4)
	hub.Register(a)
	hub.Register(b)

	hub.AddToRoom("amy-bob", "a")
	hub.AddToRoom("amy-bob", "b")
	hub.AddToRoom("amy-bob", "missing")
	assert.Equal(t, []string{"a", "b"}, hub.roomMembers("amy-bob"))

	hub.RemoveFromRoom("amy-bob", "a")
	assert.Equal(t, []string{"b"}, hub.roomMembers("amy-bob"))

	hub.Unregister("b")
	assert.Empty(t, hub.roomMembers("amy-bob"))
	assert.Empty(t, hub.rooms)
}

func TestHubSendToRoom(t *testing.T) {
	hub := NewHub(KindMessage, nil)
	a := newTestClient("a", "amy", 4)
	b := newTestClient("b", "bob", 4)
	outsider := newTestClient("c", "carl", 4)
	for _, c := range []*Client{a, b, outsider} {
		hub.Register(c)
	}
	hub.AddToRoom("amy-bob", "a")
	hub.AddToRoom("amy-bob", "b")

	hub.SendToRoom("amy-bob", models.HubEvent{Type: models.EventNewMessage, Message: &models.MessageDto{ID: 1, Content: "hi"}})

	assert.Equal(t, "hi", readEvent(t, a).Message.Content)
	assert.Equal(t, models.EventNewMessage, readEvent(t, b).Type)
	assertNoEvent(t, outsider)
}

func TestHubSendToAllExcept(t *testing.T) {
	hub := NewHub(KindPresence, nil)
	a := newTestClient("a", "amy", 4)
	b := newTestClient("b", "bob", 4)
	hub.Register(a)
	hub.Register(b)

	hub.SendToAll(models.HubEvent{Type: models.EventUserOnline, Username: "amy"}, "a")

	assertNoEvent(t, a)
	assert.Equal(t, "amy", readEvent(t, b).Username)
}

func TestHubSendToConnections(t *testing.T) {
	hub := NewHub(KindPresence, nil)
	a := newTestClient("a", "amy", 4)
	b := newTestClient("b", "bob", 4)
	hub.Register(a)
	hub.Register(b)

	hub.SendToConnections([]string{"b", "unknown"}, models.HubEvent{Type: models.EventNewMessageReceived})

	assertNoEvent(t, a)
	assert.Equal(t, models.EventNewMessageReceived, readEvent(t, b).Type)
	assert.False(t, hub.SendToConnection("unknown", models.HubEvent{Type: models.EventError}))
	assert.True(t, hub.SendToConnection("a", models.HubEvent{Type: models.EventError}))
}

func TestHubDropsSlowClient(t *testing.T) {
	hub := NewHub(KindMessage, nil)
	slow := newTestClient("s", "sam", 1)
	hub.Register(slow)
	hub.AddToRoom("room", "s")

	hub.SendToRoom("room", models.HubEvent{Type: models.EventNewMessage})
	hub.SendToRoom("room", models.HubEvent{Type: models.EventNewMessage})

	assert.Empty(t, hub.roomMembers("room"))
	assert.False(t, hub.SendToConnection("s", models.HubEvent{Type: models.EventNewMessage}))

	// the buffered frame is still readable, then the channel is closed
	_, ok := <-slow.send
	assert.True(t, ok)
	_, ok = <-slow.send
	assert.False(t, ok)
}
