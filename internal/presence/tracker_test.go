package presence

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingObserver struct {
	mu     sync.Mutex
	events []string
}

func (r *recordingObserver) UserOnline(username string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, "online:"+username)
}

func (r *recordingObserver) UserOffline(username string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, "offline:"+username)
}

func TestTrackerFirstAndLastConnection(t *testing.T) {
	obs := &recordingObserver{}
	tracker := NewTracker(obs)

	assert.True(t, tracker.UserConnected("amy", "c1"))
	assert.False(t, tracker.UserConnected("amy", "c2"))
	assert.False(t, tracker.UserConnected("amy", "c2"))
	assert.Equal(t, []string{"c1", "c2"}, tracker.GetConnectionsForUser("amy"))

	assert.False(t, tracker.UserDisconnected("amy", "c1"))
	assert.True(t, tracker.isOnline("amy"))
	assert.True(t, tracker.UserDisconnected("amy", "c2"))
	assert.False(t, tracker.isOnline("amy"))
	assert.Empty(t, tracker.GetConnectionsForUser("amy"))

	assert.Equal(t, []string{"online:amy", "offline:amy"}, obs.events)
}

func TestTrackerDisconnectUnknownUser(t *testing.T) {
	tracker := NewTracker()
	assert.False(t, tracker.UserDisconnected("ghost", "c1"))
	assert.Empty(t, tracker.GetOnlineUsers())
}

func TestTrackerSnapshotIsCopy(t *testing.T) {
	tracker := NewTracker()
	tracker.UserConnected("bob", "c1")

	snapshot := tracker.GetConnectionsForUser("bob")
	snapshot[0] = "mutated"

	assert.Equal(t, []string{"c1"}, tracker.GetConnectionsForUser("bob"))
}

func TestTrackerOnlineUsersSorted(t *testing.T) {
	tracker := NewTracker()
	tracker.UserConnected("carl", "c3")
	tracker.UserConnected("amy", "c1")
	tracker.UserConnected("bob", "c2")

	assert.Equal(t, []string{"amy", "bob", "carl"}, tracker.GetOnlineUsers())
}

func TestTrackerConcurrentConnectDisconnect(t *testing.T) {
	obs := &recordingObserver{}
	tracker := NewTracker(obs)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("c%d", i)
			tracker.UserConnected("amy", id)
			_ = tracker.GetConnectionsForUser("amy")
			tracker.UserDisconnected("amy", id)
		}(i)
	}
	wg.Wait()

	require.False(t, tracker.isOnline("amy"))
	online, offline := 0, 0
	for _, e := range obs.events {
		if e == "online:amy" {
			online++
		} else {
			offline++
		}
	}
	assert.Equal(t, online, offline)
	assert.GreaterOrEqual(t, online, 1)
}
