package presence

import (
	"sort"
	"sync"
)

// Observer is told when a user comes online or goes offline. Callbacks run
// while the tracker holds its lock and must not block.
type Observer interface {
	UserOnline(username string)
	UserOffline(username string)
}

// Tracker maps each online user to the set of connection ids open for them.
type Tracker struct {
	mu          sync.RWMutex
	onlineUsers map[string]map[string]struct{}
	observers   []Observer
}

// NewTracker creates an empty tracker.
func NewTracker(observers ...Observer) *Tracker {
	return &Tracker{
		onlineUsers: make(map[string]map[string]struct{}),
		observers:   observers,
	}
}

// UserConnected registers connectionID for username and reports whether this
// was the user's first connection. Registering the same id twice is a no-op.
func (t *Tracker) UserConnected(username, connectionID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	conns, ok := t.onlineUsers[username]
	if !ok {
		conns = make(map[string]struct{})
		t.onlineUsers[username] = conns
	}
	conns[connectionID] = struct{}{}

	if ok {
		return false
	}
	for _, o := range t.observers {
		o.UserOnline(username)
	}
	return true
}

// UserDisconnected removes connectionID and reports whether the user has no
// connections left.
func (t *Tracker) UserDisconnected(username, connectionID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	conns, ok := t.onlineUsers[username]
	if !ok {
		return false
	}
	delete(conns, connectionID)
	if len(conns) > 0 {
		return false
	}

	delete(t.onlineUsers, username)
	for _, o := range t.observers {
		o.UserOffline(username)
	}
	return true
}

// GetConnectionsForUser returns a sorted copy of the user's connection ids.
func (t *Tracker) GetConnectionsForUser(username string) []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	conns := t.onlineUsers[username]
	ids := make([]string, 0, len(conns))
	for id := range conns {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// GetOnlineUsers returns the online usernames in sorted order.
func (t *Tracker) GetOnlineUsers() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	users := make([]string, 0, len(t.onlineUsers))
	for u := range t.onlineUsers {
		users = append(users, u)
	}
	sort.Strings(users)
	return users
}

// isOnline reports whether username has any live connection.
func (t *Tracker) isOnline(username string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.onlineUsers[username]
	return ok
}
