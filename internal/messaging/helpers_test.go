package messaging

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"messaging-service/internal/models"
	"messaging-service/internal/presence"
	"messaging-service/internal/repositories"
)

var (
	errCommitRefused = errors.New("commit refused")
	errReadRefused   = errors.New("read refused")
)

type sentEvent struct {
	target string
	event  models.HubEvent
}

// recordingClients stands in for both websocket hubs.
type recordingClients struct {
	mu    sync.Mutex
	rooms map[string]map[string]bool
	sent  []sentEvent
}

func newRecordingClients() *recordingClients {
	return &recordingClients{rooms: make(map[string]map[string]bool)}
}

func (r *recordingClients) AddToRoom(room, connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.rooms[room] == nil {
		r.rooms[room] = make(map[string]bool)
	}
	r.rooms[room][connID] = true
}

func (r *recordingClients) RemoveFromRoom(room, connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.rooms[room], connID)
}

func (r *recordingClients) SendToRoom(room string, event models.HubEvent) {
	r.record("room:"+room, event)
}

func (r *recordingClients) SendToConnection(connID string, event models.HubEvent) bool {
	r.record("conn:"+connID, event)
	return true
}

func (r *recordingClients) SendToConnections(connIDs []string, event models.HubEvent) {
	for _, id := range connIDs {
		r.record("conn:"+id, event)
	}
}

func (r *recordingClients) SendToAll(event models.HubEvent, exceptConnID string) {
	r.record("all", event)
}

func (r *recordingClients) record(target string, event models.HubEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, sentEvent{target: target, event: event})
}

func (r *recordingClients) inRoom(room, connID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rooms[room][connID]
}

func (r *recordingClients) events(target, eventType string) []models.HubEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.HubEvent
	for _, s := range r.sent {
		if s.target == target && s.event.Type == eventType {
			out = append(out, s.event)
		}
	}
	return out
}

func (r *recordingClients) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = nil
}

// failingStore refuses the failAt-th Complete (1-based) it sees and fails
// the failGroupReadAt-th GetGroup call.
type failingStore struct {
	*repositories.MemoryStore
	mu              sync.Mutex
	completes       int
	failAt          int
	groupReads      int
	failGroupReadAt int
}

func (s *failingStore) Begin(ctx context.Context) (repositories.UnitOfWork, error) {
	uow, err := s.MemoryStore.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return &failingUnitOfWork{UnitOfWork: uow, store: s}, nil
}

func (s *failingStore) failNext() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failAt = s.completes + 1
}

type failingUnitOfWork struct {
	repositories.UnitOfWork
	store *failingStore
}

func (u *failingUnitOfWork) Groups() repositories.GroupRepository {
	return failingGroups{GroupRepository: u.UnitOfWork.Groups(), store: u.store}
}

type failingGroups struct {
	repositories.GroupRepository
	store *failingStore
}

func (g failingGroups) GetGroup(ctx context.Context, name string) (*models.Group, error) {
	g.store.mu.Lock()
	g.store.groupReads++
	fail := g.store.groupReads == g.store.failGroupReadAt
	g.store.mu.Unlock()
	if fail {
		return nil, errReadRefused
	}
	return g.GroupRepository.GetGroup(ctx, name)
}

func (u *failingUnitOfWork) Complete() error {
	u.store.mu.Lock()
	u.store.completes++
	fail := u.store.completes == u.store.failAt
	u.store.mu.Unlock()
	if fail {
		_ = u.UnitOfWork.Rollback()
		return errCommitRefused
	}
	return u.UnitOfWork.Complete()
}

type fixture struct {
	store        *failingStore
	clients      *recordingClients
	presenceOut  *recordingClients
	tracker      *presence.Tracker
	presence     *PresenceHub
	conversation *ConversationHub
}

func newFixture(t *testing.T, users ...string) *fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	store := &failingStore{MemoryStore: repositories.NewMemoryStore()}
	for _, u := range users {
		store.AddUser(u, "")
	}

	f := &fixture{
		store:       store,
		clients:     newRecordingClients(),
		presenceOut: newRecordingClients(),
		tracker:     presence.NewTracker(),
	}
	f.presence = NewPresenceHub(f.tracker, f.presenceOut, logger)
	f.conversation = NewConversationHub(store, f.clients, f.presence, nil, logger)
	return f
}

func (f *fixture) group(t *testing.T, name string) *models.Group {
	t.Helper()
	uow, err := f.store.MemoryStore.Begin(context.Background())
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	defer uow.Rollback()
	group, err := uow.Groups().GetGroup(context.Background(), name)
	if err != nil {
		t.Fatalf("get group %s: %v", name, err)
	}
	return group
}

func (f *fixture) message(t *testing.T, id int) models.Message {
	t.Helper()
	uow, err := f.store.MemoryStore.Begin(context.Background())
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	defer uow.Rollback()
	msg, err := uow.Messages().GetMessage(context.Background(), id)
	if err != nil {
		t.Fatalf("get message %d: %v", id, err)
	}
	return msg
}
