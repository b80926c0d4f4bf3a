package repositories

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"messaging-service/internal/models"
)

var errUnitOfWorkDone = errors.New("unit of work already finished")

// MemoryStore is an in-process Store used when no database is configured.
// A unit of work reads committed state and buffers its writes; Complete
// applies them to a copy of the state and swaps it in only if all succeed.
// Reads inside a unit of work do not observe that unit's pending writes.
type MemoryStore struct {
	mu    sync.RWMutex
	state *memoryState
}

type memoryState struct {
	users         map[int]models.User
	nextUserID    int
	messages      map[int]models.Message
	nextMessageID int
	groups        map[string]struct{}
	connections   map[string]models.Connection
	likes         map[models.Like]struct{}
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{state: &memoryState{
		users:       make(map[int]models.User),
		messages:    make(map[int]models.Message),
		groups:      make(map[string]struct{}),
		connections: make(map[string]models.Connection),
		likes:       make(map[models.Like]struct{}),
	}}
}

// AddUser seeds a user, returning the existing one if the username is taken.
func (s *MemoryStore) AddUser(username, knownAs string) models.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	username = strings.ToLower(username)
	for _, u := range s.state.users {
		if u.Username == username {
			return u
		}
	}
	s.state.nextUserID++
	now := time.Now().UTC()
	user := models.User{ID: s.state.nextUserID, Username: username, KnownAs: knownAs, LastActive: now, CreatedAt: now}
	s.state.users[user.ID] = user
	return user
}

// Begin opens a buffered unit of work.
func (s *MemoryStore) Begin(ctx context.Context) (UnitOfWork, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &memoryUnitOfWork{store: s}, nil
}

func (s *MemoryStore) read(fn func(st *memoryState)) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	fn(s.state)
}

func (st *memoryState) clone() *memoryState {
	c := &memoryState{
		users:         make(map[int]models.User, len(st.users)),
		nextUserID:    st.nextUserID,
		messages:      make(map[int]models.Message, len(st.messages)),
		nextMessageID: st.nextMessageID,
		groups:        make(map[string]struct{}, len(st.groups)),
		connections:   make(map[string]models.Connection, len(st.connections)),
		likes:         make(map[models.Like]struct{}, len(st.likes)),
	}
	for k, v := range st.users {
		c.users[k] = v
	}
	for k, v := range st.messages {
		c.messages[k] = v
	}
	for k := range st.groups {
		c.groups[k] = struct{}{}
	}
	for k, v := range st.connections {
		c.connections[k] = v
	}
	for k := range st.likes {
		c.likes[k] = struct{}{}
	}
	return c
}

func (st *memoryState) group(name string) *models.Group {
	if _, ok := st.groups[name]; !ok {
		return nil
	}
	group := &models.Group{Name: name, Connections: []models.Connection{}}
	for _, c := range st.connections {
		if c.GroupName == name {
			group.Connections = append(group.Connections, c)
		}
	}
	sort.Slice(group.Connections, func(i, j int) bool {
		return group.Connections[i].ConnectionID < group.Connections[j].ConnectionID
	})
	return group
}

type memoryOp func(st *memoryState) error

type memoryUnitOfWork struct {
	store   *MemoryStore
	mu      sync.Mutex
	pending []memoryOp
	done    bool
}

func (u *memoryUnitOfWork) Users() UserRepository       { return memoryUsers{u} }
func (u *memoryUnitOfWork) Messages() MessageRepository { return memoryMessages{u} }
func (u *memoryUnitOfWork) Groups() GroupRepository     { return memoryGroups{u} }
func (u *memoryUnitOfWork) Likes() LikeRepository       { return memoryLikes{u} }

func (u *memoryUnitOfWork) enqueue(op memoryOp) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.done {
		return errUnitOfWorkDone
	}
	u.pending = append(u.pending, op)
	return nil
}

func (u *memoryUnitOfWork) Complete() error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.done {
		return errUnitOfWorkDone
	}
	u.done = true
	if len(u.pending) == 0 {
		return nil
	}

	u.store.mu.Lock()
	defer u.store.mu.Unlock()
	next := u.store.state.clone()
	for _, op := range u.pending {
		if err := op(next); err != nil {
			return err
		}
	}
	u.store.state = next
	return nil
}

func (u *memoryUnitOfWork) Rollback() error {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.done = true
	u.pending = nil
	return nil
}

type memoryUsers struct{ u *memoryUnitOfWork }

func (r memoryUsers) GetUserByUsername(ctx context.Context, username string) (models.User, error) {
	username = strings.ToLower(username)
	var (
		user  models.User
		found bool
	)
	r.u.store.read(func(st *memoryState) {
		for _, candidate := range st.users {
			if candidate.Username == username {
				user, found = candidate, true
				return
			}
		}
	})
	if !found {
		return models.User{}, ErrUserNotFound
	}
	return user, nil
}

func (r memoryUsers) GetUserByID(ctx context.Context, id int) (models.User, error) {
	var (
		user  models.User
		found bool
	)
	r.u.store.read(func(st *memoryState) {
		user, found = st.users[id]
	})
	if !found {
		return models.User{}, ErrUserNotFound
	}
	return user, nil
}

func (r memoryUsers) TouchLastActive(ctx context.Context, id int, at time.Time) error {
	return r.u.enqueue(func(st *memoryState) error {
		user, ok := st.users[id]
		if !ok {
			return ErrUserNotFound
		}
		user.LastActive = at
		st.users[id] = user
		return nil
	})
}

type memoryMessages struct{ u *memoryUnitOfWork }

func (r memoryMessages) AddMessage(ctx context.Context, msg *models.Message) error {
	if msg.MessageSent.IsZero() {
		msg.MessageSent = time.Now().UTC()
	}
	return r.u.enqueue(func(st *memoryState) error {
		st.nextMessageID++
		msg.ID = st.nextMessageID
		st.messages[msg.ID] = *msg
		return nil
	})
}

func (r memoryMessages) GetMessage(ctx context.Context, id int) (models.Message, error) {
	var (
		msg   models.Message
		found bool
	)
	r.u.store.read(func(st *memoryState) {
		msg, found = st.messages[id]
	})
	if !found {
		return models.Message{}, ErrMessageNotFound
	}
	return msg, nil
}

func (r memoryMessages) GetMessageThread(ctx context.Context, currentUsername, otherUsername string) ([]models.Message, error) {
	now := time.Now().UTC()
	var (
		thread []models.Message
		unread []int
	)
	r.u.store.read(func(st *memoryState) {
		for _, m := range st.messages {
			incoming := m.RecipientUsername == currentUsername && m.SenderUsername == otherUsername && !m.RecipientDeleted
			outgoing := m.SenderUsername == currentUsername && m.RecipientUsername == otherUsername && !m.SenderDeleted
			if !incoming && !outgoing {
				continue
			}
			if incoming && m.DateRead == nil {
				read := now
				m.DateRead = &read
				unread = append(unread, m.ID)
			}
			thread = append(thread, m)
		}
	})
	sort.Slice(thread, func(i, j int) bool {
		if thread[i].MessageSent.Equal(thread[j].MessageSent) {
			return thread[i].ID < thread[j].ID
		}
		return thread[i].MessageSent.Before(thread[j].MessageSent)
	})

	if len(unread) > 0 {
		if err := r.u.enqueue(func(st *memoryState) error {
			for _, id := range unread {
				m, ok := st.messages[id]
				if !ok || m.DateRead != nil {
					continue
				}
				read := now
				m.DateRead = &read
				st.messages[id] = m
			}
			return nil
		}); err != nil {
			return nil, err
		}
	}
	return thread, nil
}

func (r memoryMessages) MarkDeleted(ctx context.Context, id int, bySender bool) error {
	return r.u.enqueue(func(st *memoryState) error {
		stored, ok := st.messages[id]
		if !ok {
			return ErrMessageNotFound
		}
		if bySender {
			stored.SenderDeleted = true
		} else {
			stored.RecipientDeleted = true
		}
		if stored.SenderDeleted && stored.RecipientDeleted {
			delete(st.messages, id)
			return nil
		}
		st.messages[id] = stored
		return nil
	})
}

type memoryGroups struct{ u *memoryUnitOfWork }

func (r memoryGroups) GetGroup(ctx context.Context, name string) (*models.Group, error) {
	var group *models.Group
	r.u.store.read(func(st *memoryState) {
		group = st.group(name)
	})
	if group == nil {
		return nil, ErrGroupNotFound
	}
	return group, nil
}

func (r memoryGroups) GetGroupForConnection(ctx context.Context, connectionID string) (*models.Group, error) {
	var group *models.Group
	r.u.store.read(func(st *memoryState) {
		if conn, ok := st.connections[connectionID]; ok {
			group = st.group(conn.GroupName)
		}
	})
	if group == nil {
		return nil, ErrGroupNotFound
	}
	return group, nil
}

func (r memoryGroups) AddGroup(ctx context.Context, group *models.Group) error {
	name := group.Name
	return r.u.enqueue(func(st *memoryState) error {
		st.groups[name] = struct{}{}
		return nil
	})
}

func (r memoryGroups) AddConnection(ctx context.Context, groupName string, conn models.Connection) error {
	conn.GroupName = groupName
	return r.u.enqueue(func(st *memoryState) error {
		if _, ok := st.groups[groupName]; !ok {
			return ErrGroupNotFound
		}
		st.connections[conn.ConnectionID] = conn
		return nil
	})
}

func (r memoryGroups) RemoveConnection(ctx context.Context, connectionID string) error {
	return r.u.enqueue(func(st *memoryState) error {
		delete(st.connections, connectionID)
		return nil
	})
}

type memoryLikes struct{ u *memoryUnitOfWork }

func (r memoryLikes) GetUserLike(ctx context.Context, sourceUserID, targetUserID int) (models.Like, error) {
	like := models.Like{SourceUserID: sourceUserID, TargetUserID: targetUserID}
	var found bool
	r.u.store.read(func(st *memoryState) {
		_, found = st.likes[like]
	})
	if !found {
		return models.Like{}, ErrLikeNotFound
	}
	return like, nil
}

func (r memoryLikes) AddLike(ctx context.Context, like models.Like) error {
	return r.u.enqueue(func(st *memoryState) error {
		st.likes[like] = struct{}{}
		return nil
	})
}

func (r memoryLikes) DeleteLike(ctx context.Context, like models.Like) error {
	return r.u.enqueue(func(st *memoryState) error {
		delete(st.likes, like)
		return nil
	})
}

func (r memoryLikes) GetLikedUserIDs(ctx context.Context, sourceUserID int) ([]int, error) {
	ids := []int{}
	r.u.store.read(func(st *memoryState) {
		for like := range st.likes {
			if like.SourceUserID == sourceUserID {
				ids = append(ids, like.TargetUserID)
			}
		}
	})
	sort.Ints(ids)
	return ids, nil
}

var (
	_ Store = (*MemoryStore)(nil)
	_ Store = (*SQLStore)(nil)
)
