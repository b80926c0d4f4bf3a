package presence

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const mirrorQueueSize = 256

// RedisMirror copies online/offline transitions into a Redis set and
// publishes them on a channel for other services. Transitions are queued and
// written by Run so the tracker lock is never held across network I/O.
type RedisMirror struct {
	client  *redis.Client
	key     string
	channel string
	queue   chan transition
	logger  *slog.Logger
}

type transition struct {
	Username string    `json:"username"`
	Online   bool      `json:"online"`
	At       time.Time `json:"at"`
}

// NewRedisMirror builds a mirror writing to key and channel.
func NewRedisMirror(client *redis.Client, key, channel string, logger *slog.Logger) *RedisMirror {
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisMirror{
		client:  client,
		key:     key,
		channel: channel,
		queue:   make(chan transition, mirrorQueueSize),
		logger:  logger.With("component", "presence_mirror"),
	}
}

func (m *RedisMirror) UserOnline(username string) {
	m.enqueue(transition{Username: username, Online: true, At: time.Now().UTC()})
}

func (m *RedisMirror) UserOffline(username string) {
	m.enqueue(transition{Username: username, Online: false, At: time.Now().UTC()})
}

func (m *RedisMirror) enqueue(t transition) {
	select {
	case m.queue <- t:
	default:
		m.logger.Warn("presence mirror queue full, dropping transition", "username", t.Username, "online", t.Online)
	}
}

// Reset clears the mirrored set; called at startup since presence does not
// survive a restart.
func (m *RedisMirror) Reset(ctx context.Context) error {
	return m.client.Del(ctx, m.key).Err()
}

// Run drains the queue until ctx is cancelled.
func (m *RedisMirror) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case t := <-m.queue:
			m.write(ctx, t)
		}
	}
}

func (m *RedisMirror) write(ctx context.Context, t transition) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	payload, err := json.Marshal(t)
	if err != nil {
		m.logger.Error("marshal presence transition", "error", err)
		return
	}

	pipe := m.client.TxPipeline()
	if t.Online {
		pipe.SAdd(ctx, m.key, t.Username)
	} else {
		pipe.SRem(ctx, m.key, t.Username)
	}
	pipe.Publish(ctx, m.channel, payload)
	if _, err := pipe.Exec(ctx); err != nil {
		m.logger.Warn("presence mirror write failed", "username", t.Username, "error", err)
	}
}
