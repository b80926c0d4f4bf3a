package ws

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"

	"messaging-service/internal/models"
	"messaging-service/internal/observability"
)

// operationTimeout bounds every store call made on behalf of a connection.
const operationTimeout = 10 * time.Second

// TokenValidator resolves a bearer token to a canonical username.
type TokenValidator interface {
	ValidateToken(ctx context.Context, token string) (string, error)
}

// Settings holds per-connection transport limits.
type Settings struct {
	WriteWait      time.Duration
	PongWait       time.Duration
	MaxMessageSize int64
	SendBuffer     int
}

func (s Settings) withDefaults() Settings {
	if s.WriteWait <= 0 {
		s.WriteWait = 10 * time.Second
	}
	if s.PongWait <= 0 {
		s.PongWait = 60 * time.Second
	}
	if s.MaxMessageSize <= 0 {
		s.MaxMessageSize = 8192
	}
	if s.SendBuffer <= 0 {
		s.SendBuffer = 64
	}
	return s
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// endpoint holds what both websocket handlers share: authentication, upgrade,
// registration and the read/write goroutines of each connection.
type endpoint struct {
	hub       *Hub
	validator TokenValidator
	settings  Settings
}

// open authenticates and upgrades the request and registers the new client.
// It writes the HTTP error itself and returns ok=false on failure. The
// returned context carries the handshake span but outlives the request.
func (e *endpoint) open(c *gin.Context) (*Client, context.Context, bool) {
	kind := e.hub.kind
	ctx, span := otel.Tracer("messaging-service/ws").Start(c.Request.Context(), "ws.handshake."+kind)
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	username, err := e.validator.ValidateToken(ctx, tokenFromRequest(c.Request))
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return nil, nil, false
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return nil, nil, false
	}

	info := ConnInfo{
		ConnID:      newConnID(),
		Username:    username,
		DeviceID:    observability.DeviceIDFromRequest(c.Request),
		IP:          observability.IPFromRequest(c.Request),
		RequestID:   observability.RequestIDFromRequest(c.Request),
		TraceID:     span.SpanContext().TraceID().String(),
		ConnectedAt: time.Now(),
	}
	client := NewClient(conn, info, e.settings.SendBuffer)
	e.hub.Register(client)

	observability.IncWSActive(kind)
	publishWSEvent(ctx, kind, "ws_connect", info, "")
	return client, context.WithoutCancel(ctx), true
}

// run starts the write pump and reads until the peer goes away. handle is
// called for each inbound frame, in order. onClose runs before the client is
// unregistered.
func (e *endpoint) run(ctx context.Context, client *Client, handle func([]byte), onClose func(cause error)) {
	kind := e.hub.kind
	pingPeriod := e.settings.PongWait * 9 / 10

	written := make(chan struct{})
	go func() {
		defer close(written)
		if err := client.WritePump(e.settings.WriteWait, pingPeriod); err != nil {
			e.hub.logger.Debug("write pump stopped", "conn_id", client.ID(), "error", err)
			_ = client.conn.Close()
		}
	}()

	go func() {
		err := client.ReadLoop(e.settings.PongWait, e.settings.MaxMessageSize, handle)

		var cause error
		reason := err.Error()
		if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
			cause = err
			publishWSEvent(ctx, kind, "ws_error", client.Info(), reason)
		}

		onClose(cause)
		e.hub.Unregister(client.ID())
		<-written
		_ = client.conn.Close()

		observability.DecWSActive(kind)
		publishWSEvent(ctx, kind, "ws_disconnect", client.Info(), reason)
	}()
}

// abort drops a client that was registered but never joined: queued frames
// are flushed, then the socket is closed.
func (e *endpoint) abort(ctx context.Context, client *Client, reason string) {
	kind := e.hub.kind
	e.hub.Unregister(client.ID())
	_ = client.WritePump(e.settings.WriteWait, e.settings.PongWait*9/10)
	_ = client.conn.Close()

	observability.DecWSActive(kind)
	publishWSEvent(ctx, kind, "ws_disconnect", client.Info(), reason)
}

// reply sends event to client only.
func (e *endpoint) reply(client *Client, event models.HubEvent) {
	e.hub.SendToConnection(client.ID(), event)
}
