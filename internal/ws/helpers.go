package ws

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"messaging-service/internal/observability"
)

func newConnID() string {
	return uuid.NewString()
}

// tokenFromRequest accepts a bearer header or the access_token/token query
// parameter, since browsers cannot set headers on websocket upgrades.
func tokenFromRequest(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if parts := strings.SplitN(header, " ", 2); len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
		return parts[1]
	}
	if token := r.URL.Query().Get("access_token"); token != "" {
		return token
	}
	return r.URL.Query().Get("token")
}

func wsRoutingKey(kind string) string {
	if kind == KindPresence {
		return "ws_events.presence"
	}
	return "ws_events.messages"
}

func publishWSEvent(ctx context.Context, kind, event string, info ConnInfo, reason string) {
	observability.IncWSEvent(kind, event)
	_ = observability.PublishEvent(ctx, wsRoutingKey(kind), observability.NewEnvelope("ws_events", event, map[string]interface{}{
		"ws": map[string]interface{}{
			"kind":        kind,
			"event":       event,
			"conn_id":     info.ConnID,
			"duration_ms": time.Since(info.ConnectedAt).Milliseconds(),
			"reason":      reason,
		},
		"identity": map[string]interface{}{
			"username":  info.Username,
			"device_id": info.DeviceID,
			"ip":        info.IP,
		},
	}), observability.BuildHeaders(info.RequestID, info.TraceID))
}
