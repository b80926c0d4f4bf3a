package messaging

import "errors"

var (
	// ErrIdentity means the caller or the peer could not be resolved.
	ErrIdentity = errors.New("identity could not be resolved")
	// ErrSelfTarget means the caller addressed themselves.
	ErrSelfTarget = errors.New("cannot message yourself")
	// ErrEmptyContent rejects blank messages.
	ErrEmptyContent = errors.New("message content is empty")
	// ErrPersistence means a commit failed; nothing from the operation is visible.
	ErrPersistence = errors.New("failed to persist changes")
	// ErrIntegrity means a disconnecting connection had no owning group.
	ErrIntegrity = errors.New("connection has no owning group")
)

// ErrorCode maps hub errors to the code sent to websocket clients.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrIdentity):
		return "identity_error"
	case errors.Is(err, ErrSelfTarget):
		return "self_target"
	case errors.Is(err, ErrEmptyContent):
		return "invalid_message"
	case errors.Is(err, ErrPersistence):
		return "persistence_failure"
	default:
		return "internal_error"
	}
}
