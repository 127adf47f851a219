package ports

import (
	"context"

	"github.com/karatal/video-quiz-cli/internal/domain"
)

// PushConn is one live push connection bound to a task. Events is closed
// when the socket closes for any reason; CloseReason then reports why.
// Malformed frames never appear on Events and never close the socket.
type PushConn interface {
	// Events yields inbound events in receipt order.
	Events() <-chan domain.PushEvent

	// Ping sends a keep-alive frame. Failures are advisory: only the
	// Events channel closing marks the connection as lost.
	Ping(ctx context.Context) error

	// Close tears the connection down. Safe to call more than once.
	Close() error

	// CloseReason reports the error that ended the connection, or nil
	// after a local Close. Valid once Events is closed.
	CloseReason() error
}

// PushDialer opens the backend push channel for a task. An empty token
// dials anonymously.
type PushDialer interface {
	Dial(ctx context.Context, endpoint string, taskID domain.TaskID, token string) (PushConn, error)
}
