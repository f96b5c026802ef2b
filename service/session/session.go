package session

import "context"

// KeyPrefix is the storage key holding a session id. Scoped sessions append ":<scope>".
const KeyPrefix = "analytics_session_id"

type Session interface {
	// Resolve returns the persisted session id for scope, creating one on first use.
	// The empty scope names the process-wide session.
	Resolve(ctx context.Context, scope string) (string, error)

	// Reset forgets the session id for scope so the next Resolve starts a new one.
	Reset(ctx context.Context, scope string) error
}

// Key returns the storage key for scope.
func Key(scope string) string {
	if scope == "" {
		return KeyPrefix
	}
	return KeyPrefix + ":" + scope
}
