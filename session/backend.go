package session

import "context"

// Backend is the external auth service the Manager validates against.
// Implementations must distinguish terminal token failures from
// transient ones by wrapping ErrInvalidToken; every other error is
// treated as retryable.
type Backend interface {
	// Current returns the session the backend considers live. A nil
	// record with a nil error means the backend knows of no session.
	Current(ctx context.Context) (*Record, error)

	// Adopt hands a locally recovered session to the backend, which
	// verifies it and may rotate its tokens. The returned record is the
	// one to keep.
	Adopt(ctx context.Context, r *Record) (*Record, error)

	// Refresh exchanges the current refresh token for fresh tokens.
	Refresh(ctx context.Context) (*Record, error)
}
