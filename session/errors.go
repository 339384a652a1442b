package session

import "errors"

var (
	// ErrInvalidToken marks a terminal auth failure: the backend has
	// rejected the token as invalid or expired. Backends wrap it into
	// their errors; the Manager reacts by tearing the session down.
	ErrInvalidToken = errors.New("invalid or expired token")

	// ErrCorrupt marks a persisted blob that could not be decoded into
	// a usable record. Recovery treats it as no session.
	ErrCorrupt = errors.New("corrupt session record")
)

// IsInvalidToken reports whether err is, or wraps, ErrInvalidToken.
func IsInvalidToken(err error) bool {
	return errors.Is(err, ErrInvalidToken)
}
