// Package session persists, recovers, validates and renews the
// authentication session. The session itself is issued by an external
// auth backend; this package owns its durable copy, the in-memory
// observable state, and the background renewal task.
package session

import "time"

// User identifies the authenticated principal.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email,omitempty"`
}

// Record is one authentication session as issued by the backend.
//
// ExpiresAt is the backend's own token expiry in unix seconds. It is
// distinct from the durable copy's lifetime, which the Store manages.
type Record struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	ExpiresAt    int64  `json:"expires_at,omitempty"`
	User         User   `json:"user"`
}

// usable reports whether the record carries the minimum a session
// needs: an access token and a user identity. Anything less is treated
// as corrupt on decode.
func (r *Record) usable() bool {
	return r != nil && r.AccessToken != "" && r.User.ID != ""
}

// TokenExpiry returns ExpiresAt as a time, or the zero time when the
// backend did not supply one.
func (r *Record) TokenExpiry() time.Time {
	if r.ExpiresAt == 0 {
		return time.Time{}
	}
	return time.Unix(r.ExpiresAt, 0)
}
