package authhttp

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// APIError is a structured error response from the auth API.
type APIError struct {
	// Status is the HTTP status code of the response.
	Status int
	// Code is the machine-readable error code, when the API sent one.
	Code string
	// Msg is the human-readable message.
	Msg string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("auth api: %d %s: %s", e.Status, e.Code, e.Msg)
	}
	return fmt.Sprintf("auth api: %d: %s", e.Status, e.Msg)
}

// terminal reports whether the error means the credentials themselves
// are dead, as opposed to a request the service could not serve right
// now.
func (e *APIError) terminal() bool {
	if e.Status == http.StatusUnauthorized || e.Status == http.StatusForbidden {
		return true
	}
	switch e.Code {
	case "invalid_grant", "refresh_token_not_found", "session_not_found", "bad_jwt":
		return true
	}
	return false
}

// parseAPIError builds an APIError from an error response body. The
// API has used two shapes over time; both are accepted, and an
// unparseable body falls back to the raw text.
func parseAPIError(status int, body []byte) *APIError {
	var raw struct {
		Code string `json:"error_code"`
		Msg  string `json:"msg"`
		Err  string `json:"error"`
		Desc string `json:"error_description"`
	}
	_ = json.Unmarshal(body, &raw)
	e := &APIError{Status: status, Code: raw.Code, Msg: raw.Msg}
	if e.Code == "" {
		e.Code = raw.Err
	}
	if e.Msg == "" {
		e.Msg = raw.Desc
	}
	if e.Msg == "" {
		e.Msg = strings.TrimSpace(string(body))
	}
	if e.Msg == "" {
		e.Msg = http.StatusText(status)
	}
	return e
}
