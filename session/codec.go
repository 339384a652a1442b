package session

import (
	"encoding/json"
	"fmt"
)

// recordFormatVersion is the leading byte of every encoded blob. Bump it
// when the wire shape of Record changes; decode rejects unknown values.
const recordFormatVersion = 1

// Encode serializes a record into an opaque blob for durable storage.
// The blob is obfuscation, not protection: it carries no signature and
// no encryption.
func Encode(r *Record) ([]byte, error) {
	payload, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("session: encode: %w", err)
	}
	blob := make([]byte, 0, len(payload)+1)
	blob = append(blob, recordFormatVersion)
	blob = append(blob, payload...)
	return blob, nil
}

// Decode parses a blob produced by Encode. It fails closed: a short
// blob, an unknown format version, malformed payload, or a payload
// missing the access token or user ID all return ErrCorrupt.
func Decode(blob []byte) (*Record, error) {
	if len(blob) < 2 {
		return nil, fmt.Errorf("%w: truncated blob", ErrCorrupt)
	}
	if blob[0] != recordFormatVersion {
		return nil, fmt.Errorf("%w: unknown format version %d", ErrCorrupt, blob[0])
	}

	var r Record
	if err := json.Unmarshal(blob[1:], &r); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if !r.usable() {
		return nil, fmt.Errorf("%w: missing access token or user id", ErrCorrupt)
	}
	return &r, nil
}
