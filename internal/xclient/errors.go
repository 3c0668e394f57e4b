package xclient

import (
	"encoding/json"
	"errors"
	"fmt"
)

// UpstreamError is any non-success response or transport failure from
// the X API. Payload carries the remote error body when one was
// readable, so handlers can relay it. The client never retries; a
// failed call surfaces immediately.
type UpstreamError struct {
	Endpoint string
	Status   int // 0 on transport failure
	Payload  json.RawMessage
	Err      error
}

func (e *UpstreamError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("x api %s: status %d", e.Endpoint, e.Status)
	}
	return fmt.Sprintf("x api %s: %v", e.Endpoint, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// RawPayload keeps a remote error body relayable as JSON: valid JSON
// passes through, anything else is quoted as a JSON string.
func RawPayload(body []byte) json.RawMessage {
	if len(body) == 0 {
		return nil
	}
	if json.Valid(body) {
		return json.RawMessage(body)
	}
	b, _ := json.Marshal(string(body))
	return b
}

// AsUpstream extracts an *UpstreamError from an error chain.
func AsUpstream(err error) (*UpstreamError, bool) {
	var ue *UpstreamError
	if errors.As(err, &ue) {
		return ue, true
	}
	return nil, false
}
