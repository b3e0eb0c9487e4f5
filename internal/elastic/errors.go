package elastic

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrNoNodeAvailable is matched by every TransportError.
var ErrNoNodeAvailable = errors.New("no search node available")

// TransportError means the cluster could not be reached at all. Callers are
// expected to back off and retry; it is never wrapped by the KPI loader.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	if e.Err == nil {
		return ErrNoNodeAvailable.Error()
	}
	return fmt.Sprintf("%s: %v", ErrNoNodeAvailable, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

func (e *TransportError) Is(target error) bool { return target == ErrNoNodeAvailable }

// IsTransportError reports whether err (or anything it wraps) is a TransportError.
func IsTransportError(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// ResponseError is a non-2xx answer from the cluster: bad query, mapping
// conflict, shard failure and the like.
type ResponseError struct {
	StatusCode int
	Type       string
	Reason     string
	Body       string
}

func (e *ResponseError) Error() string {
	if e.Type != "" {
		return fmt.Sprintf("search failed with status %d: %s: %s", e.StatusCode, e.Type, e.Reason)
	}
	return fmt.Sprintf("search failed with status %d: %s", e.StatusCode, e.Body)
}

func newResponseError(status int, body []byte) *ResponseError {
	re := &ResponseError{StatusCode: status, Body: string(body)}

	var parsed struct {
		Error struct {
			Type   string `json:"type"`
			Reason string `json:"reason"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &parsed); err == nil {
		re.Type = parsed.Error.Type
		re.Reason = parsed.Error.Reason
	}
	return re
}
