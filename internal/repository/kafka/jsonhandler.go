package kafka

import (
	"context"
	"encoding/json"
)

// ErrBadPayload marks a value that will never decode; callers route these
// straight to the dead-letter topic instead of retrying.
type ErrBadPayload struct{ err error }

func (e ErrBadPayload) Error() string { return "bad payload: " + e.err.Error() }
func (e ErrBadPayload) Unwrap() error { return e.err }

// JSONHandler decodes the message value into T before invoking handle.
// A value that fails to decode yields ErrBadPayload.
func JSONHandler[T any](handle func(ctx context.Context, m Message, v T) error) Handler {
	return func(ctx context.Context, m Message) error {
		var v T
		if err := json.Unmarshal(m.Value, &v); err != nil {
			return ErrBadPayload{err: err}
		}
		return handle(ctx, m, v)
	}
}
