package agent

import (
	"context"
	"iter"
)

// StaticSource is a FragmentSource for tests. It yields Sequence in order,
// then Err if non-nil. It records the session key and message it was invoked
// with and counts invocations so tests can assert single-invocation behavior.
type StaticSource struct {
	Sequence []any
	Err      error

	// Set by Fragments.
	Calls      int
	SessionKey string
	Message    string
}

// Fragments implements FragmentSource.
func (s *StaticSource) Fragments(ctx context.Context, sessionKey, message string) iter.Seq2[any, error] {
	s.Calls++
	s.SessionKey = sessionKey
	s.Message = message

	return func(yield func(any, error) bool) {
		for _, frag := range s.Sequence {
			if ctx.Err() != nil {
				return
			}
			if !yield(frag, nil) {
				return
			}
		}
		if s.Err != nil {
			yield(nil, s.Err)
		}
	}
}
