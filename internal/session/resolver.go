// Package session resolves the opaque key that binds a conversation's turns
// to the agent's shared memory.
//
// A client that already holds a key sends it back on every turn; a client
// starting a fresh conversation sends nothing and receives a newly generated
// key in the stream's terminal frame. The resolver never rewrites a key a
// client supplied: continuity depends on the key being echoed verbatim.
package session

import "github.com/google/uuid"

// Resolve returns the session key to use for one conversational turn.
//
// A non-empty supplied key is returned unchanged. An empty key yields a fresh
// 128-bit random identifier; collision probability is negligible. Resolve has
// no side effects beyond consuming randomness.
func Resolve(supplied string) string {
	if supplied != "" {
		return supplied
	}
	return uuid.NewString()
}
