package agent

import (
	"fmt"

	"github.com/firebase/genkit/go/ai"
)

// ContentCarrier is implemented by fragment values that wrap their display
// text in a content field.
type ContentCarrier interface {
	Content() string
}

// Text extracts display text from a polymorphic fragment value.
//
// Plain strings pass through unchanged. Model response chunks and
// ContentCarrier values yield their content. Anything else falls back to its
// textual representation. An empty result means the fragment carries no
// information and must not be framed.
func Text(frag any) string {
	switch v := frag.(type) {
	case nil:
		return ""
	case string:
		return v
	case *ai.ModelResponseChunk:
		if v == nil {
			return ""
		}
		return v.Text()
	case ContentCarrier:
		return v.Content()
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprintf("%v", v)
	}
}
