package agentbridge

import (
	"strings"

	"github.com/MrWong99/voicebridge/pkg/provider/llm"
)

// accumulateBlocks drains chunks, splitting the streamed reply into blocks
// separated by a blank line and invoking emit for each completed block in
// arrival order. Any trailing remainder is flushed as a final block once the
// stream ends. A chunk carrying FinishReason "error" ends the stream early;
// its Text (the error message) is returned.
func accumulateBlocks(chunks <-chan llm.Chunk, emit func(block string)) string {
	var buf strings.Builder
	var streamErr string

	for chunk := range chunks {
		if chunk.FinishReason == "error" {
			streamErr = chunk.Text
			break
		}
		buf.WriteString(chunk.Text)
		for {
			text := buf.String()
			idx := strings.Index(text, "\n\n")
			if idx < 0 {
				break
			}
			emit(text[:idx])
			buf.Reset()
			buf.WriteString(text[idx+2:])
		}
	}

	if remainder := strings.TrimSpace(buf.String()); remainder != "" {
		emit(remainder)
	}
	return streamErr
}
