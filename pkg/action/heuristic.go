package action

import (
	"strings"

	"github.com/google/uuid"
)

// InferCollect implements the narrow collect-inference heuristic: if the
// latest user utterance mentions "weather" and the assistant's prose reply
// asks for a city, emit a collect action for a required "city" field.
//
// This is intentionally narrow — it is not a general slot-filling inference
// engine, just the one documented carve-out for an otherwise free-form
// prose reply.
func InferCollect(userUtterance, reply string) (Collect, bool) {
	if !strings.Contains(strings.ToLower(userUtterance), "weather") {
		return Collect{}, false
	}

	lower := strings.ToLower(reply)
	if !strings.Contains(lower, "city") {
		return Collect{}, false
	}

	asksForCity := strings.Contains(reply, "?") ||
		strings.Contains(lower, "which city") ||
		strings.Contains(lower, "what city") ||
		strings.Contains(lower, "could you tell me")
	if !asksForCity {
		return Collect{}, false
	}

	return Collect{Schema: CollectSchema{Fields: []CollectField{
		{Key: "city", Type: FieldString, Required: true},
	}}}, true
}

// ChunkMode controls how [Chunk] splits a prose reply into speak actions.
type ChunkMode string

const (
	// ChunkModeChars splits purely on rune-count boundaries.
	ChunkModeChars ChunkMode = "chars"

	// ChunkModeSentence prefers to break on sentence boundaries ('.', '!',
	// '?' followed by whitespace) so a chunk never ends mid-sentence
	// unless a single sentence alone exceeds the limit.
	ChunkModeSentence ChunkMode = "sentence"
)

// DefaultChunkLimit is the default per-chunk character limit used when the
// caller does not configure one.
const DefaultChunkLimit = 700

// Chunk splits text into one or more [Speak] actions, each at most limit
// characters (runes) long. A limit ≤ 0 falls back to [DefaultChunkLimit].
// Every resulting chunk is assigned a fresh message id and BargeIn defaults
// to true, matching [parseSpeak]'s default.
func Chunk(text string, limit int, mode ChunkMode) []Speak {
	if limit <= 0 {
		limit = DefaultChunkLimit
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	var pieces []string
	switch mode {
	case ChunkModeSentence:
		pieces = chunkBySentence(text, limit)
	default:
		pieces = chunkByChars(text, limit)
	}

	out := make([]Speak, 0, len(pieces))
	for _, p := range pieces {
		if p == "" {
			continue
		}
		out = append(out, Speak{
			MessageID: uuid.NewString(),
			Text:      p,
			BargeIn:   true,
		})
	}
	return out
}

// chunkByChars greedily packs runes into fixed-size windows, breaking on
// whitespace near the boundary when one is available.
func chunkByChars(text string, limit int) []string {
	runes := []rune(text)
	var out []string
	for len(runes) > 0 {
		if len(runes) <= limit {
			out = append(out, strings.TrimSpace(string(runes)))
			break
		}
		cut := limit
		for i := limit; i > 0; i-- {
			if runes[i-1] == ' ' || runes[i-1] == '\n' {
				cut = i
				break
			}
		}
		out = append(out, strings.TrimSpace(string(runes[:cut])))
		runes = runes[cut:]
	}
	return out
}

// chunkBySentence accumulates sentences (split on '.', '!', '?') into
// windows no larger than limit, falling back to a hard character split for
// any single sentence that exceeds limit on its own.
func chunkBySentence(text string, limit int) []string {
	sentences := splitSentences(text)

	var out []string
	var cur strings.Builder
	flush := func() {
		if cur.Len() > 0 {
			out = append(out, strings.TrimSpace(cur.String()))
			cur.Reset()
		}
	}

	for _, s := range sentences {
		if len([]rune(s)) > limit {
			flush()
			out = append(out, chunkByChars(s, limit)...)
			continue
		}
		if cur.Len() > 0 && len([]rune(cur.String()))+len([]rune(s))+1 > limit {
			flush()
		}
		if cur.Len() > 0 {
			cur.WriteByte(' ')
		}
		cur.WriteString(s)
	}
	flush()
	return out
}

// splitSentences splits text after '.', '!', or '?' that is followed by
// whitespace or end of string, keeping the terminator with its sentence.
func splitSentences(text string) []string {
	var out []string
	start := 0
	runes := []rune(text)
	for i, r := range runes {
		if r == '.' || r == '!' || r == '?' {
			if i+1 == len(runes) || runes[i+1] == ' ' || runes[i+1] == '\n' {
				out = append(out, strings.TrimSpace(string(runes[start:i+1])))
				start = i + 1
			}
		}
	}
	if start < len(runes) {
		out = append(out, strings.TrimSpace(string(runes[start:])))
	}
	return out
}
