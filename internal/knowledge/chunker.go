package knowledge

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Chunker splits document text into overlapping chunks along sentence
// boundaries. Chunking is deterministic: the same text and settings
// always produce the same chunks.
//
// Chunks tile the source text without gaps. Consecutive chunks may
// share an overlap band: a chunk starts at the beginning of a sentence
// already covered by its predecessor, budgeted by overlapTokens.
type Chunker struct {
	maxTokens     int
	overlapTokens int
}

// NewChunker creates a Chunker. maxTokens must be positive and
// overlapTokens must be smaller than maxTokens; invalid values fall
// back to defaults (512/50).
func NewChunker(maxTokens, overlapTokens int) *Chunker {
	if maxTokens <= 0 {
		maxTokens = 512
	}
	if overlapTokens < 0 || overlapTokens >= maxTokens {
		overlapTokens = 50
		if overlapTokens >= maxTokens {
			overlapTokens = 0
		}
	}
	return &Chunker{maxTokens: maxTokens, overlapTokens: overlapTokens}
}

// span is a half-open byte range into the source text.
type span struct {
	start, end int
}

func (s span) text(src string) string { return src[s.start:s.end] }

// Chunk splits text into chunks. Whitespace-only text yields no chunks.
func (c *Chunker) Chunk(text string) []Chunk {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	spans := c.splitOversized(text, sentenceSpans(text))

	var chunks []Chunk
	i := 0
	for i < len(spans) {
		// Greedily pack sentences until the token budget is reached.
		// The first sentence always goes in, even if oversized spans
		// slipped through (splitOversized bounds them).
		j := i
		tokens := 0
		for j < len(spans) {
			t := EstimateTokens(spans[j].text(text))
			if j > i && tokens+t > c.maxTokens {
				break
			}
			tokens += t
			j++
		}

		start := spans[i].start
		end := spans[j-1].end
		chunks = append(chunks, Chunk{
			Index:       len(chunks),
			Content:     text[start:end],
			StartOffset: start,
			EndOffset:   end,
			TokenCount:  EstimateTokens(text[start:end]),
		})

		if j >= len(spans) {
			break
		}

		// Back up over the tail of the current chunk to form the
		// overlap band for the next one.
		k := j
		overlap := 0
		for k > i+1 {
			t := EstimateTokens(spans[k-1].text(text))
			if overlap+t > c.overlapTokens {
				break
			}
			overlap += t
			k--
		}
		i = k
	}

	return chunks
}

// sentenceSpans returns byte ranges that tile text exactly. A sentence
// ends after '.', '!' or '?' followed by whitespace, or at a newline.
// Trailing whitespace belongs to the preceding sentence so no byte is
// lost between spans.
func sentenceSpans(text string) []span {
	var spans []span
	start := 0
	i := 0
	for i < len(text) {
		r, size := utf8.DecodeRuneInString(text[i:])
		i += size
		if !isSentenceEnd(r, text, i) {
			continue
		}
		// Absorb trailing whitespace into this span.
		for i < len(text) {
			nr, nsize := utf8.DecodeRuneInString(text[i:])
			if !unicode.IsSpace(nr) {
				break
			}
			i += nsize
		}
		spans = append(spans, span{start: start, end: i})
		start = i
	}
	if start < len(text) {
		spans = append(spans, span{start: start, end: len(text)})
	}
	return spans
}

// isSentenceEnd reports whether rune r at position next (byte offset
// just after r) terminates a sentence.
func isSentenceEnd(r rune, text string, next int) bool {
	switch r {
	case '\n':
		return true
	case '。', '！', '？':
		// CJK terminators are not followed by a space.
		return true
	case '.', '!', '?':
		if next >= len(text) {
			return true
		}
		nr, _ := utf8.DecodeRuneInString(text[next:])
		return unicode.IsSpace(nr)
	}
	return false
}

// splitOversized hard-cuts any span whose token estimate exceeds
// maxTokens. Cuts land on rune boundaries.
func (c *Chunker) splitOversized(text string, spans []span) []span {
	maxRunes := c.maxTokens * 2 // inverse of EstimateTokens

	out := make([]span, 0, len(spans))
	for _, s := range spans {
		if EstimateTokens(s.text(text)) <= c.maxTokens {
			out = append(out, s)
			continue
		}
		start := s.start
		runes := 0
		for i := s.start; i < s.end; {
			_, size := utf8.DecodeRuneInString(text[i:])
			i += size
			runes++
			if runes >= maxRunes {
				out = append(out, span{start: start, end: i})
				start = i
				runes = 0
			}
		}
		if start < s.end {
			out = append(out, span{start: start, end: s.end})
		}
	}
	return out
}
