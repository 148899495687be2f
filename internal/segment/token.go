package segment

import (
	"unicode"
	"unicode/utf8"
)

type span struct {
	start int
	end   int
}

// tokenSpans approximates tokens: every run of ASCII non-space characters is one
// token and every non-ASCII rune (CJK and the like) is a token of its own.
func tokenSpans(text string) []span {
	var spans []span
	wordStart := -1
	for i, r := range text {
		switch {
		case unicode.IsSpace(r):
			if wordStart >= 0 {
				spans = append(spans, span{wordStart, i})
				wordStart = -1
			}
		case r > unicode.MaxASCII:
			if wordStart >= 0 {
				spans = append(spans, span{wordStart, i})
				wordStart = -1
			}
			spans = append(spans, span{i, i + utf8.RuneLen(r)})
		default:
			if wordStart < 0 {
				wordStart = i
			}
		}
	}
	if wordStart >= 0 {
		spans = append(spans, span{wordStart, len(text)})
	}
	return spans
}

func EstimateTokens(text string) int {
	n := len(tokenSpans(text))
	if n == 0 && len(text) > 0 {
		return 1
	}
	return n
}

// TokenSplitter windows over estimated tokens; ChunkSize and overlap count tokens.
type TokenSplitter struct {
	window
}

func NewTokenSplitter(opts ...Option) *TokenSplitter {
	return &TokenSplitter{window: newWindow(opts...)}
}

func (s *TokenSplitter) Split(text string) []Section {
	spans := tokenSpans(text)
	if len(spans) == 0 {
		return nil
	}
	step := s.size - s.overlap
	out := make([]Section, 0, len(spans)/step+1)
	for start := 0; start < len(spans); start += step {
		end := start + s.size
		if end > len(spans) {
			end = len(spans)
		}
		out = append(out, Section{Content: text[spans[start].start:spans[end-1].end]})
		if end == len(spans) {
			break
		}
	}
	return out
}
