package segment

import "strings"

// CustomSplitter splits on a user supplied delimiter and drops blank pieces.
type CustomSplitter struct {
	separator string
}

func NewCustomSplitter(separator string) *CustomSplitter {
	return &CustomSplitter{separator: separator}
}

func (s *CustomSplitter) Split(text string) []Section {
	parts := strings.Split(text, s.separator)
	out := make([]Section, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		out = append(out, Section{Content: part})
	}
	return out
}
