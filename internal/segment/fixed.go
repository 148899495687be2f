package segment

// FixedSplitter cuts fixed rune windows that overlap by a fixed amount.
type FixedSplitter struct {
	window
}

func NewFixedSplitter(opts ...Option) *FixedSplitter {
	return &FixedSplitter{window: newWindow(opts...)}
}

func (s *FixedSplitter) Split(text string) []Section {
	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}
	step := s.size - s.overlap
	out := make([]Section, 0, len(runes)/step+1)
	for start := 0; start < len(runes); start += step {
		end := start + s.size
		if end > len(runes) {
			end = len(runes)
		}
		out = append(out, Section{Content: string(runes[start:end])})
		if end == len(runes) {
			break
		}
	}
	return out
}
