package segment

import "strings"

var defaultSeparators = []string{"\n\n", "\n", " ", ""}

var languageSeparators = map[string][]string{
	"go":       {"\nfunc ", "\ntype ", "\nvar ", "\nconst ", "\n\n", "\n", " ", ""},
	"python":   {"\nclass ", "\ndef ", "\n\tdef ", "\n    def ", "\n\n", "\n", " ", ""},
	"js":       {"\nfunction ", "\nclass ", "\nconst ", "\nlet ", "\nvar ", "\nif ", "\nfor ", "\nwhile ", "\nswitch ", "\n\n", "\n", " ", ""},
	"ts":       {"\nenum ", "\ninterface ", "\nnamespace ", "\ntype ", "\nfunction ", "\nclass ", "\nconst ", "\nlet ", "\nvar ", "\n\n", "\n", " ", ""},
	"java":     {"\nclass ", "\npublic ", "\nprotected ", "\nprivate ", "\nstatic ", "\nif ", "\nfor ", "\nwhile ", "\nswitch ", "\n\n", "\n", " ", ""},
	"rust":     {"\nfn ", "\nconst ", "\nlet ", "\nif ", "\nwhile ", "\nfor ", "\nloop ", "\nmatch ", "\n\n", "\n", " ", ""},
	"cpp":      {"\nclass ", "\nvoid ", "\nint ", "\nfloat ", "\ndouble ", "\nif ", "\nfor ", "\nwhile ", "\nswitch ", "\n\n", "\n", " ", ""},
	"markdown": {"\n# ", "\n## ", "\n### ", "\n#### ", "\n##### ", "\n###### ", "\n```", "\n\n", "\n", " ", ""},
	"html":     {"<body", "<div", "<p", "<br", "<li", "<h1", "<h2", "<h3", "<table", "<tr", "\n\n", "\n", " ", ""},
}

var languageAliases = map[string]string{
	"golang":     "go",
	"py":         "python",
	"javascript": "js",
	"jsx":        "js",
	"typescript": "ts",
	"tsx":        "ts",
	"c++":        "cpp",
	"c":          "cpp",
	"md":         "markdown",
	"htm":        "html",
}

// SeparatorsFor returns the split hierarchy of a language, or the plain text fallback.
func SeparatorsFor(language string) []string {
	key := strings.ToLower(strings.TrimSpace(language))
	if alias, ok := languageAliases[key]; ok {
		key = alias
	}
	if seps, ok := languageSeparators[key]; ok {
		return seps
	}
	return defaultSeparators
}

// CodeSplitter splits recursively: the first separator found in a piece is used,
// pieces still too large descend to the next separator.
type CodeSplitter struct {
	window
	separators []string
}

func NewCodeSplitter(language string, opts ...Option) *CodeSplitter {
	return &CodeSplitter{window: newWindow(opts...), separators: SeparatorsFor(language)}
}

func (s *CodeSplitter) Split(text string) []Section {
	var out []Section
	for _, chunk := range s.split(text, s.separators) {
		chunk = strings.Trim(chunk, "\n")
		if strings.TrimSpace(chunk) == "" {
			continue
		}
		out = append(out, Section{Content: chunk})
	}
	return out
}

func (s *CodeSplitter) split(text string, separators []string) []string {
	sep := ""
	var rest []string
	for i, cand := range separators {
		if cand == "" {
			break
		}
		if strings.Contains(text, cand) {
			sep = cand
			rest = separators[i+1:]
			break
		}
	}
	if sep == "" {
		return hardSplit(text, s.size)
	}
	var out, fitting []string
	for _, piece := range splitKeepSeparator(text, sep) {
		if runeLen(piece) <= s.size {
			fitting = append(fitting, piece)
			continue
		}
		if len(fitting) > 0 {
			out = append(out, s.merge(fitting)...)
			fitting = nil
		}
		out = append(out, s.split(piece, rest)...)
	}
	if len(fitting) > 0 {
		out = append(out, s.merge(fitting)...)
	}
	return out
}

// merge packs consecutive pieces into chunks of at most size runes, seeding each
// new chunk with trailing pieces of the previous one up to the overlap.
func (s *CodeSplitter) merge(pieces []string) []string {
	var out, cur []string
	curLen := 0
	for _, piece := range pieces {
		pl := runeLen(piece)
		if len(cur) > 0 && curLen+pl > s.size {
			out = append(out, strings.Join(cur, ""))
			for len(cur) > 0 && (curLen > s.overlap || curLen+pl > s.size) {
				curLen -= runeLen(cur[0])
				cur = cur[1:]
			}
		}
		cur = append(cur, piece)
		curLen += pl
	}
	if len(cur) > 0 {
		out = append(out, strings.Join(cur, ""))
	}
	return out
}

// splitKeepSeparator splits on sep and keeps sep at the head of every following piece.
func splitKeepSeparator(text, sep string) []string {
	parts := strings.Split(text, sep)
	out := make([]string, 0, len(parts))
	if parts[0] != "" {
		out = append(out, parts[0])
	}
	for _, p := range parts[1:] {
		out = append(out, sep+p)
	}
	return out
}
