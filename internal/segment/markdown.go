package segment

import (
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

const (
	DefaultMinLength = 1500
	DefaultMaxLength = 2000
	summaryFallback  = 80
)

type heading struct {
	offset int
	level  int
	title  string
}

type mdSection struct {
	path []string
	body string
}

// parseHeadings lists top level headings with the byte offset of their line.
func parseHeadings(source []byte) []heading {
	doc := goldmark.New().Parser().Parse(text.NewReader(source))
	var out []heading
	for node := doc.FirstChild(); node != nil; node = node.NextSibling() {
		h, ok := node.(*ast.Heading)
		if !ok || h.Lines().Len() == 0 {
			continue
		}
		out = append(out, heading{
			offset: lineStart(source, h.Lines().At(0).Start),
			level:  h.Level,
			title:  strings.TrimSpace(string(h.Text(source))),
		})
	}
	return out
}

func lineStart(source []byte, pos int) int {
	for pos > 0 && source[pos-1] != '\n' {
		pos--
	}
	return pos
}

func splitByHeadings(doc string) []mdSection {
	source := []byte(doc)
	headings := parseHeadings(source)
	var sections []mdSection
	first := len(doc)
	if len(headings) > 0 {
		first = headings[0].offset
	}
	if strings.TrimSpace(doc[:first]) != "" {
		sections = append(sections, mdSection{body: doc[:first]})
	}
	var stack []heading
	for i, h := range headings {
		end := len(doc)
		if i+1 < len(headings) {
			end = headings[i+1].offset
		}
		for len(stack) > 0 && stack[len(stack)-1].level >= h.level {
			stack = stack[:len(stack)-1]
		}
		stack = append(stack, h)
		path := make([]string, 0, len(stack))
		for _, item := range stack {
			path = append(path, item.title)
		}
		sections = append(sections, mdSection{path: path, body: doc[h.offset:end]})
	}
	return sections
}

// MarkdownSplitter cuts at headings and keeps pieces between MinLength and
// MaxLength runes: short sections merge forward, long ones split on paragraphs.
type MarkdownSplitter struct {
	minLen int
	maxLen int
}

func NewMarkdownSplitter(minLen, maxLen int) *MarkdownSplitter {
	if minLen <= 0 {
		minLen = DefaultMinLength
	}
	if maxLen < minLen {
		maxLen = minLen
	}
	return &MarkdownSplitter{minLen: minLen, maxLen: maxLen}
}

func (s *MarkdownSplitter) Split(doc string) []Section {
	var out []Section
	var group []mdSection
	groupLen := 0
	flush := func() {
		if len(group) == 0 {
			return
		}
		bodies := make([]string, 0, len(group))
		for _, sec := range group {
			bodies = append(bodies, strings.TrimSpace(sec.body))
		}
		content := strings.Join(bodies, "\n\n")
		out = append(out, Section{Content: content, Summary: summarize(group, content)})
		group = nil
		groupLen = 0
	}
	for _, sec := range splitByHeadings(doc) {
		l := runeLen(strings.TrimSpace(sec.body))
		if l > s.maxLen {
			flush()
			for _, part := range splitParagraphs(strings.TrimSpace(sec.body), s.maxLen) {
				out = append(out, Section{Content: part, Summary: summarize([]mdSection{sec}, part)})
			}
			continue
		}
		if groupLen > 0 && groupLen+l+2 > s.maxLen {
			flush()
		}
		group = append(group, sec)
		groupLen += l + 2
		if groupLen >= s.minLen {
			flush()
		}
	}
	flush()
	return out
}

// splitParagraphs packs blank-line separated paragraphs into parts of at most maxLen runes.
func splitParagraphs(body string, maxLen int) []string {
	var out, cur []string
	curLen := 0
	for _, para := range strings.Split(body, "\n\n") {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		pl := runeLen(para)
		if pl > maxLen {
			if len(cur) > 0 {
				out = append(out, strings.Join(cur, "\n\n"))
				cur, curLen = nil, 0
			}
			out = append(out, hardSplit(para, maxLen)...)
			continue
		}
		if len(cur) > 0 && curLen+pl+2 > maxLen {
			out = append(out, strings.Join(cur, "\n\n"))
			cur, curLen = nil, 0
		}
		cur = append(cur, para)
		curLen += pl + 2
	}
	if len(cur) > 0 {
		out = append(out, strings.Join(cur, "\n\n"))
	}
	return out
}

// summarize names the heading path of the first section and the titles of the rest.
func summarize(group []mdSection, content string) string {
	var summary string
	if len(group) > 0 {
		summary = strings.Join(group[0].path, " > ")
	}
	var more []string
	for _, sec := range group[1:] {
		if len(sec.path) > 0 {
			more = append(more, sec.path[len(sec.path)-1])
		}
	}
	if len(more) > 0 {
		if summary != "" {
			summary += " | "
		}
		summary += strings.Join(more, ", ")
	}
	if summary != "" {
		return summary
	}
	line := strings.TrimSpace(content)
	if idx := strings.IndexByte(line, '\n'); idx >= 0 {
		line = line[:idx]
	}
	runes := []rune(line)
	if len(runes) > summaryFallback {
		return string(runes[:summaryFallback])
	}
	return line
}

// ExtractToc renders the document headings as a nested markdown list.
func ExtractToc(doc string) string {
	headings := parseHeadings([]byte(doc))
	if len(headings) == 0 {
		return ""
	}
	minLevel := headings[0].level
	for _, h := range headings {
		if h.level < minLevel {
			minLevel = h.level
		}
	}
	var sb strings.Builder
	for _, h := range headings {
		if h.title == "" {
			continue
		}
		sb.WriteString(strings.Repeat("  ", h.level-minLevel))
		sb.WriteString("- ")
		sb.WriteString(h.title)
		sb.WriteString("\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}
