package segment

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xxxsen/dsforge/internal/config"
	appErr "github.com/xxxsen/dsforge/internal/pkg/errors"
)

func contents(sections []Section) []string {
	out := make([]string, 0, len(sections))
	for _, s := range sections {
		out = append(out, s.Content)
	}
	return out
}

func TestFixedSplitterOverlap(t *testing.T) {
	s := NewFixedSplitter(WithChunkSize(4), WithOverlap(1))
	require.Equal(t, []string{"abcd", "defg", "ghij"}, contents(s.Split("abcdefghij")))
	require.Empty(t, s.Split(""))
}

func TestFixedSplitterCountsRunes(t *testing.T) {
	s := NewFixedSplitter(WithChunkSize(2), WithOverlap(0))
	require.Equal(t, []string{"你好", "世界"}, contents(s.Split("你好世界")))
}

func TestTokenSplitter(t *testing.T) {
	s := NewTokenSplitter(WithChunkSize(2), WithOverlap(1))
	require.Equal(t, []string{"alpha beta", "beta gamma", "gamma delta"}, contents(s.Split("alpha beta gamma delta")))
	require.Equal(t, 3, EstimateTokens("你好 world"))
	require.Equal(t, 1, EstimateTokens("   "))
}

func TestCustomSplitter(t *testing.T) {
	s := NewCustomSplitter("||")
	require.Equal(t, []string{"a", "b", "c"}, contents(s.Split(" a||b|| ||c\n")))
}

func TestCodeSplitterUsesLanguageSeparators(t *testing.T) {
	src := "package x\n\nfunc A() {\n\treturn\n}\n\nfunc B() {\n\treturn\n}\n"
	s := NewCodeSplitter("golang", WithChunkSize(30), WithOverlap(0))
	require.Equal(t, []string{
		"package x",
		"func A() {\n\treturn\n}",
		"func B() {\n\treturn\n}",
	}, contents(s.Split(src)))
	require.Equal(t, defaultSeparators, SeparatorsFor("cobol"))
}

func TestCodeSplitterNeverExceedsSize(t *testing.T) {
	src := strings.Repeat("word ", 200)
	s := NewCodeSplitter("", WithChunkSize(50), WithOverlap(10))
	for _, c := range contents(s.Split(src)) {
		require.LessOrEqual(t, runeLen(c), 50)
	}
}

func TestMarkdownSplitterMergesAndSplits(t *testing.T) {
	p1 := strings.Repeat("x", 50)
	p2 := strings.Repeat("y", 50)
	doc := "# Intro\nShort intro.\n\n## Setup\nInstall the tool.\n\n# Usage\n" + p1 + "\n\n" + p2 + "\n"
	sections := NewMarkdownSplitter(40, 60).Split(doc)
	require.Len(t, sections, 3)
	require.Equal(t, "# Intro\nShort intro.\n\n## Setup\nInstall the tool.", sections[0].Content)
	require.Equal(t, "Intro | Setup", sections[0].Summary)
	require.Equal(t, "# Usage\n"+p1, sections[1].Content)
	require.Equal(t, p2, sections[2].Content)
	require.Equal(t, "Usage", sections[2].Summary)
}

func TestExtractToc(t *testing.T) {
	require.Equal(t, "- A\n  - B\n    - C\n- D", ExtractToc("# A\n\n## B\n\n### C\n\n# D\n"))
	require.Equal(t, "", ExtractToc("```\n# not a heading\n```\n"))
}

func TestSegmentNamesParts(t *testing.T) {
	cfg := config.SegmentConfig{Type: TypeCustom, Separator: "---"}
	drafts, err := Segment(context.Background(), "docs/guide.md", "one---two---three", cfg)
	require.NoError(t, err)
	require.Len(t, drafts, 3)
	require.Equal(t, "guide-part-1", drafts[0].Name)
	require.Equal(t, "guide-part-3", drafts[2].Name)
	require.Equal(t, 5, drafts[2].Size)
}

func TestSegmentEmptyDocument(t *testing.T) {
	_, err := Segment(context.Background(), "a.md", "   \n", config.SegmentConfig{})
	require.ErrorIs(t, err, appErr.ErrEmptyDocument)

	_, err = NewSplitter(config.SegmentConfig{Type: TypeCustom})
	require.ErrorIs(t, err, appErr.ErrInvalid)
}

func TestBuildDropsBlankSections(t *testing.T) {
	drafts, err := Build(context.Background(), "f.txt", []Section{{Content: " "}, {Content: "x", Summary: "s"}})
	require.NoError(t, err)
	require.Len(t, drafts, 1)
	require.Equal(t, "f-part-1", drafts[0].Name)
	require.Equal(t, "s", drafts[0].Summary)
}
