package question

import (
	"fmt"
	"strings"

	"github.com/xxxsen/dsforge/internal/model"
)

const questionPromptTemplate = `You are an expert at writing study questions from reference material.
Read the material below and write %d distinct questions about it.
%s
Requirements:
- Each question must be answerable from the material alone and make sense without it.
- Do not mention "the text", "the passage" or "the material" in the questions.
- Prefer questions about facts, definitions, causes and procedures over trivia.
- Write the questions in %s.
Return only a JSON array of strings, for example ["first question", "second question"].

Material:
%s`

const labelPromptTemplate = `You classify questions into a fixed label set.
Labels:
%s
Questions:
%s
For every question pick the single best label from the list, or "Other" when none fits.
Return only a JSON array of objects like [{"question": "...", "label": "..."}] in the same order.`

func strategyGuidance(typ model.QuestionType) string {
	switch typ {
	case model.QuestionTypeContextual:
		return "The material holds consecutive sections of one document. Ask questions whose answers connect information across the sections, centred on the current section."
	case model.QuestionTypeGlobal:
		return "The material is a whole document with its table of contents. Ask questions about its overall themes, structure and the relations between its parts."
	default:
		return "Ask questions about the key points of the material."
	}
}

func gaGuidance(pair *model.GaPair) string {
	if pair == nil {
		return ""
	}
	return fmt.Sprintf("Shape the questions for this genre: %s (%s).\nThe reader is: %s (%s).\n",
		pair.GenreTitle, pair.GenreDesc, pair.AudienceTitle, pair.AudienceDesc)
}

func languageName(language string) string {
	switch strings.ToLower(strings.TrimSpace(language)) {
	case "", "en", "english":
		return "English"
	case "zh", "zh-cn", "cn", "chinese", "中文":
		return "Chinese"
	default:
		return language
	}
}

func buildQuestionPrompt(typ model.QuestionType, text string, quota int, pair *model.GaPair, language string) string {
	guidance := strategyGuidance(typ)
	if ga := gaGuidance(pair); ga != "" {
		guidance += "\n" + ga
	}
	return fmt.Sprintf(questionPromptTemplate, quota, guidance, languageName(language), text)
}

func buildLabelPrompt(tags []model.Tag, questions []string) string {
	var labels strings.Builder
	for _, label := range tagPaths(tags) {
		labels.WriteString("- ")
		labels.WriteString(label)
		labels.WriteString("\n")
	}
	var qs strings.Builder
	for i, q := range questions {
		fmt.Fprintf(&qs, "%d. %s\n", i+1, q)
	}
	return fmt.Sprintf(labelPromptTemplate, labels.String(), qs.String())
}

// tagPaths renders each tag as "parent > child" so the model sees the taxonomy.
func tagPaths(tags []model.Tag) []string {
	byID := make(map[string]model.Tag, len(tags))
	for _, t := range tags {
		byID[t.ID] = t
	}
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		path := []string{t.Label}
		seen := map[string]bool{t.ID: true}
		for parent := t.ParentID; parent != ""; {
			p, ok := byID[parent]
			if !ok || seen[p.ID] {
				break
			}
			seen[p.ID] = true
			path = append([]string{p.Label}, path...)
			parent = p.ParentID
		}
		out = append(out, strings.Join(path, " > "))
	}
	return out
}
