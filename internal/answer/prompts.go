package answer

import (
	"fmt"
	"strings"

	"github.com/xxxsen/dsforge/internal/model"
)

const answerPromptTemplate = `You answer questions strictly from the reference material below.
%s
Rules:
- Think step by step before answering and write that reasoning as "cot".
- Whenever the reasoning relies on a sentence of the material, copy that sentence verbatim and wrap it as QUOTE{sentence}.
- Never invent facts that the material does not support.
- Do not mention "the material", "the text" or "the context" in the answer.
- Write both fields in %s.
Return only a JSON object: {"cot": "...", "answer": "..."}

Material:
%s

Question:
%s`

const cleanupPromptTemplate = `Rewrite the reasoning below so it reads as independent thinking.
Remove phrases that refer to "the provided text", "the reference", "the context" or similar.
Keep every step of the reasoning and keep every QUOTE{...} marker exactly as it is.
Return only the rewritten reasoning.

Reasoning:
%s`

func gaGuidance(pair *model.GaPair) string {
	if pair == nil {
		return ""
	}
	return fmt.Sprintf("Adapt the style of the answer to the genre %s (%s) and to the reader %s (%s).",
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

func buildAnswerPrompt(source, question string, pair *model.GaPair, language string) string {
	return fmt.Sprintf(answerPromptTemplate, gaGuidance(pair), languageName(language), source, question)
}

func buildCleanupPrompt(cot string) string {
	return fmt.Sprintf(cleanupPromptTemplate, cot)
}
