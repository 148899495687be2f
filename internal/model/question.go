package model

import (
	"encoding/json"
	"fmt"
	"strings"
)

type QuestionType string

const (
	QuestionTypeLocal      QuestionType = "local"
	QuestionTypeContextual QuestionType = "contextual"
	QuestionTypeGlobal     QuestionType = "global"
)

// QuestionMetadata records which strategy produced a question and what it needs
// to rebuild its context. Empty ids mean "no neighbour".
type QuestionMetadata struct {
	Type            QuestionType `json:"type"`
	PreviousChunkID string       `json:"previousChunkId,omitempty"`
	NextChunkID     string       `json:"nextChunkId,omitempty"`
	FileID          string       `json:"fileId,omitempty"`
}

func (m *QuestionMetadata) Validate() error {
	if m == nil {
		return nil
	}
	switch m.Type {
	case QuestionTypeLocal, "":
		return nil
	case QuestionTypeContextual:
		if m.PreviousChunkID == "" && m.NextChunkID == "" {
			return fmt.Errorf("contextual metadata needs at least one neighbour chunk")
		}
		return nil
	case QuestionTypeGlobal:
		if m.FileID == "" {
			return fmt.Errorf("global metadata needs a file id")
		}
		return nil
	default:
		return fmt.Errorf("unknown question type: %s", m.Type)
	}
}

// EffectiveType treats absent metadata as local.
func (m *QuestionMetadata) EffectiveType() QuestionType {
	if m == nil || m.Type == "" {
		return QuestionTypeLocal
	}
	return m.Type
}

func EncodeQuestionMetadata(m *QuestionMetadata) (string, error) {
	if m == nil {
		return "", nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func DecodeQuestionMetadata(raw string) (*QuestionMetadata, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "null" {
		return nil, nil
	}
	var m QuestionMetadata
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return nil, fmt.Errorf("decode question metadata: %w", err)
	}
	return &m, nil
}

type Question struct {
	ID        string            `json:"id"`
	ProjectID string            `json:"project_id"`
	ChunkID   string            `json:"chunk_id"`
	Question  string            `json:"question"`
	Label     string            `json:"label"`
	GaPairID  string            `json:"ga_pair_id"`
	Answered  bool              `json:"answered"`
	Metadata  *QuestionMetadata `json:"metadata"`
	Ctime     int64             `json:"ctime"`
	Mtime     int64             `json:"mtime"`
}
