package model

type TaskType string

const (
	TaskTypeQuestionGeneration TaskType = "question-generation"
	TaskTypeAnswerGeneration   TaskType = "answer-generation"
	TaskTypeAnswerValidation   TaskType = "answer-validation"
	TaskTypeCotCleanup         TaskType = "cot-cleanup"
)

type TaskStatus string

const (
	TaskStatusProcessing TaskStatus = "processing"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusFailed     TaskStatus = "failed"
	TaskStatusAborted    TaskStatus = "aborted"
)

func (s TaskStatus) Terminal() bool {
	return s == TaskStatusCompleted || s == TaskStatusFailed || s == TaskStatusAborted
}

type Task struct {
	ID             string     `json:"id"`
	ProjectID      string     `json:"project_id"`
	Type           TaskType   `json:"type"`
	Status         TaskStatus `json:"status"`
	TotalCount     int        `json:"total_count"`
	CompletedCount int        `json:"completed_count"`
	Detail         string     `json:"detail"`
	Note           string     `json:"note"`
	StartTime      int64      `json:"start_time"`
	EndTime        int64      `json:"end_time"`
	Ctime          int64      `json:"ctime"`
	Mtime          int64      `json:"mtime"`
}

// ModelConfig selects a configured provider and the model to call on it.
type ModelConfig struct {
	Provider string `json:"provider"`
	Model    string `json:"model"`
}

// TaskNote is the parameter blob persisted on a task.
type TaskNote struct {
	ModelInfo ModelConfig    `json:"modelInfo"`
	Language  string         `json:"language,omitempty"`
	Params    map[string]any `json:"params,omitempty"`
}
