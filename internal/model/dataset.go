package model

type VerificationStatus string

const (
	VerificationPending           VerificationStatus = "pending"
	VerificationVerified          VerificationStatus = "verified"
	VerificationPartiallyVerified VerificationStatus = "partially_verified"
	VerificationSuspicious        VerificationStatus = "suspicious"
	VerificationUnverified        VerificationStatus = "unverified"
	VerificationFailed            VerificationStatus = "verification_failed"
)

// Dataset is one resolved (question, cot, answer) record.
type Dataset struct {
	ID                 string             `json:"id"`
	ProjectID          string             `json:"project_id"`
	QuestionID         string             `json:"question_id"`
	Question           string             `json:"question"`
	Model              string             `json:"model"`
	Cot                string             `json:"cot"`
	Answer             string             `json:"answer"`
	ChunkName          string             `json:"chunk_name"`
	ChunkContent       string             `json:"chunk_content"`
	QuestionLabel      string             `json:"question_label"`
	TraceabilityScore  *float64           `json:"traceability_score"`
	VerificationStatus VerificationStatus `json:"verification_status"`
	Ctime              int64              `json:"ctime"`
	Mtime              int64              `json:"mtime"`
}
