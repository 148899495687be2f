package model

type Tag struct {
	ID        string `json:"id"`
	ProjectID string `json:"project_id"`
	Label     string `json:"label"`
	ParentID  string `json:"parent_id"`
	Ctime     int64  `json:"ctime"`
}
