package model

type File struct {
	ID        string `json:"id"`
	ProjectID string `json:"project_id"`
	FileName  string `json:"file_name"`
	StoreKey  string `json:"store_key"`
	Size      int64  `json:"size"`
	Toc       string `json:"toc"`
	Ctime     int64  `json:"ctime"`
	Mtime     int64  `json:"mtime"`
}
