package model

// GaPair is a (genre, audience) style descriptor attached to a file.
type GaPair struct {
	ID            string `json:"id"`
	ProjectID     string `json:"project_id"`
	FileID        string `json:"file_id"`
	GenreTitle    string `json:"genre_title"`
	GenreDesc     string `json:"genre_desc"`
	AudienceTitle string `json:"audience_title"`
	AudienceDesc  string `json:"audience_desc"`
	IsActive      bool   `json:"is_active"`
	Ctime         int64  `json:"ctime"`
}
