package models

// Statistics summarizes the catalog. It is derived on demand and never
// persisted.
type Statistics struct {
	TotalCategories   int   `json:"total_categories"`
	MainCategories    int   `json:"main_categories"`
	SubCategories     int   `json:"sub_categories"`
	TotalBooks        int   `json:"total_books"`
	PDFBooks          int   `json:"pdf_books"`
	AudioBooks        int   `json:"audio_books"`
	TotalDownloads    int64 `json:"total_downloads"`
	DeletedCategories int   `json:"deleted_categories"`
	DeletedBooks      int   `json:"deleted_books"`
}

// PurgeResult reports how many rows a purge physically removed.
type PurgeResult struct {
	Books      int `json:"books"`
	Categories int `json:"categories"`
}
