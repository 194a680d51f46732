package response

import "time"

type DocumentResponse struct {
	ID           int64      `json:"id"`
	Filename     string     `json:"filename"`
	Title        string     `json:"title"`
	FileType     string     `json:"file_type"`
	FileSize     int64      `json:"file_size"`
	Status       string     `json:"status"`
	ChunkCount   int        `json:"chunk_count"`
	ErrorMessage string     `json:"error_message,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	ProcessedAt  *time.Time `json:"processed_at,omitempty"`
}

type GetDocumentsResponse struct {
	Documents []DocumentResponse `json:"documents"`
}
