package model

import "time"

type FileType string

const (
	FileTypePDF      FileType = "pdf"
	FileTypeDocx     FileType = "docx"
	FileTypeText     FileType = "txt"
	FileTypeMarkdown FileType = "md"
	FileTypeHTML     FileType = "html"
	FileTypeJSON     FileType = "json"
)

// SupportedFileTypes lists the types the ingestion pipeline can load.
// Anything else is rejected at upload time.
var SupportedFileTypes = map[FileType]bool{
	FileTypePDF:      true,
	FileTypeDocx:     true,
	FileTypeText:     true,
	FileTypeMarkdown: true,
	FileTypeHTML:     true,
	FileTypeJSON:     true,
}

type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Document tracks one uploaded file and its processing lifecycle. Only the
// ingestion pipeline mutates status, chunk_count, error_message, processed_at
// and the metadata blob; processing is single-flight per document id.
type Document struct {
	ID           int64      `gorm:"primarykey" json:"id"`
	CreatedAt    time.Time  `gorm:"not null" json:"created_at"`
	UpdatedAt    time.Time  `gorm:"not null" json:"updated_at"`
	Filename     string     `gorm:"size:500;not null" json:"filename"`
	Title        string     `gorm:"size:500;index" json:"title"`
	FilePath     string     `gorm:"size:1000;not null" json:"file_path"`
	FileType     FileType   `gorm:"size:50;not null" json:"file_type"`
	FileSize     int64      `gorm:"not null" json:"file_size"`
	CollectionID int64      `gorm:"not null;index" json:"collection_id"`
	Status       Status     `gorm:"size:50;not null;default:pending" json:"status"`
	ChunkCount   int        `gorm:"not null;default:0" json:"chunk_count"`
	ErrorMessage string     `gorm:"type:text" json:"error_message,omitempty"`
	ProcessedAt  *time.Time `json:"processed_at,omitempty"`

	// Opaque processing metadata, currently the vector-id list.
	DocMetadata []byte `gorm:"type:json" json:"-"`
}

func (Document) TableName() string {
	return "documents"
}

// DocMetadataBlob is what the pipeline stores in Document.DocMetadata on
// successful completion.
type DocMetadataBlob struct {
	VectorIDs   []int64 `json:"vector_ids"`
	TotalChunks int     `json:"total_chunks"`
}
