package domain

import "time"

type SourceStatus string

const (
	StatusUploaded   SourceStatus = "uploaded"
	StatusProcessing SourceStatus = "processing"
	StatusReady      SourceStatus = "ready"
	StatusFailed     SourceStatus = "failed"
)

// Source is an uploaded statute document the index is built from.
type Source struct {
	ID          string       `json:"id"`
	Filename    string       `json:"filename"`
	MimeType    string       `json:"mime_type"`
	StoragePath string       `json:"storage_path"`
	ChunkCount  int          `json:"chunk_count"`
	Status      SourceStatus `json:"status"`
	Error       string       `json:"error,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

// Page is extracted text of one source page. PageNum is 1-based.
type Page struct {
	PageNum int
	Text    string
}
