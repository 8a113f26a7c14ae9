package models

import (
	"time"

	"github.com/google/uuid"
)

type ExportRecord struct {
	ID             uuid.UUID `json:"id" db:"id"`
	ClientID       string    `json:"client_id" db:"client_id"`
	SourceFilename string    `json:"source_filename" db:"source_filename"`
	OutputFilename string    `json:"output_filename" db:"output_filename"`
	Policy         string    `json:"policy" db:"policy"`
	OutputSize     int       `json:"output_size" db:"output_size"`
	StoredURL      *string   `json:"stored_url" db:"stored_url"`
	Title          *string   `json:"title" db:"title"`
	KeywordCount   int       `json:"keyword_count" db:"keyword_count"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
}

type ExportListResponse struct {
	Exports []ExportRecord `json:"exports"`
	Page    int            `json:"page"`
	Total   int            `json:"total"`
}
