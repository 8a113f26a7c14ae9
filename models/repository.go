package models

import (
	"github.com/jmoiron/sqlx"
)

type ExportRepository struct {
	conn func() *sqlx.DB
}

func NewExportRepository(db *sqlx.DB) *ExportRepository {
	return &ExportRepository{conn: func() *sqlx.DB { return db }}
}

// NewExportRepositoryFrom resolves the pool on every call, so a reconnect
// is picked up without rebuilding the repository.
func NewExportRepositoryFrom(conn func() *sqlx.DB) *ExportRepository {
	return &ExportRepository{conn: conn}
}

func (r *ExportRepository) Create(record *ExportRecord) error {
	query := `
		INSERT INTO exports (client_id, source_filename, output_filename, policy, output_size, stored_url, title, keyword_count)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at`

	return r.conn().QueryRow(query,
		record.ClientID, record.SourceFilename, record.OutputFilename, record.Policy,
		record.OutputSize, record.StoredURL, record.Title, record.KeywordCount).
		Scan(&record.ID, &record.CreatedAt)
}

func (r *ExportRepository) ListByClient(clientID string, page, limit int) ([]ExportRecord, int, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 20
	}
	offset := (page - 1) * limit

	var total int
	if err := r.conn().Get(&total, `SELECT COUNT(*) FROM exports WHERE client_id = $1`, clientID); err != nil {
		return nil, 0, err
	}

	records := []ExportRecord{}
	query := `
		SELECT * FROM exports
		WHERE client_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`
	if err := r.conn().Select(&records, query, clientID, limit, offset); err != nil {
		return nil, 0, err
	}
	return records, total, nil
}
