package models

type ExportRepositoryInterface interface {
	Create(record *ExportRecord) error
	ListByClient(clientID string, page, limit int) ([]ExportRecord, int, error)
}
