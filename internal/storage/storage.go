package storage

import "zapquote/internal/model"

// Storage defines a sink for quote records.
type Storage interface {
	PutQuotes(records []model.QuoteRecord) error
}
