package store

import (
	"context"

	"github.com/HanTheDev/scan-gateway/internal/db"
	"github.com/HanTheDev/scan-gateway/internal/logging"
	"github.com/HanTheDev/scan-gateway/internal/models"
	"go.uber.org/zap"
)

const defaultDocumentName = "accounts"

// PostgresStore keeps the document as one JSONB row.
type PostgresStore struct {
	db   *db.DB
	name string
}

func NewPostgresStore(database *db.DB) *PostgresStore {
	return &PostgresStore{db: database, name: defaultDocumentName}
}

func (s *PostgresStore) Load(ctx context.Context) (*models.Document, error) {
	raw, err := s.db.LoadDocument(ctx, s.name)
	if err != nil {
		return nil, storageErr("load document row", err)
	}

	doc, err := decodeDocument(raw)
	if err != nil {
		logging.Get().Warn("Document row is corrupt, starting from empty state",
			zap.String("name", s.name),
			zap.Error(err))
	}
	return doc, nil
}

func (s *PostgresStore) Save(ctx context.Context, doc *models.Document) error {
	raw, err := encodeDocument(doc)
	if err != nil {
		return storageErr("encode document", err)
	}
	if err := s.db.SaveDocument(ctx, s.name, raw); err != nil {
		return storageErr("save document row", err)
	}
	return nil
}

// Close is a no-op; the pool belongs to the caller, which also uses it for
// the scan audit log.
func (s *PostgresStore) Close() error {
	return nil
}
