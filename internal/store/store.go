// Package store persists the gateway's account document.
//
// A Store loads and saves the whole Document. Repository layers per-account
// operations on top of any Store and serializes the load/mutate/save cycle.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/HanTheDev/scan-gateway/internal/models"
)

var (
	// ErrStorage marks any failure to read or write the persisted document.
	ErrStorage = errors.New("storage error")

	// ErrCorruptDocument is returned by decodeDocument for unparseable bodies.
	ErrCorruptDocument = errors.New("corrupt document")
)

type Store interface {
	// Load returns the current document. A missing document loads as an
	// empty one.
	Load(ctx context.Context) (*models.Document, error)

	// Save replaces the persisted document. Readers observe either the old
	// or the new document, never a partial write.
	Save(ctx context.Context, doc *models.Document) error

	Close() error
}

var (
	_ Store = (*FileStore)(nil)
	_ Store = (*MemoryStore)(nil)
	_ Store = (*PostgresStore)(nil)
	_ Store = (*RedisStore)(nil)
)

func storageErr(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrStorage, err)
}

func decodeDocument(raw []byte) (*models.Document, error) {
	doc := models.NewDocument()
	if len(raw) == 0 {
		return doc, nil
	}
	if err := json.Unmarshal(raw, doc); err != nil {
		return models.NewDocument(), fmt.Errorf("%w: %w", ErrCorruptDocument, err)
	}
	doc.Normalize()
	return doc, nil
}

func encodeDocument(doc *models.Document) ([]byte, error) {
	doc.Normalize()
	return json.MarshalIndent(doc, "", "  ")
}
