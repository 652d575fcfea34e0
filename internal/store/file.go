package store

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/HanTheDev/scan-gateway/internal/logging"
	"github.com/HanTheDev/scan-gateway/internal/models"
	"go.uber.org/zap"
)

// FileStore keeps the document as a JSON file. Saves go through a temporary
// file in the same directory followed by a rename.
type FileStore struct {
	path string
}

func NewFileStore(path string) (*FileStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, storageErr("create store directory", err)
	}
	return &FileStore{path: path}, nil
}

func (s *FileStore) Path() string {
	return s.path
}

func (s *FileStore) Load(ctx context.Context) (*models.Document, error) {
	raw, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return models.NewDocument(), nil
	}
	if err != nil {
		return nil, storageErr("read document", err)
	}

	doc, err := decodeDocument(raw)
	if err != nil {
		logging.Get().Warn("Document is corrupt, starting from empty state",
			zap.String("path", s.path),
			zap.Error(err))
	}
	return doc, nil
}

func (s *FileStore) Save(ctx context.Context, doc *models.Document) error {
	raw, err := encodeDocument(doc)
	if err != nil {
		return storageErr("encode document", err)
	}

	dir, base := filepath.Split(s.path)
	if dir == "" {
		dir = "."
	}
	tmp, err := os.CreateTemp(dir, base+".tmp-*")
	if err != nil {
		return storageErr("create temp file", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		return storageErr("write temp file", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return storageErr("sync temp file", err)
	}
	if err := tmp.Close(); err != nil {
		return storageErr("close temp file", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		return storageErr("replace document", err)
	}
	return nil
}

func (s *FileStore) Close() error {
	return nil
}
