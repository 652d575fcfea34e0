package store

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/HanTheDev/scan-gateway/internal/logging"
	"github.com/HanTheDev/scan-gateway/internal/models"
	"go.uber.org/zap"
)

// Repository provides per-account access to a Store.
//
// Every mutation reloads the full document, changes it, and writes it back
// while holding docMu, so concurrent updates to different accounts never
// overwrite each other. docMu is never held across anything but store I/O;
// callers that need a longer critical section for one account use Lock.
type Repository struct {
	store Store
	locks *KeyedLocker
	docMu sync.Mutex
	now   func() time.Time
}

func NewRepository(s Store) *Repository {
	return &Repository{
		store: s,
		locks: NewKeyedLocker(),
		now:   time.Now,
	}
}

// WithClock overrides the time source used for record timestamps.
func (r *Repository) WithClock(now func() time.Time) *Repository {
	r.now = now
	return r
}

// Lock serializes all work on one account. Unrelated accounts are unaffected.
func (r *Repository) Lock(ctx context.Context, accountID string) (func(), error) {
	return r.locks.Lock(ctx, accountID)
}

// load never fails: an unreadable document degrades to an empty one. Only
// read paths may use it; writing its result back would erase every account.
func (r *Repository) load(ctx context.Context) *models.Document {
	doc, err := r.loadForWrite(ctx)
	if err != nil {
		logging.FromContext(ctx).Error("Failed to load document, continuing with empty state",
			zap.Error(err))
		return models.NewDocument()
	}
	return doc
}

// loadForWrite returns the stored document or an ErrStorage error. A corrupt
// document already decodes as empty without error, so it can be rewritten.
func (r *Repository) loadForWrite(ctx context.Context) (*models.Document, error) {
	doc, err := r.store.Load(ctx)
	if err != nil {
		if !errors.Is(err, ErrStorage) {
			err = storageErr("load document", err)
		}
		return nil, err
	}
	doc.Normalize()
	return doc, nil
}

// GetOrCreateAccount returns the account stored under id, inserting a
// defaulted record when absent and backfilling optional fields missing from
// older records. changed reports whether doc was modified.
func GetOrCreateAccount(doc *models.Document, id string, now time.Time) (acct *models.Account, changed bool) {
	acct, ok := doc.Accounts[id]
	if !ok || acct == nil {
		acct = &models.Account{
			ID:         id,
			RateWindow: &models.RateWindow{},
			CreatedAt:  now.UnixMilli(),
			UpdatedAt:  now.UnixMilli(),
		}
		doc.Accounts[id] = acct
		return acct, true
	}
	if acct.ID == "" {
		acct.ID = id
		changed = true
	}
	if acct.RateWindow == nil {
		acct.RateWindow = &models.RateWindow{}
		changed = true
	}
	return acct, changed
}

// GetOrCreate returns a copy of the account, persisting it first if it had
// to be created or backfilled. When the document cannot be read it returns a
// defaulted record without writing anything.
func (r *Repository) GetOrCreate(ctx context.Context, id string) (*models.Account, error) {
	r.docMu.Lock()
	defer r.docMu.Unlock()

	doc, err := r.loadForWrite(ctx)
	if err != nil {
		logging.FromContext(ctx).Error("Failed to load document, using a default account",
			zap.String("account_id", id), zap.Error(err))
		acct, _ := GetOrCreateAccount(models.NewDocument(), id, r.now())
		return acct, nil
	}
	acct, changed := GetOrCreateAccount(doc, id, r.now())
	if changed {
		if err := r.store.Save(ctx, doc); err != nil {
			return nil, err
		}
	}
	return acct.Clone(), nil
}

// Update applies fn to the account and persists the document. If fn returns
// an error nothing is written.
func (r *Repository) Update(ctx context.Context, id string, fn func(*models.Account) error) (*models.Account, error) {
	var out *models.Account
	err := r.Mutate(ctx, func(doc *models.Document) error {
		acct, _ := GetOrCreateAccount(doc, id, r.now())
		if err := fn(acct); err != nil {
			return err
		}
		acct.UpdatedAt = r.now().UnixMilli()
		out = acct.Clone()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Mutate applies fn to the whole document and persists it. Nothing is
// written when the document cannot be loaded.
func (r *Repository) Mutate(ctx context.Context, fn func(*models.Document) error) error {
	r.docMu.Lock()
	defer r.docMu.Unlock()

	doc, err := r.loadForWrite(ctx)
	if err != nil {
		return err
	}
	if err := fn(doc); err != nil {
		return err
	}
	return r.store.Save(ctx, doc)
}

// Snapshot returns a detached copy of the current document.
func (r *Repository) Snapshot(ctx context.Context) *models.Document {
	r.docMu.Lock()
	defer r.docMu.Unlock()
	return r.load(ctx).Clone()
}

// Find returns a copy of the account without creating it.
func (r *Repository) Find(ctx context.Context, id string) (*models.Account, bool) {
	doc := r.Snapshot(ctx)
	acct, ok := doc.Accounts[id]
	if !ok || acct == nil {
		return nil, false
	}
	GetOrCreateAccount(doc, id, r.now())
	return acct, true
}

// Accounts lists every stored account ordered by id.
func (r *Repository) Accounts(ctx context.Context) []*models.Account {
	doc := r.Snapshot(ctx)
	out := make([]*models.Account, 0, len(doc.Accounts))
	for id := range doc.Accounts {
		acct, _ := GetOrCreateAccount(doc, id, r.now())
		out = append(out, acct)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r *Repository) Close() error {
	return r.store.Close()
}
