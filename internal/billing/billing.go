// Package billing keeps manual payment requests that unlock unlimited scans.
// Verification is manual: an operator confirms a submitted transaction.
package billing

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/HanTheDev/scan-gateway/internal/logging"
	"github.com/HanTheDev/scan-gateway/internal/models"
	"github.com/HanTheDev/scan-gateway/internal/store"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var (
	ErrPaymentNotFound = errors.New("payment not found")
	ErrInvalidTxHash   = errors.New("transaction hash must be 0x followed by 64 hex characters")
	ErrPaymentState    = errors.New("payment is not in a state that allows this")
	ErrInvalidAccount  = errors.New("account id is required")
)

var txHashPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{64}$`)

// Terms are the price and destination quoted on every new request.
type Terms struct {
	Price    decimal.Decimal
	Currency string
	PayTo    string
}

type Service struct {
	repo  *store.Repository
	terms Terms
	now   func() time.Time
}

func NewService(repo *store.Repository, terms Terms) *Service {
	return &Service{repo: repo, terms: terms, now: time.Now}
}

// WithClock overrides the time source used for payment timestamps.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

func (s *Service) Terms() Terms {
	return s.terms
}

func newPaymentID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}

// ValidTxHash reports whether h looks like an EVM transaction hash.
func ValidTxHash(h string) bool {
	return txHashPattern.MatchString(h)
}

// Request opens a pending payment for accountID at the current terms.
func (s *Service) Request(ctx context.Context, accountID string) (*models.Payment, error) {
	if strings.TrimSpace(accountID) == "" {
		return nil, ErrInvalidAccount
	}

	now := s.now().UTC()
	var out models.Payment
	err := s.repo.Mutate(ctx, func(doc *models.Document) error {
		store.GetOrCreateAccount(doc, accountID, now)

		id := newPaymentID()
		for doc.Payments[id] != nil {
			id = newPaymentID()
		}
		p := &models.Payment{
			ID:        id,
			AccountID: accountID,
			Amount:    s.terms.Price,
			Currency:  s.terms.Currency,
			PayTo:     s.terms.PayTo,
			Status:    models.PaymentPending,
			CreatedAt: now,
			UpdatedAt: now,
		}
		doc.Payments[id] = p
		out = *p
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("request payment: %w", err)
	}

	logging.FromContext(ctx).Info("Payment requested",
		zap.String("account_id", accountID),
		zap.String("payment_id", out.ID),
		zap.String("amount", out.Amount.String()))
	return &out, nil
}

// Submit attaches a transaction hash to a pending payment owned by accountID.
func (s *Service) Submit(ctx context.Context, accountID, paymentID, txHash string) (*models.Payment, error) {
	if !ValidTxHash(txHash) {
		return nil, ErrInvalidTxHash
	}

	var out models.Payment
	err := s.repo.Mutate(ctx, func(doc *models.Document) error {
		p := doc.Payments[paymentID]
		if p == nil || p.AccountID != accountID {
			return ErrPaymentNotFound
		}
		if p.Status != models.PaymentPending {
			return fmt.Errorf("%w: %s", ErrPaymentState, p.Status)
		}
		p.TxHash = txHash
		p.Status = models.PaymentSubmitted
		p.UpdatedAt = s.now().UTC()
		out = *p
		return nil
	})
	if err != nil {
		return nil, err
	}

	logging.FromContext(ctx).Info("Payment submitted",
		zap.String("account_id", accountID),
		zap.String("payment_id", paymentID),
		zap.String("tx_hash", txHash))
	return &out, nil
}

// Confirm marks a payment confirmed and the paying account paid. The account
// lock is held so the flag never changes under an in-flight scan's commit.
func (s *Service) Confirm(ctx context.Context, paymentID string) (*models.Payment, error) {
	p, err := s.Get(ctx, paymentID)
	if err != nil {
		return nil, err
	}

	unlock, err := s.repo.Lock(ctx, p.AccountID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	var out models.Payment
	err = s.repo.Mutate(ctx, func(doc *models.Document) error {
		p := doc.Payments[paymentID]
		if p == nil {
			return ErrPaymentNotFound
		}
		if p.Status == models.PaymentConfirmed {
			return fmt.Errorf("%w: already confirmed", ErrPaymentState)
		}
		now := s.now().UTC()
		p.Status = models.PaymentConfirmed
		p.UpdatedAt = now

		acct, _ := store.GetOrCreateAccount(doc, p.AccountID, now)
		acct.IsPaid = true
		acct.UpdatedAt = now.UnixMilli()
		out = *p
		return nil
	})
	if err != nil {
		return nil, err
	}

	logging.FromContext(ctx).Info("Payment confirmed",
		zap.String("account_id", out.AccountID),
		zap.String("payment_id", paymentID))
	return &out, nil
}

func (s *Service) Get(ctx context.Context, paymentID string) (*models.Payment, error) {
	doc := s.repo.Snapshot(ctx)
	p := doc.Payments[paymentID]
	if p == nil {
		return nil, ErrPaymentNotFound
	}
	return p, nil
}

// List returns payments oldest first. An empty status matches all.
func (s *Service) List(ctx context.Context, status models.PaymentStatus) []*models.Payment {
	doc := s.repo.Snapshot(ctx)
	out := make([]*models.Payment, 0, len(doc.Payments))
	for _, p := range doc.Payments {
		if p == nil || (status != "" && p.Status != status) {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}
