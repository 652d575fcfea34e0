package engine

import (
	"context"

	"github.com/HanTheDev/scan-gateway/internal/models"
	"github.com/HanTheDev/scan-gateway/internal/quota"
)

// Balance is an account's quota position as shown to its owner.
type Balance struct {
	AccountID      string          `json:"accountId"`
	IsPaid         bool            `json:"isPaid"`
	IsPrivileged   bool            `json:"isPrivileged"`
	ScansUsed      int             `json:"scansUsed"`
	ScansRemaining quota.Remaining `json:"scansRemaining"`
}

func (e *Engine) balanceOf(a *models.Account) *Balance {
	privileged := e.privileged(a, false)
	return &Balance{
		AccountID:      a.ID,
		IsPaid:         a.IsPaid,
		IsPrivileged:   privileged,
		ScansUsed:      a.ScansUsed,
		ScansRemaining: e.remaining(a, privileged),
	}
}

// Balance returns the account's quota position, creating the record on
// first contact.
func (e *Engine) Balance(ctx context.Context, accountID string) (*Balance, error) {
	acct, err := e.repo.GetOrCreate(ctx, accountID)
	if err != nil {
		return nil, err
	}
	return e.balanceOf(acct), nil
}

// Balances lists every known account.
func (e *Engine) Balances(ctx context.Context) []*Balance {
	accts := e.repo.Accounts(ctx)
	out := make([]*Balance, 0, len(accts))
	for _, a := range accts {
		out = append(out, e.balanceOf(a))
	}
	return out
}

// GrantPaid sets or clears the paid flag on target. Only the privileged
// identity may do this.
func (e *Engine) GrantPaid(ctx context.Context, actorID, targetID string, paid bool) (*Balance, error) {
	return e.grant(ctx, actorID, targetID, func(a *models.Account) { a.IsPaid = paid })
}

// GrantUnlimited sets or clears the persisted privileged flag on target.
func (e *Engine) GrantUnlimited(ctx context.Context, actorID, targetID string, unlimited bool) (*Balance, error) {
	return e.grant(ctx, actorID, targetID, func(a *models.Account) { a.IsPrivileged = unlimited })
}

func (e *Engine) grant(ctx context.Context, actorID, targetID string, apply func(*models.Account)) (*Balance, error) {
	if !e.IsOwner(actorID) {
		return nil, ErrNotPrivileged
	}

	unlock, err := e.repo.Lock(ctx, targetID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	acct, err := e.repo.Update(ctx, targetID, func(a *models.Account) error {
		apply(a)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return e.balanceOf(acct), nil
}

// ServiceHealth checks the downstream analysis service.
func (e *Engine) ServiceHealth(ctx context.Context) error {
	return e.analyzer.Health(ctx)
}
