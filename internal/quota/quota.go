package quota

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/HanTheDev/scan-gateway/internal/models"
)

// ErrUnlimitedAccount is returned by Consume for paid or privileged accounts,
// whose counters are never touched.
var ErrUnlimitedAccount = errors.New("account has unlimited quota")

// Remaining is the number of free scans left, or unlimited.
type Remaining struct {
	Unlimited bool
	Count     int
}

var UnlimitedRemaining = Remaining{Unlimited: true}

func (r Remaining) String() string {
	if r.Unlimited {
		return "∞"
	}
	return strconv.Itoa(r.Count)
}

func (r Remaining) MarshalJSON() ([]byte, error) {
	if r.Unlimited {
		return json.Marshal("unlimited")
	}
	return json.Marshal(r.Count)
}

func (r *Remaining) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		if s != "unlimited" {
			return fmt.Errorf("quota: unknown remaining value %q", s)
		}
		*r = UnlimitedRemaining
		return nil
	}
	var n int
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*r = Remaining{Count: n}
	return nil
}

// Ledger gates scans against a lifetime free limit.
type Ledger struct {
	FreeLimit int
}

func NewLedger(freeLimit int) *Ledger {
	return &Ledger{FreeLimit: freeLimit}
}

func (l *Ledger) Remaining(a *models.Account) Remaining {
	if a.Unlimited() {
		return UnlimitedRemaining
	}
	left := l.FreeLimit - a.ScansUsed
	if left < 0 {
		left = 0
	}
	return Remaining{Count: left}
}

func (l *Ledger) HasQuota(a *models.Account) bool {
	return a.Unlimited() || a.ScansUsed < l.FreeLimit
}

// Consume charges one free scan. Call it once per confirmed remote success.
func (l *Ledger) Consume(a *models.Account) error {
	if a.Unlimited() {
		return ErrUnlimitedAccount
	}
	a.ScansUsed++
	return nil
}
