package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// DocumentVersion is written into every saved document.
const DocumentVersion = 1

// Account is the usage state tracked for one chat identity.
type Account struct {
	ID           string      `json:"accountId,omitempty"`
	ScansUsed    int         `json:"scansUsed"`
	IsPaid       bool        `json:"isPaid"`
	IsPrivileged bool        `json:"isPrivileged,omitempty"`
	RateWindow   *RateWindow `json:"rateWindow,omitempty"`
	CreatedAt    int64       `json:"createdAt,omitempty"`
	UpdatedAt    int64       `json:"updatedAt,omitempty"`
}

// RateWindow is the fixed-window throttle state. WindowStart is unix millis;
// zero means no window has been opened yet.
type RateWindow struct {
	WindowStart int64 `json:"windowStart"`
	Count       int   `json:"count"`
}

// Unlimited reports whether the account is exempt from the free quota.
func (a *Account) Unlimited() bool {
	return a.IsPaid || a.IsPrivileged
}

// Clone returns a deep copy of the account.
func (a *Account) Clone() *Account {
	c := *a
	if a.RateWindow != nil {
		rw := *a.RateWindow
		c.RateWindow = &rw
	}
	return &c
}

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentSubmitted PaymentStatus = "submitted"
	PaymentConfirmed PaymentStatus = "confirmed"
)

// Payment is a manually verified request to unlock unlimited scans.
type Payment struct {
	ID        string          `json:"id"`
	AccountID string          `json:"accountId"`
	Amount    decimal.Decimal `json:"amount"`
	Currency  string          `json:"currency"`
	PayTo     string          `json:"payTo"`
	Status    PaymentStatus   `json:"status"`
	TxHash    string          `json:"txHash,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

// Document is the whole persisted state. Stores load and save it as a unit.
type Document struct {
	Version  int                 `json:"version"`
	Accounts map[string]*Account `json:"accounts"`
	Payments map[string]*Payment `json:"payments,omitempty"`
}

func NewDocument() *Document {
	return &Document{
		Version:  DocumentVersion,
		Accounts: make(map[string]*Account),
		Payments: make(map[string]*Payment),
	}
}

// Normalize fills nil maps left by decoding an older or partial document.
func (d *Document) Normalize() {
	if d.Version == 0 {
		d.Version = DocumentVersion
	}
	if d.Accounts == nil {
		d.Accounts = make(map[string]*Account)
	}
	if d.Payments == nil {
		d.Payments = make(map[string]*Payment)
	}
}

// Clone returns a deep copy of the document.
func (d *Document) Clone() *Document {
	c := &Document{
		Version:  d.Version,
		Accounts: make(map[string]*Account, len(d.Accounts)),
		Payments: make(map[string]*Payment, len(d.Payments)),
	}
	for id, a := range d.Accounts {
		if a != nil {
			c.Accounts[id] = a.Clone()
		}
	}
	for id, p := range d.Payments {
		if p != nil {
			cp := *p
			c.Payments[id] = &cp
		}
	}
	return c
}

// ScanLog is one audited pass through the scan engine.
type ScanLog struct {
	ID             int64     `json:"id"`
	RequestID      string    `json:"request_id"`
	AccountID      string    `json:"account_id"`
	Outcome        string    `json:"outcome"`
	Decision       string    `json:"decision,omitempty"`
	Risk           string    `json:"risk,omitempty"`
	FailureKind    string    `json:"failure_kind,omitempty"`
	StatusCode     int       `json:"status_code,omitempty"`
	ResponseTimeMs int       `json:"response_time_ms"`
	RequestSize    int64     `json:"request_size"`
	Timestamp      time.Time `json:"timestamp"`
}

// ScanStats counts audited scans per outcome.
type ScanStats struct {
	Outcome   string `json:"outcome"`
	Count     int64  `json:"count"`
	AvgTimeMs int64  `json:"avg_time_ms"`
}
