// Package engine decides whether an account may run a scan, runs it, and
// keeps the account's usage counters in step with the result.
package engine

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/HanTheDev/scan-gateway/internal/analysis"
	"github.com/HanTheDev/scan-gateway/internal/logging"
	"github.com/HanTheDev/scan-gateway/internal/models"
	"github.com/HanTheDev/scan-gateway/internal/quota"
	"github.com/HanTheDev/scan-gateway/internal/ratelimit"
	"github.com/HanTheDev/scan-gateway/internal/store"
	"go.uber.org/zap"
)

// ErrNotPrivileged is returned when a non-owner attempts an administrative grant.
var ErrNotPrivileged = errors.New("actor is not the privileged account")

type Analyzer interface {
	Analyze(ctx context.Context, code string) (*analysis.Result, error)
	Health(ctx context.Context) error
}

// Recorder receives one audit entry per scan request.
type Recorder interface {
	LogScan(ctx context.Context, log *models.ScanLog) error
}

// Observer counts finished scans. *metrics.Metrics implements it.
type Observer interface {
	ObserveScan(outcome, failure string, elapsed time.Duration)
}

type Policy struct {
	FreeScanLimit               int
	RateWindow                  time.Duration
	RateMaxRequests             int
	PrivilegedAccountID         string
	PrivilegedBypassesRateLimit bool
	PaidBypassesRateLimit       bool
}

// Submission is one piece of text an account wants scanned. Privileged is set
// by transports that already know the sender is an operator.
type Submission struct {
	AccountID  string
	Text       string
	Privileged bool
}

type Engine struct {
	repo     *store.Repository
	analyzer Analyzer
	limiter  *ratelimit.Limiter
	ledger   *quota.Ledger
	policy   Policy
	recorder Recorder
	observer Observer
	now      func() time.Time
}

type Option func(*Engine)

func WithRecorder(r Recorder) Option {
	return func(e *Engine) { e.recorder = r }
}

func WithObserver(o Observer) Option {
	return func(e *Engine) { e.observer = o }
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func New(repo *store.Repository, analyzer Analyzer, policy Policy, opts ...Option) *Engine {
	e := &Engine{
		repo:     repo,
		analyzer: analyzer,
		limiter:  ratelimit.NewLimiter(policy.RateWindow, policy.RateMaxRequests),
		ledger:   quota.NewLedger(policy.FreeScanLimit),
		policy:   policy,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// IsOwner reports whether id is the configured privileged identity.
func (e *Engine) IsOwner(id string) bool {
	return e.policy.PrivilegedAccountID != "" && id == e.policy.PrivilegedAccountID
}

func (e *Engine) privileged(a *models.Account, flagged bool) bool {
	return flagged || e.IsOwner(a.ID) || a.IsPrivileged
}

func (e *Engine) remaining(a *models.Account, privileged bool) quota.Remaining {
	if privileged {
		return quota.UnlimitedRemaining
	}
	return e.ledger.Remaining(a)
}

// Scan runs one submission through privilege, rate, and quota gates, calls
// the analysis service when permitted, and commits usage on success. Every
// path returns a populated Outcome; failures are reported in it rather than
// as an error.
//
// The account stays locked for the whole call, so two requests from the same
// account can never both pass the quota gate on the last free scan. Only that
// account's lock is held during the remote call.
func (e *Engine) Scan(ctx context.Context, sub Submission) *Outcome {
	start := e.now()

	requestID := logging.GetRequestID(ctx)
	if requestID == "" {
		requestID = logging.NewRequestID()
		ctx = logging.WithRequestID(ctx, requestID)
	}
	log := logging.FromContext(ctx).With(zap.String("account_id", sub.AccountID))

	out := &Outcome{RequestID: requestID, AccountID: sub.AccountID}
	defer func() { e.record(ctx, out, start, len(sub.Text)) }()

	if strings.TrimSpace(sub.AccountID) == "" || strings.TrimSpace(sub.Text) == "" {
		return out.fail(KindInvalid, nil, errors.New("account id and text are required"))
	}

	unlock, err := e.repo.Lock(ctx, sub.AccountID)
	if err != nil {
		log.Warn("Scan abandoned while waiting for account lock", zap.Error(err))
		return out.fail(KindCanceled, nil, err)
	}
	defer unlock()

	acct, err := e.repo.GetOrCreate(ctx, sub.AccountID)
	if err != nil {
		return e.storageFailed(out, log, err)
	}

	privileged := e.privileged(acct, sub.Privileged)
	out.ScansRemaining = e.remaining(acct, privileged)

	skipRate := (privileged && e.policy.PrivilegedBypassesRateLimit) ||
		(acct.IsPaid && e.policy.PaidBypassesRateLimit)
	if !skipRate {
		var decision ratelimit.Decision
		acct, err = e.repo.Update(ctx, sub.AccountID, func(a *models.Account) error {
			decision = e.limiter.Allow(a.RateWindow, e.now())
			return nil
		})
		if err != nil {
			return e.storageFailed(out, log, err)
		}
		if !decision.Allowed {
			out.Kind = KindRateDenied
			out.RetryAfter = decision.RetryAfter
			out.RetryAfterMs = decision.RetryAfter.Milliseconds()
			log.Info("Rate limit exceeded", zap.Duration("retry_after", decision.RetryAfter))
			return out
		}
	}

	if !privileged && !e.ledger.HasQuota(acct) {
		out.Kind = KindQuotaDenied
		log.Info("Free scan limit reached", zap.Int("scans_used", acct.ScansUsed))
		return out
	}

	result, err := e.analyzer.Analyze(ctx, sub.Text)
	if err != nil {
		f := classifyRemote(err)
		if f.Kind == FailurePaymentRequired {
			log.Error("Analysis service rejected the shared secret", zap.Error(err))
		} else {
			log.Warn("Analysis failed", zap.String("failure", string(f.Kind)), zap.Error(err))
		}
		return out.fail(KindRemoteFailed, f, err)
	}
	out.setVerdict(result)

	if !privileged && !acct.Unlimited() {
		// The scan already ran; a client hanging up must not skip the charge.
		commitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		acct, err = e.repo.Update(commitCtx, sub.AccountID, func(a *models.Account) error {
			if a.Unlimited() {
				return nil
			}
			return e.ledger.Consume(a)
		})
		cancel()
		if err != nil {
			return e.storageFailed(out, log, err)
		}
	}

	out.Kind = KindScanned
	out.ScansRemaining = e.remaining(acct, e.privileged(acct, sub.Privileged))
	log.Info("Scan completed",
		zap.String("decision", string(result.Decision)),
		zap.String("risk", result.OverallRisk),
		zap.String("scans_remaining", out.ScansRemaining.String()))
	return out
}

func (e *Engine) storageFailed(out *Outcome, log *zap.Logger, err error) *Outcome {
	log.Error("Failed to persist account state", zap.Error(err))
	return out.fail(KindStorageFailed, &Failure{Kind: FailureStorage, Detail: err.Error(), Retryable: true}, err)
}

func (e *Engine) record(ctx context.Context, out *Outcome, start time.Time, size int) {
	elapsed := e.now().Sub(start)
	var failure string
	if out.Failure != nil {
		failure = string(out.Failure.Kind)
	}
	if e.observer != nil {
		e.observer.ObserveScan(string(out.Kind), failure, elapsed)
	}
	if e.recorder == nil {
		return
	}

	entry := &models.ScanLog{
		RequestID:      out.RequestID,
		AccountID:      out.AccountID,
		Outcome:        string(out.Kind),
		Decision:       string(out.Decision),
		Risk:           out.Risk,
		FailureKind:    failure,
		ResponseTimeMs: int(elapsed.Milliseconds()),
		RequestSize:    int64(size),
		Timestamp:      start,
	}
	if out.Failure != nil {
		entry.StatusCode = out.Failure.StatusCode
	}

	go func() {
		bg, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := e.recorder.LogScan(bg, entry); err != nil {
			logging.FromContext(ctx).Warn("Failed to record scan", zap.Error(err))
		}
	}()
}
