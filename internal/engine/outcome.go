package engine

import (
	"errors"
	"time"

	"github.com/HanTheDev/scan-gateway/internal/analysis"
	"github.com/HanTheDev/scan-gateway/internal/quota"
)

// Kind is the terminal state of one scan request.
type Kind string

const (
	KindScanned       Kind = "scanned"
	KindRateDenied    Kind = "rate_denied"
	KindQuotaDenied   Kind = "quota_denied"
	KindRemoteFailed  Kind = "remote_failed"
	KindStorageFailed Kind = "storage_failed"
	KindInvalid       Kind = "invalid"
	KindCanceled      Kind = "canceled"
)

type FailureKind string

const (
	FailureTimeout         FailureKind = "timeout"
	FailureTransport       FailureKind = "transport"
	FailurePaymentRequired FailureKind = "payment_required"
	FailureRemote          FailureKind = "remote"
	FailureStorage         FailureKind = "storage"
)

// Failure describes why a request did not produce a verdict.
type Failure struct {
	Kind       FailureKind `json:"kind"`
	StatusCode int         `json:"statusCode,omitempty"`
	Detail     string      `json:"detail"`
	Retryable  bool        `json:"retryable"`
}

// Outcome is what the engine hands back to the transport for rendering.
type Outcome struct {
	RequestID      string            `json:"requestId"`
	AccountID      string            `json:"accountId"`
	Kind           Kind              `json:"kind"`
	Decision       analysis.Decision `json:"decision,omitempty"`
	Risk           string            `json:"risk,omitempty"`
	Reason         string            `json:"reason,omitempty"`
	Summary        string            `json:"summary,omitempty"`
	Findings       int               `json:"findings,omitempty"`
	ScansRemaining quota.Remaining   `json:"scansRemaining"`
	RetryAfter     time.Duration     `json:"-"`
	RetryAfterMs   int64             `json:"retryAfterMs,omitempty"`
	Failure        *Failure          `json:"failure,omitempty"`
	Err            error             `json:"-"`
}

func (o *Outcome) setVerdict(r *analysis.Result) {
	o.Decision = r.Decision
	o.Risk = r.OverallRisk
	o.Reason = r.Reason
	o.Summary = r.Summary
	o.Findings = r.Findings
}

func (o *Outcome) fail(kind Kind, f *Failure, err error) *Outcome {
	o.Kind = kind
	o.Failure = f
	o.Err = err
	return o
}

// classifyRemote maps an analysis error onto a failure description.
func classifyRemote(err error) *Failure {
	var remote *analysis.RemoteError
	switch {
	case errors.Is(err, analysis.ErrTimeout):
		return &Failure{Kind: FailureTimeout, Detail: err.Error(), Retryable: true}
	case errors.Is(err, analysis.ErrPaymentRequired):
		return &Failure{Kind: FailurePaymentRequired, StatusCode: 402, Detail: err.Error()}
	case errors.As(err, &remote):
		return &Failure{
			Kind:       FailureRemote,
			StatusCode: remote.StatusCode,
			Detail:     err.Error(),
			Retryable:  remote.StatusCode >= 500,
		}
	default:
		return &Failure{Kind: FailureTransport, Detail: err.Error(), Retryable: true}
	}
}
