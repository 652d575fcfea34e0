package analysis

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrTimeout         = errors.New("analysis timed out")
	ErrTransport       = errors.New("analysis service unreachable")
	ErrPaymentRequired = errors.New("analysis service requires payment")
	ErrRemote          = errors.New("analysis service error")
)

// TimeoutError means the call was aborted after the configured timeout.
type TimeoutError struct {
	Timeout time.Duration
	Err     error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("analysis timed out after %v", e.Timeout)
}

func (e *TimeoutError) Unwrap() error        { return e.Err }
func (e *TimeoutError) Is(target error) bool { return target == ErrTimeout }

// TransportError is any network-level failure before a response arrived.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("analysis transport: %v", e.Err)
}

func (e *TransportError) Unwrap() error        { return e.Err }
func (e *TransportError) Is(target error) bool { return target == ErrTransport }

// PaymentRequiredError is an HTTP 402 from the analysis service. It means the
// shared secret was not honoured, not that the end user must pay.
type PaymentRequiredError struct {
	Body string
}

func (e *PaymentRequiredError) Error() string {
	return "analysis service returned 402: check the shared secret on both services"
}

func (e *PaymentRequiredError) Is(target error) bool { return target == ErrPaymentRequired }

// RemoteError is any other unusable response.
type RemoteError struct {
	StatusCode int
	Body       string
}

func (e *RemoteError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("analysis service error (%d)", e.StatusCode)
	}
	return fmt.Sprintf("analysis service error (%d): %s", e.StatusCode, e.Body)
}

func (e *RemoteError) Is(target error) bool { return target == ErrRemote }
