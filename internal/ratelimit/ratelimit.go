// Package ratelimit implements the per-account fixed-window request throttle.
//
// The window lives on the account record, so the limiter itself is stateless:
// callers load the record, call CheckAndConsume, and persist the mutated window
// whatever the decision was.
package ratelimit

import (
	"time"

	"github.com/HanTheDev/scan-gateway/internal/models"
)

// Decision is the result of one throttle check.
type Decision struct {
	Allowed    bool
	RetryAfter time.Duration
	Remaining  int
	ResetAt    time.Time
}

// Limiter holds the window policy shared by all accounts.
type Limiter struct {
	Window      time.Duration
	MaxRequests int
}

func NewLimiter(window time.Duration, maxRequests int) *Limiter {
	return &Limiter{Window: window, MaxRequests: maxRequests}
}

// Allow applies the limiter's policy to w.
func (l *Limiter) Allow(w *models.RateWindow, now time.Time) Decision {
	return CheckAndConsume(w, now, l.Window, l.MaxRequests)
}

// CheckAndConsume opens a new window when none is active (or the active one is
// older than window), otherwise counts the request against it. A request is
// denied once count has reached maxRequests; denied requests leave w untouched.
// maxRequests <= 0 disables throttling.
func CheckAndConsume(w *models.RateWindow, now time.Time, window time.Duration, maxRequests int) Decision {
	if maxRequests <= 0 {
		return Decision{Allowed: true, Remaining: -1}
	}

	nowMs := now.UnixMilli()
	windowMs := window.Milliseconds()

	if w.WindowStart == 0 || nowMs-w.WindowStart > windowMs {
		w.WindowStart = nowMs
		w.Count = 1
		return Decision{
			Allowed:   true,
			Remaining: maxRequests - 1,
			ResetAt:   resetAt(w, window),
		}
	}

	if w.Count >= maxRequests {
		retry := windowMs - (nowMs - w.WindowStart)
		if retry < 0 {
			retry = 0
		}
		return Decision{
			Allowed:    false,
			RetryAfter: time.Duration(retry) * time.Millisecond,
			ResetAt:    resetAt(w, window),
		}
	}

	w.Count++
	return Decision{
		Allowed:   true,
		Remaining: maxRequests - w.Count,
		ResetAt:   resetAt(w, window),
	}
}

func resetAt(w *models.RateWindow, window time.Duration) time.Time {
	return time.UnixMilli(w.WindowStart).Add(window)
}
