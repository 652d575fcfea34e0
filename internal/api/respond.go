package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/HanTheDev/scan-gateway/internal/engine"
)

// StatusFor maps a scan outcome onto the HTTP status returned to the transport.
func StatusFor(out *engine.Outcome) int {
	switch out.Kind {
	case engine.KindScanned:
		return http.StatusOK
	case engine.KindRateDenied:
		return http.StatusTooManyRequests
	case engine.KindQuotaDenied:
		return http.StatusPaymentRequired
	case engine.KindInvalid:
		return http.StatusBadRequest
	case engine.KindStorageFailed:
		return http.StatusServiceUnavailable
	case engine.KindCanceled:
		return http.StatusRequestTimeout
	case engine.KindRemoteFailed:
		if out.Failure != nil && out.Failure.Kind == engine.FailureTimeout {
			return http.StatusGatewayTimeout
		}
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// retryAfterSeconds rounds up so a client that honours the header never
// retries inside the window.
func retryAfterSeconds(out *engine.Outcome) string {
	secs := (out.RetryAfterMs + 999) / 1000
	if secs < 1 {
		secs = 1
	}
	return strconv.FormatInt(secs, 10)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
