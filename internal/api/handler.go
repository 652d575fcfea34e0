// Package api is the HTTP surface the chat transport talks to.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/HanTheDev/scan-gateway/internal/auth"
	"github.com/HanTheDev/scan-gateway/internal/billing"
	"github.com/HanTheDev/scan-gateway/internal/engine"
	"github.com/HanTheDev/scan-gateway/internal/logging"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

const Version = "1.0.0"

// maxBodyBytes bounds any inbound JSON body.
const maxBodyBytes = 1 << 20

type Handler struct {
	engine  *engine.Engine
	billing *billing.Service
	issuer  *auth.Issuer
}

func NewHandler(eng *engine.Engine, bill *billing.Service, issuer *auth.Issuer) *Handler {
	return &Handler{engine: eng, billing: bill, issuer: issuer}
}

// RegisterRoutes mounts the public and token-protected routes on router.
func (h *Handler) RegisterRoutes(router *mux.Router, authMiddleware *auth.Middleware) {
	router.HandleFunc("/health", h.Health).Methods("GET")
	router.HandleFunc("/auth/token", h.Token).Methods("POST")

	v1 := router.PathPrefix("/v1").Subrouter()
	v1.Use(authMiddleware.Authenticate, auth.RequireRole(auth.RoleTransport, auth.RoleAdmin))
	v1.HandleFunc("/scans", h.Scan).Methods("POST")
	v1.HandleFunc("/accounts/{id}/balance", h.Balance).Methods("GET")
	v1.HandleFunc("/accounts/{id}/payments", h.RequestPayment).Methods("POST")
	v1.HandleFunc("/payments/{paymentId}/submit", h.SubmitPayment).Methods("POST")
}

type scanRequest struct {
	AccountID  string `json:"accountId"`
	Text       string `json:"text"`
	Privileged bool   `json:"privileged"`
}

func (h *Handler) Scan(w http.ResponseWriter, r *http.Request) {
	var req scanRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request")
		return
	}

	out := h.engine.Scan(r.Context(), engine.Submission{
		AccountID:  req.AccountID,
		Text:       req.Text,
		Privileged: req.Privileged && auth.IsAdmin(r.Context()),
	})

	status := StatusFor(out)
	if out.Kind == engine.KindRateDenied {
		w.Header().Set("Retry-After", retryAfterSeconds(out))
	}
	writeJSON(w, status, out)
}

func (h *Handler) Balance(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	balance, err := h.engine.Balance(r.Context(), id)
	if err != nil {
		logging.FromContext(r.Context()).Error("Balance lookup failed", zap.String("account_id", id), zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, "Failed to load balance")
		return
	}
	writeJSON(w, http.StatusOK, balance)
}

func (h *Handler) RequestPayment(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	payment, err := h.billing.Request(r.Context(), id)
	if err != nil {
		writeBillingError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, payment)
}

func (h *Handler) SubmitPayment(w http.ResponseWriter, r *http.Request) {
	paymentID := mux.Vars(r)["paymentId"]

	var req struct {
		AccountID string `json:"accountId"`
		TxHash    string `json:"txHash"`
	}
	if err := decodeJSON(w, r, &req); err != nil || req.AccountID == "" {
		writeError(w, http.StatusBadRequest, "accountId and txHash are required")
		return
	}

	payment, err := h.billing.Submit(r.Context(), req.AccountID, paymentID, strings.TrimSpace(req.TxHash))
	if err != nil {
		writeBillingError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, payment)
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	resp := map[string]string{
		"status":   "healthy",
		"version":  Version,
		"analysis": "ok",
	}
	if err := h.engine.ServiceHealth(r.Context()); err != nil {
		resp["status"] = "degraded"
		resp["analysis"] = err.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) Token(w http.ResponseWriter, r *http.Request) {
	var req struct {
		APIKey string `json:"apiKey"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request")
		return
	}

	token, role, err := h.issuer.Exchange(req.APIKey)
	if err != nil {
		if errors.Is(err, auth.ErrUnknownAPIKey) {
			writeError(w, http.StatusUnauthorized, "Invalid API key")
			return
		}
		logging.FromContext(r.Context()).Error("Token generation failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to generate token")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"token":     token,
		"role":      role,
		"expiresIn": int(h.issuer.TTL().Seconds()),
	})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	return json.NewDecoder(r.Body).Decode(v)
}

func writeBillingError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, billing.ErrInvalidTxHash), errors.Is(err, billing.ErrInvalidAccount):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, billing.ErrPaymentNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, billing.ErrPaymentState):
		writeError(w, http.StatusConflict, err.Error())
	default:
		logging.FromContext(r.Context()).Error("Payment operation failed", zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, "Failed to update payment")
	}
}
