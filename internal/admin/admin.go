package admin

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/HanTheDev/scan-gateway/internal/auth"
	"github.com/HanTheDev/scan-gateway/internal/billing"
	"github.com/HanTheDev/scan-gateway/internal/engine"
	"github.com/HanTheDev/scan-gateway/internal/logging"
	"github.com/HanTheDev/scan-gateway/internal/models"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// StatsSource aggregates the scan audit log. *db.DB implements it.
type StatsSource interface {
	GetScanStats(ctx context.Context, from, to string) ([]models.ScanStats, error)
}

type AdminHandler struct {
	engine  *engine.Engine
	billing *billing.Service
	stats   StatsSource
	actorID string
}

// NewAdminHandler builds the admin surface. Grants are issued as actorID,
// normally the configured privileged account. stats may be nil.
func NewAdminHandler(eng *engine.Engine, bill *billing.Service, stats StatsSource, actorID string) *AdminHandler {
	return &AdminHandler{engine: eng, billing: bill, stats: stats, actorID: actorID}
}

func (h *AdminHandler) RegisterRoutes(router *mux.Router, authMiddleware *auth.Middleware) {
	r := router.PathPrefix("/admin").Subrouter()
	r.Use(authMiddleware.Authenticate, auth.RequireRole(auth.RoleAdmin))

	// Accounts
	r.HandleFunc("/accounts", h.ListAccounts).Methods("GET")
	r.HandleFunc("/accounts/{id}", h.GetAccount).Methods("GET")
	r.HandleFunc("/accounts/{id}/paid", h.SetPaid).Methods("POST")
	r.HandleFunc("/accounts/{id}/unlimited", h.SetUnlimited).Methods("POST")

	// Payments
	r.HandleFunc("/payments", h.ListPayments).Methods("GET")
	r.HandleFunc("/payments/{paymentId}/confirm", h.ConfirmPayment).Methods("POST")

	// Analytics
	r.HandleFunc("/scans/stats", h.GetScanStats).Methods("GET")
}

func (h *AdminHandler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.engine.Balances(r.Context()))
}

func (h *AdminHandler) GetAccount(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	balance, err := h.engine.Balance(r.Context(), id)
	if err != nil {
		logging.FromContext(r.Context()).Error("Failed to load account", zap.String("account_id", id), zap.Error(err))
		http.Error(w, "Failed to load account", http.StatusServiceUnavailable)
		return
	}

	payments := []*models.Payment{}
	for _, p := range h.billing.List(r.Context(), "") {
		if p.AccountID == id {
			payments = append(payments, p)
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"account":  balance,
		"payments": payments,
	})
}

func (h *AdminHandler) SetPaid(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Paid *bool `json:"paid"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Paid == nil {
		http.Error(w, "paid is required", http.StatusBadRequest)
		return
	}

	id := mux.Vars(r)["id"]
	balance, err := h.engine.GrantPaid(r.Context(), h.actorID, id, *req.Paid)
	h.writeGrant(w, r, id, balance, err)
}

func (h *AdminHandler) SetUnlimited(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Unlimited *bool `json:"unlimited"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Unlimited == nil {
		http.Error(w, "unlimited is required", http.StatusBadRequest)
		return
	}

	id := mux.Vars(r)["id"]
	balance, err := h.engine.GrantUnlimited(r.Context(), h.actorID, id, *req.Unlimited)
	h.writeGrant(w, r, id, balance, err)
}

func (h *AdminHandler) writeGrant(w http.ResponseWriter, r *http.Request, id string, balance *engine.Balance, err error) {
	if err != nil {
		if errors.Is(err, engine.ErrNotPrivileged) {
			http.Error(w, "PRIVILEGED_ACCOUNT_ID is not configured", http.StatusForbidden)
			return
		}
		logging.FromContext(r.Context()).Error("Failed to update account", zap.String("account_id", id), zap.Error(err))
		http.Error(w, "Failed to update account", http.StatusServiceUnavailable)
		return
	}

	logging.FromContext(r.Context()).Info("Account updated",
		zap.String("account_id", id),
		zap.Bool("is_paid", balance.IsPaid),
		zap.Bool("is_privileged", balance.IsPrivileged))
	writeJSON(w, http.StatusOK, balance)
}

func (h *AdminHandler) ListPayments(w http.ResponseWriter, r *http.Request) {
	status := models.PaymentStatus(r.URL.Query().Get("status"))
	switch status {
	case "", models.PaymentPending, models.PaymentSubmitted, models.PaymentConfirmed:
	default:
		http.Error(w, "Invalid status", http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, h.billing.List(r.Context(), status))
}

func (h *AdminHandler) ConfirmPayment(w http.ResponseWriter, r *http.Request) {
	paymentID := mux.Vars(r)["paymentId"]

	payment, err := h.billing.Confirm(r.Context(), paymentID)
	switch {
	case errors.Is(err, billing.ErrPaymentNotFound):
		http.Error(w, "Payment not found", http.StatusNotFound)
		return
	case errors.Is(err, billing.ErrPaymentState):
		http.Error(w, err.Error(), http.StatusConflict)
		return
	case err != nil:
		logging.FromContext(r.Context()).Error("Failed to confirm payment", zap.String("payment_id", paymentID), zap.Error(err))
		http.Error(w, "Failed to confirm payment", http.StatusServiceUnavailable)
		return
	}

	writeJSON(w, http.StatusOK, payment)
}

func (h *AdminHandler) GetScanStats(w http.ResponseWriter, r *http.Request) {
	if h.stats == nil {
		http.Error(w, "Scan stats require DATABASE_URL", http.StatusNotImplemented)
		return
	}

	// Get query params for time range
	from := r.URL.Query().Get("from") // e.g., "2024-01-01"
	to := r.URL.Query().Get("to")

	stats, err := h.stats.GetScanStats(r.Context(), from, to)
	if err != nil {
		logging.FromContext(r.Context()).Error("Failed to get scan stats", zap.Error(err))
		http.Error(w, "Failed to get scan stats", http.StatusInternalServerError)
		return
	}
	if stats == nil {
		stats = []models.ScanStats{}
	}

	writeJSON(w, http.StatusOK, stats)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
