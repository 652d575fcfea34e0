package admin

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/HanTheDev/scan-gateway/internal/analysis"
	"github.com/HanTheDev/scan-gateway/internal/auth"
	"github.com/HanTheDev/scan-gateway/internal/billing"
	"github.com/HanTheDev/scan-gateway/internal/engine"
	"github.com/HanTheDev/scan-gateway/internal/models"
	"github.com/HanTheDev/scan-gateway/internal/store"
	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const jwtSecret = "admin-test-secret"

type okAnalyzer struct{}

func (okAnalyzer) Analyze(ctx context.Context, code string) (*analysis.Result, error) {
	return &analysis.Result{Decision: analysis.DecisionAllow, OverallRisk: "Low"}, nil
}

func (okAnalyzer) Health(ctx context.Context) error { return nil }

type fakeStats struct {
	from, to string
	err      error
}

func (f *fakeStats) GetScanStats(ctx context.Context, from, to string) ([]models.ScanStats, error) {
	f.from, f.to = from, to
	if f.err != nil {
		return nil, f.err
	}
	return []models.ScanStats{{Outcome: "scanned", Count: 3, AvgTimeMs: 120}}, nil
}

type fixture struct {
	router  *mux.Router
	billing *billing.Service
	engine  *engine.Engine
	token   string
}

func newFixture(t *testing.T, ownerID string, stats StatsSource) *fixture {
	t.Helper()

	repo := store.NewRepository(store.NewMemoryStore())
	eng := engine.New(repo, okAnalyzer{}, engine.Policy{
		FreeScanLimit:       1,
		RateWindow:          time.Minute,
		RateMaxRequests:     10,
		PrivilegedAccountID: ownerID,
	})
	bill := billing.NewService(repo, billing.Terms{Price: decimal.RequireFromString("0.25"), Currency: "USDC", PayTo: "0xabc"})

	router := mux.NewRouter()
	NewAdminHandler(eng, bill, stats, ownerID).RegisterRoutes(router, auth.NewMiddleware(jwtSecret))

	token, err := auth.GenerateToken("admin", auth.RoleAdmin, jwtSecret, time.Hour)
	require.NoError(t, err)
	return &fixture{router: router, billing: bill, engine: eng, token: token}
}

func (f *fixture) do(method, path, token string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func TestAdmin_RequiresAdminRole(t *testing.T) {
	f := newFixture(t, "owner", nil)

	rec := f.do("GET", "/admin/accounts", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	transport, err := auth.GenerateToken("transport", auth.RoleTransport, jwtSecret, time.Hour)
	require.NoError(t, err)
	rec = f.do("GET", "/admin/accounts", transport, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestAdmin_SetPaidUnlocksScans(t *testing.T) {
	f := newFixture(t, "owner", nil)
	ctx := context.Background()

	out := f.engine.Scan(ctx, engine.Submission{AccountID: "42", Text: "code"})
	require.Equal(t, engine.KindScanned, out.Kind)
	out = f.engine.Scan(ctx, engine.Submission{AccountID: "42", Text: "code"})
	require.Equal(t, engine.KindQuotaDenied, out.Kind)

	rec := f.do("POST", "/admin/accounts/42/paid", f.token, map[string]bool{"paid": true})
	require.Equal(t, http.StatusOK, rec.Code)
	var balance map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &balance))
	assert.Equal(t, true, balance["isPaid"])
	assert.Equal(t, "unlimited", balance["scansRemaining"])

	out = f.engine.Scan(ctx, engine.Submission{AccountID: "42", Text: "code"})
	assert.Equal(t, engine.KindScanned, out.Kind)

	rec = f.do("POST", "/admin/accounts/42/paid", f.token, map[string]string{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAdmin_SetUnlimited(t *testing.T) {
	f := newFixture(t, "owner", nil)

	rec := f.do("POST", "/admin/accounts/9/unlimited", f.token, map[string]bool{"unlimited": true})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"isPrivileged":true`)

	rec = f.do("GET", "/admin/accounts", f.token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list, 1)
	assert.Equal(t, "9", list[0]["accountId"])
}

func TestAdmin_GrantsNeedConfiguredOwner(t *testing.T) {
	f := newFixture(t, "", nil)

	rec := f.do("POST", "/admin/accounts/42/paid", f.token, map[string]bool{"paid": true})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestAdmin_ConfirmPayment(t *testing.T) {
	f := newFixture(t, "owner", nil)
	ctx := context.Background()

	p, err := f.billing.Request(ctx, "42")
	require.NoError(t, err)
	_, err = f.billing.Submit(ctx, "42", p.ID, "0x"+strings.Repeat("1a", 32))
	require.NoError(t, err)

	rec := f.do("GET", "/admin/payments?status=submitted", f.token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), p.ID)

	rec = f.do("GET", "/admin/payments?status=bogus", f.token, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do("POST", "/admin/payments/"+p.ID+"/confirm", f.token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"confirmed"`)

	rec = f.do("POST", "/admin/payments/"+p.ID+"/confirm", f.token, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = f.do("POST", "/admin/payments/unknown/confirm", f.token, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do("GET", "/admin/accounts/42", f.token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var detail struct {
		Account  engine.Balance    `json:"account"`
		Payments []*models.Payment `json:"payments"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &detail))
	assert.True(t, detail.Account.IsPaid)
	require.Len(t, detail.Payments, 1)
	assert.Equal(t, models.PaymentConfirmed, detail.Payments[0].Status)
}

func TestAdmin_ScanStats(t *testing.T) {
	f := newFixture(t, "owner", nil)
	rec := f.do("GET", "/admin/scans/stats", f.token, nil)
	assert.Equal(t, http.StatusNotImplemented, rec.Code)

	stats := &fakeStats{}
	f = newFixture(t, "owner", stats)
	rec = f.do("GET", "/admin/scans/stats?from=2026-01-01&to=2026-01-31", f.token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "2026-01-01", stats.from)
	assert.Equal(t, "2026-01-31", stats.to)
	assert.Contains(t, rec.Body.String(), `"outcome":"scanned"`)

	f = newFixture(t, "owner", &fakeStats{err: errors.New("db down")})
	rec = f.do("GET", "/admin/scans/stats", f.token, nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
