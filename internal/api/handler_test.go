package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/HanTheDev/scan-gateway/internal/analysis"
	"github.com/HanTheDev/scan-gateway/internal/auth"
	"github.com/HanTheDev/scan-gateway/internal/billing"
	"github.com/HanTheDev/scan-gateway/internal/engine"
	"github.com/HanTheDev/scan-gateway/internal/store"
	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const jwtSecret = "api-test-secret"

type stubAnalyzer struct {
	mu        sync.Mutex
	err       error
	healthErr error
}

func (s *stubAnalyzer) Analyze(ctx context.Context, code string) (*analysis.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	return &analysis.Result{Decision: analysis.DecisionWarn, OverallRisk: "Medium", Findings: 1}, nil
}

func (s *stubAnalyzer) Health(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.healthErr
}

func (s *stubAnalyzer) fail(analyzeErr, healthErr error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err, s.healthErr = analyzeErr, healthErr
}

type testServer struct {
	server         *httptest.Server
	analyzer       *stubAnalyzer
	transportToken string
	adminToken     string
}

func newTestServer(t *testing.T, policy engine.Policy) *testServer {
	t.Helper()

	repo := store.NewRepository(store.NewMemoryStore())
	sa := &stubAnalyzer{}
	eng := engine.New(repo, sa, policy)
	bill := billing.NewService(repo, billing.Terms{Price: decimal.RequireFromString("0.25"), Currency: "USDC", PayTo: "0xabc"})
	issuer := auth.NewIssuer(jwtSecret, "transport-key", "admin-key")

	router := mux.NewRouter()
	router.Use(RequestContext)
	NewHandler(eng, bill, issuer).RegisterRoutes(router, auth.NewMiddleware(jwtSecret))

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	transportToken, err := auth.GenerateToken("transport", auth.RoleTransport, jwtSecret, time.Hour)
	require.NoError(t, err)
	adminToken, err := auth.GenerateToken("admin", auth.RoleAdmin, jwtSecret, time.Hour)
	require.NoError(t, err)

	return &testServer{server: srv, analyzer: sa, transportToken: transportToken, adminToken: adminToken}
}

func (ts *testServer) do(t *testing.T, method, path, token string, body any) (*http.Response, map[string]any) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, ts.server.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp, out
}

func defaultPolicy() engine.Policy {
	return engine.Policy{
		FreeScanLimit:               2,
		RateWindow:                  time.Minute,
		RateMaxRequests:             10,
		PrivilegedAccountID:         "owner",
		PrivilegedBypassesRateLimit: true,
	}
}

func TestScan_SuccessThenQuotaDenied(t *testing.T) {
	ts := newTestServer(t, defaultPolicy())

	resp, body := ts.do(t, "POST", "/v1/scans", ts.transportToken, scanRequest{AccountID: "42", Text: "code"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "scanned", body["kind"])
	assert.Equal(t, "WARN", body["decision"])
	assert.Equal(t, float64(1), body["scansRemaining"])
	assert.NotEmpty(t, resp.Header.Get(RequestIDHeader))
	assert.Equal(t, resp.Header.Get(RequestIDHeader), body["requestId"])

	ts.do(t, "POST", "/v1/scans", ts.transportToken, scanRequest{AccountID: "42", Text: "code"})
	resp, body = ts.do(t, "POST", "/v1/scans", ts.transportToken, scanRequest{AccountID: "42", Text: "code"})
	assert.Equal(t, http.StatusPaymentRequired, resp.StatusCode)
	assert.Equal(t, "quota_denied", body["kind"])
	assert.Equal(t, float64(0), body["scansRemaining"])
}

func TestScan_RateDeniedSetsRetryAfter(t *testing.T) {
	policy := defaultPolicy()
	policy.RateMaxRequests = 1
	ts := newTestServer(t, policy)

	ts.do(t, "POST", "/v1/scans", ts.transportToken, scanRequest{AccountID: "42", Text: "code"})
	resp, body := ts.do(t, "POST", "/v1/scans", ts.transportToken, scanRequest{AccountID: "42", Text: "code"})

	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, "rate_denied", body["kind"])
	assert.Equal(t, "60", resp.Header.Get("Retry-After"))
}

func TestScan_RemoteFailures(t *testing.T) {
	cases := []struct {
		err  error
		want int
		kind string
	}{
		{&analysis.TimeoutError{Timeout: time.Second, Err: context.DeadlineExceeded}, http.StatusGatewayTimeout, "timeout"},
		{&analysis.TransportError{Err: errors.New("refused")}, http.StatusBadGateway, "transport"},
		{&analysis.PaymentRequiredError{}, http.StatusBadGateway, "payment_required"},
		{&analysis.RemoteError{StatusCode: 500}, http.StatusBadGateway, "remote"},
	}

	for _, tc := range cases {
		t.Run(tc.kind, func(t *testing.T) {
			ts := newTestServer(t, defaultPolicy())
			ts.analyzer.fail(tc.err, nil)

			resp, body := ts.do(t, "POST", "/v1/scans", ts.transportToken, scanRequest{AccountID: "42", Text: "code"})
			assert.Equal(t, tc.want, resp.StatusCode)
			assert.Equal(t, "remote_failed", body["kind"])
			failure, ok := body["failure"].(map[string]any)
			require.True(t, ok)
			assert.Equal(t, tc.kind, failure["kind"])
		})
	}
}

func TestScan_InvalidAndUnauthorized(t *testing.T) {
	ts := newTestServer(t, defaultPolicy())

	resp, _ := ts.do(t, "POST", "/v1/scans", ts.transportToken, scanRequest{AccountID: "42", Text: "  "})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = ts.do(t, "POST", "/v1/scans", "", scanRequest{AccountID: "42", Text: "code"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestScan_PrivilegedFlagOnlyForAdmins(t *testing.T) {
	policy := defaultPolicy()
	policy.FreeScanLimit = 0
	ts := newTestServer(t, policy)

	resp, _ := ts.do(t, "POST", "/v1/scans", ts.transportToken, scanRequest{AccountID: "42", Text: "code", Privileged: true})
	assert.Equal(t, http.StatusPaymentRequired, resp.StatusCode)

	resp, body := ts.do(t, "POST", "/v1/scans", ts.adminToken, scanRequest{AccountID: "42", Text: "code", Privileged: true})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "unlimited", body["scansRemaining"])
}

func TestBalance(t *testing.T) {
	ts := newTestServer(t, defaultPolicy())

	resp, body := ts.do(t, "GET", "/v1/accounts/42/balance", ts.transportToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "42", body["accountId"])
	assert.Equal(t, float64(2), body["scansRemaining"])
	assert.Equal(t, false, body["isPaid"])

	_, body = ts.do(t, "GET", "/v1/accounts/owner/balance", ts.transportToken, nil)
	assert.Equal(t, "unlimited", body["scansRemaining"])
}

func TestPayments(t *testing.T) {
	ts := newTestServer(t, defaultPolicy())

	resp, body := ts.do(t, "POST", "/v1/accounts/42/payments", ts.transportToken, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "pending", body["status"])
	assert.Equal(t, "0.25", body["amount"])
	paymentID, _ := body["id"].(string)
	require.Len(t, paymentID, 12)

	resp, _ = ts.do(t, "POST", "/v1/payments/"+paymentID+"/submit", ts.transportToken,
		map[string]string{"accountId": "42", "txHash": "0x1"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	hash := "0x" + strings.Repeat("0f", 32)
	resp, _ = ts.do(t, "POST", "/v1/payments/"+paymentID+"/submit", ts.transportToken,
		map[string]string{"accountId": "7", "txHash": hash})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, body = ts.do(t, "POST", "/v1/payments/"+paymentID+"/submit", ts.transportToken,
		map[string]string{"accountId": "42", "txHash": hash})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "submitted", body["status"])

	resp, _ = ts.do(t, "POST", "/v1/payments/"+paymentID+"/submit", ts.transportToken,
		map[string]string{"accountId": "42", "txHash": hash})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, defaultPolicy())

	resp, body := ts.do(t, "GET", "/health", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "healthy", body["status"])

	ts.analyzer.fail(nil, errors.New("down"))
	_, body = ts.do(t, "GET", "/health", "", nil)
	assert.Equal(t, "degraded", body["status"])
	assert.Equal(t, "down", body["analysis"])
}

func TestToken(t *testing.T) {
	ts := newTestServer(t, defaultPolicy())

	resp, body := ts.do(t, "POST", "/auth/token", "", map[string]string{"apiKey": "transport-key"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "transport", body["role"])
	token, _ := body["token"].(string)

	resp, _ = ts.do(t, "GET", "/v1/accounts/42/balance", token, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = ts.do(t, "POST", "/auth/token", "", map[string]string{"apiKey": "nope"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusServiceUnavailable, StatusFor(&engine.Outcome{Kind: engine.KindStorageFailed}))
	assert.Equal(t, http.StatusRequestTimeout, StatusFor(&engine.Outcome{Kind: engine.KindCanceled}))
	assert.Equal(t, http.StatusBadGateway, StatusFor(&engine.Outcome{Kind: engine.KindRemoteFailed}))
}

func TestRetryAfterSeconds(t *testing.T) {
	assert.Equal(t, "105", retryAfterSeconds(&engine.Outcome{RetryAfterMs: 105000}))
	assert.Equal(t, "2", retryAfterSeconds(&engine.Outcome{RetryAfterMs: 1001}))
	assert.Equal(t, "1", retryAfterSeconds(&engine.Outcome{}))
}
