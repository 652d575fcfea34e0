package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const secret = "test-secret"

func TestTokenRoundTrip(t *testing.T) {
	token, err := GenerateToken("transport", RoleTransport, secret, time.Hour)
	require.NoError(t, err)

	claims, err := ValidateToken(token, secret)
	require.NoError(t, err)
	assert.Equal(t, RoleTransport, claims.Role)
	assert.Equal(t, "transport", claims.Subject)
}

func TestValidateToken_Rejects(t *testing.T) {
	token, err := GenerateToken("x", RoleAdmin, secret, time.Hour)
	require.NoError(t, err)
	_, err = ValidateToken(token, "other-secret")
	assert.ErrorIs(t, err, ErrInvalidToken)

	expired, err := GenerateToken("x", RoleAdmin, secret, -time.Minute)
	require.NoError(t, err)
	_, err = ValidateToken(expired, secret)
	assert.ErrorIs(t, err, ErrInvalidToken)

	bogus, err := GenerateToken("x", Role("root"), secret, time.Hour)
	require.NoError(t, err)
	_, err = ValidateToken(bogus, secret)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestIssuer_Exchange(t *testing.T) {
	issuer := NewIssuer(secret, "transport-key", "admin-key")

	_, role, err := issuer.Exchange("admin-key")
	require.NoError(t, err)
	assert.Equal(t, RoleAdmin, role)

	token, role, err := issuer.Exchange("transport-key")
	require.NoError(t, err)
	assert.Equal(t, RoleTransport, role)
	claims, err := ValidateToken(token, secret)
	require.NoError(t, err)
	assert.Equal(t, RoleTransport, claims.Role)

	_, _, err = issuer.Exchange("guess")
	assert.ErrorIs(t, err, ErrUnknownAPIKey)

	empty := NewIssuer(secret, "", "")
	_, _, err = empty.Exchange("")
	assert.ErrorIs(t, err, ErrUnknownAPIKey, "unset keys never match")
}

func TestMiddleware(t *testing.T) {
	m := NewMiddleware(secret)
	handler := m.Authenticate(RequireRole(RoleAdmin)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, IsAdmin(r.Context()))
		w.WriteHeader(http.StatusNoContent)
	})))

	adminToken, err := GenerateToken("admin", RoleAdmin, secret, time.Hour)
	require.NoError(t, err)
	transportToken, err := GenerateToken("transport", RoleTransport, secret, time.Hour)
	require.NoError(t, err)

	cases := []struct {
		name   string
		header string
		want   int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"malformed", "Token abc", http.StatusUnauthorized},
		{"invalid", "Bearer abc", http.StatusUnauthorized},
		{"wrong role", "Bearer " + transportToken, http.StatusForbidden},
		{"admin", "Bearer " + adminToken, http.StatusNoContent},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/admin/accounts", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			assert.Equal(t, tc.want, rec.Code)
		})
	}
}
