package api

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tempo/storefront-service/internal/domain"
)

const testIssuer = "https://clerk.example.com"

func newTestVerifier(t *testing.T, audience string) (*ClerkVerifier, *rsa.PrivateKey) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	kf := func(ctx context.Context) jwt.Keyfunc {
		return func(token *jwt.Token) (any, error) {
			return &key.PublicKey, nil
		}
	}
	return newClerkVerifier(kf, testIssuer, audience), key
}

func signToken(t *testing.T, key *rsa.PrivateKey, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = "test-key"
	signed, err := token.SignedString(key)
	require.NoError(t, err)
	return signed
}

func validClaims() jwt.MapClaims {
	return jwt.MapClaims{
		"sub":   "user_A",
		"iss":   testIssuer,
		"exp":   time.Now().Add(time.Hour).Unix(),
		"iat":   time.Now().Unix(),
		"name":  "Alice",
		"email": "Alice@Example.com",
	}
}

func TestClerkVerifier_Verify(t *testing.T) {
	verifier, key := newTestVerifier(t, "")

	user, err := verifier.Verify(context.Background(), signToken(t, key, validClaims()))
	require.NoError(t, err)
	assert.Equal(t, &domain.UserRef{ID: "user_A", Name: "Alice", Email: "alice@example.com"}, user)
}

func TestClerkVerifier_RejectsBadTokens(t *testing.T) {
	verifier, key := newTestVerifier(t, "storefront")
	otherKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	withAudience := func(mutate func(jwt.MapClaims)) jwt.MapClaims {
		claims := validClaims()
		claims["aud"] = "storefront"
		if mutate != nil {
			mutate(claims)
		}
		return claims
	}

	tests := []struct {
		name  string
		token string
	}{
		{name: "expired", token: signToken(t, key, withAudience(func(c jwt.MapClaims) { c["exp"] = time.Now().Add(-time.Hour).Unix() }))},
		{name: "no expiry", token: signToken(t, key, withAudience(func(c jwt.MapClaims) { delete(c, "exp") }))},
		{name: "wrong issuer", token: signToken(t, key, withAudience(func(c jwt.MapClaims) { c["iss"] = "https://evil.example.com" }))},
		{name: "wrong audience", token: signToken(t, key, withAudience(func(c jwt.MapClaims) { c["aud"] = "other" }))},
		{name: "missing subject", token: signToken(t, key, withAudience(func(c jwt.MapClaims) { delete(c, "sub") }))},
		{name: "wrong key", token: signToken(t, otherKey, withAudience(nil))},
		{name: "garbage", token: "not-a-jwt"},
		{
			name: "hmac",
			token: func() string {
				s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, withAudience(nil)).SignedString([]byte("secret"))
				require.NoError(t, err)
				return s
			}(),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := verifier.Verify(context.Background(), tt.token)
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}

	_, err = verifier.Verify(context.Background(), signToken(t, key, withAudience(nil)))
	assert.NoError(t, err)
}

func TestExtractNameClaim(t *testing.T) {
	assert.Equal(t, "Ada Lovelace", extractNameClaim(jwt.MapClaims{"first_name": "Ada", "last_name": "Lovelace"}))
	assert.Equal(t, "ada", extractNameClaim(jwt.MapClaims{"username": "ada"}))
	assert.Equal(t, "", extractNameClaim(jwt.MapClaims{}))
	assert.Equal(t, "ada@example.com", extractEmailClaim(jwt.MapClaims{
		"https://clerk.dev/claims": map[string]any{"email_address": " ADA@example.com "},
	}))
}

func TestOptionalAuthAndRequireAuth(t *testing.T) {
	verifier, key := newTestVerifier(t, "")
	token := signToken(t, key, validClaims())

	var seen *domain.UserRef
	handler := OptionalAuth(verifier)(RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, _ := UserFromContext(r.Context())
		seen = &user
		w.WriteHeader(http.StatusNoContent)
	})))

	tests := []struct {
		name     string
		prepare  func(r *http.Request)
		wantCode int
	}{
		{name: "bearer", prepare: func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+token) }, wantCode: http.StatusNoContent},
		{name: "session cookie", prepare: func(r *http.Request) { r.AddCookie(&http.Cookie{Name: "__session", Value: token}) }, wantCode: http.StatusNoContent},
		{name: "anonymous", prepare: func(r *http.Request) {}, wantCode: http.StatusUnauthorized},
		{name: "malformed header", prepare: func(r *http.Request) { r.Header.Set("Authorization", "Token "+token) }, wantCode: http.StatusUnauthorized},
		{name: "invalid token", prepare: func(r *http.Request) { r.Header.Set("Authorization", "Bearer nope") }, wantCode: http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seen = nil
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			tt.prepare(req)
			rec := httptest.NewRecorder()

			handler.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantCode, rec.Code)
			if tt.wantCode == http.StatusNoContent {
				require.NotNil(t, seen)
				assert.Equal(t, "user_A", seen.ID)
			} else {
				assert.Nil(t, seen)
			}
		})
	}
}
