package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"

	"github.com/tempo/storefront-service/internal/domain"
)

type contextKey string

const clerkUserContextKey contextKey = "clerkUser"

// sessionCookieName is the cookie Clerk's frontend SDK keeps the session JWT in.
const sessionCookieName = "__session"

// ErrInvalidToken is returned for any token that fails verification.
var ErrInvalidToken = errors.New("invalid session token")

// TokenVerifier turns a session token into the user it belongs to.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (*domain.UserRef, error)
}

// ClerkVerifier validates RS256 Clerk session JWTs against the instance JWKS.
type ClerkVerifier struct {
	keyfunc  func(ctx context.Context) jwt.Keyfunc
	issuer   string
	audience string
}

// NewClerkVerifier fetches the JWKS and keeps it refreshed in the background
// until ctx is done.
func NewClerkVerifier(ctx context.Context, jwksURL, issuer, audience string) (*ClerkVerifier, error) {
	if strings.TrimSpace(jwksURL) == "" {
		return nil, errors.New("clerk JWKS URL is required")
	}
	jwks, err := keyfunc.NewDefaultCtx(ctx, []string{jwksURL})
	if err != nil {
		return nil, fmt.Errorf("fetch JWKS from %s: %w", jwksURL, err)
	}
	return newClerkVerifier(jwks.KeyfuncCtx, issuer, audience), nil
}

func newClerkVerifier(kf func(ctx context.Context) jwt.Keyfunc, issuer, audience string) *ClerkVerifier {
	return &ClerkVerifier{
		keyfunc:  kf,
		issuer:   strings.TrimSpace(issuer),
		audience: strings.TrimSpace(audience),
	}
}

// Verify parses and validates the token and returns the Clerk user it names.
func (v *ClerkVerifier) Verify(ctx context.Context, tokenString string) (*domain.UserRef, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{"RS256"}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(30 * time.Second),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}
	if v.audience != "" {
		opts = append(opts, jwt.WithAudience(v.audience))
	}

	claims := jwt.MapClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, v.keyfunc(ctx), opts...)
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}

	sub := strings.TrimSpace(claimStr(claims, "sub"))
	if sub == "" {
		return nil, ErrInvalidToken
	}

	return &domain.UserRef{
		ID:    sub,
		Name:  extractNameClaim(claims),
		Email: extractEmailClaim(claims),
	}, nil
}

func claimStr(claims jwt.MapClaims, key string) string {
	v, _ := claims[key].(string)
	return v
}

func extractNameClaim(claims jwt.MapClaims) string {
	switch {
	case claimStr(claims, "name") != "":
		return strings.TrimSpace(claimStr(claims, "name"))
	case claimStr(claims, "first_name") != "" || claimStr(claims, "last_name") != "":
		return strings.TrimSpace(claimStr(claims, "first_name") + " " + claimStr(claims, "last_name"))
	default:
		return strings.TrimSpace(claimStr(claims, "username"))
	}
}

func extractEmailClaim(claims jwt.MapClaims) string {
	candidates := []string{"email", "email_address", "primary_email_address"}
	for _, key := range candidates {
		if trimmed := strings.ToLower(strings.TrimSpace(claimStr(claims, key))); trimmed != "" {
			return trimmed
		}
	}

	if nested, ok := claims["https://clerk.dev/claims"].(map[string]any); ok {
		for _, key := range candidates {
			if value, ok := nested[key].(string); ok {
				if trimmed := strings.ToLower(strings.TrimSpace(value)); trimmed != "" {
					return trimmed
				}
			}
		}
	}
	return ""
}

// sessionToken returns the bearer token, falling back to Clerk's session cookie.
func sessionToken(r *http.Request) string {
	if authHeader := strings.TrimSpace(r.Header.Get("Authorization")); authHeader != "" {
		if token, ok := bearerToken(authHeader); ok {
			return token
		}
		return ""
	}
	if cookie, err := r.Cookie(sessionCookieName); err == nil {
		return strings.TrimSpace(cookie.Value)
	}
	return ""
}

func bearerToken(authHeader string) (string, bool) {
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", false
	}

	token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	if token == "" {
		return "", false
	}

	return token, true
}

// OptionalAuth puts the verified user into the request context when the request
// carries a valid session. Anonymous and invalid sessions pass through unchanged.
func OptionalAuth(verifier TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := sessionToken(r)
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}
			user, err := verifier.Verify(r.Context(), token)
			if err != nil {
				next.ServeHTTP(w, r)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), *user)))
		})
	}
}

// RequireAuth rejects requests that OptionalAuth could not attach a user to.
func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := UserFromContext(r.Context()); !ok {
			http.Error(w, "Authorization required", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// WithUser stores the authenticated user in ctx.
func WithUser(ctx context.Context, user domain.UserRef) context.Context {
	return context.WithValue(ctx, clerkUserContextKey, user)
}

// UserFromContext returns the authenticated user from request context.
func UserFromContext(ctx context.Context) (domain.UserRef, bool) {
	user, ok := ctx.Value(clerkUserContextKey).(domain.UserRef)
	return user, ok && user.ID != ""
}
