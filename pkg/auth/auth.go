// Package auth verifies HS256 bearer tokens and resolves the caller
// identity used for ownership checks.
package auth

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"opportunities/pkg/httpx"
)

var (
	ErrNoCredential = errors.New("no bearer credential")
	ErrMalformed    = errors.New("malformed token")
	ErrSignature    = errors.New("signature mismatch")
	ErrExpired      = errors.New("token expired")
	ErrNotActive    = errors.New("token not active")
	ErrNoSubject    = errors.New("no subject claim")
)

// Identity is the canonical shape extracted from verified claims.
type Identity struct {
	ID    string
	Email string
	Role  string
}

type contextKey string

const identityContextKey contextKey = "opportunities.identity"

func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityContextKey, id)
}

func IdentityFromContext(ctx context.Context) (Identity, bool) {
	v := ctx.Value(identityContextKey)
	if v == nil {
		return Identity{}, false
	}
	id, ok := v.(Identity)
	return id, ok
}

// idClaimKeys is the ordered candidate list for the identity claim; first
// present non-empty value wins. The order is part of the contract: tokens
// minted by the upstream identity provider carry user_id, older ones
// userId, standard JWTs sub.
var idClaimKeys = []string{"user_id", "userId", "sub", "id"}

// BearerToken extracts the token from an Authorization header.
func BearerToken(r *http.Request) (string, error) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" {
		return "", ErrNoCredential
	}
	if !strings.HasPrefix(strings.ToLower(header), "bearer ") {
		return "", ErrMalformed
	}
	token := strings.TrimSpace(header[len("Bearer "):])
	if token == "" {
		return "", ErrMalformed
	}
	return token, nil
}

// VerifyHS256 checks signature and validity window, then resolves the
// identity from the claim set.
func VerifyHS256(token, secret string, now time.Time) (Identity, error) {
	if secret == "" {
		return Identity{}, errors.New("secret is required")
	}
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return Identity{}, ErrMalformed
	}
	headerRaw, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		return Identity{}, ErrMalformed
	}
	payloadRaw, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return Identity{}, ErrMalformed
	}
	sig, err := base64.RawURLEncoding.DecodeString(parts[2])
	if err != nil {
		return Identity{}, ErrMalformed
	}
	var header struct {
		Alg string `json:"alg"`
	}
	if err := json.Unmarshal(headerRaw, &header); err != nil {
		return Identity{}, ErrMalformed
	}
	if strings.ToUpper(header.Alg) != "HS256" {
		return Identity{}, ErrMalformed
	}
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte(parts[0] + "." + parts[1]))
	if !hmac.Equal(sig, mac.Sum(nil)) {
		return Identity{}, ErrSignature
	}
	var claims map[string]json.RawMessage
	if err := json.Unmarshal(payloadRaw, &claims); err != nil {
		return Identity{}, ErrMalformed
	}
	exp, err := numericDateClaim(claims, "exp")
	if err != nil {
		return Identity{}, ErrMalformed
	}
	nbf, err := numericDateClaim(claims, "nbf")
	if err != nil {
		return Identity{}, ErrMalformed
	}
	if exp != 0 && now.Unix() >= exp {
		return Identity{}, ErrExpired
	}
	if nbf != 0 && now.Unix() < nbf {
		return Identity{}, ErrNotActive
	}
	identity := Identity{}
	for _, key := range idClaimKeys {
		raw, ok := claims[key]
		if !ok {
			continue
		}
		var v string
		if err := json.Unmarshal(raw, &v); err != nil || strings.TrimSpace(v) == "" {
			continue
		}
		identity.ID = strings.TrimSpace(v)
		break
	}
	if identity.ID == "" {
		return Identity{}, ErrNoSubject
	}
	if raw, ok := claims["email"]; ok {
		_ = json.Unmarshal(raw, &identity.Email)
	}
	if raw, ok := claims["role"]; ok {
		_ = json.Unmarshal(raw, &identity.Role)
	}
	return identity, nil
}

// numericDateClaim reads an RFC 7519 NumericDate, which may carry a
// fractional part. Sub-second precision is truncated; a present but
// non-numeric value is an error, never a skipped check.
func numericDateClaim(claims map[string]json.RawMessage, key string) (int64, error) {
	raw, ok := claims[key]
	if !ok {
		return 0, nil
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err != nil {
		return 0, err
	}
	return int64(f), nil
}

// Middleware guards mutating routes: it rejects requests without a valid
// credential and attaches the resolved identity to the request context.
// Verification has no side effects and no retries; a failed token is
// terminal for the request.
func Middleware(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, err := BearerToken(r)
			if err != nil {
				httpx.Error(w, http.StatusUnauthorized, "authentication required")
				return
			}
			identity, err := VerifyHS256(token, secret, time.Now().UTC())
			if err != nil {
				switch {
				case errors.Is(err, ErrExpired):
					httpx.Error(w, http.StatusUnauthorized, "token expired")
				case errors.Is(err, ErrNotActive):
					httpx.Error(w, http.StatusUnauthorized, "token not active")
				default:
					httpx.Error(w, http.StatusUnauthorized, "invalid token")
				}
				return
			}
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), identity)))
		})
	}
}
