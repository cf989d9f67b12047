package httpapi

import (
	"context"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/hatchflow/provisioning/internal/errors"
	"github.com/hatchflow/provisioning/internal/httputil"
)

type contextKey string

const identityKey contextKey = "identity"

// Identity is the authenticated caller extracted from the bearer token.
type Identity struct {
	TenantID string
	Email    string
}

// IdentityFromContext returns the caller identity, if authentication ran.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey).(Identity)
	return id, ok
}

type tenantClaims struct {
	TenantID string `json:"tenant_id"`
	Email    string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// authenticate validates the HS256 bearer token and stores the tenant
// identity on the request context.
func (h *Handler) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			httputil.WriteServiceError(w, errors.Unauthorized("missing bearer token"))
			return
		}
		raw := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))

		claims := &tenantClaims{}
		token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, errors.Unauthorized("unexpected signing method")
			}
			return h.jwtSecret, nil
		})
		if err != nil || !token.Valid {
			h.log.WithError(err).Debug("token validation failed")
			httputil.WriteServiceError(w, errors.Unauthorized("invalid token"))
			return
		}
		if claims.TenantID == "" {
			httputil.WriteServiceError(w, errors.Unauthorized("token missing tenant_id claim"))
			return
		}

		identity := Identity{TenantID: claims.TenantID, Email: claims.Email}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), identityKey, identity)))
	})
}
