package http

import (
	"context"
	"net/http"
	"strings"

	"github.com/wanderpath/booking-api/internal/identity"
)

type principalKey struct{}

// WithIdentity resolves an optional bearer credential to a principal and
// stores it on the request context. Verification failures are treated as
// anonymous; endpoints decide what anonymity means for them.
func WithIdentity(verifier identity.Verifier, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		credential := bearerToken(r)
		if credential != "" {
			if principal, err := verifier.Verify(r.Context(), credential); err == nil && principal != "" {
				r = r.WithContext(context.WithValue(r.Context(), principalKey{}, principal))
			}
		}
		next.ServeHTTP(w, r)
	})
}

// PrincipalFromContext returns the verified principal id, or "" for anonymous.
func PrincipalFromContext(ctx context.Context) string {
	principal, _ := ctx.Value(principalKey{}).(string)
	return principal
}

func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(auth, prefix) {
		return ""
	}
	return strings.TrimSpace(auth[len(prefix):])
}
