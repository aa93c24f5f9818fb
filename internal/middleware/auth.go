package middleware

import (
	"net/http"
	"strings"

	"github.com/hongminglow/shopdesk-auth/internal/auth"
	"github.com/hongminglow/shopdesk-auth/internal/http/respond"
)

// Authenticator resolves a bearer token.
type Authenticator interface {
	Authenticate(token string) (auth.Identity, error)
}

// Authenticate rejects requests without a valid bearer token and stores the
// caller's identity on the request context. Expired, tampered and foreign
// tokens all get the same response.
func Authenticate(authn Authenticator) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				respond.Error(w, http.StatusUnauthorized, "No token provided")
				return
			}
			id, err := authn.Authenticate(token)
			if err != nil {
				respond.Error(w, http.StatusUnauthorized, "Invalid or expired token")
				return
			}
			next.ServeHTTP(w, r.WithContext(auth.WithIdentity(r.Context(), id)))
		})
	}
}

func bearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
