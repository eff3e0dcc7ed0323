package middleware

import (
	"net/http"
	"strings"
)

// RequireRole garante que o usuário autenticado possua um dos papéis informados.
func RequireRole(roles ...string) func(http.Handler) http.Handler {
	normalized := make([]string, 0, len(roles))
	for _, role := range roles {
		role = strings.ToLower(strings.TrimSpace(role))
		if role != "" {
			normalized = append(normalized, role)
		}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			current := strings.ToLower(strings.TrimSpace(GetRole(r.Context())))
			for _, required := range normalized {
				if current == required {
					next.ServeHTTP(w, r)
					return
				}
			}

			writeError(w, http.StatusForbidden, "FORBIDDEN", "sem acesso")
		})
	}
}
