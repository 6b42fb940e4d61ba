package middlewares

import (
	"encoding/json"
	"net/http"
	"strings"

	jwtx "github.com/jalgreatworks0/clientforge-auth/internal/jwt"
)

// envelope mínimo; el mismo shape que usa el paquete http de arriba.
func writeErr(w http.ResponseWriter, status int, code, desc string, errCode int) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	rid := w.Header().Get("X-Request-ID")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error":             code,
		"error_description": desc,
		"error_code":        errCode,
		"request_id":        rid,
	})
}

// RequireAuth valida Authorization: Bearer <JWT> y guarda sub/tid en el
// contexto. Token inválido o ausente responde 401.
func RequireAuth(issuer *jwtx.Issuer) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ah := strings.TrimSpace(r.Header.Get("Authorization"))
			if ah == "" || !strings.HasPrefix(strings.ToLower(ah), "bearer ") {
				w.Header().Set("WWW-Authenticate", `Bearer realm="api", error="invalid_token", error_description="missing bearer token"`)
				writeErr(w, http.StatusUnauthorized, "token_missing", "falta bearer token", 1401)
				return
			}
			raw := strings.TrimSpace(ah[len("Bearer "):])

			claims, err := issuer.Parse(raw)
			if err != nil {
				w.Header().Set("WWW-Authenticate", `Bearer realm="api", error="invalid_token"`)
				writeErr(w, http.StatusUnauthorized, "token_invalid", "token inválido o expirado", 1402)
				return
			}

			ctx := r.Context()
			if sub, _ := claims["sub"].(string); sub != "" {
				ctx = WithUserID(ctx, sub)
			}
			if tid, _ := claims["tid"].(string); tid != "" {
				ctx = WithTenantID(ctx, tid)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAdminKey protege los endpoints de administración con una API key
// estática (header X-Admin-Key). Vacía == administración deshabilitada.
func RequireAdminKey(key string) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if key == "" {
				writeErr(w, http.StatusForbidden, "admin_disabled", "API de administración deshabilitada", 1403)
				return
			}
			got := strings.TrimSpace(r.Header.Get("X-Admin-Key"))
			if got == "" || !constantTimeEq(got, key) {
				writeErr(w, http.StatusForbidden, "admin_forbidden", "API key inválida", 1403)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
