// Package handlers implementa los endpoints de /api/v1.
package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/jalgreatworks0/clientforge-auth/internal/app"
	httpx "github.com/jalgreatworks0/clientforge-auth/internal/http/httpx"
	"github.com/jalgreatworks0/clientforge-auth/internal/observability/logger"
	tokens "github.com/jalgreatworks0/clientforge-auth/internal/security/token"
	"github.com/jalgreatworks0/clientforge-auth/internal/store/core"
)

type H struct {
	c *app.Container
}

func New(c *app.Container) *H { return &H{c: c} }

// userView es la proyección pública de core.User.
type userView struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

func viewOf(u *core.User) userView {
	return userView{ID: u.ID, Email: u.Email, Name: u.Name}
}

type sessionResponse struct {
	TokenType    string   `json:"token_type"`
	AccessToken  string   `json:"access_token"`
	ExpiresAt    int64    `json:"expires_at"` // unix
	RefreshToken string   `json:"refresh_token"`
	User         userView `json:"user"`
}

// issueSession emite el JWT de acceso y un refresh token opaco (solo el
// hash toca la base).
func (h *H) issueSession(r *http.Request, u *core.User) (*sessionResponse, error) {
	access, exp, err := h.c.Issuer.IssueAccess(u.ID, map[string]any{
		"tid":   u.TenantID,
		"email": u.Email,
	})
	if err != nil {
		return nil, err
	}
	refresh, err := tokens.GenerateOpaqueToken(32)
	if err != nil {
		return nil, err
	}
	expiresAt := time.Now().Add(h.c.RefreshTTL)
	if _, err := h.c.Repo.CreateRefreshToken(r.Context(), u.ID, tokens.SHA256Base64URL(refresh), expiresAt); err != nil {
		return nil, err
	}
	return &sessionResponse{
		TokenType:    "Bearer",
		AccessToken:  access,
		ExpiresAt:    exp.Unix(),
		RefreshToken: refresh,
		User:         viewOf(u),
	}, nil
}

// bearerUserID extrae el sub de un bearer token si viene; "" si no hay
// token o no valida. Para endpoints que aceptan sesión O mfa_token.
func (h *H) bearerUserID(r *http.Request) string {
	ah := strings.TrimSpace(r.Header.Get("Authorization"))
	if ah == "" || !strings.HasPrefix(strings.ToLower(ah), "bearer ") {
		return ""
	}
	claims, err := h.c.Issuer.Parse(strings.TrimSpace(ah[len("Bearer "):]))
	if err != nil {
		return ""
	}
	sub, _ := claims["sub"].(string)
	return sub
}

// requireUser resuelve el usuario autenticado del contexto (RequireAuth
// aguas arriba) y lo carga de la base. Escribe el error si falta.
func (h *H) requireUser(w http.ResponseWriter, r *http.Request, userID string) *core.User {
	if userID == "" {
		httpx.WriteError(w, http.StatusUnauthorized, "token_missing", "sesión requerida", httpx.CodeTokenMissing)
		return nil
	}
	u, err := h.c.Repo.GetUserByID(r.Context(), userID)
	if err != nil || u == nil {
		logger.From(r.Context()).Warn("usuario de sesión no encontrado", logger.UserID(userID))
		httpx.WriteError(w, http.StatusUnauthorized, "token_invalid", "usuario desconocido", httpx.CodeTokenInvalid)
		return nil
	}
	return u
}
