package handlers

import (
	"net/http"
	"strings"
	"time"

	httpx "github.com/jalgreatworks0/clientforge-auth/internal/http/httpx"
	"github.com/jalgreatworks0/clientforge-auth/internal/observability/logger"
	tokens "github.com/jalgreatworks0/clientforge-auth/internal/security/token"
)

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// TokenRefresh rota el refresh token: el anterior queda revocado en la
// misma operación (detección de reuso = token desconocido).
func (h *H) TokenRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if !httpx.ReadJSON(w, r, &req) {
		return
	}
	raw := strings.TrimSpace(req.RefreshToken)
	if raw == "" {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "refresh_token requerido", httpx.CodeInvalidRequest)
		return
	}

	rt, err := h.c.Repo.GetRefreshTokenByHash(r.Context(), tokens.SHA256Base64URL(raw))
	if err != nil || rt == nil {
		httpx.WriteError(w, http.StatusUnauthorized, "token_invalid", "refresh token desconocido", httpx.CodeTokenInvalid)
		return
	}
	if rt.RevokedAt != nil {
		// reuso de un token ya rotado: revocar toda la familia del usuario
		logger.From(r.Context()).Warn("refresh token reuse detectado", logger.UserID(rt.UserID))
		_ = h.c.Repo.RevokeRefreshTokensForUser(r.Context(), rt.UserID)
		httpx.WriteError(w, http.StatusUnauthorized, "token_invalid", "refresh token revocado", httpx.CodeTokenInvalid)
		return
	}
	if time.Now().After(rt.ExpiresAt) {
		_ = h.c.Repo.RevokeRefreshToken(r.Context(), rt.ID)
		httpx.WriteError(w, http.StatusUnauthorized, "token_invalid", "refresh token expirado", httpx.CodeTokenInvalid)
		return
	}
	if err := h.c.Repo.RevokeRefreshToken(r.Context(), rt.ID); err != nil {
		logger.From(r.Context()).Error("revoke refresh", logger.Err(err))
		httpx.WriteError(w, http.StatusInternalServerError, "internal", "error rotando token", httpx.CodeInternal)
		return
	}

	u := h.requireUser(w, r, rt.UserID)
	if u == nil {
		return
	}
	sess, err := h.issueSession(r, u)
	if err != nil {
		logger.From(r.Context()).Error("issue session", logger.Err(err))
		httpx.WriteError(w, http.StatusInternalServerError, "internal", "error emitiendo sesión", httpx.CodeInternal)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, sess)
}
