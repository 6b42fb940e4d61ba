package handlers

import (
	"errors"
	"net/http"
	"strings"

	httpx "github.com/jalgreatworks0/clientforge-auth/internal/http/httpx"
	"github.com/jalgreatworks0/clientforge-auth/internal/http/middlewares"
	"github.com/jalgreatworks0/clientforge-auth/internal/mfa"
	"github.com/jalgreatworks0/clientforge-auth/internal/observability/logger"
)

// MFAStatus devuelve el estado del segundo factor del usuario autenticado.
func (h *H) MFAStatus(w http.ResponseWriter, r *http.Request) {
	u := h.requireUser(w, r, middlewares.GetUserID(r.Context()))
	if u == nil {
		return
	}
	st, err := h.c.MFA.Status(r.Context(), u.ID)
	if err != nil {
		logger.From(r.Context()).Error("mfa status", logger.Err(err))
		httpx.WriteError(w, http.StatusInternalServerError, "internal", "error consultando estado MFA", httpx.CodeInternal)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, st)
}

// MFASetupTOTP genera un secreto nuevo (pendiente de confirmar con
// /auth/mfa/verify). El secreto y la URL otpauth se devuelven una sola vez.
func (h *H) MFASetupTOTP(w http.ResponseWriter, r *http.Request) {
	u := h.requireUser(w, r, middlewares.GetUserID(r.Context()))
	if u == nil {
		return
	}
	enr, err := h.c.MFA.SetupTOTP(r.Context(), u)
	if err != nil {
		if errors.Is(err, mfa.ErrAlreadyEnabled) {
			httpx.WriteError(w, http.StatusConflict, "mfa_already_enabled", "TOTP ya habilitado; deshabilita antes de re-enrolar", httpx.CodeMFAAlreadyOn)
			return
		}
		logger.From(r.Context()).Error("mfa setup", logger.Err(err))
		httpx.WriteError(w, http.StatusInternalServerError, "internal", "error generando secreto TOTP", httpx.CodeInternal)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, enr)
}

type verifyRequest struct {
	MFAToken string `json:"mfa_token,omitempty"` // flujo de login
	Method   string `json:"method"`              // totp | backup_code
	Code     string `json:"code"`
}

// MFAVerify cubre dos flujos con el mismo contrato:
//   - login: mfa_token + code → emite la sesión completa
//   - confirmación de setup: bearer + code → confirma el enrolamiento
func (h *H) MFAVerify(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if !httpx.ReadJSON(w, r, &req) {
		return
	}
	method := strings.ToLower(strings.TrimSpace(req.Method))
	if method == "" {
		method = "totp"
	}
	if method != "totp" && method != "backup_code" {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "method debe ser totp o backup_code", httpx.CodeInvalidRequest)
		return
	}
	if strings.TrimSpace(req.Code) == "" {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "code requerido", httpx.CodeInvalidRequest)
		return
	}

	// flujo de login con challenge
	if req.MFAToken != "" {
		ch, err := h.c.MFA.PeekChallenge(r.Context(), req.MFAToken)
		if err != nil {
			httpx.WriteError(w, http.StatusUnauthorized, "challenge_expired", "mfa_token expirado o inválido; reinicia el login", httpx.CodeChallengeExpired)
			return
		}
		if err := h.verifyCode(r, ch.UserID, method, req.Code); err != nil {
			h.writeVerifyError(w, r, err)
			return
		}
		h.c.MFA.DeleteChallenge(r.Context(), req.MFAToken)

		u := h.requireUser(w, r, ch.UserID)
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
		return
	}

	// confirmación de setup (o re-verificación) con sesión activa
	userID := middlewares.GetUserID(r.Context())
	if userID == "" {
		userID = h.bearerUserID(r)
	}
	if userID == "" {
		httpx.WriteError(w, http.StatusUnauthorized, "token_missing", "se requiere mfa_token o sesión", httpx.CodeTokenMissing)
		return
	}
	if err := h.verifyCode(r, userID, method, req.Code); err != nil {
		h.writeVerifyError(w, r, err)
		return
	}
	st, err := h.c.MFA.Status(r.Context(), userID)
	if err != nil {
		logger.From(r.Context()).Error("mfa status", logger.Err(err))
		httpx.WriteError(w, http.StatusInternalServerError, "internal", "error consultando estado MFA", httpx.CodeInternal)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"verified": true, "status": st})
}

func (h *H) verifyCode(r *http.Request, userID, method, code string) error {
	if method == "backup_code" {
		return h.c.MFA.VerifyBackupCode(r.Context(), userID, code)
	}
	return h.c.MFA.VerifyTOTP(r.Context(), userID, code)
}

func (h *H) writeVerifyError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, mfa.ErrBadCode):
		httpx.WriteError(w, http.StatusUnauthorized, "invalid_code", "código inválido", httpx.CodeMFABadCode)
	case errors.Is(err, mfa.ErrNotEnrolled):
		httpx.WriteError(w, http.StatusConflict, "mfa_not_enrolled", "no hay TOTP enrolado", httpx.CodeMFANotEnrolled)
	default:
		logger.From(r.Context()).Error("mfa verify", logger.Err(err))
		httpx.WriteError(w, http.StatusInternalServerError, "internal", "error verificando código", httpx.CodeInternal)
	}
}

// MFABackupCodes regenera el juego de códigos de respaldo. Los códigos se
// muestran una sola vez.
func (h *H) MFABackupCodes(w http.ResponseWriter, r *http.Request) {
	u := h.requireUser(w, r, middlewares.GetUserID(r.Context()))
	if u == nil {
		return
	}
	codes, err := h.c.MFA.GenerateBackupCodes(r.Context(), u)
	if err != nil {
		switch {
		case errors.Is(err, mfa.ErrNotEnrolled), errors.Is(err, mfa.ErrNotConfirmed):
			httpx.WriteError(w, http.StatusConflict, "mfa_not_enrolled", "se requiere TOTP confirmado", httpx.CodeMFANotEnrolled)
		default:
			logger.From(r.Context()).Error("backup codes", logger.Err(err))
			httpx.WriteError(w, http.StatusInternalServerError, "internal", "error generando códigos", httpx.CodeInternal)
		}
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"codes": codes, "count": len(codes)})
}

type disableRequest struct {
	Code string `json:"code"`
}

// MFADisable apaga el segundo factor; exige un código vigente.
func (h *H) MFADisable(w http.ResponseWriter, r *http.Request) {
	u := h.requireUser(w, r, middlewares.GetUserID(r.Context()))
	if u == nil {
		return
	}
	var req disableRequest
	if !httpx.ReadJSON(w, r, &req) {
		return
	}
	if err := h.c.MFA.Disable(r.Context(), u, req.Code); err != nil {
		if errors.Is(err, mfa.ErrBadCode) {
			httpx.WriteError(w, http.StatusUnauthorized, "invalid_code", "código inválido", httpx.CodeMFABadCode)
			return
		}
		logger.From(r.Context()).Error("mfa disable", logger.Err(err))
		httpx.WriteError(w, http.StatusInternalServerError, "internal", "error deshabilitando MFA", httpx.CodeInternal)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
