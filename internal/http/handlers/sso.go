package handlers

import (
	"errors"
	"net/http"
	"strings"

	httpx "github.com/jalgreatworks0/clientforge-auth/internal/http/httpx"
	"github.com/jalgreatworks0/clientforge-auth/internal/http/middlewares"
	"github.com/jalgreatworks0/clientforge-auth/internal/observability/logger"
	"github.com/jalgreatworks0/clientforge-auth/internal/sso"
	"github.com/jalgreatworks0/clientforge-auth/internal/store/core"
)

type initiateRequest struct {
	Tenant     string `json:"tenant"`   // slug
	Provider   string `json:"provider"` // google | microsoft | saml
	RedirectTo string `json:"redirect_to,omitempty"`
}

type initiateResponse struct {
	AuthorizationURL string `json:"authorization_url"`
	State            string `json:"state"`
}

// SSOInitiate arranca el flujo: resuelve tenant+provider y devuelve la URL
// de autorización del IdP junto con el state anti-CSRF.
func (h *H) SSOInitiate(w http.ResponseWriter, r *http.Request) {
	var req initiateRequest
	if !httpx.ReadJSON(w, r, &req) {
		return
	}
	pt := core.ProviderType(strings.ToLower(strings.TrimSpace(req.Provider)))
	if !pt.Valid() {
		httpx.WriteError(w, http.StatusBadRequest, "unknown_provider", "provider debe ser google, microsoft o saml", httpx.CodeUnknownProvider)
		return
	}
	tenant := h.resolveTenant(w, r, req.Tenant)
	if tenant == nil {
		return
	}

	authURL, state, err := h.c.SSO.Initiate(r.Context(), tenant.ID, pt, req.RedirectTo)
	if err != nil {
		if errors.Is(err, sso.ErrProviderNotConfigured) {
			httpx.WriteError(w, http.StatusNotFound, "provider_not_configured", "el tenant no tiene este provider habilitado", httpx.CodeProviderDisabled)
			return
		}
		logger.From(r.Context()).Error("sso initiate", logger.Err(err))
		httpx.WriteError(w, http.StatusBadGateway, "provider_error", "no se pudo iniciar el flujo con el provider", httpx.CodeExchangeFailed)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, initiateResponse{AuthorizationURL: authURL, State: state})
}

// SSOProviders lista los providers del tenant y su estado (discovery).
func (h *H) SSOProviders(w http.ResponseWriter, r *http.Request) {
	tenant := h.resolveTenant(w, r, r.URL.Query().Get("tenant"))
	if tenant == nil {
		return
	}
	infos, err := h.c.SSO.Providers(r.Context(), tenant.ID)
	if err != nil {
		logger.From(r.Context()).Error("sso providers", logger.Err(err))
		httpx.WriteError(w, http.StatusInternalServerError, "internal", "error listando providers", httpx.CodeInternal)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"providers": infos})
}

type callbackRequest struct {
	State        string `json:"state"`
	Code         string `json:"code,omitempty"`
	SAMLResponse string `json:"saml_response,omitempty"`
}

type callbackResponse struct {
	MFARequired bool     `json:"mfa_required"`
	MFAToken    string   `json:"mfa_token,omitempty"`
	Methods     []string `json:"methods,omitempty"`
	RedirectTo  string   `json:"redirect_to,omitempty"`
	// presentes solo si mfa_required == false
	*sessionResponse
}

// SSOCallback completa el handshake. Si el usuario tiene TOTP confirmado la
// sesión NO se emite todavía: se devuelve un mfa_token efímero para
// /auth/mfa/verify.
func (h *H) SSOCallback(w http.ResponseWriter, r *http.Request) {
	var req callbackRequest
	if !httpx.ReadJSON(w, r, &req) {
		return
	}
	res, err := h.c.SSO.Callback(r.Context(), req.State, sso.Callback{
		Code:         strings.TrimSpace(req.Code),
		SAMLResponse: req.SAMLResponse,
	})
	if err != nil {
		switch {
		case errors.Is(err, sso.ErrInvalidState):
			httpx.WriteError(w, http.StatusBadRequest, "invalid_state", "state inválido, expirado o ya usado", httpx.CodeStateInvalid)
		case errors.Is(err, sso.ErrProviderNotConfigured):
			httpx.WriteError(w, http.StatusNotFound, "provider_not_configured", "el tenant no tiene este provider habilitado", httpx.CodeProviderDisabled)
		case errors.Is(err, sso.ErrExchange):
			httpx.WriteError(w, http.StatusUnauthorized, "exchange_failed", "el provider rechazó las credenciales", httpx.CodeExchangeFailed)
		default:
			logger.From(r.Context()).Error("sso callback", logger.Err(err))
			httpx.WriteError(w, http.StatusInternalServerError, "internal", "error completando el login", httpx.CodeInternal)
		}
		return
	}

	rec, err := h.c.Repo.GetMFATOTP(r.Context(), res.User.ID)
	if err != nil {
		logger.From(r.Context()).Error("mfa lookup", logger.Err(err))
		httpx.WriteError(w, http.StatusInternalServerError, "internal", "error completando el login", httpx.CodeInternal)
		return
	}
	if rec != nil && rec.ConfirmedAt != nil {
		tok, err := h.c.MFA.CreateChallenge(r.Context(), res.User.ID, res.User.TenantID)
		if err != nil {
			logger.From(r.Context()).Error("mfa challenge", logger.Err(err))
			httpx.WriteError(w, http.StatusInternalServerError, "internal", "error creando challenge MFA", httpx.CodeInternal)
			return
		}
		methods := []string{"totp"}
		if n, err := h.c.Repo.CountUnusedBackupCodes(r.Context(), res.User.ID); err == nil && n > 0 {
			methods = append(methods, "backup_code")
		}
		httpx.WriteJSON(w, http.StatusOK, callbackResponse{
			MFARequired: true,
			MFAToken:    tok,
			Methods:     methods,
			RedirectTo:  res.RedirectTo,
		})
		return
	}

	sess, err := h.issueSession(r, res.User)
	if err != nil {
		logger.From(r.Context()).Error("issue session", logger.Err(err))
		httpx.WriteError(w, http.StatusInternalServerError, "internal", "error emitiendo sesión", httpx.CodeInternal)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, callbackResponse{
		MFARequired:     false,
		RedirectTo:      res.RedirectTo,
		sessionResponse: sess,
	})
}

// SSOLogout revoca los refresh tokens locales y borra los tokens del
// provider. Requiere sesión.
func (h *H) SSOLogout(w http.ResponseWriter, r *http.Request) {
	u := h.requireUser(w, r, middlewares.GetUserID(r.Context()))
	if u == nil {
		return
	}
	if err := h.c.SSO.Logout(r.Context(), u.ID); err != nil {
		logger.From(r.Context()).Error("sso logout", logger.Err(err))
		httpx.WriteError(w, http.StatusInternalServerError, "internal", "error cerrando sesión", httpx.CodeInternal)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *H) resolveTenant(w http.ResponseWriter, r *http.Request, slug string) *core.Tenant {
	slug = strings.ToLower(strings.TrimSpace(slug))
	if slug == "" {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "tenant requerido", httpx.CodeInvalidRequest)
		return nil
	}
	t, err := h.c.Repo.GetTenantBySlug(r.Context(), slug)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			httpx.WriteError(w, http.StatusNotFound, "unknown_tenant", "tenant desconocido", httpx.CodeUnknownTenant)
			return nil
		}
		logger.From(r.Context()).Error("tenant lookup", logger.Err(err))
		httpx.WriteError(w, http.StatusInternalServerError, "internal", "error resolviendo tenant", httpx.CodeInternal)
		return nil
	}
	return t
}
