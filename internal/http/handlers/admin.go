package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"

	httpx "github.com/jalgreatworks0/clientforge-auth/internal/http/httpx"
	"github.com/jalgreatworks0/clientforge-auth/internal/observability/logger"
	"github.com/jalgreatworks0/clientforge-auth/internal/security/secretbox"
	"github.com/jalgreatworks0/clientforge-auth/internal/store/core"
)

// Los endpoints de este fichero van detrás de RequireAdminKey.

type createTenantRequest struct {
	Name string `json:"name"`
	Slug string `json:"slug"`
}

func (h *H) AdminCreateTenant(w http.ResponseWriter, r *http.Request) {
	var req createTenantRequest
	if !httpx.ReadJSON(w, r, &req) {
		return
	}
	req.Slug = strings.ToLower(strings.TrimSpace(req.Slug))
	req.Name = strings.TrimSpace(req.Name)
	if req.Slug == "" || req.Name == "" {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "name y slug requeridos", httpx.CodeInvalidRequest)
		return
	}
	t := &core.Tenant{ID: uuid.NewString(), Name: req.Name, Slug: req.Slug}
	if err := h.c.Repo.CreateTenant(r.Context(), t); err != nil {
		if errors.Is(err, core.ErrConflict) {
			httpx.WriteError(w, http.StatusConflict, "tenant_exists", "slug ya registrado", httpx.CodeInvalidRequest)
			return
		}
		logger.From(r.Context()).Error("create tenant", logger.Err(err))
		httpx.WriteError(w, http.StatusInternalServerError, "internal", "error creando tenant", httpx.CodeInternal)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, t)
}

// AdminListProviders devuelve la config SSO completa del tenant (el
// client_secret nunca sale, está cifrado y con json:"-").
func (h *H) AdminListProviders(w http.ResponseWriter, r *http.Request) {
	tenant := h.resolveTenant(w, r, r.URL.Query().Get("tenant"))
	if tenant == nil {
		return
	}
	configs, err := h.c.Repo.ListProviderConfigs(r.Context(), tenant.ID)
	if err != nil {
		logger.From(r.Context()).Error("list provider configs", logger.Err(err))
		httpx.WriteError(w, http.StatusInternalServerError, "internal", "error listando configs", httpx.CodeInternal)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"providers": configs})
}

type upsertProviderRequest struct {
	Tenant         string `json:"tenant"` // slug
	ID             string `json:"id,omitempty"`
	Type           string `json:"type"`
	ClientID       string `json:"client_id"`
	ClientSecret   string `json:"client_secret,omitempty"` // plaintext; se cifra aquí
	RedirectURI    string `json:"redirect_uri"`
	IssuerURL      string `json:"issuer_url,omitempty"`
	SAMLEntryPoint string `json:"saml_entry_point,omitempty"`
	SAMLIssuer     string `json:"saml_issuer,omitempty"`
	SAMLCertPEM    string `json:"saml_cert_pem,omitempty"`
	Enabled        bool   `json:"enabled"`
}

// AdminUpsertProvider crea o actualiza la config de un provider. Habilitar
// una config deshabilita cualquier otra del mismo (tenant, type).
func (h *H) AdminUpsertProvider(w http.ResponseWriter, r *http.Request) {
	var req upsertProviderRequest
	if !httpx.ReadJSON(w, r, &req) {
		return
	}
	pt := core.ProviderType(strings.ToLower(strings.TrimSpace(req.Type)))
	if !pt.Valid() {
		httpx.WriteError(w, http.StatusBadRequest, "unknown_provider", "type debe ser google, microsoft o saml", httpx.CodeUnknownProvider)
		return
	}
	tenant := h.resolveTenant(w, r, req.Tenant)
	if tenant == nil {
		return
	}

	cfg := &core.ProviderConfig{
		ID:             strings.TrimSpace(req.ID),
		TenantID:       tenant.ID,
		Type:           pt,
		ClientID:       strings.TrimSpace(req.ClientID),
		RedirectURI:    strings.TrimSpace(req.RedirectURI),
		IssuerURL:      strings.TrimSpace(req.IssuerURL),
		SAMLEntryPoint: strings.TrimSpace(req.SAMLEntryPoint),
		SAMLIssuer:     strings.TrimSpace(req.SAMLIssuer),
		SAMLCertPEM:    req.SAMLCertPEM,
		Enabled:        req.Enabled,
	}
	if cfg.ID == "" {
		cfg.ID = uuid.NewString()
	}
	if req.ClientSecret != "" {
		enc, err := secretbox.Encrypt(req.ClientSecret)
		if err != nil {
			logger.From(r.Context()).Error("encrypt client secret", logger.Err(err))
			httpx.WriteError(w, http.StatusInternalServerError, "internal", "clave maestra no disponible", httpx.CodeInternal)
			return
		}
		cfg.ClientSecretEnc = enc
	}

	if err := h.c.Repo.UpsertProviderConfig(r.Context(), cfg); err != nil {
		logger.From(r.Context()).Error("upsert provider config", logger.Err(err))
		httpx.WriteError(w, http.StatusInternalServerError, "internal", "error guardando config", httpx.CodeInternal)
		return
	}
	logger.From(r.Context()).Info("provider config actualizada",
		logger.TenantID(tenant.ID), logger.Provider(string(pt)), logger.Bool("enabled", cfg.Enabled))
	httpx.WriteJSON(w, http.StatusOK, cfg)
}
