package sso

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jalgreatworks0/clientforge-auth/internal/audit"
	"github.com/jalgreatworks0/clientforge-auth/internal/cache"
	"github.com/jalgreatworks0/clientforge-auth/internal/metrics"
	"github.com/jalgreatworks0/clientforge-auth/internal/observability/logger"
	"github.com/jalgreatworks0/clientforge-auth/internal/security/secretbox"
	tokens "github.com/jalgreatworks0/clientforge-auth/internal/security/token"
	"github.com/jalgreatworks0/clientforge-auth/internal/sso/google"
	"github.com/jalgreatworks0/clientforge-auth/internal/sso/microsoft"
	"github.com/jalgreatworks0/clientforge-auth/internal/sso/saml"
	"github.com/jalgreatworks0/clientforge-auth/internal/store/core"
)

// Service resuelve el adapter por tenant, maneja el state anti-CSRF y
// persiste el resultado del handshake (usuario + tokens cifrados).
type Service struct {
	repo     core.Repository
	cache    cache.Cache
	stateTTL time.Duration

	mu       sync.Mutex
	adapters map[string]adapterEntry // key: config ID
}

type adapterEntry struct {
	updatedAt time.Time
	adapter   Adapter
}

func NewService(repo core.Repository, c cache.Cache, stateTTL time.Duration) *Service {
	if stateTTL <= 0 {
		stateTTL = 10 * time.Minute
	}
	return &Service{
		repo:     repo,
		cache:    c,
		stateTTL: stateTTL,
		adapters: make(map[string]adapterEntry),
	}
}

// statePayload viaja por el cache entre initiate y callback.
type statePayload struct {
	TenantID   string            `json:"tenant_id"`
	Provider   core.ProviderType `json:"provider"`
	Nonce      string            `json:"nonce"`
	RedirectTo string            `json:"redirect_to,omitempty"`
}

func stateKey(state string) string { return "sso:state:" + state }

// ProviderInfo es lo que se expone en el discovery de providers.
type ProviderInfo struct {
	Type    core.ProviderType `json:"type"`
	Enabled bool              `json:"enabled"`
	Ready   bool              `json:"ready"`
	Reason  string            `json:"reason,omitempty"` // sólo problemas de configuración
}

// Providers lista el estado de cada provider conocido para el tenant.
func (s *Service) Providers(ctx context.Context, tenantID string) ([]ProviderInfo, error) {
	configs, err := s.repo.ListProviderConfigs(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	byType := map[core.ProviderType]core.ProviderConfig{}
	for _, c := range configs {
		if c.Enabled {
			byType[c.Type] = c
		}
	}

	out := make([]ProviderInfo, 0, 3)
	for _, t := range []core.ProviderType{core.ProviderGoogle, core.ProviderMicrosoft, core.ProviderSAML} {
		info := ProviderInfo{Type: t}
		c, ok := byType[t]
		if !ok {
			out = append(out, info)
			continue
		}
		info.Enabled = true
		if reason := configProblem(&c); reason != "" {
			info.Reason = reason
		} else {
			info.Ready = true
		}
		out = append(out, info)
	}
	return out, nil
}

func configProblem(c *core.ProviderConfig) string {
	switch c.Type {
	case core.ProviderSAML:
		if c.SAMLEntryPoint == "" {
			return "missing saml_entry_point"
		}
		if c.SAMLCertPEM == "" {
			return "missing saml_cert_pem"
		}
	default:
		if c.ClientID == "" {
			return "missing client_id"
		}
		if c.ClientSecretEnc == "" {
			return "missing client_secret"
		}
		// microsoft necesita el issuer del tenant de Entra ID
		if c.Type == core.ProviderMicrosoft && c.IssuerURL == "" {
			return "missing issuer_url"
		}
	}
	if c.RedirectURI == "" {
		return "missing redirect_uri"
	}
	return ""
}

// Initiate genera state+nonce, los guarda con TTL y devuelve la URL de
// autorización del provider.
func (s *Service) Initiate(ctx context.Context, tenantID string, pt core.ProviderType, redirectTo string) (authURL, state string, err error) {
	cfg, err := s.enabledConfig(ctx, tenantID, pt)
	if err != nil {
		return "", "", err
	}
	ad, err := s.adapterFor(ctx, cfg)
	if err != nil {
		return "", "", err
	}

	state, err = tokens.GenerateOpaqueToken(24)
	if err != nil {
		return "", "", err
	}
	nonce, err := tokens.GenerateOpaqueToken(24)
	if err != nil {
		return "", "", err
	}

	payload, _ := json.Marshal(statePayload{
		TenantID:   tenantID,
		Provider:   pt,
		Nonce:      nonce,
		RedirectTo: redirectTo,
	})
	s.cache.Set(ctx, stateKey(state), payload, s.stateTTL)

	u, err := ad.AuthURL(ctx, state, nonce)
	if err != nil {
		s.cache.Delete(ctx, stateKey(state))
		return "", "", fmt.Errorf("auth url: %w", err)
	}
	return u, state, nil
}

// CallbackResult es el resultado de un handshake completo.
type CallbackResult struct {
	User       *core.User
	Profile    *Profile
	RedirectTo string
}

// Callback valida y consume el state, completa el handshake con el adapter,
// vincula/crea el usuario local y persiste los tokens del provider cifrados.
// El state es de un solo uso: se borra antes del exchange, un replay falla.
func (s *Service) Callback(ctx context.Context, state string, cb Callback) (*CallbackResult, error) {
	state = strings.TrimSpace(state)
	if state == "" {
		return nil, ErrInvalidState
	}
	raw, ok := s.cache.Get(ctx, stateKey(state))
	if !ok {
		return nil, ErrInvalidState
	}
	// single-use: borrar antes de tocar el provider
	s.cache.Delete(ctx, stateKey(state))

	var st statePayload
	if err := json.Unmarshal(raw, &st); err != nil {
		return nil, ErrInvalidState
	}

	log := logger.From(ctx).With(
		logger.TenantID(st.TenantID),
		logger.Provider(string(st.Provider)),
	)

	cfg, err := s.enabledConfig(ctx, st.TenantID, st.Provider)
	if err != nil {
		return nil, err
	}
	ad, err := s.adapterFor(ctx, cfg)
	if err != nil {
		return nil, err
	}

	cb.Nonce = st.Nonce
	profile, provTokens, err := ad.Exchange(ctx, cb)
	if err != nil {
		metrics.SSOLoginsTotal.WithLabelValues(string(st.Provider), "exchange_failed").Inc()
		log.Warn("sso exchange failed", logger.Err(err))
		return nil, fmt.Errorf("%w: %v", ErrExchange, err)
	}

	user, err := s.linkUser(ctx, st.TenantID, profile)
	if err != nil {
		metrics.SSOLoginsTotal.WithLabelValues(string(st.Provider), "link_failed").Inc()
		return nil, err
	}

	if provTokens != nil {
		if err := s.storeTokens(ctx, user.ID, st.Provider, provTokens); err != nil {
			// no corta el login: los tokens del provider son secundarios
			log.Warn("store sso tokens failed", logger.UserID(user.ID), logger.Err(err))
		}
	}

	metrics.SSOLoginsTotal.WithLabelValues(string(st.Provider), "ok").Inc()
	log.Info("sso login", logger.UserID(user.ID))
	audit.Event(ctx, audit.EventSSOLogin,
		logger.TenantID(st.TenantID), logger.Provider(string(st.Provider)),
		logger.UserID(user.ID), audit.Email(user.Email))
	return &CallbackResult{User: user, Profile: profile, RedirectTo: st.RedirectTo}, nil
}

// linkUser busca por identidad del provider; si no existe, intenta vincular
// por email verificado; si tampoco, crea usuario nuevo.
func (s *Service) linkUser(ctx context.Context, tenantID string, p *Profile) (*core.User, error) {
	u, err := s.repo.FindUserBySSOIdentity(ctx, tenantID, p.Provider, p.ProviderUserID)
	if err == nil {
		return u, nil
	}
	if err != core.ErrNotFound {
		return nil, err
	}

	ident := &core.SSOIdentity{
		Provider:       p.Provider,
		ProviderUserID: p.ProviderUserID,
		Email:          p.Email,
	}

	if p.Email != "" && p.EmailVerified {
		if existing, err := s.repo.GetUserByEmail(ctx, tenantID, p.Email); err == nil {
			ident.UserID = existing.ID
			if err := s.repo.LinkIdentity(ctx, ident); err != nil {
				return nil, err
			}
			return existing, nil
		} else if err != core.ErrNotFound {
			return nil, err
		}
	}

	nu := &core.User{
		TenantID: tenantID,
		Email:    p.Email,
		Name:     p.Name,
	}
	if err := s.repo.CreateUserWithIdentity(ctx, nu, ident); err != nil {
		return nil, err
	}
	audit.Event(ctx, audit.EventSSOUserCreated,
		logger.TenantID(tenantID), logger.Provider(string(p.Provider)),
		logger.UserID(nu.ID), audit.Email(nu.Email))
	return nu, nil
}

func (s *Service) storeTokens(ctx context.Context, userID string, pt core.ProviderType, t *Tokens) error {
	accEnc, err := secretbox.Encrypt(t.AccessToken)
	if err != nil {
		return err
	}
	refEnc := ""
	if t.RefreshToken != "" {
		if refEnc, err = secretbox.Encrypt(t.RefreshToken); err != nil {
			return err
		}
	}
	return s.repo.UpsertSSOToken(ctx, &core.SSOToken{
		UserID:          userID,
		Provider:        pt,
		AccessTokenEnc:  accEnc,
		RefreshTokenEnc: refEnc,
		ExpiresAt:       t.ExpiresAt,
	})
}

// Logout invalida los tokens SSO y refresh del usuario.
func (s *Service) Logout(ctx context.Context, userID string) error {
	if err := s.repo.DeleteSSOTokens(ctx, userID); err != nil {
		return err
	}
	if err := s.repo.RevokeRefreshTokensForUser(ctx, userID); err != nil {
		return err
	}
	audit.Event(ctx, audit.EventSSOLogout, logger.UserID(userID))
	return nil
}

func (s *Service) enabledConfig(ctx context.Context, tenantID string, pt core.ProviderType) (*core.ProviderConfig, error) {
	if !pt.Valid() {
		return nil, ErrProviderNotConfigured
	}
	cfg, err := s.repo.GetEnabledProviderConfig(ctx, tenantID, pt)
	if err != nil {
		if err == core.ErrNotFound {
			return nil, ErrProviderNotConfigured
		}
		return nil, err
	}
	if reason := configProblem(cfg); reason != "" {
		return nil, fmt.Errorf("%w: %s", ErrProviderNotConfigured, reason)
	}
	return cfg, nil
}

// adapterFor construye (o reutiliza) el adapter para una config. El cache
// se invalida cuando cambia updated_at.
func (s *Service) adapterFor(ctx context.Context, cfg *core.ProviderConfig) (Adapter, error) {
	s.mu.Lock()
	if e, ok := s.adapters[cfg.ID]; ok && e.updatedAt.Equal(cfg.UpdatedAt) {
		s.mu.Unlock()
		return e.adapter, nil
	}
	s.mu.Unlock()

	ad, err := s.buildAdapter(ctx, cfg)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.adapters[cfg.ID] = adapterEntry{updatedAt: cfg.UpdatedAt, adapter: ad}
	s.mu.Unlock()
	return ad, nil
}

func (s *Service) buildAdapter(ctx context.Context, cfg *core.ProviderConfig) (Adapter, error) {
	switch cfg.Type {
	case core.ProviderGoogle:
		secret, err := secretbox.Decrypt(cfg.ClientSecretEnc)
		if err != nil {
			return nil, fmt.Errorf("decrypt client secret: %w", err)
		}
		return &googleAdapter{oidc: google.New(cfg.ClientID, secret, cfg.RedirectURI, nil)}, nil

	case core.ProviderMicrosoft:
		secret, err := secretbox.Decrypt(cfg.ClientSecretEnc)
		if err != nil {
			return nil, fmt.Errorf("decrypt client secret: %w", err)
		}
		mc, err := microsoft.New(ctx, cfg.IssuerURL, cfg.ClientID, secret, cfg.RedirectURI)
		if err != nil {
			return nil, err
		}
		return &microsoftAdapter{client: mc}, nil

	case core.ProviderSAML:
		sp, err := saml.New(saml.Config{
			EntryPoint:  cfg.SAMLEntryPoint,
			IdPIssuer:   cfg.SAMLIssuer,
			CertPEM:     cfg.SAMLCertPEM,
			SPIssuer:    cfg.ClientID, // entity ID del SP
			CallbackURL: cfg.RedirectURI,
		})
		if err != nil {
			return nil, err
		}
		return &samlAdapter{sp: sp}, nil
	}
	return nil, ErrProviderNotConfigured
}
