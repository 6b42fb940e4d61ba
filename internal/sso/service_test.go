package sso

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jalgreatworks0/clientforge-auth/internal/cache/memory"
	"github.com/jalgreatworks0/clientforge-auth/internal/security/secretbox"
	"github.com/jalgreatworks0/clientforge-auth/internal/store/core"
	"github.com/jalgreatworks0/clientforge-auth/internal/store/storetest"
)

// fakeAdapter evita salir a la red en los tests del service.
type fakeAdapter struct {
	typ        core.ProviderType
	profile    *Profile
	tokens     *Tokens
	exchangeFn func(cb Callback) error // error opcional antes de devolver profile
	gotNonce   string
}

func (f *fakeAdapter) Type() core.ProviderType { return f.typ }

func (f *fakeAdapter) AuthURL(_ context.Context, state, nonce string) (string, error) {
	return "https://idp.example/authorize?state=" + state + "&nonce=" + nonce, nil
}

func (f *fakeAdapter) Exchange(_ context.Context, cb Callback) (*Profile, *Tokens, error) {
	f.gotNonce = cb.Nonce
	if f.exchangeFn != nil {
		if err := f.exchangeFn(cb); err != nil {
			return nil, nil, err
		}
	}
	return f.profile, f.tokens, nil
}

func newTestSSO(t *testing.T) (*Service, *storetest.FakeRepo, *core.Tenant, *core.ProviderConfig) {
	t.Helper()
	secretbox.UnsafeResetForTests()
	require.NoError(t, secretbox.UnsafeSetKeyForTests([]byte("0123456789abcdef0123456789abcdef")))

	repo := storetest.New()
	tenant := &core.Tenant{Name: "Acme", Slug: "acme"}
	require.NoError(t, repo.CreateTenant(context.Background(), tenant))

	cfg := &core.ProviderConfig{
		TenantID:        tenant.ID,
		Type:            core.ProviderGoogle,
		ClientID:        "client-1",
		ClientSecretEnc: mustEncrypt(t, "secret"),
		RedirectURI:     "https://app.acme.com/callback",
		Enabled:         true,
	}
	require.NoError(t, repo.UpsertProviderConfig(context.Background(), cfg))

	svc := NewService(repo, memory.New("test:", time.Minute), time.Minute)
	return svc, repo, tenant, cfg
}

func mustEncrypt(t *testing.T, s string) string {
	t.Helper()
	enc, err := secretbox.Encrypt(s)
	require.NoError(t, err)
	return enc
}

// inject instala un adapter falso para la config dada, saltando buildAdapter.
func (s *Service) inject(cfg *core.ProviderConfig, ad Adapter) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.adapters[cfg.ID] = adapterEntry{updatedAt: cfg.UpdatedAt, adapter: ad}
}

func TestProvidersDiscovery(t *testing.T) {
	svc, repo, tenant, _ := newTestSSO(t)
	ctx := context.Background()

	// microsoft habilitado pero sin issuer: ready=false con motivo
	require.NoError(t, repo.UpsertProviderConfig(ctx, &core.ProviderConfig{
		TenantID:        tenant.ID,
		Type:            core.ProviderMicrosoft,
		ClientID:        "ms-1",
		ClientSecretEnc: mustEncrypt(t, "x"),
		RedirectURI:     "https://app.acme.com/callback",
		Enabled:         true,
	}))

	infos, err := svc.Providers(ctx, tenant.ID)
	require.NoError(t, err)
	require.Len(t, infos, 3)

	byType := map[core.ProviderType]ProviderInfo{}
	for _, i := range infos {
		byType[i.Type] = i
	}
	require.True(t, byType[core.ProviderGoogle].Enabled)
	require.True(t, byType[core.ProviderGoogle].Ready)
	require.True(t, byType[core.ProviderMicrosoft].Enabled)
	require.False(t, byType[core.ProviderMicrosoft].Ready)
	require.NotEmpty(t, byType[core.ProviderMicrosoft].Reason)
	require.False(t, byType[core.ProviderSAML].Enabled)
}

func TestInitiateAndCallbackFlow(t *testing.T) {
	svc, _, tenant, cfg := newTestSSO(t)
	ctx := context.Background()

	ad := &fakeAdapter{
		typ: core.ProviderGoogle,
		profile: &Profile{
			Provider:       core.ProviderGoogle,
			ProviderUserID: "g-123",
			Email:          "ana@acme.com",
			EmailVerified:  true,
			Name:           "Ana",
		},
		tokens: &Tokens{AccessToken: "at", RefreshToken: "rt", ExpiresAt: time.Now().Add(time.Hour)},
	}
	svc.inject(cfg, ad)

	authURL, state, err := svc.Initiate(ctx, tenant.ID, core.ProviderGoogle, "/dashboard")
	require.NoError(t, err)
	require.Contains(t, authURL, "state="+state)
	require.NotEmpty(t, state)

	res, err := svc.Callback(ctx, state, Callback{Code: "authcode"})
	require.NoError(t, err)
	require.Equal(t, "ana@acme.com", res.User.Email)
	require.Equal(t, tenant.ID, res.User.TenantID)
	require.Equal(t, "/dashboard", res.RedirectTo)
	// el nonce generado en initiate llega al exchange
	require.NotEmpty(t, ad.gotNonce)

	// los tokens del provider quedan cifrados en reposo
	st, err := svc.repo.GetSSOToken(ctx, res.User.ID, core.ProviderGoogle)
	require.NoError(t, err)
	require.NotEqual(t, "at", st.AccessTokenEnc)
	dec, err := secretbox.Decrypt(st.AccessTokenEnc)
	require.NoError(t, err)
	require.Equal(t, "at", dec)

	// el state es de un solo uso
	_, err = svc.Callback(ctx, state, Callback{Code: "authcode"})
	require.ErrorIs(t, err, ErrInvalidState)
}

func TestCallbackStateConsumedOnFailedExchange(t *testing.T) {
	svc, _, tenant, cfg := newTestSSO(t)
	ctx := context.Background()

	ad := &fakeAdapter{
		typ:        core.ProviderGoogle,
		exchangeFn: func(Callback) error { return errors.New("idp rechazó el code") },
	}
	svc.inject(cfg, ad)

	_, state, err := svc.Initiate(ctx, tenant.ID, core.ProviderGoogle, "")
	require.NoError(t, err)

	_, err = svc.Callback(ctx, state, Callback{Code: "bad"})
	require.ErrorIs(t, err, ErrExchange)

	// aunque el exchange falló, el state ya no se puede reusar
	_, err = svc.Callback(ctx, state, Callback{Code: "bad"})
	require.ErrorIs(t, err, ErrInvalidState)
}

func TestCallbackLinksByVerifiedEmail(t *testing.T) {
	svc, repo, tenant, cfg := newTestSSO(t)
	ctx := context.Background()

	existing := &core.User{TenantID: tenant.ID, Email: "ana@acme.com", Name: "Ana"}
	require.NoError(t, repo.CreateUserWithIdentity(ctx, existing, &core.SSOIdentity{
		Provider: core.ProviderMicrosoft, ProviderUserID: "ms-9", Email: existing.Email,
	}))

	svc.inject(cfg, &fakeAdapter{
		typ: core.ProviderGoogle,
		profile: &Profile{
			Provider:       core.ProviderGoogle,
			ProviderUserID: "g-777",
			Email:          "ana@acme.com",
			EmailVerified:  true,
		},
	})

	_, state, err := svc.Initiate(ctx, tenant.ID, core.ProviderGoogle, "")
	require.NoError(t, err)
	res, err := svc.Callback(ctx, state, Callback{Code: "c"})
	require.NoError(t, err)
	require.Equal(t, existing.ID, res.User.ID)

	// la segunda vez resuelve por identidad, no por email
	u, err := repo.FindUserBySSOIdentity(ctx, tenant.ID, core.ProviderGoogle, "g-777")
	require.NoError(t, err)
	require.Equal(t, existing.ID, u.ID)
}

func TestCallbackDoesNotLinkUnverifiedEmail(t *testing.T) {
	svc, repo, tenant, cfg := newTestSSO(t)
	ctx := context.Background()

	existing := &core.User{TenantID: tenant.ID, Email: "ana@acme.com"}
	require.NoError(t, repo.CreateUserWithIdentity(ctx, existing, &core.SSOIdentity{
		Provider: core.ProviderMicrosoft, ProviderUserID: "ms-9", Email: existing.Email,
	}))

	svc.inject(cfg, &fakeAdapter{
		typ: core.ProviderGoogle,
		profile: &Profile{
			Provider:       core.ProviderGoogle,
			ProviderUserID: "g-778",
			Email:          "ana@acme.com",
			EmailVerified:  false, // sin verificar: nunca se vincula por email
		},
	})

	_, state, err := svc.Initiate(ctx, tenant.ID, core.ProviderGoogle, "")
	require.NoError(t, err)
	res, err := svc.Callback(ctx, state, Callback{Code: "c"})
	require.NoError(t, err)
	require.NotEqual(t, existing.ID, res.User.ID)
}

func TestCallbackSameProviderAccountAcrossTenants(t *testing.T) {
	svc, repo, tenant, cfg := newTestSSO(t)
	ctx := context.Background()

	tenant2 := &core.Tenant{Name: "Globex", Slug: "globex"}
	require.NoError(t, repo.CreateTenant(ctx, tenant2))
	cfg2 := &core.ProviderConfig{
		TenantID:        tenant2.ID,
		Type:            core.ProviderGoogle,
		ClientID:        "client-2",
		ClientSecretEnc: mustEncrypt(t, "secret"),
		RedirectURI:     "https://app.globex.com/callback",
		Enabled:         true,
	}
	require.NoError(t, repo.UpsertProviderConfig(ctx, cfg2))

	// misma cuenta de Google, email sin verificar: no hay vínculo por email
	profile := &Profile{
		Provider:       core.ProviderGoogle,
		ProviderUserID: "g-1",
		Email:          "ana@gmail.com",
		EmailVerified:  false,
	}
	svc.inject(cfg, &fakeAdapter{typ: core.ProviderGoogle, profile: profile})
	svc.inject(cfg2, &fakeAdapter{typ: core.ProviderGoogle, profile: profile})

	login := func(tenantID string) *core.User {
		_, state, err := svc.Initiate(ctx, tenantID, core.ProviderGoogle, "")
		require.NoError(t, err)
		res, err := svc.Callback(ctx, state, Callback{Code: "c"})
		require.NoError(t, err)
		return res.User
	}

	u1 := login(tenant.ID)
	u2 := login(tenant2.ID)
	require.NotEqual(t, u1.ID, u2.ID)
	require.Equal(t, tenant.ID, u1.TenantID)
	require.Equal(t, tenant2.ID, u2.TenantID)

	// cada tenant guarda su propia identidad para la misma cuenta
	require.Len(t, repo.Identities, 2)

	// logins repetidos convergen en el mismo usuario local, sin huérfanos
	require.Equal(t, u1.ID, login(tenant.ID).ID)
	require.Equal(t, u2.ID, login(tenant2.ID).ID)
	require.Len(t, repo.Users, 2)
}

func TestInitiateProviderNotConfigured(t *testing.T) {
	svc, _, tenant, _ := newTestSSO(t)
	ctx := context.Background()

	_, _, err := svc.Initiate(ctx, tenant.ID, core.ProviderSAML, "")
	require.ErrorIs(t, err, ErrProviderNotConfigured)

	_, _, err = svc.Initiate(ctx, tenant.ID, core.ProviderType("github"), "")
	require.ErrorIs(t, err, ErrProviderNotConfigured)
}

func TestLogoutRevokesEverything(t *testing.T) {
	svc, repo, tenant, cfg := newTestSSO(t)
	ctx := context.Background()

	svc.inject(cfg, &fakeAdapter{
		typ: core.ProviderGoogle,
		profile: &Profile{
			Provider: core.ProviderGoogle, ProviderUserID: "g-1",
			Email: "b@acme.com", EmailVerified: true,
		},
		tokens: &Tokens{AccessToken: "at", ExpiresAt: time.Now().Add(time.Hour)},
	})
	_, state, err := svc.Initiate(ctx, tenant.ID, core.ProviderGoogle, "")
	require.NoError(t, err)
	res, err := svc.Callback(ctx, state, Callback{Code: "c"})
	require.NoError(t, err)

	_, err = repo.CreateRefreshToken(ctx, res.User.ID, "hash", time.Now().Add(time.Hour))
	require.NoError(t, err)

	require.NoError(t, svc.Logout(ctx, res.User.ID))

	_, err = repo.GetSSOToken(ctx, res.User.ID, core.ProviderGoogle)
	require.ErrorIs(t, err, core.ErrNotFound)
	for _, rt := range repo.Refresh {
		require.NotNil(t, rt.RevokedAt)
	}
}
