package handlers_test

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jalgreatworks0/clientforge-auth/internal/app"
	"github.com/jalgreatworks0/clientforge-auth/internal/cache/memory"
	"github.com/jalgreatworks0/clientforge-auth/internal/config"
	httpapi "github.com/jalgreatworks0/clientforge-auth/internal/http"
	jwtx "github.com/jalgreatworks0/clientforge-auth/internal/jwt"
	"github.com/jalgreatworks0/clientforge-auth/internal/mfa"
	"github.com/jalgreatworks0/clientforge-auth/internal/rate"
	"github.com/jalgreatworks0/clientforge-auth/internal/security/backupcode"
	"github.com/jalgreatworks0/clientforge-auth/internal/security/secretbox"
	tokens "github.com/jalgreatworks0/clientforge-auth/internal/security/token"
	"github.com/jalgreatworks0/clientforge-auth/internal/security/totp"
	"github.com/jalgreatworks0/clientforge-auth/internal/sso"
	"github.com/jalgreatworks0/clientforge-auth/internal/store/core"
	"github.com/jalgreatworks0/clientforge-auth/internal/store/storetest"
)

const adminKey = "test-admin-key"

type env struct {
	repo    *storetest.FakeRepo
	c       *app.Container
	handler http.Handler
}

func newEnv(t *testing.T) *env {
	t.Helper()
	secretbox.UnsafeResetForTests()
	require.NoError(t, secretbox.UnsafeSetKeyForTests([]byte("0123456789abcdef0123456789abcdef")))
	t.Cleanup(secretbox.UnsafeResetForTests)

	repo := storetest.New()
	mem := memory.New("test:", time.Minute)

	cfg := &config.Config{}
	cfg.Server.AdminAPIKey = adminKey

	c := &app.Container{
		Cfg:        cfg,
		Repo:       repo,
		Cache:      mem,
		Issuer:     jwtx.NewIssuer("https://auth.test", []byte("fedcba9876543210fedcba9876543210"), 15*time.Minute),
		SSO:        sso.NewService(repo, mem, 10*time.Minute),
		MFA:        mfa.NewService(repo, mem, nil, mfa.Config{Issuer: "TestApp", Window: 1, ChallengeTTL: time.Minute}),
		Limiter:    rate.Noop{},
		RefreshTTL: time.Hour,
	}
	return &env{repo: repo, c: c, handler: httpapi.NewRouter(c)}
}

func (e *env) do(t *testing.T, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, out any) {
	t.Helper()
	require.NoError(t, json.NewDecoder(rec.Body).Decode(out))
}

func (e *env) seedTenant(t *testing.T, slug string) *core.Tenant {
	t.Helper()
	tn := &core.Tenant{Name: "Acme Inc", Slug: slug}
	require.NoError(t, e.repo.CreateTenant(context.Background(), tn))
	return tn
}

func (e *env) seedUser(t *testing.T, tenantID, email string) *core.User {
	t.Helper()
	u := &core.User{TenantID: tenantID, Email: email, Name: "Ana"}
	require.NoError(t, e.repo.CreateUserWithIdentity(context.Background(), u, &core.SSOIdentity{
		Provider: core.ProviderGoogle, ProviderUserID: "g-" + email, Email: email,
	}))
	return u
}

func (e *env) bearer(t *testing.T, u *core.User) map[string]string {
	t.Helper()
	access, _, err := e.c.Issuer.IssueAccess(u.ID, map[string]any{"tid": u.TenantID, "email": u.Email})
	require.NoError(t, err)
	return map[string]string{"Authorization": "Bearer " + access}
}

// totpCode calcula el código esperado para el instante dado.
func totpCode(t *testing.T, secretB32 string, at time.Time) string {
	t.Helper()
	secret, err := totp.DecodeSecret(secretB32)
	require.NoError(t, err)
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(at.Unix()/totp.Period))
	mac := hmac.New(sha1.New, secret)
	mac.Write(buf[:])
	sum := mac.Sum(nil)
	off := sum[len(sum)-1] & 0x0f
	v := binary.BigEndian.Uint32(sum[off:off+4]) & 0x7fffffff
	return fmt.Sprintf("%06d", v%1_000_000)
}

func TestHealthz(t *testing.T) {
	e := newEnv(t)
	rec := e.do(t, http.MethodGet, "/healthz", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestReadyz(t *testing.T) {
	e := newEnv(t)
	rec := e.do(t, http.MethodGet, "/readyz", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	e.repo.PingErr = fmt.Errorf("postgres caído")
	rec = e.do(t, http.MethodGet, "/readyz", nil, nil)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestSSOProvidersDiscovery(t *testing.T) {
	e := newEnv(t)
	tn := e.seedTenant(t, "acme")
	enc, err := secretbox.Encrypt("super-secreto")
	require.NoError(t, err)
	require.NoError(t, e.repo.UpsertProviderConfig(context.Background(), &core.ProviderConfig{
		ID: "cfg-1", TenantID: tn.ID, Type: core.ProviderGoogle,
		ClientID: "cid", ClientSecretEnc: enc,
		RedirectURI: "https://app.test/cb", Enabled: true,
	}))

	rec := e.do(t, http.MethodGet, "/api/v1/auth/sso/providers?tenant=acme", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Providers []sso.ProviderInfo `json:"providers"`
	}
	decode(t, rec, &body)
	require.Len(t, body.Providers, 3)
	byType := map[core.ProviderType]sso.ProviderInfo{}
	for _, p := range body.Providers {
		byType[p.Type] = p
	}
	require.True(t, byType[core.ProviderGoogle].Enabled)
	require.True(t, byType[core.ProviderGoogle].Ready)
	require.False(t, byType[core.ProviderSAML].Enabled)

	// tenant desconocido
	rec = e.do(t, http.MethodGet, "/api/v1/auth/sso/providers?tenant=nadie", nil, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSSOInitiateValidation(t *testing.T) {
	e := newEnv(t)
	e.seedTenant(t, "acme")

	// provider desconocido
	rec := e.do(t, http.MethodPost, "/api/v1/auth/sso/initiate",
		map[string]string{"tenant": "acme", "provider": "github"}, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	// tenant desconocido
	rec = e.do(t, http.MethodPost, "/api/v1/auth/sso/initiate",
		map[string]string{"tenant": "nadie", "provider": "google"}, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)

	// tenant sin config para el provider
	rec = e.do(t, http.MethodPost, "/api/v1/auth/sso/initiate",
		map[string]string{"tenant": "acme", "provider": "google"}, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)

	var apiErr struct {
		Error string `json:"error"`
	}
	decode(t, rec, &apiErr)
	require.Equal(t, "provider_not_configured", apiErr.Error)
}

func TestSSOCallbackInvalidState(t *testing.T) {
	e := newEnv(t)
	rec := e.do(t, http.MethodPost, "/api/v1/auth/sso/callback",
		map[string]string{"state": "nunca-emitido", "code": "abc"}, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var apiErr struct {
		Error string `json:"error"`
	}
	decode(t, rec, &apiErr)
	require.Equal(t, "invalid_state", apiErr.Error)
}

func TestMFAStatusRequiresSession(t *testing.T) {
	e := newEnv(t)
	rec := e.do(t, http.MethodGet, "/api/v1/auth/mfa/status", nil, nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.NotEmpty(t, rec.Header().Get("WWW-Authenticate"))
}

func TestMFAVerifyValidation(t *testing.T) {
	e := newEnv(t)

	// method inválido
	rec := e.do(t, http.MethodPost, "/api/v1/auth/mfa/verify",
		map[string]string{"method": "sms", "code": "123456"}, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	// ni mfa_token ni sesión
	rec = e.do(t, http.MethodPost, "/api/v1/auth/mfa/verify",
		map[string]string{"code": "123456"}, nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	// mfa_token vencido/desconocido
	rec = e.do(t, http.MethodPost, "/api/v1/auth/mfa/verify",
		map[string]string{"mfa_token": "viejo", "code": "123456"}, nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	var apiErr struct {
		Error string `json:"error"`
	}
	decode(t, rec, &apiErr)
	require.Equal(t, "challenge_expired", apiErr.Error)
}

func TestMFAEnrollAndChallengeLogin(t *testing.T) {
	e := newEnv(t)
	tn := e.seedTenant(t, "acme")
	u := e.seedUser(t, tn.ID, "ana@acme.com")
	auth := e.bearer(t, u)
	ctx := context.Background()

	// estado inicial: sin segundo factor
	rec := e.do(t, http.MethodGet, "/api/v1/auth/mfa/status", nil, auth)
	require.Equal(t, http.StatusOK, rec.Code)
	var st mfa.Status
	decode(t, rec, &st)
	require.False(t, st.TOTPEnabled)

	// enrolar
	rec = e.do(t, http.MethodPost, "/api/v1/auth/mfa/setup/totp", nil, auth)
	require.Equal(t, http.StatusOK, rec.Code)
	var enr mfa.Enrollment
	decode(t, rec, &enr)
	require.NotEmpty(t, enr.Secret)
	require.Contains(t, enr.OTPAuthURL, "otpauth://totp/")

	// confirmar con el código vigente (sesión, sin mfa_token)
	rec = e.do(t, http.MethodPost, "/api/v1/auth/mfa/verify",
		map[string]string{"code": totpCode(t, enr.Secret, time.Now())}, auth)
	require.Equal(t, http.StatusOK, rec.Code)
	var verified struct {
		Verified bool       `json:"verified"`
		Status   mfa.Status `json:"status"`
	}
	decode(t, rec, &verified)
	require.True(t, verified.Verified)
	require.True(t, verified.Status.TOTPEnabled)

	// re-enrolar con TOTP confirmado → conflicto
	rec = e.do(t, http.MethodPost, "/api/v1/auth/mfa/setup/totp", nil, auth)
	require.Equal(t, http.StatusConflict, rec.Code)

	// códigos de respaldo
	rec = e.do(t, http.MethodPost, "/api/v1/auth/mfa/backup-codes/generate", nil, auth)
	require.Equal(t, http.StatusOK, rec.Code)
	var bk struct {
		Codes []string `json:"codes"`
		Count int      `json:"count"`
	}
	decode(t, rec, &bk)
	require.Equal(t, backupcode.DefaultCount, bk.Count)

	// login con challenge: como tras un callback SSO con TOTP activo
	tok, err := e.c.MFA.CreateChallenge(ctx, u.ID, u.TenantID)
	require.NoError(t, err)
	rec = e.do(t, http.MethodPost, "/api/v1/auth/mfa/verify",
		map[string]string{"mfa_token": tok, "method": "backup_code", "code": bk.Codes[0]}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var sess struct {
		TokenType    string `json:"token_type"`
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
		User         struct {
			ID string `json:"id"`
		} `json:"user"`
	}
	decode(t, rec, &sess)
	require.Equal(t, "Bearer", sess.TokenType)
	require.NotEmpty(t, sess.AccessToken)
	require.NotEmpty(t, sess.RefreshToken)
	require.Equal(t, u.ID, sess.User.ID)

	// el challenge se consume con la verificación exitosa
	rec = e.do(t, http.MethodPost, "/api/v1/auth/mfa/verify",
		map[string]string{"mfa_token": tok, "method": "backup_code", "code": bk.Codes[1]}, nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	// rotación del refresh token
	rec = e.do(t, http.MethodPost, "/api/v1/auth/token/refresh",
		map[string]string{"refresh_token": sess.RefreshToken}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var rotated struct {
		RefreshToken string `json:"refresh_token"`
	}
	decode(t, rec, &rotated)
	require.NotEqual(t, sess.RefreshToken, rotated.RefreshToken)

	// reuso del token rotado → 401 y familia revocada
	rec = e.do(t, http.MethodPost, "/api/v1/auth/token/refresh",
		map[string]string{"refresh_token": sess.RefreshToken}, nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	rec = e.do(t, http.MethodPost, "/api/v1/auth/token/refresh",
		map[string]string{"refresh_token": rotated.RefreshToken}, nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestTokenRefreshErrors(t *testing.T) {
	e := newEnv(t)
	tn := e.seedTenant(t, "acme")
	u := e.seedUser(t, tn.ID, "ana@acme.com")
	ctx := context.Background()

	// desconocido
	rec := e.do(t, http.MethodPost, "/api/v1/auth/token/refresh",
		map[string]string{"refresh_token": "nunca-emitido"}, nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	// expirado
	_, err := e.repo.CreateRefreshToken(ctx, u.ID, tokens.SHA256Base64URL("viejo"), time.Now().Add(-time.Hour))
	require.NoError(t, err)
	rec = e.do(t, http.MethodPost, "/api/v1/auth/token/refresh",
		map[string]string{"refresh_token": "viejo"}, nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	// body vacío
	rec = e.do(t, http.MethodPost, "/api/v1/auth/token/refresh",
		map[string]string{"refresh_token": " "}, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAdminEndpoints(t *testing.T) {
	e := newEnv(t)
	withKey := map[string]string{"X-Admin-Key": adminKey}

	// sin API key
	rec := e.do(t, http.MethodPost, "/api/v1/admin/tenants",
		map[string]string{"name": "Acme", "slug": "acme"}, nil)
	require.Equal(t, http.StatusForbidden, rec.Code)

	// crear tenant
	rec = e.do(t, http.MethodPost, "/api/v1/admin/tenants",
		map[string]string{"name": "Acme", "slug": "acme"}, withKey)
	require.Equal(t, http.StatusCreated, rec.Code)

	// slug duplicado
	rec = e.do(t, http.MethodPost, "/api/v1/admin/tenants",
		map[string]string{"name": "Acme 2", "slug": "acme"}, withKey)
	require.Equal(t, http.StatusConflict, rec.Code)

	// alta de provider con secreto plano: se cifra y nunca vuelve a salir
	rec = e.do(t, http.MethodPut, "/api/v1/admin/sso/providers", map[string]any{
		"tenant":        "acme",
		"type":          "google",
		"client_id":     "cid",
		"client_secret": "super-secreto",
		"redirect_uri":  "https://app.test/cb",
		"enabled":       true,
	}, withKey)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotContains(t, rec.Body.String(), "super-secreto")

	rec = e.do(t, http.MethodGet, "/api/v1/admin/sso/providers?tenant=acme", nil, withKey)
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Providers []core.ProviderConfig `json:"providers"`
	}
	decode(t, rec, &list)
	require.Len(t, list.Providers, 1)
	require.Equal(t, core.ProviderGoogle, list.Providers[0].Type)
	require.NotContains(t, rec.Body.String(), "super-secreto")

	// la vista pública refleja la config como lista para usar
	rec = e.do(t, http.MethodGet, "/api/v1/auth/sso/providers?tenant=acme", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var pub struct {
		Providers []sso.ProviderInfo `json:"providers"`
	}
	decode(t, rec, &pub)
	for _, p := range pub.Providers {
		if p.Type == core.ProviderGoogle {
			require.True(t, p.Enabled)
			require.True(t, p.Ready)
		}
	}
}

func TestAdminUpsertDisablesPreviousConfig(t *testing.T) {
	e := newEnv(t)
	withKey := map[string]string{"X-Admin-Key": adminKey}
	tn := e.seedTenant(t, "acme")
	ctx := context.Background()

	put := func(id string) {
		rec := e.do(t, http.MethodPut, "/api/v1/admin/sso/providers", map[string]any{
			"tenant":        "acme",
			"id":            id,
			"type":          "google",
			"client_id":     "cid-" + id,
			"client_secret": "secreto-" + id,
			"redirect_uri":  "https://app.test/cb",
			"enabled":       true,
		}, withKey)
		require.Equal(t, http.StatusOK, rec.Code)
	}
	put("cfg-a")
	put("cfg-b")

	// a lo sumo una config habilitada por (tenant, type): la nueva pisa a la vieja
	rec := e.do(t, http.MethodGet, "/api/v1/admin/sso/providers?tenant=acme", nil, withKey)
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Providers []core.ProviderConfig `json:"providers"`
	}
	decode(t, rec, &list)
	require.Len(t, list.Providers, 2)
	byID := map[string]core.ProviderConfig{}
	for _, c := range list.Providers {
		byID[c.ID] = c
	}
	require.False(t, byID["cfg-a"].Enabled)
	require.True(t, byID["cfg-b"].Enabled)

	enabled, err := e.repo.GetEnabledProviderConfig(ctx, tn.ID, core.ProviderGoogle)
	require.NoError(t, err)
	require.Equal(t, "cfg-b", enabled.ID)
}

func TestMFADisableFlow(t *testing.T) {
	e := newEnv(t)
	tn := e.seedTenant(t, "acme")
	u := e.seedUser(t, tn.ID, "ana@acme.com")
	auth := e.bearer(t, u)

	rec := e.do(t, http.MethodPost, "/api/v1/auth/mfa/setup/totp", nil, auth)
	require.Equal(t, http.StatusOK, rec.Code)
	var enr mfa.Enrollment
	decode(t, rec, &enr)

	now := time.Now()
	rec = e.do(t, http.MethodPost, "/api/v1/auth/mfa/verify",
		map[string]string{"code": totpCode(t, enr.Secret, now)}, auth)
	require.Equal(t, http.StatusOK, rec.Code)

	// código malo
	rec = e.do(t, http.MethodPost, "/api/v1/auth/mfa/disable",
		map[string]string{"code": "000000"}, auth)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	// el siguiente paso de 30s pasa la ventana y no choca con el anti-replay
	rec = e.do(t, http.MethodPost, "/api/v1/auth/mfa/disable",
		map[string]string{"code": totpCode(t, enr.Secret, now.Add(totp.Period*time.Second))}, auth)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = e.do(t, http.MethodGet, "/api/v1/auth/mfa/status", nil, auth)
	require.Equal(t, http.StatusOK, rec.Code)
	var st mfa.Status
	decode(t, rec, &st)
	require.False(t, st.TOTPEnabled)
	require.False(t, st.TOTPPending)
}
