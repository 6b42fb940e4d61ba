// Package storetest provee un core.Repository en memoria para tests.
package storetest

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jalgreatworks0/clientforge-auth/internal/store/core"
)

// FakeRepo implementa core.Repository sobre maps. No es thread-perfect
// pero alcanza para tests unitarios con mutex grueso.
type FakeRepo struct {
	mu sync.Mutex

	Tenants    map[string]*core.Tenant // por ID
	Configs    map[string]*core.ProviderConfig
	Users      map[string]*core.User
	Identities []*core.SSOIdentity
	SSOTokens  map[string]*core.SSOToken // userID+"|"+provider
	TOTP       map[string]*core.MFATOTP
	Backup     map[string][]*core.BackupCode // por userID
	Refresh    map[string]*core.RefreshToken // por ID

	PingErr error
}

func New() *FakeRepo {
	return &FakeRepo{
		Tenants:   map[string]*core.Tenant{},
		Configs:   map[string]*core.ProviderConfig{},
		Users:     map[string]*core.User{},
		SSOTokens: map[string]*core.SSOToken{},
		TOTP:      map[string]*core.MFATOTP{},
		Backup:    map[string][]*core.BackupCode{},
		Refresh:   map[string]*core.RefreshToken{},
	}
}

var _ core.Repository = (*FakeRepo)(nil)

func (f *FakeRepo) Ping(ctx context.Context) error { return f.PingErr }

// ---- Tenants ----

func (f *FakeRepo) CreateTenant(ctx context.Context, t *core.Tenant) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, e := range f.Tenants {
		if e.Slug == t.Slug {
			return core.ErrConflict
		}
	}
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	t.CreatedAt = time.Now()
	f.Tenants[t.ID] = t
	return nil
}

func (f *FakeRepo) GetTenantBySlug(ctx context.Context, slug string) (*core.Tenant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range f.Tenants {
		if t.Slug == slug {
			return t, nil
		}
	}
	return nil, core.ErrNotFound
}

// ---- Provider configs ----

func (f *FakeRepo) UpsertProviderConfig(ctx context.Context, c *core.ProviderConfig) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.Enabled {
		for _, e := range f.Configs {
			if e.ID != c.ID && e.TenantID == c.TenantID && e.Type == c.Type {
				e.Enabled = false
			}
		}
	}
	c.UpdatedAt = time.Now()
	cp := *c
	f.Configs[c.ID] = &cp
	return nil
}

func (f *FakeRepo) ListProviderConfigs(ctx context.Context, tenantID string) ([]core.ProviderConfig, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []core.ProviderConfig
	for _, c := range f.Configs {
		if c.TenantID == tenantID {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (f *FakeRepo) GetEnabledProviderConfig(ctx context.Context, tenantID string, t core.ProviderType) (*core.ProviderConfig, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.Configs {
		if c.TenantID == tenantID && c.Type == t && c.Enabled {
			cp := *c
			return &cp, nil
		}
	}
	return nil, core.ErrNotFound
}

// ---- Users ----

func (f *FakeRepo) GetUserByID(ctx context.Context, id string) (*core.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.Users[id]
	if !ok {
		return nil, core.ErrNotFound
	}
	return u, nil
}

func (f *FakeRepo) GetUserByEmail(ctx context.Context, tenantID, email string) (*core.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	email = strings.ToLower(email)
	for _, u := range f.Users {
		if u.TenantID == tenantID && strings.ToLower(u.Email) == email {
			return u, nil
		}
	}
	return nil, core.ErrNotFound
}

func (f *FakeRepo) FindUserBySSOIdentity(ctx context.Context, tenantID string, p core.ProviderType, providerUserID string) (*core.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range f.Identities {
		if id.Provider == p && id.ProviderUserID == providerUserID {
			if u, ok := f.Users[id.UserID]; ok && u.TenantID == tenantID {
				return u, nil
			}
		}
	}
	return nil, core.ErrNotFound
}

func (f *FakeRepo) CreateUserWithIdentity(ctx context.Context, u *core.User, ident *core.SSOIdentity) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if u.Status == "" {
		u.Status = "active"
	}
	u.CreatedAt = time.Now()
	f.Users[u.ID] = u
	ident.UserID = u.ID
	f.addIdentityLocked(ident)
	return nil
}

func (f *FakeRepo) LinkIdentity(ctx context.Context, ident *core.SSOIdentity) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.addIdentityLocked(ident)
	return nil
}

// addIdentityLocked replica el UNIQUE (user_id, provider, provider_user_id)
// de pg: el insert duplicado es un no-op.
func (f *FakeRepo) addIdentityLocked(ident *core.SSOIdentity) {
	for _, e := range f.Identities {
		if e.UserID == ident.UserID && e.Provider == ident.Provider && e.ProviderUserID == ident.ProviderUserID {
			return
		}
	}
	if ident.ID == "" {
		ident.ID = uuid.NewString()
	}
	f.Identities = append(f.Identities, ident)
}

// ---- SSO tokens ----

func ssoKey(userID string, p core.ProviderType) string { return userID + "|" + string(p) }

func (f *FakeRepo) UpsertSSOToken(ctx context.Context, t *core.SSOToken) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	t.UpdatedAt = time.Now()
	f.SSOTokens[ssoKey(t.UserID, t.Provider)] = t
	return nil
}

func (f *FakeRepo) GetSSOToken(ctx context.Context, userID string, p core.ProviderType) (*core.SSOToken, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.SSOTokens[ssoKey(userID, p)]
	if !ok {
		return nil, core.ErrNotFound
	}
	return t, nil
}

func (f *FakeRepo) DeleteSSOTokens(ctx context.Context, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for k := range f.SSOTokens {
		if strings.HasPrefix(k, userID+"|") {
			delete(f.SSOTokens, k)
		}
	}
	return nil
}

// ---- MFA / TOTP ----

func (f *FakeRepo) UpsertMFATOTP(ctx context.Context, userID, secretEnc string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	now := time.Now()
	f.TOTP[userID] = &core.MFATOTP{
		UserID:          userID,
		SecretEncrypted: secretEnc,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	return nil
}

func (f *FakeRepo) ConfirmMFATOTP(ctx context.Context, userID string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.TOTP[userID]
	if !ok {
		return core.ErrNotFound
	}
	rec.ConfirmedAt = &at
	return nil
}

func (f *FakeRepo) GetMFATOTP(ctx context.Context, userID string) (*core.MFATOTP, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.TOTP[userID]
	if !ok {
		return nil, nil
	}
	cp := *rec
	return &cp, nil
}

func (f *FakeRepo) UpdateMFAUsedAt(ctx context.Context, userID string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.TOTP[userID]
	if !ok {
		return core.ErrNotFound
	}
	rec.LastUsedAt = &at
	return nil
}

func (f *FakeRepo) DisableMFATOTP(ctx context.Context, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.TOTP, userID)
	delete(f.Backup, userID)
	return nil
}

// ---- Backup codes ----

func (f *FakeRepo) ReplaceBackupCodes(ctx context.Context, userID string, hashes []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	codes := make([]*core.BackupCode, 0, len(hashes))
	for _, h := range hashes {
		codes = append(codes, &core.BackupCode{
			ID:        uuid.NewString(),
			UserID:    userID,
			CodeHash:  h,
			CreatedAt: time.Now(),
		})
	}
	f.Backup[userID] = codes
	return nil
}

func (f *FakeRepo) ListUnusedBackupCodes(ctx context.Context, userID string) ([]core.BackupCode, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []core.BackupCode
	for _, c := range f.Backup[userID] {
		if c.UsedAt == nil {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (f *FakeRepo) ConsumeBackupCode(ctx context.Context, id string, at time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, codes := range f.Backup {
		for _, c := range codes {
			if c.ID == id {
				if c.UsedAt != nil {
					return false, nil
				}
				c.UsedAt = &at
				return true, nil
			}
		}
	}
	return false, nil
}

func (f *FakeRepo) CountUnusedBackupCodes(ctx context.Context, userID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.Backup[userID] {
		if c.UsedAt == nil {
			n++
		}
	}
	return n, nil
}

// ---- Refresh tokens ----

func (f *FakeRepo) CreateRefreshToken(ctx context.Context, userID, tokenHash string, expiresAt time.Time) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := uuid.NewString()
	f.Refresh[id] = &core.RefreshToken{
		ID:        id,
		UserID:    userID,
		TokenHash: tokenHash,
		IssuedAt:  time.Now(),
		ExpiresAt: expiresAt,
	}
	return id, nil
}

func (f *FakeRepo) GetRefreshTokenByHash(ctx context.Context, tokenHash string) (*core.RefreshToken, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range f.Refresh {
		if t.TokenHash == tokenHash {
			cp := *t
			return &cp, nil
		}
	}
	return nil, core.ErrNotFound
}

func (f *FakeRepo) RevokeRefreshToken(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if t, ok := f.Refresh[id]; ok && t.RevokedAt == nil {
		now := time.Now()
		t.RevokedAt = &now
	}
	return nil
}

func (f *FakeRepo) RevokeRefreshTokensForUser(ctx context.Context, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	now := time.Now()
	for _, t := range f.Refresh {
		if t.UserID == userID && t.RevokedAt == nil {
			t.RevokedAt = &now
		}
	}
	return nil
}

func (f *FakeRepo) PurgeExpiredRefreshTokens(ctx context.Context, before time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for id, t := range f.Refresh {
		if t.ExpiresAt.Before(before) || (t.RevokedAt != nil && t.RevokedAt.Before(before)) {
			delete(f.Refresh, id)
			n++
		}
	}
	return n, nil
}
