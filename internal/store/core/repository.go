package core

import (
	"context"
	"time"
)

// Repository es el contrato de persistencia del servicio.
// Implementación de referencia: store/pg (pgx/v5).
type Repository interface {
	Ping(ctx context.Context) error

	// Tenants
	CreateTenant(ctx context.Context, t *Tenant) error
	GetTenantBySlug(ctx context.Context, slug string) (*Tenant, error)

	// Provider configs (tenant-scoped).
	// Upsert deshabilita en la misma transacción cualquier otra config
	// habilitada del mismo (tenant, type): a lo sumo una activa.
	UpsertProviderConfig(ctx context.Context, c *ProviderConfig) error
	ListProviderConfigs(ctx context.Context, tenantID string) ([]ProviderConfig, error)
	GetEnabledProviderConfig(ctx context.Context, tenantID string, t ProviderType) (*ProviderConfig, error)

	// Users + identities
	GetUserByID(ctx context.Context, id string) (*User, error)
	GetUserByEmail(ctx context.Context, tenantID, email string) (*User, error)
	FindUserBySSOIdentity(ctx context.Context, tenantID string, p ProviderType, providerUserID string) (*User, error)
	CreateUserWithIdentity(ctx context.Context, u *User, ident *SSOIdentity) error
	LinkIdentity(ctx context.Context, ident *SSOIdentity) error

	// SSO tokens (por usuario+provider, cifrados)
	UpsertSSOToken(ctx context.Context, t *SSOToken) error
	GetSSOToken(ctx context.Context, userID string, p ProviderType) (*SSOToken, error)
	DeleteSSOTokens(ctx context.Context, userID string) error

	// MFA / TOTP
	UpsertMFATOTP(ctx context.Context, userID, secretEnc string) error
	ConfirmMFATOTP(ctx context.Context, userID string, at time.Time) error
	GetMFATOTP(ctx context.Context, userID string) (*MFATOTP, error)
	UpdateMFAUsedAt(ctx context.Context, userID string, at time.Time) error
	DisableMFATOTP(ctx context.Context, userID string) error

	// Backup codes
	ReplaceBackupCodes(ctx context.Context, userID string, hashes []string) error
	ListUnusedBackupCodes(ctx context.Context, userID string) ([]BackupCode, error)
	ConsumeBackupCode(ctx context.Context, id string, at time.Time) (bool, error)
	CountUnusedBackupCodes(ctx context.Context, userID string) (int, error)

	// Session refresh tokens
	CreateRefreshToken(ctx context.Context, userID, tokenHash string, expiresAt time.Time) (string, error)
	GetRefreshTokenByHash(ctx context.Context, tokenHash string) (*RefreshToken, error)
	RevokeRefreshToken(ctx context.Context, id string) error
	RevokeRefreshTokensForUser(ctx context.Context, userID string) error
	PurgeExpiredRefreshTokens(ctx context.Context, before time.Time) (int64, error)
}
