package core

import "time"

// ProviderType identifica el adapter de identidad externo.
type ProviderType string

const (
	ProviderGoogle    ProviderType = "google"
	ProviderMicrosoft ProviderType = "microsoft"
	ProviderSAML      ProviderType = "saml"
)

// Valid reporta si el tipo de provider es conocido.
func (p ProviderType) Valid() bool {
	switch p {
	case ProviderGoogle, ProviderMicrosoft, ProviderSAML:
		return true
	}
	return false
}

type Tenant struct {
	ID, Name, Slug string
	CreatedAt      time.Time
}

// ProviderConfig es la configuración SSO de un tenant para un provider.
// client_secret viaja siempre cifrado (secretbox).
type ProviderConfig struct {
	ID              string       `json:"id"`
	TenantID        string       `json:"tenant_id"`
	Type            ProviderType `json:"type"`
	ClientID        string       `json:"client_id"`
	ClientSecretEnc string       `json:"-"`
	RedirectURI     string       `json:"redirect_uri"`
	IssuerURL       string       `json:"issuer_url,omitempty"` // OIDC issuer / metadata
	SAMLEntryPoint  string       `json:"saml_entry_point,omitempty"`
	SAMLIssuer      string       `json:"saml_issuer,omitempty"`
	SAMLCertPEM     string       `json:"saml_cert_pem,omitempty"`
	Enabled         bool         `json:"enabled"`
	CreatedAt       time.Time    `json:"created_at"`
	UpdatedAt       time.Time    `json:"updated_at"`
}

type User struct {
	ID, TenantID, Email, Name, Status string
	CreatedAt                         time.Time
}

// SSOIdentity vincula un usuario local con su identidad en el provider.
type SSOIdentity struct {
	ID, UserID     string
	Provider       ProviderType
	ProviderUserID string
	Email          string
	CreatedAt      time.Time
}

// SSOToken es el par access/refresh emitido por el provider, cifrado en reposo.
type SSOToken struct {
	UserID          string
	Provider        ProviderType
	AccessTokenEnc  string
	RefreshTokenEnc string
	ExpiresAt       time.Time
	UpdatedAt       time.Time
}

// MFATOTP es el secreto TOTP del usuario, cifrado.
// ConfirmedAt == nil significa enrolado pero todavía no confirmado.
type MFATOTP struct {
	UserID          string
	SecretEncrypted string
	ConfirmedAt     *time.Time
	LastUsedAt      *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// BackupCode es un código de recuperación de un solo uso (hash argon2id).
type BackupCode struct {
	ID        string
	UserID    string
	CodeHash  string
	UsedAt    *time.Time
	CreatedAt time.Time
}

// RefreshToken es el refresh de sesión local (hash sha256, opaco).
type RefreshToken struct {
	ID        string
	UserID    string
	TokenHash string
	IssuedAt  time.Time
	ExpiresAt time.Time
	RevokedAt *time.Time
}
