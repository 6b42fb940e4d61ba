// Package sso enruta logins al adapter de identidad correcto según la
// configuración del tenant y normaliza los claims resultantes.
package sso

import (
	"context"
	"time"

	"github.com/jalgreatworks0/clientforge-auth/internal/store/core"
)

// Profile es la identidad normalizada que devuelven todos los adapters.
type Profile struct {
	Provider       core.ProviderType
	ProviderUserID string
	Email          string
	EmailVerified  bool
	Name           string
	Attributes     map[string]string
}

// Tokens son los tokens emitidos por el provider (nil para SAML).
type Tokens struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

// Callback agrupa los parámetros que llegan del provider.
type Callback struct {
	Code         string // OAuth2/OIDC authorization code
	SAMLResponse string // base64, sólo SAML
	Nonce        string // nonce esperado en el id_token (OIDC)
}

// Adapter es el handshake provider-specific. Cada implementación normaliza
// los claims a Profile.
type Adapter interface {
	Type() core.ProviderType

	// AuthURL construye la URL de autorización para redirigir al usuario.
	AuthURL(ctx context.Context, state, nonce string) (string, error)

	// Exchange completa el handshake con los parámetros del callback.
	Exchange(ctx context.Context, cb Callback) (*Profile, *Tokens, error)
}
