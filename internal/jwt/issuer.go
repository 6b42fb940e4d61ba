// Package jwt emite y valida los tokens de sesión del servicio (EdDSA).
package jwt

import (
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	jwtv5 "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// EnvSigningKey es la seed ed25519 (base64, 32 bytes) para firmar sesiones.
const EnvSigningKey = "CFAUTH_SIGNING_KEY"

// Issuer firma access tokens con una clave ed25519.
type Issuer struct {
	Iss       string
	AccessTTL time.Duration

	kid  string
	priv ed25519.PrivateKey
	pub  ed25519.PublicKey
}

// NewIssuerFromEnv carga la seed desde CFAUTH_SIGNING_KEY.
func NewIssuerFromEnv(iss string, accessTTL time.Duration) (*Issuer, error) {
	b64 := strings.TrimSpace(os.Getenv(EnvSigningKey))
	if b64 == "" {
		return nil, fmt.Errorf("%s no seteada; genere una con: openssl rand -base64 32", EnvSigningKey)
	}
	seed, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", EnvSigningKey, err)
	}
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("%s debe decodificar a %d bytes, obtuvo %d", EnvSigningKey, ed25519.SeedSize, len(seed))
	}
	return NewIssuer(iss, seed, accessTTL), nil
}

// NewIssuer construye el issuer con una seed explícita (tests).
func NewIssuer(iss string, seed []byte, accessTTL time.Duration) *Issuer {
	if accessTTL <= 0 {
		accessTTL = 15 * time.Minute
	}
	priv := ed25519.NewKeyFromSeed(seed)
	pub := priv.Public().(ed25519.PublicKey)
	sum := sha256.Sum256(pub)
	return &Issuer{
		Iss:       iss,
		AccessTTL: accessTTL,
		kid:       base64.RawURLEncoding.EncodeToString(sum[:8]),
		priv:      priv,
		pub:       pub,
	}
}

// KID devuelve el identificador de la clave activa.
func (i *Issuer) KID() string { return i.kid }

// IssueAccess emite un access token de sesión. std van como claims planos
// (p.ej. tid, amr, email).
func (i *Issuer) IssueAccess(sub string, std map[string]any) (string, time.Time, error) {
	now := time.Now().UTC()
	exp := now.Add(i.AccessTTL)
	claims := jwtv5.MapClaims{
		"iss": i.Iss,
		"sub": sub,
		"iat": now.Unix(),
		"exp": exp.Unix(),
		"jti": uuid.NewString(),
	}
	for k, v := range std {
		claims[k] = v
	}
	tk := jwtv5.NewWithClaims(jwtv5.SigningMethodEdDSA, claims)
	tk.Header["kid"] = i.kid
	tk.Header["typ"] = "JWT"
	signed, err := tk.SignedString(i.priv)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

// Parse valida firma, exp e iss y devuelve los claims.
func (i *Issuer) Parse(token string) (jwtv5.MapClaims, error) {
	tk, err := jwtv5.Parse(token,
		func(t *jwtv5.Token) (any, error) { return i.pub, nil },
		jwtv5.WithValidMethods([]string{"EdDSA"}),
		jwtv5.WithIssuer(i.Iss),
		jwtv5.WithExpirationRequired(),
	)
	if err != nil || !tk.Valid {
		return nil, errors.New("invalid token")
	}
	claims, ok := tk.Claims.(jwtv5.MapClaims)
	if !ok {
		return nil, errors.New("claims type")
	}
	return claims, nil
}
