// Package microsoft habla OIDC con Microsoft Entra ID a través de go-oidc.
// A diferencia de Google, aquí el issuer viene de la config del tenant
// (https://login.microsoftonline.com/{tenant}/v2.0).
package microsoft

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
)

type Client struct {
	clientID string
	verifier *oidc.IDTokenVerifier
	oauth    oauth2.Config
}

// Identity es el perfil extraído del id_token.
type Identity struct {
	Sub           string
	Email         string
	EmailVerified bool
	Name          string
	TenantID      string // claim "tid"
}

func New(ctx context.Context, issuerURL, clientID, clientSecret, redirectURL string) (*Client, error) {
	if issuerURL == "" {
		return nil, errors.New("microsoft: issuer_url requerido")
	}
	provider, err := oidc.NewProvider(ctx, issuerURL)
	if err != nil {
		return nil, fmt.Errorf("microsoft discovery: %w", err)
	}
	return &Client{
		clientID: clientID,
		verifier: provider.Verifier(&oidc.Config{ClientID: clientID}),
		oauth: oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURL,
			Endpoint:     provider.Endpoint(),
			Scopes:       []string{oidc.ScopeOpenID, "email", "profile", "offline_access"},
		},
	}, nil
}

func (c *Client) AuthURL(state, nonce string) string {
	return c.oauth.AuthCodeURL(state, oauth2.AccessTypeOffline, oidc.Nonce(nonce))
}

// Exchange canjea el code, verifica el id_token (firma, aud, nonce) y
// devuelve la identidad junto al token OAuth crudo.
func (c *Client) Exchange(ctx context.Context, code, nonce string) (*Identity, *oauth2.Token, error) {
	tok, err := c.oauth.Exchange(ctx, code)
	if err != nil {
		return nil, nil, fmt.Errorf("microsoft exchange: %w", err)
	}
	raw, ok := tok.Extra("id_token").(string)
	if !ok || raw == "" {
		return nil, nil, errors.New("microsoft: respuesta sin id_token")
	}
	idt, err := c.verifier.Verify(ctx, raw)
	if err != nil {
		return nil, nil, fmt.Errorf("microsoft id_token: %w", err)
	}
	if nonce != "" && idt.Nonce != nonce {
		return nil, nil, errors.New("microsoft: nonce no coincide")
	}

	var claims struct {
		Email             string `json:"email"`
		PreferredUsername string `json:"preferred_username"`
		Name              string `json:"name"`
		TID               string `json:"tid"`
	}
	if err := idt.Claims(&claims); err != nil {
		return nil, nil, err
	}
	email := claims.Email
	if email == "" {
		// Entra ID a veces solo emite preferred_username (UPN)
		email = claims.PreferredUsername
	}
	ident := &Identity{
		Sub:   idt.Subject,
		Email: email,
		// Entra ID no emite email_verified; las cuentas del directorio
		// se consideran verificadas por el IdP.
		EmailVerified: email != "",
		Name:          claims.Name,
		TenantID:      claims.TID,
	}
	if tok.Expiry.IsZero() {
		tok.Expiry = time.Now().Add(time.Hour)
	}
	return ident, tok, nil
}
