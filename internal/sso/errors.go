package sso

import "errors"

var (
	// ErrProviderNotConfigured: el tenant no tiene config habilitada para ese provider.
	ErrProviderNotConfigured = errors.New("sso: provider not configured")

	// ErrInvalidState: state desconocido, vencido o ya consumido.
	ErrInvalidState = errors.New("sso: invalid or expired state")

	// ErrExchange: el handshake con el provider falló.
	ErrExchange = errors.New("sso: exchange failed")
)
