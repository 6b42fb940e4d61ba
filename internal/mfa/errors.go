package mfa

import "errors"

var (
	// ErrNotEnrolled: el usuario no tiene TOTP registrado.
	ErrNotEnrolled = errors.New("mfa: totp no enrolado")

	// ErrAlreadyEnabled: ya hay un TOTP confirmado; hay que deshabilitar antes.
	ErrAlreadyEnabled = errors.New("mfa: totp ya habilitado")

	// ErrNotConfirmed: hay enrolamiento pendiente pero sin confirmar.
	ErrNotConfirmed = errors.New("mfa: totp pendiente de confirmación")

	// ErrBadCode: código TOTP o de respaldo inválido (o reutilizado).
	ErrBadCode = errors.New("mfa: código inválido")

	// ErrChallengeExpired: el mfa_token no existe o ya fue consumido.
	ErrChallengeExpired = errors.New("mfa: challenge expirado o consumido")
)
