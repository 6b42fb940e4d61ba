// Package cache provee el cache efímero del servicio: state de SSO,
// nonces OIDC y challenges MFA pendientes, siempre con TTL.
//
// Backends:
//   - memory (in-process, para desarrollo/tests)
//   - redis (distribuido, para producción)
package cache

import (
	"context"
	"time"
)

// Cache es el contrato mínimo que usan los services.
type Cache interface {
	// Get retorna el valor y si la key existe (expirada == inexistente).
	Get(ctx context.Context, key string) ([]byte, bool)

	// Set guarda un valor con TTL. ttl <= 0 usa el default del backend.
	Set(ctx context.Context, key string, val []byte, ttl time.Duration)

	// Delete elimina una key (idempotente).
	Delete(ctx context.Context, key string)

	// Ping verifica la conexión al backend.
	Ping(ctx context.Context) error
}
