// Package audit emite el trail de eventos de seguridad como logs
// estructurados (canal "audit" del logger). Un sink externo puede filtrar
// por el campo service/logger.
package audit

import (
	"context"

	"go.uber.org/zap"

	"github.com/jalgreatworks0/clientforge-auth/internal/observability/logger"
	"github.com/jalgreatworks0/clientforge-auth/internal/util"
)

// Eventos conocidos. Los emails siempre van enmascarados.
const (
	EventSSOLogin       = "sso.login"
	EventSSOUserCreated = "sso.user_created"
	EventSSOLogout      = "sso.logout"
	EventMFAEnabled     = "mfa.enabled"
	EventMFADisabled    = "mfa.disabled"
	EventMFAVerifyFail  = "mfa.verify_failed"
	EventBackupCodes    = "mfa.backup_codes_regenerated"
)

// Event registra un evento de auditoría con campos tipados.
func Event(ctx context.Context, event string, fields ...zap.Field) {
	logger.From(ctx).Named("audit").Info(event, fields...)
}

// Email devuelve el campo email ya enmascarado.
func Email(v string) zap.Field {
	return logger.Email(util.MaskEmail(v))
}
