package logger

import (
	"time"

	"go.uber.org/zap"
)

// ---- HTTP ----

func RequestID(v string) zap.Field { return zap.String("request_id", v) }
func Method(v string) zap.Field    { return zap.String("method", v) }
func Path(v string) zap.Field      { return zap.String("path", v) }
func Status(v int) zap.Field       { return zap.Int("status", v) }
func Bytes(v int) zap.Field        { return zap.Int("bytes", v) }
func ClientIP(v string) zap.Field  { return zap.String("client_ip", v) }

func Duration(v time.Duration) zap.Field { return zap.Duration("duration", v) }

// ---- Dominio ----

func TenantID(v string) zap.Field { return zap.String("tenant_id", v) }
func UserID(v string) zap.Field   { return zap.String("user_id", v) }

// Provider identifica el adapter SSO (google|microsoft|saml).
func Provider(v string) zap.Field { return zap.String("provider", v) }

// Email: usar con cuidado en prod.
func Email(v string) zap.Field { return zap.String("email", v) }

// ---- Sistema ----

func Component(v string) zap.Field { return zap.String("component", v) }
func Op(v string) zap.Field        { return zap.String("op", v) }
func Err(err error) zap.Field      { return zap.Error(err) }
func Count(v int) zap.Field        { return zap.Int("count", v) }

func String(key, v string) zap.Field   { return zap.String(key, v) }
func Int(key string, v int) zap.Field  { return zap.Int(key, v) }
func Bool(key string, v bool) zap.Field { return zap.Bool(key, v) }
