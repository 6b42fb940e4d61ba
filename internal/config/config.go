// Package config carga la configuración del servicio: YAML + overrides por
// variables de entorno. Los secretos (clave maestra, signing key) viven sólo
// en el entorno, nunca en el YAML.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type RateRule struct {
	Limit  int    `yaml:"limit"`
	Window string `yaml:"window"`
}

// WindowDur parsea Window con un default si está vacío o inválido.
func (r RateRule) WindowDur(def time.Duration) time.Duration {
	if d, err := time.ParseDuration(r.Window); err == nil && d > 0 {
		return d
	}
	return def
}

type Config struct {
	App struct {
		// dev | staging | prod
		Env string `yaml:"env"`
	} `yaml:"app"`

	Server struct {
		Addr               string   `yaml:"addr"`
		BaseURL            string   `yaml:"base_url"` // URL pública del servicio (redirect URIs)
		CORSAllowedOrigins []string `yaml:"cors_allowed_origins"`
		AdminAPIKey        string   `yaml:"-"` // sólo por env: CFAUTH_ADMIN_API_KEY
	} `yaml:"server"`

	Storage struct {
		DSN      string `yaml:"dsn"`
		Postgres struct {
			MaxOpenConns    int    `yaml:"max_open_conns"`
			MaxIdleConns    int    `yaml:"max_idle_conns"`
			ConnMaxLifetime string `yaml:"conn_max_lifetime"`
		} `yaml:"postgres"`
	} `yaml:"storage"`

	Cache struct {
		Kind  string `yaml:"kind"` // memory | redis
		Redis struct {
			Addr   string `yaml:"addr"`
			DB     int    `yaml:"db"`
			Prefix string `yaml:"prefix"`
		} `yaml:"redis"`
		Memory struct {
			DefaultTTL string `yaml:"default_ttl"`
		} `yaml:"memory"`
	} `yaml:"cache"`

	JWT struct {
		Issuer     string `yaml:"issuer"`
		AccessTTL  string `yaml:"access_ttl"`
		RefreshTTL string `yaml:"refresh_ttl"`
	} `yaml:"jwt"`

	SSO struct {
		StateTTL string `yaml:"state_ttl"` // validez del state anti-CSRF
	} `yaml:"sso"`

	MFA struct {
		TOTPIssuer   string `yaml:"totp_issuer"`   // label del otpauth://
		TOTPWindow   int    `yaml:"totp_window"`   // ± pasos de 30s
		ChallengeTTL string `yaml:"challenge_ttl"` // validez del mfa_token
	} `yaml:"mfa"`

	Rate struct {
		Enabled     bool     `yaml:"enabled"`
		Initiate    RateRule `yaml:"initiate"`
		Callback    RateRule `yaml:"callback"`
		Verify      RateRule `yaml:"verify"`
		BackupCodes RateRule `yaml:"backup_codes"`
	} `yaml:"rate"`

	SMTP struct {
		Host               string `yaml:"host"`
		Port               int    `yaml:"port"`
		Username           string `yaml:"username"`
		Password           string `yaml:"-"` // sólo por env: SMTP_PASSWORD
		From               string `yaml:"from"`
		InsecureSkipVerify bool   `yaml:"insecure_skip_verify"` // sólo dev
	} `yaml:"smtp"`

	Email struct {
		// Notificaciones de seguridad (MFA habilitado, códigos regenerados).
		Enabled bool `yaml:"enabled"`
	} `yaml:"email"`

	Log struct {
		Level string `yaml:"level"`
	} `yaml:"log"`
}

// Load lee el YAML (si path existe), aplica defaults y pisa con el entorno.
func Load(path string) (*Config, error) {
	var c Config
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, err
			}
		} else if err := yaml.Unmarshal(b, &c); err != nil {
			return nil, fmt.Errorf("config yaml: %w", err)
		}
	}

	c.applyDefaults()
	c.applyEnvOverrides()

	if c.App.Env == "prod" && c.Server.AdminAPIKey == "" {
		return nil, fmt.Errorf("CFAUTH_ADMIN_API_KEY requerida en prod")
	}
	return &c, nil
}

func (c *Config) applyDefaults() {
	if c.App.Env == "" {
		c.App.Env = "dev"
	}
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Server.BaseURL == "" {
		c.Server.BaseURL = "http://localhost:8080"
	}
	if c.Cache.Kind == "" {
		c.Cache.Kind = "memory"
	}
	if c.Cache.Redis.Prefix == "" {
		c.Cache.Redis.Prefix = "cfauth:"
	}
	if c.Cache.Memory.DefaultTTL == "" {
		c.Cache.Memory.DefaultTTL = "5m"
	}
	if c.JWT.Issuer == "" {
		c.JWT.Issuer = c.Server.BaseURL
	}
	if c.JWT.AccessTTL == "" {
		c.JWT.AccessTTL = "15m"
	}
	if c.JWT.RefreshTTL == "" {
		c.JWT.RefreshTTL = "720h" // 30d
	}
	if c.SSO.StateTTL == "" {
		c.SSO.StateTTL = "10m"
	}
	if c.MFA.TOTPIssuer == "" {
		c.MFA.TOTPIssuer = "ClientForge"
	}
	if c.MFA.TOTPWindow <= 0 || c.MFA.TOTPWindow > 3 {
		c.MFA.TOTPWindow = 1
	}
	if c.MFA.ChallengeTTL == "" {
		c.MFA.ChallengeTTL = "5m"
	}
	// Rate limits por endpoint
	if c.Rate.Initiate.Limit == 0 {
		c.Rate.Initiate.Limit = 20
	}
	if c.Rate.Initiate.Window == "" {
		c.Rate.Initiate.Window = "1m"
	}
	if c.Rate.Callback.Limit == 0 {
		c.Rate.Callback.Limit = 20
	}
	if c.Rate.Callback.Window == "" {
		c.Rate.Callback.Window = "1m"
	}
	if c.Rate.Verify.Limit == 0 {
		c.Rate.Verify.Limit = 10
	}
	if c.Rate.Verify.Window == "" {
		c.Rate.Verify.Window = "1m"
	}
	if c.Rate.BackupCodes.Limit == 0 {
		c.Rate.BackupCodes.Limit = 3
	}
	if c.Rate.BackupCodes.Window == "" {
		c.Rate.BackupCodes.Window = "10m"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

// applyEnvOverrides pisa el YAML con variables de entorno.
func (c *Config) applyEnvOverrides() {
	if v, ok := getEnvStr("CFAUTH_ENV"); ok {
		c.App.Env = v
	}
	if v, ok := getEnvStr("CFAUTH_ADDR"); ok {
		c.Server.Addr = v
	}
	if v, ok := getEnvStr("CFAUTH_BASE_URL"); ok {
		c.Server.BaseURL = strings.TrimRight(v, "/")
	}
	if v, ok := getEnvCSV("CFAUTH_CORS_ORIGINS"); ok {
		c.Server.CORSAllowedOrigins = v
	}
	if v, ok := getEnvStr("CFAUTH_ADMIN_API_KEY"); ok {
		c.Server.AdminAPIKey = v
	}
	if v, ok := getEnvStr("CFAUTH_DB_DSN"); ok {
		c.Storage.DSN = v
	}
	if v, ok := getEnvStr("CFAUTH_CACHE_KIND"); ok {
		c.Cache.Kind = v
	}
	if v, ok := getEnvStr("CFAUTH_REDIS_ADDR"); ok {
		c.Cache.Redis.Addr = v
	}
	if v, ok := getEnvInt("CFAUTH_REDIS_DB"); ok {
		c.Cache.Redis.DB = v
	}
	if v, ok := getEnvStr("CFAUTH_JWT_ISSUER"); ok {
		c.JWT.Issuer = v
	}
	if v, ok := getEnvStr("CFAUTH_ACCESS_TTL"); ok {
		c.JWT.AccessTTL = v
	}
	if v, ok := getEnvStr("CFAUTH_REFRESH_TTL"); ok {
		c.JWT.RefreshTTL = v
	}
	if v, ok := getEnvStr("MFA_TOTP_ISSUER"); ok {
		c.MFA.TOTPIssuer = v
	}
	if v, ok := getEnvInt("MFA_TOTP_WINDOW"); ok && v >= 0 && v <= 3 {
		c.MFA.TOTPWindow = v
	}
	if v, ok := getEnvBool("CFAUTH_RATE_ENABLED"); ok {
		c.Rate.Enabled = v
	}
	// SMTP
	if v, ok := getEnvStr("SMTP_HOST"); ok {
		c.SMTP.Host = v
	}
	if v, ok := getEnvInt("SMTP_PORT"); ok {
		c.SMTP.Port = v
	}
	if v, ok := getEnvStr("SMTP_USERNAME"); ok {
		c.SMTP.Username = v
	}
	if v, ok := getEnvStr("SMTP_PASSWORD"); ok {
		c.SMTP.Password = v
	}
	if v, ok := getEnvStr("SMTP_FROM"); ok {
		c.SMTP.From = v
	}
	if v, ok := getEnvBool("CFAUTH_EMAIL_ENABLED"); ok {
		c.Email.Enabled = v
	}
	if v, ok := getEnvStr("CFAUTH_LOG_LEVEL"); ok {
		c.Log.Level = v
	}
}

// Dur parsea una duración de config con default.
func Dur(s string, def time.Duration) time.Duration {
	if d, err := time.ParseDuration(strings.TrimSpace(s)); err == nil && d > 0 {
		return d
	}
	return def
}

// ---- Helpers env ----

func getEnvStr(key string) (string, bool) {
	v := os.Getenv(key)
	return v, v != ""
}

func getEnvInt(key string) (int, bool) {
	if s, ok := getEnvStr(key); ok {
		if i, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
			return i, true
		}
	}
	return 0, false
}

func getEnvBool(key string) (bool, bool) {
	if s, ok := getEnvStr(key); ok {
		if b, err := strconv.ParseBool(strings.TrimSpace(s)); err == nil {
			return b, true
		}
	}
	return false, false
}

func getEnvCSV(key string) ([]string, bool) {
	if s, ok := getEnvStr(key); ok {
		parts := strings.Split(s, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		return out, true
	}
	return nil, false
}
