// Package mfa implementa el segundo factor: TOTP (RFC 6238) con secreto
// cifrado en reposo, códigos de respaldo de un solo uso y challenges
// efímeros para el paso intermedio del login.
package mfa

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jalgreatworks0/clientforge-auth/internal/audit"
	"github.com/jalgreatworks0/clientforge-auth/internal/cache"
	"github.com/jalgreatworks0/clientforge-auth/internal/email"
	"github.com/jalgreatworks0/clientforge-auth/internal/metrics"
	"github.com/jalgreatworks0/clientforge-auth/internal/observability/logger"
	"github.com/jalgreatworks0/clientforge-auth/internal/security/backupcode"
	"github.com/jalgreatworks0/clientforge-auth/internal/security/secretbox"
	"github.com/jalgreatworks0/clientforge-auth/internal/security/totp"
	tokens "github.com/jalgreatworks0/clientforge-auth/internal/security/token"
	"github.com/jalgreatworks0/clientforge-auth/internal/store/core"
)

const challengeKeyPrefix = "mfa:challenge:"

type Service struct {
	repo         core.Repository
	cache        cache.Cache
	notifier     *email.Notifier // nil si el email está deshabilitado
	issuer       string
	window       int
	challengeTTL time.Duration
}

type Config struct {
	Issuer       string // label del otpauth://
	Window       int    // ± pasos de 30s aceptados
	ChallengeTTL time.Duration
}

func NewService(repo core.Repository, c cache.Cache, notifier *email.Notifier, cfg Config) *Service {
	if cfg.Issuer == "" {
		cfg.Issuer = "ClientForge"
	}
	if cfg.Window <= 0 {
		cfg.Window = 1
	}
	if cfg.ChallengeTTL <= 0 {
		cfg.ChallengeTTL = 5 * time.Minute
	}
	return &Service{
		repo:         repo,
		cache:        c,
		notifier:     notifier,
		issuer:       cfg.Issuer,
		window:       cfg.Window,
		challengeTTL: cfg.ChallengeTTL,
	}
}

// Status es el estado MFA que ve el usuario.
type Status struct {
	TOTPEnabled          bool       `json:"totp_enabled"`
	TOTPPending          bool       `json:"totp_pending"` // enrolado sin confirmar
	ConfirmedAt          *time.Time `json:"confirmed_at,omitempty"`
	BackupCodesRemaining int        `json:"backup_codes_remaining"`
}

func (s *Service) Status(ctx context.Context, userID string) (*Status, error) {
	rec, err := s.repo.GetMFATOTP(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := &Status{}
	if rec != nil {
		out.TOTPEnabled = rec.ConfirmedAt != nil
		out.TOTPPending = rec.ConfirmedAt == nil
		out.ConfirmedAt = rec.ConfirmedAt
	}
	if out.TOTPEnabled {
		n, err := s.repo.CountUnusedBackupCodes(ctx, userID)
		if err != nil {
			return nil, err
		}
		out.BackupCodesRemaining = n
	}
	return out, nil
}

// Enrollment es el resultado del setup: el secreto se muestra UNA vez.
type Enrollment struct {
	Secret     string `json:"secret"`      // base32
	OTPAuthURL string `json:"otpauth_url"` // para el QR
}

// SetupTOTP genera un secreto nuevo y lo deja pendiente de confirmación.
// Re-enrolar pisa un enrolamiento pendiente; uno confirmado exige
// deshabilitar primero.
func (s *Service) SetupTOTP(ctx context.Context, user *core.User) (*Enrollment, error) {
	existing, err := s.repo.GetMFATOTP(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	if existing != nil && existing.ConfirmedAt != nil {
		return nil, ErrAlreadyEnabled
	}

	_, b32, err := totp.GenerateSecret()
	if err != nil {
		return nil, err
	}
	enc, err := secretbox.Encrypt(b32)
	if err != nil {
		return nil, fmt.Errorf("encrypt totp secret: %w", err)
	}
	if err := s.repo.UpsertMFATOTP(ctx, user.ID, enc); err != nil {
		return nil, err
	}
	logger.L().Info("totp enrolado (pendiente)", logger.UserID(user.ID))
	return &Enrollment{
		Secret:     b32,
		OTPAuthURL: totp.OTPAuthURL(s.issuer, user.Email, b32),
	}, nil
}

// VerifyTOTP valida un código. La primera verificación correcta confirma
// el enrolamiento. Cada paso de tiempo se acepta una sola vez (anti-replay).
func (s *Service) VerifyTOTP(ctx context.Context, userID, code string) error {
	rec, err := s.repo.GetMFATOTP(ctx, userID)
	if err != nil {
		return err
	}
	if rec == nil {
		return ErrNotEnrolled
	}
	b32, err := secretbox.Decrypt(rec.SecretEncrypted)
	if err != nil {
		return fmt.Errorf("decrypt totp secret: %w", err)
	}
	secret, err := totp.DecodeSecret(b32)
	if err != nil {
		return fmt.Errorf("decode totp secret: %w", err)
	}

	var lastCounter *int64
	if rec.LastUsedAt != nil {
		lc := rec.LastUsedAt.Unix() / totp.Period
		lastCounter = &lc
	}
	ok, counter := totp.Verify(secret, code, time.Now(), s.window, lastCounter)
	if !ok {
		metrics.MFAVerificationsTotal.WithLabelValues("totp", "fail").Inc()
		audit.Event(ctx, audit.EventMFAVerifyFail, logger.UserID(userID), logger.String("method", "totp"))
		return ErrBadCode
	}

	now := time.Now().UTC()
	if rec.ConfirmedAt == nil {
		if err := s.repo.ConfirmMFATOTP(ctx, userID, now); err != nil {
			return err
		}
		logger.L().Info("totp confirmado", logger.UserID(userID))
		audit.Event(ctx, audit.EventMFAEnabled, logger.UserID(userID))
		s.notifyMFAEnabled(ctx, userID)
	}
	// guardamos el instante del paso aceptado, no time.Now(), para poder
	// reconstruir el contador en la siguiente verificación
	if err := s.repo.UpdateMFAUsedAt(ctx, userID, time.Unix(counter*totp.Period, 0).UTC()); err != nil {
		return err
	}
	metrics.MFAVerificationsTotal.WithLabelValues("totp", "ok").Inc()
	return nil
}

// VerifyBackupCode consume un código de respaldo. Un código solo puede
// quemar una vez; el consumo es atómico a nivel de fila.
func (s *Service) VerifyBackupCode(ctx context.Context, userID, code string) error {
	norm := backupcode.Normalize(code)
	if norm == "" {
		return ErrBadCode
	}
	unused, err := s.repo.ListUnusedBackupCodes(ctx, userID)
	if err != nil {
		return err
	}
	for _, bc := range unused {
		if !backupcode.Verify(norm, bc.CodeHash) {
			continue
		}
		consumed, err := s.repo.ConsumeBackupCode(ctx, bc.ID, time.Now().UTC())
		if err != nil {
			return err
		}
		if !consumed {
			// otra request lo quemó entre el scan y el update
			break
		}
		metrics.MFAVerificationsTotal.WithLabelValues("backup_code", "ok").Inc()
		logger.L().Info("backup code consumido", logger.UserID(userID))
		return nil
	}
	metrics.MFAVerificationsTotal.WithLabelValues("backup_code", "fail").Inc()
	audit.Event(ctx, audit.EventMFAVerifyFail, logger.UserID(userID), logger.String("method", "backup_code"))
	return ErrBadCode
}

// GenerateBackupCodes regenera el juego completo; los anteriores quedan
// invalidados. Requiere TOTP confirmado.
func (s *Service) GenerateBackupCodes(ctx context.Context, user *core.User) ([]string, error) {
	rec, err := s.repo.GetMFATOTP(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, ErrNotEnrolled
	}
	if rec.ConfirmedAt == nil {
		return nil, ErrNotConfirmed
	}

	codes, err := backupcode.Generate(backupcode.DefaultCount)
	if err != nil {
		return nil, err
	}
	hashes := make([]string, 0, len(codes))
	for _, c := range codes {
		h, err := backupcode.Hash(c)
		if err != nil {
			return nil, err
		}
		hashes = append(hashes, h)
	}
	if err := s.repo.ReplaceBackupCodes(ctx, user.ID, hashes); err != nil {
		return nil, err
	}
	if s.notifier != nil {
		s.notifier.BackupCodesRegenerated(user.Email, len(codes))
	}
	audit.Event(ctx, audit.EventBackupCodes, logger.UserID(user.ID), logger.Count(len(codes)))
	logger.L().Info("backup codes regenerados",
		logger.UserID(user.ID), logger.Count(len(codes)))
	return codes, nil
}

// Disable apaga MFA tras validar un código vigente. La forma del código
// decide la vía: 6 dígitos es TOTP, cualquier otra cosa es un código de
// respaldo (el alfabeto de respaldo no produce 6 dígitos). Así un código de
// respaldo válido no deja rastro de intento TOTP fallido en audit/métricas.
func (s *Service) Disable(ctx context.Context, user *core.User, code string) error {
	var err error
	if looksLikeTOTP(code) {
		err = s.VerifyTOTP(ctx, user.ID, code)
	} else {
		err = s.VerifyBackupCode(ctx, user.ID, code)
	}
	if err != nil {
		if errors.Is(err, ErrBadCode) || errors.Is(err, ErrNotEnrolled) {
			return ErrBadCode
		}
		return err
	}
	if err := s.repo.DisableMFATOTP(ctx, user.ID); err != nil {
		return err
	}
	if s.notifier != nil {
		s.notifier.MFADisabled(user.Email)
	}
	audit.Event(ctx, audit.EventMFADisabled, logger.UserID(user.ID), audit.Email(user.Email))
	logger.L().Info("mfa deshabilitado", logger.UserID(user.ID))
	return nil
}

func looksLikeTOTP(code string) bool {
	code = strings.TrimSpace(code)
	if len(code) != 6 {
		return false
	}
	for _, r := range code {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// Challenge es el estado intermedio entre el callback SSO y la
// verificación del segundo factor.
type Challenge struct {
	UserID   string `json:"user_id"`
	TenantID string `json:"tenant_id"`
	IssuedAt int64  `json:"iat"`
}

// CreateChallenge emite un mfa_token opaco con TTL corto.
func (s *Service) CreateChallenge(ctx context.Context, userID, tenantID string) (string, error) {
	tok, err := tokens.GenerateOpaqueToken(24)
	if err != nil {
		return "", err
	}
	payload, err := json.Marshal(Challenge{
		UserID:   userID,
		TenantID: tenantID,
		IssuedAt: time.Now().Unix(),
	})
	if err != nil {
		return "", err
	}
	s.cache.Set(ctx, challengeKeyPrefix+tok, payload, s.challengeTTL)
	return tok, nil
}

// PeekChallenge resuelve el challenge sin consumirlo: los reintentos de
// código dentro del TTL (rate-limiteados aguas arriba) reutilizan el
// mismo mfa_token. DeleteChallenge lo quema tras un verify correcto.
func (s *Service) PeekChallenge(ctx context.Context, token string) (*Challenge, error) {
	raw, found := s.cache.Get(ctx, challengeKeyPrefix+token)
	if !found {
		return nil, ErrChallengeExpired
	}
	var ch Challenge
	if err := json.Unmarshal(raw, &ch); err != nil {
		return nil, ErrChallengeExpired
	}
	return &ch, nil
}

// DeleteChallenge invalida el challenge tras un verify correcto.
func (s *Service) DeleteChallenge(ctx context.Context, token string) {
	s.cache.Delete(ctx, challengeKeyPrefix+token)
}

func (s *Service) notifyMFAEnabled(ctx context.Context, userID string) {
	if s.notifier == nil {
		return
	}
	u, err := s.repo.GetUserByID(ctx, userID)
	if err != nil || u == nil {
		return
	}
	s.notifier.MFAEnabled(u.Email)
}
