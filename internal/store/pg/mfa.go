package pg

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/jalgreatworks0/clientforge-auth/internal/store/core"
)

// ---- TOTP ----

// UpsertMFATOTP reemplaza el secreto y resetea confirmed/last_used
// (re-enrolamiento arranca de cero).
func (s *Store) UpsertMFATOTP(ctx context.Context, userID string, secretEnc string) error {
	uid, err := parseUUID(userID)
	if err != nil {
		return core.ErrInvalid
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO user_mfa_totp (user_id, secret_encrypted)
		VALUES ($1,$2)
		ON CONFLICT (user_id)
		DO UPDATE SET secret_encrypted = EXCLUDED.secret_encrypted,
					  confirmed_at = NULL,
					  last_used_at = NULL,
					  updated_at = now()
	`, uid, secretEnc)
	return err
}

func (s *Store) ConfirmMFATOTP(ctx context.Context, userID string, at time.Time) error {
	uid, err := parseUUID(userID)
	if err != nil {
		return core.ErrInvalid
	}
	_, err = s.pool.Exec(ctx, `
		UPDATE user_mfa_totp SET confirmed_at = $2, updated_at = now() WHERE user_id = $1
	`, uid, at)
	return err
}

func (s *Store) GetMFATOTP(ctx context.Context, userID string) (*core.MFATOTP, error) {
	uid, err := parseUUID(userID)
	if err != nil {
		return nil, core.ErrInvalid
	}
	row := s.pool.QueryRow(ctx, `
		SELECT user_id, secret_encrypted, confirmed_at, last_used_at, created_at, updated_at
		FROM user_mfa_totp WHERE user_id = $1
	`, uid)
	var m core.MFATOTP
	if err := row.Scan(&m.UserID, &m.SecretEncrypted, &m.ConfirmedAt, &m.LastUsedAt, &m.CreatedAt, &m.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &m, nil
}

func (s *Store) UpdateMFAUsedAt(ctx context.Context, userID string, at time.Time) error {
	uid, err := parseUUID(userID)
	if err != nil {
		return core.ErrInvalid
	}
	_, err = s.pool.Exec(ctx, `
		UPDATE user_mfa_totp SET last_used_at = $2, updated_at = now() WHERE user_id = $1
	`, uid, at)
	return err
}

// DisableMFATOTP borra secreto y backup codes del usuario.
func (s *Store) DisableMFATOTP(ctx context.Context, userID string) error {
	uid, err := parseUUID(userID)
	if err != nil {
		return core.ErrInvalid
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)
	if _, err := tx.Exec(ctx, `DELETE FROM user_mfa_totp WHERE user_id = $1`, uid); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `DELETE FROM mfa_backup_codes WHERE user_id = $1`, uid); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// ---- Backup codes ----

// ReplaceBackupCodes borra el lote anterior e inserta los nuevos hashes
// en una transacción (rotación atómica).
func (s *Store) ReplaceBackupCodes(ctx context.Context, userID string, hashes []string) error {
	uid, err := parseUUID(userID)
	if err != nil {
		return core.ErrInvalid
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM mfa_backup_codes WHERE user_id = $1`, uid); err != nil {
		return err
	}
	var b pgx.Batch
	for _, h := range hashes {
		b.Queue(`INSERT INTO mfa_backup_codes (id, user_id, code_hash) VALUES ($1,$2,$3)`,
			uuid.NewString(), uid, h)
	}
	br := tx.SendBatch(ctx, &b)
	for range hashes {
		if _, err := br.Exec(); err != nil {
			_ = br.Close()
			return err
		}
	}
	if err := br.Close(); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *Store) ListUnusedBackupCodes(ctx context.Context, userID string) ([]core.BackupCode, error) {
	uid, err := parseUUID(userID)
	if err != nil {
		return nil, core.ErrInvalid
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, user_id, code_hash, used_at, created_at
		FROM mfa_backup_codes
		WHERE user_id = $1 AND used_at IS NULL
	`, uid)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []core.BackupCode
	for rows.Next() {
		var c core.BackupCode
		if err := rows.Scan(&c.ID, &c.UserID, &c.CodeHash, &c.UsedAt, &c.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// ConsumeBackupCode marca el código como usado. El guard used_at IS NULL
// garantiza un solo consumo aun con requests concurrentes.
func (s *Store) ConsumeBackupCode(ctx context.Context, id string, at time.Time) (bool, error) {
	cid, err := parseUUID(id)
	if err != nil {
		return false, core.ErrInvalid
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE mfa_backup_codes SET used_at = $2
		WHERE id = $1 AND used_at IS NULL
	`, cid, at)
	return tag.RowsAffected() == 1, err
}

func (s *Store) CountUnusedBackupCodes(ctx context.Context, userID string) (int, error) {
	uid, err := parseUUID(userID)
	if err != nil {
		return 0, core.ErrInvalid
	}
	var n int
	err = s.pool.QueryRow(ctx, `
		SELECT COUNT(1) FROM mfa_backup_codes WHERE user_id = $1 AND used_at IS NULL
	`, uid).Scan(&n)
	return n, err
}
