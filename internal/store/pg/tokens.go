package pg

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/jalgreatworks0/clientforge-auth/internal/store/core"
)

// ---- SSO tokens (del provider, cifrados) ----

func (s *Store) UpsertSSOToken(ctx context.Context, t *core.SSOToken) error {
	uid, err := parseUUID(t.UserID)
	if err != nil {
		return core.ErrInvalid
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO user_sso_tokens (user_id, provider, access_token_enc, refresh_token_enc, expires_at)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (user_id, provider) DO UPDATE SET
			access_token_enc  = EXCLUDED.access_token_enc,
			refresh_token_enc = EXCLUDED.refresh_token_enc,
			expires_at        = EXCLUDED.expires_at,
			updated_at        = now()
	`, uid, t.Provider, t.AccessTokenEnc, t.RefreshTokenEnc, t.ExpiresAt)
	return err
}

func (s *Store) GetSSOToken(ctx context.Context, userID string, p core.ProviderType) (*core.SSOToken, error) {
	uid, err := parseUUID(userID)
	if err != nil {
		return nil, core.ErrInvalid
	}
	row := s.pool.QueryRow(ctx, `
		SELECT user_id, provider, access_token_enc, refresh_token_enc, expires_at, updated_at
		FROM user_sso_tokens WHERE user_id = $1 AND provider = $2
	`, uid, p)
	var t core.SSOToken
	if err := row.Scan(&t.UserID, &t.Provider, &t.AccessTokenEnc, &t.RefreshTokenEnc, &t.ExpiresAt, &t.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, core.ErrNotFound
		}
		return nil, err
	}
	return &t, nil
}

func (s *Store) DeleteSSOTokens(ctx context.Context, userID string) error {
	uid, err := parseUUID(userID)
	if err != nil {
		return core.ErrInvalid
	}
	_, err = s.pool.Exec(ctx, `DELETE FROM user_sso_tokens WHERE user_id = $1`, uid)
	return err
}

// ---- Session refresh tokens (locales, hash sha256) ----

func (s *Store) CreateRefreshToken(ctx context.Context, userID, tokenHash string, expiresAt time.Time) (string, error) {
	uid, err := parseUUID(userID)
	if err != nil {
		return "", core.ErrInvalid
	}
	id := uuid.NewString()
	_, err = s.pool.Exec(ctx, `
		INSERT INTO session_refresh_tokens (id, user_id, token_hash, expires_at)
		VALUES ($1,$2,$3,$4)
	`, id, uid, tokenHash, expiresAt)
	return id, err
}

func (s *Store) GetRefreshTokenByHash(ctx context.Context, tokenHash string) (*core.RefreshToken, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, user_id, token_hash, issued_at, expires_at, revoked_at
		FROM session_refresh_tokens WHERE token_hash = $1
	`, tokenHash)
	var t core.RefreshToken
	if err := row.Scan(&t.ID, &t.UserID, &t.TokenHash, &t.IssuedAt, &t.ExpiresAt, &t.RevokedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, core.ErrNotFound
		}
		return nil, err
	}
	return &t, nil
}

func (s *Store) RevokeRefreshToken(ctx context.Context, id string) error {
	rid, err := parseUUID(id)
	if err != nil {
		return core.ErrInvalid
	}
	_, err = s.pool.Exec(ctx, `
		UPDATE session_refresh_tokens SET revoked_at = now()
		WHERE id = $1 AND revoked_at IS NULL
	`, rid)
	return err
}

func (s *Store) RevokeRefreshTokensForUser(ctx context.Context, userID string) error {
	uid, err := parseUUID(userID)
	if err != nil {
		return core.ErrInvalid
	}
	_, err = s.pool.Exec(ctx, `
		UPDATE session_refresh_tokens SET revoked_at = now()
		WHERE user_id = $1 AND revoked_at IS NULL
	`, uid)
	return err
}

// PurgeExpiredRefreshTokens borra tokens expirados o revocados hace tiempo.
// Lo llama el janitor periódico del server.
func (s *Store) PurgeExpiredRefreshTokens(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM session_refresh_tokens
		WHERE expires_at < $1 OR (revoked_at IS NOT NULL AND revoked_at < $1)
	`, before)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
