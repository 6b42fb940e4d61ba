package pg

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/jalgreatworks0/clientforge-auth/internal/store/core"
)

func (s *Store) GetUserByID(ctx context.Context, id string) (*core.User, error) {
	uid, err := parseUUID(id)
	if err != nil {
		return nil, core.ErrInvalid
	}
	row := s.pool.QueryRow(ctx, `
		SELECT id, tenant_id, email, name, status, created_at
		FROM users WHERE id = $1
	`, uid)
	return scanUser(row)
}

func (s *Store) GetUserByEmail(ctx context.Context, tenantID, email string) (*core.User, error) {
	tid, err := parseUUID(tenantID)
	if err != nil {
		return nil, core.ErrInvalid
	}
	row := s.pool.QueryRow(ctx, `
		SELECT id, tenant_id, email, name, status, created_at
		FROM users WHERE tenant_id = $1 AND lower(email) = lower($2)
	`, tid, strings.TrimSpace(email))
	return scanUser(row)
}

func (s *Store) FindUserBySSOIdentity(ctx context.Context, tenantID string, p core.ProviderType, providerUserID string) (*core.User, error) {
	tid, err := parseUUID(tenantID)
	if err != nil {
		return nil, core.ErrInvalid
	}
	row := s.pool.QueryRow(ctx, `
		SELECT u.id, u.tenant_id, u.email, u.name, u.status, u.created_at
		FROM users u
		JOIN sso_identities i ON i.user_id = u.id
		WHERE u.tenant_id = $1 AND i.provider = $2 AND i.provider_user_id = $3
	`, tid, p, providerUserID)
	return scanUser(row)
}

// CreateUserWithIdentity crea user + identity en una transacción.
func (s *Store) CreateUserWithIdentity(ctx context.Context, u *core.User, ident *core.SSOIdentity) error {
	tid, err := parseUUID(u.TenantID)
	if err != nil {
		return core.ErrInvalid
	}
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if u.Status == "" {
		u.Status = "active"
	}
	ident.UserID = u.ID

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `
		INSERT INTO users (id, tenant_id, email, name, status)
		VALUES ($1,$2,$3,$4,$5)
	`, u.ID, tid, u.Email, u.Name, u.Status); err != nil {
		return err
	}
	if err := insertIdentity(ctx, tx, ident); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// LinkIdentity agrega una identidad de provider a un usuario existente.
func (s *Store) LinkIdentity(ctx context.Context, ident *core.SSOIdentity) error {
	return insertIdentity(ctx, s.pool, ident)
}

// execer cubre pgxpool.Pool y pgx.Tx (ambos exponen el mismo Exec).
type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func insertIdentity(ctx context.Context, db execer, ident *core.SSOIdentity) error {
	if ident.ID == "" {
		ident.ID = uuid.NewString()
	}
	uid, err := parseUUID(ident.UserID)
	if err != nil {
		return core.ErrInvalid
	}
	_, err = db.Exec(ctx, `
		INSERT INTO sso_identities (id, user_id, provider, provider_user_id, email)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (user_id, provider, provider_user_id) DO NOTHING
	`, ident.ID, uid, ident.Provider, ident.ProviderUserID, ident.Email)
	return err
}

func scanUser(row pgx.Row) (*core.User, error) {
	var u core.User
	if err := row.Scan(&u.ID, &u.TenantID, &u.Email, &u.Name, &u.Status, &u.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, core.ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}
