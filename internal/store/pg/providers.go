package pg

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/jalgreatworks0/clientforge-auth/internal/store/core"
)

const providerConfigCols = `
	id, tenant_id, provider_type, client_id, client_secret_enc, redirect_uri,
	issuer_url, saml_entry_point, saml_issuer, saml_cert_pem, enabled,
	created_at, updated_at`

func scanProviderConfig(row pgx.Row) (*core.ProviderConfig, error) {
	var c core.ProviderConfig
	err := row.Scan(&c.ID, &c.TenantID, &c.Type, &c.ClientID, &c.ClientSecretEnc,
		&c.RedirectURI, &c.IssuerURL, &c.SAMLEntryPoint, &c.SAMLIssuer,
		&c.SAMLCertPEM, &c.Enabled, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// UpsertProviderConfig inserta/actualiza la config y, si viene habilitada,
// deshabilita cualquier otra config activa del mismo (tenant, type) en la
// misma transacción. Invariante: a lo sumo una activa por par.
func (s *Store) UpsertProviderConfig(ctx context.Context, c *core.ProviderConfig) error {
	if !c.Type.Valid() {
		return core.ErrInvalid
	}
	tid, err := parseUUID(c.TenantID)
	if err != nil {
		return core.ErrInvalid
	}
	if c.ID == "" {
		c.ID = uuid.NewString()
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if c.Enabled {
		if _, err := tx.Exec(ctx, `
			UPDATE sso_provider_configs SET enabled = FALSE, updated_at = now()
			WHERE tenant_id = $1 AND provider_type = $2 AND id <> $3 AND enabled
		`, tid, c.Type, c.ID); err != nil {
			return err
		}
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO sso_provider_configs
			(id, tenant_id, provider_type, client_id, client_secret_enc, redirect_uri,
			 issuer_url, saml_entry_point, saml_issuer, saml_cert_pem, enabled)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		ON CONFLICT (id) DO UPDATE SET
			client_id         = EXCLUDED.client_id,
			-- secret vacío en el update == conservar el existente
			client_secret_enc = CASE WHEN EXCLUDED.client_secret_enc = ''
			                    THEN sso_provider_configs.client_secret_enc
			                    ELSE EXCLUDED.client_secret_enc END,
			redirect_uri      = EXCLUDED.redirect_uri,
			issuer_url        = EXCLUDED.issuer_url,
			saml_entry_point  = EXCLUDED.saml_entry_point,
			saml_issuer       = EXCLUDED.saml_issuer,
			saml_cert_pem     = EXCLUDED.saml_cert_pem,
			enabled           = EXCLUDED.enabled,
			updated_at        = now()
	`, c.ID, tid, c.Type, c.ClientID, c.ClientSecretEnc, c.RedirectURI,
		c.IssuerURL, c.SAMLEntryPoint, c.SAMLIssuer, c.SAMLCertPEM, c.Enabled); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func (s *Store) ListProviderConfigs(ctx context.Context, tenantID string) ([]core.ProviderConfig, error) {
	tid, err := parseUUID(tenantID)
	if err != nil {
		return nil, core.ErrInvalid
	}
	rows, err := s.pool.Query(ctx, `
		SELECT `+providerConfigCols+`
		FROM sso_provider_configs
		WHERE tenant_id = $1
		ORDER BY provider_type, created_at
	`, tid)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []core.ProviderConfig
	for rows.Next() {
		c, err := scanProviderConfig(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

func (s *Store) GetEnabledProviderConfig(ctx context.Context, tenantID string, t core.ProviderType) (*core.ProviderConfig, error) {
	tid, err := parseUUID(tenantID)
	if err != nil {
		return nil, core.ErrInvalid
	}
	row := s.pool.QueryRow(ctx, `
		SELECT `+providerConfigCols+`
		FROM sso_provider_configs
		WHERE tenant_id = $1 AND provider_type = $2 AND enabled
	`, tid, t)
	c, err := scanProviderConfig(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, core.ErrNotFound
		}
		return nil, err
	}
	return c, nil
}
