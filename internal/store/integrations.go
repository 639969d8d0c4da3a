package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// UpsertIntegration creates or replaces the configuration for integration.Provider
// and returns the stored row.
func (s *PostgresStore) UpsertIntegration(ctx context.Context, integration Integration) (Integration, error) {
	config, err := json.Marshal(integration.Config)
	if err != nil {
		return Integration{}, fmt.Errorf("encode integration config: %w", err)
	}
	stored, err := scanIntegration(s.db.QueryRowContext(ctx, `
		INSERT INTO integrations (provider, id, enabled, config) VALUES ($1, $2, $3, $4::jsonb)
		ON CONFLICT (provider) DO UPDATE SET enabled=EXCLUDED.enabled, config=EXCLUDED.config, updated_at=NOW()
		RETURNING `+integrationColumns,
		integration.Provider, integration.ID, integration.Enabled, string(config)))
	if err != nil {
		return Integration{}, classify("upsert integration", err)
	}
	return stored, nil
}

const integrationColumns = `id, provider, enabled, config::text, last_checked_at, last_status, created_at, updated_at`

func scanIntegration(row rowScanner) (Integration, error) {
	var integration Integration
	var config string
	if err := row.Scan(&integration.ID, &integration.Provider, &integration.Enabled, &config,
		&integration.LastCheckedAt, &integration.LastStatus, &integration.CreatedAt, &integration.UpdatedAt); err != nil {
		return Integration{}, err
	}
	if err := json.Unmarshal([]byte(config), &integration.Config); err != nil {
		return Integration{}, fmt.Errorf("decode integration config: %w", err)
	}
	return integration, nil
}

func (s *PostgresStore) GetIntegration(ctx context.Context, provider string) (Integration, error) {
	integration, err := scanIntegration(s.db.QueryRowContext(ctx, `SELECT `+integrationColumns+` FROM integrations WHERE provider=$1`, provider))
	if err != nil {
		return Integration{}, classify("lookup integration", err)
	}
	return integration, nil
}

func (s *PostgresStore) ListIntegrations(ctx context.Context) ([]Integration, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+integrationColumns+` FROM integrations ORDER BY provider`)
	if err != nil {
		return nil, fmt.Errorf("list integrations: %w", err)
	}
	defer rows.Close()

	out := make([]Integration, 0)
	for rows.Next() {
		integration, err := scanIntegration(rows)
		if err != nil {
			return nil, fmt.Errorf("scan integration: %w", err)
		}
		out = append(out, integration)
	}
	return out, rows.Err()
}

func (s *PostgresStore) DeleteIntegration(ctx context.Context, provider string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM integrations WHERE provider=$1`, provider)
	return affected("delete integration", result, err)
}

func (s *PostgresStore) RecordIntegrationCheck(ctx context.Context, provider, status string, at time.Time) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE integrations SET last_status=$2, last_checked_at=$3 WHERE provider=$1
	`, provider, status, at)
	return requireRow("record integration check", result, err)
}

// GetSettings returns the stored document overlaid on defaults, or the defaults
// when nothing has been saved yet.
func (s *PostgresStore) GetSettings(ctx context.Context) (OrganizationSettings, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT settings::text FROM organization_settings WHERE id=1`).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return DefaultSettings(), nil
	}
	if err != nil {
		return OrganizationSettings{}, fmt.Errorf("load settings: %w", err)
	}
	return decodeStoredSettings([]byte(raw))
}

func (s *PostgresStore) SaveSettings(ctx context.Context, settings OrganizationSettings, updatedBy string) error {
	raw, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO organization_settings (id, settings, updated_by, updated_at) VALUES (1, $1::jsonb, $2, NOW())
		ON CONFLICT (id) DO UPDATE SET settings=EXCLUDED.settings, updated_by=EXCLUDED.updated_by, updated_at=NOW()
	`, string(raw), updatedBy)
	return classify("save settings", err)
}
