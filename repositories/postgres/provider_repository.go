package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/upb/llm-failover/models"
	"github.com/upb/llm-failover/repositories"
	"go.uber.org/zap"
)

// ProviderRepository implements the repositories.ProviderRepository interface
type ProviderRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewProviderRepository creates a new provider repository
func NewProviderRepository(db *DB, logger *zap.Logger) repositories.ProviderRepository {
	return &ProviderRepository{
		db:     db,
		logger: logger,
	}
}

const providerColumns = `platform, id, name, level, enabled, connectivity_check, api_url, api_key, model,
		       proxy_address, proxy_type, updated_at`

// ListByPlatform retrieves all providers of a platform ordered by level, then id
func (r *ProviderRepository) ListByPlatform(ctx context.Context, platform models.Platform) ([]*models.Provider, error) {
	query := `
		SELECT ` + providerColumns + `
		FROM providers
		WHERE platform = $1
		ORDER BY level ASC, id ASC
	`

	executor := GetExecutor(ctx, r.db)
	rows, err := executor.QueryContext(ctx, query, platform)
	if err != nil {
		return nil, fmt.Errorf("failed to list providers: %w", err)
	}
	defer rows.Close()

	var list []*models.Provider
	for rows.Next() {
		p, err := scanProvider(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan provider: %w", err)
		}
		list = append(list, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating providers: %w", err)
	}

	return list, nil
}

// GetByID retrieves a provider by ID within a platform
func (r *ProviderRepository) GetByID(ctx context.Context, platform models.Platform, id int64) (*models.Provider, error) {
	query := `
		SELECT ` + providerColumns + `
		FROM providers
		WHERE platform = $1 AND id = $2
	`

	executor := GetExecutor(ctx, r.db)
	p, err := scanProvider(executor.QueryRowContext(ctx, query, platform, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("provider %d on %s: %w", id, platform, repositories.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get provider: %w", err)
	}

	return p, nil
}

// ListPlatforms retrieves every platform that has at least one provider
func (r *ProviderRepository) ListPlatforms(ctx context.Context) ([]models.Platform, error) {
	query := `SELECT DISTINCT platform FROM providers ORDER BY platform`

	executor := GetExecutor(ctx, r.db)
	rows, err := executor.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list platforms: %w", err)
	}
	defer rows.Close()

	var platforms []models.Platform
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, fmt.Errorf("failed to scan platform: %w", err)
		}
		platforms = append(platforms, models.Platform(p))
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating platforms: %w", err)
	}

	return platforms, nil
}

// Upsert creates or replaces a provider
func (r *ProviderRepository) Upsert(ctx context.Context, provider *models.Provider) error {
	query := `
		INSERT INTO providers (` + providerColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (platform, id) DO UPDATE SET
			name = EXCLUDED.name,
			level = EXCLUDED.level,
			enabled = EXCLUDED.enabled,
			connectivity_check = EXCLUDED.connectivity_check,
			api_url = EXCLUDED.api_url,
			api_key = EXCLUDED.api_key,
			model = EXCLUDED.model,
			proxy_address = EXCLUDED.proxy_address,
			proxy_type = EXCLUDED.proxy_type,
			updated_at = EXCLUDED.updated_at
	`

	var proxyAddress, proxyType sql.NullString
	if provider.ProxyOverride != nil {
		proxyAddress = sql.NullString{String: provider.ProxyOverride.Address, Valid: true}
		proxyType = sql.NullString{String: provider.ProxyOverride.Type, Valid: true}
	}

	executor := GetExecutor(ctx, r.db)
	_, err := executor.ExecContext(ctx, query,
		provider.Platform,
		provider.ID,
		provider.Name,
		provider.Level,
		provider.Enabled,
		provider.ConnectivityCheck,
		provider.APIURL,
		provider.APIKey,
		provider.Model,
		proxyAddress,
		proxyType,
		provider.UpdatedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to upsert provider: %w", err)
	}

	r.logger.Debug("provider upserted",
		zap.String("platform", provider.Platform.String()),
		zap.Int64("id", provider.ID))
	return nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanProvider(row rowScanner) (*models.Provider, error) {
	p := &models.Provider{}
	var platform string
	var proxyAddress, proxyType sql.NullString

	err := row.Scan(
		&platform,
		&p.ID,
		&p.Name,
		&p.Level,
		&p.Enabled,
		&p.ConnectivityCheck,
		&p.APIURL,
		&p.APIKey,
		&p.Model,
		&proxyAddress,
		&proxyType,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	p.Platform = models.Platform(platform)
	if proxyAddress.Valid && proxyAddress.String != "" {
		p.ProxyOverride = &models.ProxyOverride{Address: proxyAddress.String, Type: proxyType.String}
	}
	return p, nil
}
