package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/upb/llm-failover/models"
	"github.com/upb/llm-failover/repositories"
	"go.uber.org/zap"
)

// ResultRepository implements the repositories.ResultRepository interface
type ResultRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewResultRepository creates a new result repository
func NewResultRepository(db *DB, logger *zap.Logger) repositories.ResultRepository {
	return &ResultRepository{
		db:     db,
		logger: logger,
	}
}

// Upsert stores a result, replacing any older result for the same provider.
// A result checked before the stored one leaves the row untouched.
func (r *ResultRepository) Upsert(ctx context.Context, result *models.ConnectivityResult) error {
	query := `
		INSERT INTO connectivity_results (
			platform, provider_id, provider_name, status, sub_status, latency_ms, last_checked, http_code, message
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (platform, provider_id) DO UPDATE SET
			provider_name = EXCLUDED.provider_name,
			status = EXCLUDED.status,
			sub_status = EXCLUDED.sub_status,
			latency_ms = EXCLUDED.latency_ms,
			last_checked = EXCLUDED.last_checked,
			http_code = EXCLUDED.http_code,
			message = EXCLUDED.message
		WHERE connectivity_results.last_checked IS NULL
			OR EXCLUDED.last_checked IS NULL
			OR connectivity_results.last_checked <= EXCLUDED.last_checked
	`

	executor := GetExecutor(ctx, r.db)
	_, err := executor.ExecContext(ctx, query,
		result.Platform,
		result.ProviderID,
		result.ProviderName,
		int(result.Status),
		result.SubStatus.String(),
		result.LatencyMs,
		result.LastChecked,
		result.HTTPCode,
		result.Message,
	)

	if err != nil {
		return fmt.Errorf("failed to upsert connectivity result: %w", err)
	}

	return nil
}

// ListAll retrieves every stored result
func (r *ResultRepository) ListAll(ctx context.Context) ([]*models.ConnectivityResult, error) {
	query := `
		SELECT platform, provider_id, provider_name, status, sub_status, latency_ms, last_checked, http_code, message
		FROM connectivity_results
		ORDER BY platform, provider_id
	`

	executor := GetExecutor(ctx, r.db)
	rows, err := executor.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list connectivity results: %w", err)
	}
	defer rows.Close()

	var results []*models.ConnectivityResult
	for rows.Next() {
		res := &models.ConnectivityResult{}
		var (
			platform    string
			status      int
			subStatus   string
			lastChecked sql.NullTime
			httpCode    sql.NullInt64
		)

		err := rows.Scan(
			&platform,
			&res.ProviderID,
			&res.ProviderName,
			&status,
			&subStatus,
			&res.LatencyMs,
			&lastChecked,
			&httpCode,
			&res.Message,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan connectivity result: %w", err)
		}

		res.Platform = models.Platform(platform)
		res.Status = models.Status(status)
		if res.SubStatus, err = models.ParseSubStatus(subStatus); err != nil {
			r.logger.Warn("unknown stored sub-status, ignoring",
				zap.String("platform", platform),
				zap.Int64("provider_id", res.ProviderID),
				zap.String("sub_status", subStatus))
		}
		if lastChecked.Valid {
			t := lastChecked.Time
			res.LastChecked = &t
		}
		if httpCode.Valid {
			code := int(httpCode.Int64)
			res.HTTPCode = &code
		}
		results = append(results, res)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating connectivity results: %w", err)
	}

	return results, nil
}

// DeleteByPlatform removes all results of a platform
func (r *ResultRepository) DeleteByPlatform(ctx context.Context, platform models.Platform) error {
	query := `DELETE FROM connectivity_results WHERE platform = $1`

	executor := GetExecutor(ctx, r.db)
	if _, err := executor.ExecContext(ctx, query, platform); err != nil {
		return fmt.Errorf("failed to delete connectivity results: %w", err)
	}

	r.logger.Debug("connectivity results deleted", zap.String("platform", platform.String()))
	return nil
}
