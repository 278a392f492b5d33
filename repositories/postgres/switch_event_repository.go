package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/upb/llm-failover/models"
	"github.com/upb/llm-failover/repositories"
	"go.uber.org/zap"
)

// SwitchEventRepository implements the repositories.SwitchEventRepository interface
type SwitchEventRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewSwitchEventRepository creates a new switch event repository
func NewSwitchEventRepository(db *DB, logger *zap.Logger) repositories.SwitchEventRepository {
	return &SwitchEventRepository{
		db:     db,
		logger: logger,
	}
}

// Insert inserts a new switch event
func (r *SwitchEventRepository) Insert(ctx context.Context, event *models.SwitchEvent) error {
	query := `
		INSERT INTO provider_switch_events (
			id, platform, previous_provider_id, new_provider_id, reason, details, occurred_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7
		)
	`

	var details interface{}
	if len(event.Details) > 0 {
		details = []byte(event.Details)
	}

	executor := GetExecutor(ctx, r.db)
	_, err := executor.ExecContext(ctx, query,
		event.ID,
		event.Platform,
		event.PreviousProviderID,
		event.NewProviderID,
		event.Reason,
		details,
		event.OccurredAt,
	)

	if err != nil {
		return fmt.Errorf("failed to insert switch event: %w", err)
	}

	r.logger.Debug("switch event inserted",
		zap.String("id", event.ID.String()),
		zap.String("reason", string(event.Reason)))
	return nil
}

// List retrieves switch events, newest first
func (r *SwitchEventRepository) List(ctx context.Context, filter repositories.SwitchEventFilter) ([]*models.SwitchEvent, error) {
	var (
		conditions []string
		args       []interface{}
	)
	if filter.Platform != "" {
		args = append(args, filter.Platform)
		conditions = append(conditions, fmt.Sprintf("platform = $%d", len(args)))
	}
	if !filter.Since.IsZero() {
		args = append(args, filter.Since)
		conditions = append(conditions, fmt.Sprintf("occurred_at >= $%d", len(args)))
	}

	query := `
		SELECT id, platform, previous_provider_id, new_provider_id, reason, details, occurred_at
		FROM provider_switch_events`
	if len(conditions) > 0 {
		query += "\n\t\tWHERE " + strings.Join(conditions, " AND ")
	}
	query += "\n\t\tORDER BY occurred_at DESC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf("\n\t\tLIMIT $%d", len(args))
	}

	executor := GetExecutor(ctx, r.db)
	rows, err := executor.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query switch events: %w", err)
	}
	defer rows.Close()

	var events []*models.SwitchEvent
	for rows.Next() {
		event := &models.SwitchEvent{}
		var platform, reason string
		var details []byte

		err := rows.Scan(
			&event.ID,
			&platform,
			&event.PreviousProviderID,
			&event.NewProviderID,
			&reason,
			&details,
			&event.OccurredAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan switch event: %w", err)
		}

		event.Platform = models.Platform(platform)
		event.Reason = models.SwitchReason(reason)
		if len(details) > 0 {
			event.Details = details
		}
		events = append(events, event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating switch events: %w", err)
	}

	return events, nil
}
