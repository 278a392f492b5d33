package connectivity

import (
	"context"
	"fmt"

	"github.com/upb/llm-failover/models"
	"github.com/upb/llm-failover/repositories"
	"go.uber.org/zap"
)

// RepositoryRecorder persists sweep results through the result repository.
// All results of a sweep are written in one transaction when a manager is available.
type RepositoryRecorder struct {
	repo   repositories.ResultRepository
	txm    repositories.TransactionManager
	logger *zap.Logger
}

// NewRepositoryRecorder creates a recorder; txm may be nil for non-transactional stores
func NewRepositoryRecorder(repo repositories.ResultRepository, txm repositories.TransactionManager, logger *zap.Logger) *RepositoryRecorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RepositoryRecorder{repo: repo, txm: txm, logger: logger}
}

// RecordResults upserts every result
func (r *RepositoryRecorder) RecordResults(ctx context.Context, results []models.ConnectivityResult) error {
	write := func(ctx context.Context) error {
		for i := range results {
			if err := r.repo.Upsert(ctx, &results[i]); err != nil {
				return fmt.Errorf("failed to persist result for provider %d: %w", results[i].ProviderID, err)
			}
		}
		return nil
	}

	if r.txm == nil {
		return write(ctx)
	}
	return r.txm.InTransaction(ctx, func(ctx context.Context, _ repositories.Transaction) error {
		return write(ctx)
	})
}

// WarmStore loads persisted results into the store so routing survives restarts.
// Loaded results get sequence 0 and lose to anything probed afterwards.
func WarmStore(ctx context.Context, repo repositories.ResultRepository, store *Store, logger *zap.Logger) error {
	results, err := repo.ListAll(ctx)
	if err != nil {
		return fmt.Errorf("failed to load connectivity results: %w", err)
	}

	loaded := 0
	for _, r := range results {
		if r.IsMissing() {
			continue
		}
		loaded++
		res := *r
		res.Sequence = 0
		store.Put(res.Platform, res.ProviderID, res)
	}

	if logger != nil {
		logger.Info("connectivity results restored", zap.Int("results", loaded))
	}
	return nil
}
