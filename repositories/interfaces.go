package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/upb/llm-failover/models"
)

// ErrNotFound is returned (wrapped) when a lookup matches no record
var ErrNotFound = errors.New("record not found")

// TransactionManager manages database transactions
type TransactionManager interface {
	// Begin starts a new transaction
	Begin(ctx context.Context) (Transaction, error)

	// InTransaction executes a function within a transaction
	// Automatically commits if function succeeds, rolls back on error
	InTransaction(ctx context.Context, fn func(ctx context.Context, tx Transaction) error) error
}

// Transaction represents a database transaction
type Transaction interface {
	// Commit commits the transaction
	Commit() error

	// Rollback rolls back the transaction
	Rollback() error

	// Context returns the transaction context
	Context() context.Context
}

// ProviderRepository reads provider reference data.
// The connectivity core only reads; Upsert exists for seeding.
type ProviderRepository interface {
	// ListByPlatform retrieves all providers of a platform ordered by level, then id
	ListByPlatform(ctx context.Context, platform models.Platform) ([]*models.Provider, error)

	// GetByID retrieves a provider by ID within a platform
	GetByID(ctx context.Context, platform models.Platform, id int64) (*models.Provider, error)

	// ListPlatforms retrieves every platform that has at least one provider
	ListPlatforms(ctx context.Context) ([]models.Platform, error)

	// Upsert creates or replaces a provider
	Upsert(ctx context.Context, provider *models.Provider) error
}

// ResultRepository persists the latest connectivity result per provider
type ResultRepository interface {
	// Upsert stores a result, replacing any older result for the same provider
	Upsert(ctx context.Context, result *models.ConnectivityResult) error

	// ListAll retrieves every stored result
	ListAll(ctx context.Context) ([]*models.ConnectivityResult, error)

	// DeleteByPlatform removes all results of a platform
	DeleteByPlatform(ctx context.Context, platform models.Platform) error
}

// SwitchEventFilter narrows switch event listings
type SwitchEventFilter struct {
	Platform models.Platform
	Since    time.Time
	Limit    int
}

// SwitchEventRepository handles active-provider switch history
type SwitchEventRepository interface {
	// Insert inserts a new switch event
	Insert(ctx context.Context, event *models.SwitchEvent) error

	// List retrieves switch events, newest first
	List(ctx context.Context, filter SwitchEventFilter) ([]*models.SwitchEvent, error)
}

// Repositories aggregates all repository interfaces
type Repositories struct {
	Providers    ProviderRepository
	Results      ResultRepository
	SwitchEvents SwitchEventRepository
}
