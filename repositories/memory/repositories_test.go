package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/upb/llm-failover/models"
	"github.com/upb/llm-failover/repositories"
)

func TestProviderRepository_ListByPlatformOrdersByLevelThenID(t *testing.T) {
	ctx := context.Background()
	repo := NewProviderRepository(
		&models.Provider{ID: 3, Platform: models.PlatformClaude, Level: 0},
		&models.Provider{ID: 1, Platform: models.PlatformClaude, Level: 1},
		&models.Provider{ID: 2, Platform: models.PlatformClaude, Level: 0},
		&models.Provider{ID: 9, Platform: models.PlatformCodex, Level: 0},
	)

	list, err := repo.ListByPlatform(ctx, models.PlatformClaude)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, []int64{2, 3, 1}, []int64{list[0].ID, list[1].ID, list[2].ID})
}

func TestProviderRepository_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	repo := NewProviderRepository(&models.Provider{
		ID: 1, Name: "a", Platform: models.PlatformGemini,
		ProxyOverride: &models.ProxyOverride{Address: "127.0.0.1:1080", Type: "socks5"},
	})

	p, err := repo.GetByID(ctx, models.PlatformGemini, 1)
	require.NoError(t, err)
	p.Name = "mutated"
	p.ProxyOverride.Address = "changed"

	again, err := repo.GetByID(ctx, models.PlatformGemini, 1)
	require.NoError(t, err)
	assert.Equal(t, "a", again.Name)
	assert.Equal(t, "127.0.0.1:1080", again.ProxyOverride.Address)
}

func TestProviderRepository_GetByIDNotFound(t *testing.T) {
	repo := NewProviderRepository()

	_, err := repo.GetByID(context.Background(), models.PlatformClaude, 5)
	assert.ErrorIs(t, err, repositories.ErrNotFound)
}

func TestProviderRepository_ListPlatformsAndUpsert(t *testing.T) {
	ctx := context.Background()
	repo := NewProviderRepository(&models.Provider{ID: 1, Platform: models.PlatformCodex})
	require.NoError(t, repo.Upsert(ctx, &models.Provider{ID: 2, Platform: models.Platform("custom:local")}))

	platforms, err := repo.ListPlatforms(ctx)
	require.NoError(t, err)
	assert.Equal(t, []models.Platform{models.PlatformCodex, models.Platform("custom:local")}, platforms)

	repo.Delete(models.PlatformCodex, 1)
	platforms, err = repo.ListPlatforms(ctx)
	require.NoError(t, err)
	assert.Equal(t, []models.Platform{models.Platform("custom:local")}, platforms)
}

func TestResultRepository_UpsertListDelete(t *testing.T) {
	ctx := context.Background()
	repo := NewResultRepository()
	code := 200
	now := time.Now().UTC()

	require.NoError(t, repo.Upsert(ctx, &models.ConnectivityResult{ProviderID: 2, Platform: models.PlatformCodex, Status: models.StatusAvailable, HTTPCode: &code, LastChecked: &now}))
	require.NoError(t, repo.Upsert(ctx, &models.ConnectivityResult{ProviderID: 1, Platform: models.PlatformClaude, Status: models.StatusDegraded}))
	require.NoError(t, repo.Upsert(ctx, &models.ConnectivityResult{ProviderID: 2, Platform: models.PlatformCodex, Status: models.StatusUnavailable}))

	all, err := repo.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, models.PlatformClaude, all[0].Platform)
	assert.Equal(t, models.StatusUnavailable, all[1].Status)

	require.NoError(t, repo.DeleteByPlatform(ctx, models.PlatformCodex))
	all, err = repo.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, int64(1), all[0].ProviderID)
}

func TestResultRepository_UpsertKeepsNewerCheck(t *testing.T) {
	ctx := context.Background()
	repo := NewResultRepository()
	newer := time.Now().UTC()
	older := newer.Add(-time.Second)

	require.NoError(t, repo.Upsert(ctx, &models.ConnectivityResult{ProviderID: 1, Platform: models.PlatformCodex, Status: models.StatusAvailable, LastChecked: &newer}))
	require.NoError(t, repo.Upsert(ctx, &models.ConnectivityResult{ProviderID: 1, Platform: models.PlatformCodex, Status: models.StatusUnavailable, LastChecked: &older}))

	all, err := repo.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, models.StatusAvailable, all[0].Status)
	assert.True(t, newer.Equal(*all[0].LastChecked))
}

func TestSwitchEventRepository_ListNewestFirstWithFilter(t *testing.T) {
	ctx := context.Background()
	repo := NewSwitchEventRepository(0)
	next := int64(1)

	old := models.NewSwitchEvent(models.PlatformClaude, nil, &next, models.SwitchReasonInitial)
	old.OccurredAt = time.Now().Add(-time.Hour)
	require.NoError(t, repo.Insert(ctx, old))
	require.NoError(t, repo.Insert(ctx, models.NewSwitchEvent(models.PlatformCodex, nil, &next, models.SwitchReasonInitial)))
	latest := models.NewSwitchEvent(models.PlatformClaude, &next, nil, models.SwitchReasonNoneActive)
	require.NoError(t, repo.Insert(ctx, latest))

	events, err := repo.List(ctx, repositories.SwitchEventFilter{Platform: models.PlatformClaude})
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, latest.ID, events[0].ID)
	assert.Equal(t, old.ID, events[1].ID)

	events, err = repo.List(ctx, repositories.SwitchEventFilter{Since: time.Now().Add(-time.Minute)})
	require.NoError(t, err)
	assert.Len(t, events, 2)

	events, err = repo.List(ctx, repositories.SwitchEventFilter{Limit: 1})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, latest.ID, events[0].ID)
}

func TestSwitchEventRepository_EvictsOldest(t *testing.T) {
	ctx := context.Background()
	repo := NewSwitchEventRepository(2)

	var ids []string
	for i := 0; i < 3; i++ {
		e := models.NewSwitchEvent(models.PlatformGemini, nil, nil, models.SwitchReasonNoneActive)
		ids = append(ids, e.ID.String())
		require.NoError(t, repo.Insert(ctx, e))
	}

	events, err := repo.List(ctx, repositories.SwitchEventFilter{})
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, ids[2], events[0].ID.String())
	assert.Equal(t, ids[1], events[1].ID.String())
}
