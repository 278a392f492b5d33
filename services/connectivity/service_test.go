package connectivity

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/upb/llm-failover/internal/runtimeconfig"
	"github.com/upb/llm-failover/models"
	"github.com/upb/llm-failover/repositories/memory"
	"github.com/upb/llm-failover/services"
	"github.com/upb/llm-failover/services/routing"
	"go.uber.org/zap"
)

type serviceFixture struct {
	service   *Service
	scheduler *Scheduler
	store     *Store
	providers *memory.ProviderRepository
	settings  *runtimeconfig.Manager
	router    *routing.RoutingService
}

func newServiceFixture(t *testing.T, list ...*models.Provider) *serviceFixture {
	t.Helper()
	store := NewStore(4)
	providers := memory.NewProviderRepository(list...)
	settings := runtimeconfig.NewManager(models.DefaultAppSettings(), nil, zap.NewNop())
	router := routing.NewRoutingService(providers, store, settings, nil, nil, zap.NewNop())

	config := DefaultSchedulerConfig()
	config.Interval = time.Hour
	scheduler := NewScheduler(config, newTestProber(t, time.Second), store, providers, router, nil, nil, zap.NewNop())
	t.Cleanup(scheduler.Stop)

	return &serviceFixture{
		service:   NewService(scheduler, store, providers, router, settings, zap.NewNop()),
		scheduler: scheduler,
		store:     store,
		providers: providers,
		settings:  settings,
		router:    router,
	}
}

func TestService_GetResultsReportsMissingBeforeAnyProbe(t *testing.T) {
	f := newServiceFixture(t,
		codexLevel(2, 1, "https://b.example.com"),
		codexLevel(1, 0, "https://a.example.com"),
	)

	results, err := f.service.GetResults(context.Background(), models.PlatformCodex)
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, int64(1), results[0].ProviderID)
	assert.Equal(t, "codex-1", results[0].ProviderName)
	for _, r := range results {
		assert.Equal(t, models.StatusMissing, r.Status)
		assert.Equal(t, models.SubStatusNone, r.SubStatus)
		assert.Nil(t, r.LastChecked)
		assert.Nil(t, r.HTTPCode)
	}
}

func TestService_GetResultsIsIdempotent(t *testing.T) {
	server, _ := okServer(t)
	f := newServiceFixture(t, codexLevel(1, 0, server.URL))
	ctx := context.Background()

	_, err := f.service.TestAll(ctx, models.PlatformCodex)
	require.NoError(t, err)

	first, err := f.service.GetResults(ctx, models.PlatformCodex)
	require.NoError(t, err)
	second, err := f.service.GetResults(ctx, models.PlatformCodex)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, models.StatusAvailable, first[0].Status)
}

func TestService_TestAllRoutesToFirstAvailable(t *testing.T) {
	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer down.Close()
	up, _ := okServer(t)

	f := newServiceFixture(t,
		codexLevel(1, 0, down.URL),
		codexLevel(2, 0, up.URL),
	)
	ctx := context.Background()

	results, err := f.service.TestAll(ctx, models.PlatformCodex)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, models.StatusUnavailable, results[0].Status)
	assert.Equal(t, models.SubStatusServerError, results[0].SubStatus)
	assert.Equal(t, models.StatusAvailable, results[1].Status)

	decision, err := f.service.GetActiveProvider(ctx, models.PlatformCodex)
	require.NoError(t, err)
	require.NotNil(t, decision.ProviderID)
	assert.Equal(t, int64(2), *decision.ProviderID)
}

func TestService_GetActiveProviderComputesOnFirstUse(t *testing.T) {
	f := newServiceFixture(t, codexLevel(1, 0, "https://a.example.com"))
	f.store.Put(models.PlatformCodex, 1, models.ConnectivityResult{Status: models.StatusDegraded, Sequence: f.store.NextSequence()})

	_, ok := f.router.Active(models.PlatformCodex)
	require.False(t, ok)

	decision, err := f.service.GetActiveProvider(context.Background(), models.PlatformCodex)
	require.NoError(t, err)
	require.NotNil(t, decision.ProviderID)
	assert.Equal(t, int64(1), *decision.ProviderID)
	assert.Equal(t, models.StatusDegraded, decision.Status)

	_, ok = f.router.Active(models.PlatformCodex)
	assert.True(t, ok)
}

func TestService_GetActiveProviderNoneEligible(t *testing.T) {
	f := newServiceFixture(t, codexLevel(1, 0, "https://a.example.com"))

	decision, err := f.service.GetActiveProvider(context.Background(), models.PlatformCodex)
	require.NoError(t, err)
	assert.False(t, decision.HasActive())
}

func TestService_UnknownPlatform(t *testing.T) {
	f := newServiceFixture(t, codexLevel(1, 0, "https://a.example.com"))
	ctx := context.Background()

	_, err := f.service.GetResults(ctx, models.Platform("custom:missing"))
	assert.True(t, services.IsNotFoundError(err))

	_, err = f.service.TestAll(ctx, models.Platform("bedrock"))
	assert.True(t, services.IsNotFoundError(err))

	_, err = f.service.GetActiveProvider(ctx, models.Platform("custom:missing"))
	assert.True(t, services.IsNotFoundError(err))
}

func TestService_CustomPlatformWithProviders(t *testing.T) {
	custom := codexLevel(5, 0, "https://local.example.com")
	custom.Platform = models.Platform("custom:local")
	f := newServiceFixture(t, custom)

	results, err := f.service.GetResults(context.Background(), custom.Platform)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.True(t, results[0].IsMissing())
}

func TestService_BuiltinPlatformWithoutProviders(t *testing.T) {
	f := newServiceFixture(t)

	results, err := f.service.GetResults(context.Background(), models.PlatformGemini)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestService_GetAllResults(t *testing.T) {
	claude := codexLevel(2, 0, "https://claude.example.com")
	claude.Platform = models.PlatformClaude
	f := newServiceFixture(t, codexLevel(1, 0, "https://a.example.com"), claude)

	all, err := f.service.GetAllResults(context.Background())
	require.NoError(t, err)
	assert.Len(t, all, 2)
	assert.Len(t, all["codex"], 1)
	assert.Len(t, all["claude"], 1)
}

func TestService_RunSingleTestAndHistory(t *testing.T) {
	server, _ := okServer(t)
	f := newServiceFixture(t, codexLevel(1, 0, server.URL))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		r, err := f.service.RunSingleTest(ctx, models.PlatformCodex, 1)
		require.NoError(t, err)
		assert.Equal(t, models.StatusAvailable, r.Status)
	}
	assert.Len(t, f.service.History(models.PlatformCodex, 1), 3)
}

func TestService_SetAutoTestEnabledUpdatesSettings(t *testing.T) {
	f := newServiceFixture(t)

	require.NoError(t, f.service.SetAutoTestEnabled(true))
	assert.True(t, f.service.GetAutoTestEnabled())
	assert.True(t, f.settings.Current().AutoConnectivityTest)

	require.NoError(t, f.service.SetAutoTestEnabled(false))
	assert.False(t, f.service.GetAutoTestEnabled())
	assert.False(t, f.settings.Current().AutoConnectivityTest)
}

func TestService_SetAutoTestEnabledSettingsFailure(t *testing.T) {
	store := NewStore(0)
	providers := memory.NewProviderRepository()
	scheduler := NewScheduler(DefaultSchedulerConfig(), newTestProber(t, time.Second), store, providers, nil, nil, nil, zap.NewNop())
	t.Cleanup(scheduler.Stop)
	settings := runtimeconfig.NewManager(models.DefaultAppSettings(), func(models.AppSettings) error {
		return errors.New("read-only")
	}, zap.NewNop())

	service := NewService(scheduler, store, providers, nil, settings, zap.NewNop())
	err := service.SetAutoTestEnabled(true)
	require.Error(t, err)
	assert.True(t, services.IsValidationError(err))

	// scheduler and settings still agree
	assert.False(t, scheduler.AutoTestEnabled())
	assert.False(t, service.GetAutoTestEnabled())
	assert.False(t, settings.Current().AutoConnectivityTest)
}

func TestService_SetAutoTestEnabledFollowsSettingsSubscriber(t *testing.T) {
	f := newServiceFixture(t)
	toggles := 0
	f.settings.Subscribe(func(previous, current models.AppSettings) {
		if previous.AutoConnectivityTest != current.AutoConnectivityTest {
			toggles++
			f.scheduler.SetAutoTestEnabled(current.AutoConnectivityTest)
		}
	})

	require.NoError(t, f.service.SetAutoTestEnabled(true))
	assert.Equal(t, 1, toggles)
	assert.True(t, f.scheduler.AutoTestEnabled())

	require.NoError(t, f.service.SetAutoTestEnabled(false))
	assert.Equal(t, 2, toggles)
	assert.False(t, f.scheduler.AutoTestEnabled())
}

func TestService_GetActiveProviderWithoutRouter(t *testing.T) {
	store := NewStore(0)
	providers := memory.NewProviderRepository()
	scheduler := NewScheduler(DefaultSchedulerConfig(), newTestProber(t, time.Second), store, providers, nil, nil, nil, zap.NewNop())
	service := NewService(scheduler, store, providers, nil, nil, zap.NewNop())

	decision, err := service.GetActiveProvider(context.Background(), models.PlatformClaude)
	require.NoError(t, err)
	assert.Equal(t, models.StatusMissing, decision.Status)
	assert.False(t, decision.HasActive())
}
