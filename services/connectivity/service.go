package connectivity

import (
	"context"
	"sort"

	"github.com/upb/llm-failover/models"
	"github.com/upb/llm-failover/services"
	"go.uber.org/zap"
)

// ActiveTracker exposes the router's active provider
type ActiveTracker interface {
	Recomputer
	Active(platform models.Platform) (models.RoutingDecision, bool)
}

// AutoTestSetting persists the auto_connectivity_test flag
type AutoTestSetting interface {
	Update(mutate func(*models.AppSettings)) (models.AppSettings, error)
}

// Service is the boundary consumed by handlers
type Service struct {
	scheduler *Scheduler
	store     *Store
	source    ProviderSource
	router    ActiveTracker
	settings  AutoTestSetting
	logger    *zap.Logger
}

// NewService creates a new connectivity service. router and settings may be nil.
func NewService(scheduler *Scheduler, store *Store, source ProviderSource, router ActiveTracker, settings AutoTestSetting, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		scheduler: scheduler,
		store:     store,
		source:    source,
		router:    router,
		settings:  settings,
		logger:    logger,
	}
}

// TestAll sweeps a platform and returns the fresh results
func (s *Service) TestAll(ctx context.Context, platform models.Platform) ([]models.ConnectivityResult, error) {
	sweep, err := s.TestAllDetailed(ctx, platform)
	if err != nil {
		return nil, err
	}
	return sweep.Results, nil
}

// TestAllDetailed is TestAll with sweep metadata, including whether the request was coalesced
func (s *Service) TestAllDetailed(ctx context.Context, platform models.Platform) (*SweepResult, error) {
	if err := s.ensurePlatform(ctx, platform); err != nil {
		return nil, err
	}
	return s.scheduler.RunSweep(ctx, platform)
}

// GetResults returns the latest result of every provider of a platform, Missing for those never probed
func (s *Service) GetResults(ctx context.Context, platform models.Platform) ([]models.ConnectivityResult, error) {
	if err := s.ensurePlatform(ctx, platform); err != nil {
		return nil, err
	}

	providers, err := s.source.ListByPlatform(ctx, platform)
	if err != nil {
		return nil, services.WrapExternal("failed to load providers", err)
	}
	sortProviders(providers)

	stored := s.store.GetAll(platform)
	out := make([]models.ConnectivityResult, 0, len(providers))
	for _, p := range providers {
		r, ok := stored[p.ID]
		if !ok {
			r = models.MissingResult(platform, p.ID, p.Name)
		}
		r.ProviderName = p.Name
		out = append(out, r)
	}
	return out, nil
}

// GetAllResults returns results for every platform that has providers
func (s *Service) GetAllResults(ctx context.Context) (map[string][]models.ConnectivityResult, error) {
	platforms, err := s.source.ListPlatforms(ctx)
	if err != nil {
		return nil, services.WrapExternal("failed to list platforms", err)
	}

	out := make(map[string][]models.ConnectivityResult, len(platforms))
	for _, platform := range platforms {
		results, err := s.GetResults(ctx, platform)
		if err != nil {
			return nil, err
		}
		out[platform.String()] = results
	}
	return out, nil
}

// RunSingleTest probes one provider
func (s *Service) RunSingleTest(ctx context.Context, platform models.Platform, providerID int64) (models.ConnectivityResult, error) {
	return s.scheduler.RunSingle(ctx, platform, providerID)
}

// SetAutoTestEnabled records the choice in the settings, then toggles periodic sweeps.
// A rejected settings update leaves the scheduler as it was.
func (s *Service) SetAutoTestEnabled(enabled bool) error {
	if s.settings != nil {
		if _, err := s.settings.Update(func(a *models.AppSettings) { a.AutoConnectivityTest = enabled }); err != nil {
			return services.Invalid("failed to update auto-test setting", err)
		}
	}
	// settings subscribers usually toggled it already; the call is idempotent
	s.scheduler.SetAutoTestEnabled(enabled)
	return nil
}

// GetAutoTestEnabled reports whether periodic sweeps are scheduled
func (s *Service) GetAutoTestEnabled() bool {
	return s.scheduler.AutoTestEnabled()
}

// GetActiveProvider returns the platform's active provider, computing it on first use.
// No eligible provider is reported as a decision without a provider id.
func (s *Service) GetActiveProvider(ctx context.Context, platform models.Platform) (models.RoutingDecision, error) {
	if err := s.ensurePlatform(ctx, platform); err != nil {
		return models.RoutingDecision{}, err
	}
	if s.router == nil {
		return models.RoutingDecision{Platform: platform, Status: models.StatusMissing}, nil
	}
	if decision, ok := s.router.Active(platform); ok {
		return decision, nil
	}
	return s.router.Recompute(ctx, platform)
}

// History returns the trailing result window of one provider
func (s *Service) History(platform models.Platform, providerID int64) []models.ConnectivityResult {
	return s.store.History(platform, providerID)
}

// ensurePlatform accepts built-in platforms and custom platforms that have providers
func (s *Service) ensurePlatform(ctx context.Context, platform models.Platform) error {
	if !platform.IsCustom() {
		for _, p := range models.BuiltinPlatforms {
			if p == platform {
				return nil
			}
		}
		return services.NotFound("platform not found", map[string]interface{}{"platform": platform.String()})
	}

	platforms, err := s.source.ListPlatforms(ctx)
	if err != nil {
		return services.WrapExternal("failed to list platforms", err)
	}
	for _, p := range platforms {
		if p == platform {
			return nil
		}
	}
	return services.NotFound("platform not found", map[string]interface{}{"platform": platform.String()})
}

func sortProviders(list []*models.Provider) {
	sort.SliceStable(list, func(i, j int) bool {
		if list[i].Level != list[j].Level {
			return list[i].Level < list[j].Level
		}
		return list[i].ID < list[j].ID
	})
}
