package connectivity

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/upb/llm-failover/internal/observability"
	"github.com/upb/llm-failover/models"
	"github.com/upb/llm-failover/repositories"
	"github.com/upb/llm-failover/services"
	"github.com/upb/llm-failover/utils"
	"go.uber.org/zap"
)

// DefaultSweepInterval is the auto-test period
const DefaultSweepInterval = 60 * time.Second

// ProviderSource reads provider reference data
type ProviderSource interface {
	ListByPlatform(ctx context.Context, platform models.Platform) ([]*models.Provider, error)
	GetByID(ctx context.Context, platform models.Platform, id int64) (*models.Provider, error)
	ListPlatforms(ctx context.Context) ([]models.Platform, error)
}

// Recomputer recalculates the active provider after results change
type Recomputer interface {
	Recompute(ctx context.Context, platform models.Platform) (models.RoutingDecision, error)
}

// ResultRecorder persists results after they reach the store
type ResultRecorder interface {
	RecordResults(ctx context.Context, results []models.ConnectivityResult) error
}

// SchedulerConfig holds configuration for the scheduler
type SchedulerConfig struct {
	// Interval between automatic sweeps
	Interval time.Duration

	// MaxConcurrency caps concurrent probes per sweep. Zero runs one worker per provider,
	// so a sweep never takes longer than one probe timeout.
	MaxConcurrency int

	// Thresholds used to classify outcomes
	Thresholds Thresholds
}

// DefaultSchedulerConfig returns a sensible default configuration
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		Interval:   DefaultSweepInterval,
		Thresholds: DefaultThresholds(),
	}
}

// SweepResult is the outcome of one sweep
type SweepResult struct {
	SweepID    uuid.UUID
	Platform   models.Platform
	Sequence   uint64
	Results    []models.ConnectivityResult
	StartedAt  time.Time
	FinishedAt time.Time

	// Coalesced is set when the caller joined a sweep that was already in progress
	Coalesced bool
}

// sweepCall tracks an in-flight sweep so concurrent requests can join it
type sweepCall struct {
	done   chan struct{}
	result *SweepResult
	err    error
}

// Scheduler drives on-demand and periodic sweeps
type Scheduler struct {
	config   SchedulerConfig
	prober   *Prober
	store    *Store
	source   ProviderSource
	router   Recomputer
	recorder ResultRecorder
	metrics  observability.Metrics
	logger   *zap.Logger

	inflightMu sync.Mutex
	inflight   map[models.Platform]*sweepCall

	persistMu sync.Mutex

	autoMu   sync.Mutex
	autoStop chan struct{}
	autoWG   sync.WaitGroup
}

// NewScheduler creates a new scheduler. router and recorder may be nil.
func NewScheduler(
	config SchedulerConfig,
	prober *Prober,
	store *Store,
	source ProviderSource,
	router Recomputer,
	recorder ResultRecorder,
	metrics observability.Metrics,
	logger *zap.Logger,
) *Scheduler {
	if config.Interval <= 0 {
		config.Interval = DefaultSweepInterval
	}
	if config.MaxConcurrency < 0 {
		config.MaxConcurrency = 0
	}
	if metrics == nil {
		metrics = observability.NoopMetrics{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		config:   config,
		prober:   prober,
		store:    store,
		source:   source,
		router:   router,
		recorder: recorder,
		metrics:  metrics,
		logger:   logger,
		inflight: make(map[models.Platform]*sweepCall),
	}
}

// SetRouter attaches the router notified after each sweep
func (s *Scheduler) SetRouter(router Recomputer) {
	s.router = router
}

// RunSweep probes every testable provider of a platform. A request arriving while a sweep of
// the same platform is running waits for that sweep and shares its results.
func (s *Scheduler) RunSweep(ctx context.Context, platform models.Platform) (*SweepResult, error) {
	s.inflightMu.Lock()
	if call, ok := s.inflight[platform]; ok {
		s.inflightMu.Unlock()
		return s.join(ctx, platform, call)
	}
	call := &sweepCall{done: make(chan struct{})}
	s.inflight[platform] = call
	s.inflightMu.Unlock()

	// the sweep outlives a cancelled caller so joined callers still get results
	call.result, call.err = s.sweep(context.WithoutCancel(ctx), platform)

	s.inflightMu.Lock()
	delete(s.inflight, platform)
	s.inflightMu.Unlock()
	close(call.done)

	return call.result, call.err
}

func (s *Scheduler) join(ctx context.Context, platform models.Platform, call *sweepCall) (*SweepResult, error) {
	s.logger.Debug("sweep already in progress, joining",
		zap.String("platform", platform.String()),
		zap.NamedError("reason", services.ErrConcurrentSweepRejected),
	)
	s.metrics.RecordCoalescedSweep(ctx, platform.String())

	select {
	case <-call.done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	if call.err != nil {
		return nil, call.err
	}
	joined := *call.result
	joined.Results = append([]models.ConnectivityResult(nil), call.result.Results...)
	joined.Coalesced = true
	return &joined, nil
}

func (s *Scheduler) sweep(ctx context.Context, platform models.Platform) (*SweepResult, error) {
	all, err := s.source.ListByPlatform(ctx, platform)
	if err != nil {
		return nil, services.WrapExternal("failed to load providers", err)
	}

	configured := make(map[int64]struct{}, len(all))
	targets := make([]*models.Provider, 0, len(all))
	for _, p := range all {
		configured[p.ID] = struct{}{}
		if !p.Testable() {
			continue
		}
		if err := validateProvider(p); err != nil {
			return nil, err
		}
		targets = append(targets, p)
	}

	result := &SweepResult{
		SweepID:   uuid.New(),
		Platform:  platform,
		Sequence:  s.store.NextSequence(),
		StartedAt: time.Now().UTC(),
	}
	logger := s.logger.With(
		zap.String("platform", platform.String()),
		zap.String("sweep_id", result.SweepID.String()),
	)
	logger.Debug("sweep started", zap.Int("providers", len(targets)))

	if removed := s.store.Forget(platform, configured); removed > 0 {
		logger.Debug("dropped results of removed providers", zap.Int("removed", removed))
	}

	probed, err := s.probeAll(ctx, targets, result.Sequence)
	if err != nil {
		return nil, err
	}

	// every result reaches the store before routing is recomputed
	accepted := make([]models.ConnectivityResult, 0, len(probed))
	for _, r := range probed {
		if !s.store.Put(platform, r.ProviderID, r) {
			logger.Debug("discarded stale result", zap.Int64("provider_id", r.ProviderID))
			continue
		}
		accepted = append(accepted, r)
	}
	s.persist(ctx, platform, accepted)
	s.recompute(ctx, platform)

	result.Results = probed
	result.FinishedAt = time.Now().UTC()
	s.metrics.RecordSweep(ctx, platform.String(), result.FinishedAt.Sub(result.StartedAt))

	logger.Info("sweep completed",
		zap.Int("providers", len(probed)),
		zap.Duration("duration", result.FinishedAt.Sub(result.StartedAt)),
	)
	return result, nil
}

// probeAll runs probes through a bounded worker pool and returns results sorted by (level, id)
func (s *Scheduler) probeAll(ctx context.Context, targets []*models.Provider, sequence uint64) ([]models.ConnectivityResult, error) {
	results := make([]models.ConnectivityResult, len(targets))
	errs := make([]error, len(targets))
	if len(targets) == 0 {
		return results, nil
	}

	workers := len(targets)
	if limit := s.config.MaxConcurrency; limit > 0 && limit < workers {
		workers = limit
	}

	jobs := make(chan int, len(targets))
	for i := range targets {
		jobs <- i
	}
	close(jobs)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				results[i], errs[i] = s.probeOne(ctx, targets[i], sequence)
			}
		}()
	}
	wg.Wait()

	if err := errors.Join(errs...); err != nil {
		return nil, services.Invalid("provider configuration cannot be probed", err)
	}

	levels := make(map[int64]int, len(targets))
	for _, p := range targets {
		levels[p.ID] = p.Level
	}
	sort.SliceStable(results, func(i, j int) bool {
		li, lj := levels[results[i].ProviderID], levels[results[j].ProviderID]
		if li != lj {
			return li < lj
		}
		return results[i].ProviderID < results[j].ProviderID
	})
	return results, nil
}

func (s *Scheduler) probeOne(ctx context.Context, provider *models.Provider, sequence uint64) (models.ConnectivityResult, error) {
	outcome, err := s.prober.Probe(ctx, provider)
	if err != nil {
		return models.ConnectivityResult{}, err
	}

	status, sub := Classify(outcome, s.config.Thresholds, s.prober.ContentCheck(provider.Platform))
	if IsAmbiguous(outcome) {
		s.logger.Warn("probe response matched no classification rule",
			zap.String("platform", provider.Platform.String()),
			zap.Int64("provider_id", provider.ID),
			zap.Int("http_code", outcome.HTTPStatus),
		)
	}

	checked := time.Now().UTC()
	r := models.ConnectivityResult{
		ProviderID:   provider.ID,
		ProviderName: provider.Name,
		Platform:     provider.Platform,
		Status:       status,
		SubStatus:    sub,
		LatencyMs:    outcome.Elapsed.Milliseconds(),
		LastChecked:  &checked,
		Message:      outcomeMessage(outcome, sub),
		Sequence:     sequence,
	}
	if outcome.TransportErr == nil {
		code := outcome.HTTPStatus
		r.HTTPCode = &code
	}

	s.metrics.RecordProbe(ctx, observability.ProbeLabels{
		Platform:  provider.Platform.String(),
		Provider:  provider.Name,
		Status:    status.String(),
		SubStatus: sub.String(),
	}, outcome.Elapsed)

	return r, nil
}

// RunSingle probes one provider, writes the result and recomputes routing
func (s *Scheduler) RunSingle(ctx context.Context, platform models.Platform, providerID int64) (models.ConnectivityResult, error) {
	provider, err := s.source.GetByID(ctx, platform, providerID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return models.ConnectivityResult{}, services.NotFound(
				fmt.Sprintf("provider %d not found", providerID),
				map[string]interface{}{"platform": platform.String(), "provider_id": providerID},
			)
		}
		return models.ConnectivityResult{}, services.WrapExternal("failed to load provider", err)
	}
	if err := validateProvider(provider); err != nil {
		return models.ConnectivityResult{}, err
	}

	r, err := s.probeOne(ctx, provider, s.store.NextSequence())
	if err != nil {
		return models.ConnectivityResult{}, services.Invalid("provider configuration cannot be probed", err)
	}

	if s.store.Put(platform, providerID, r) {
		s.persist(ctx, platform, []models.ConnectivityResult{r})
	} else {
		// a newer sweep finished first; report what the store holds
		r = s.store.Get(platform, providerID)
		r.ProviderName = provider.Name
	}
	s.recompute(ctx, platform)

	return r, nil
}

// persist writes results the store still holds. Writes are serialized so a result
// superseded while waiting never reaches the repository after its successor.
func (s *Scheduler) persist(ctx context.Context, platform models.Platform, results []models.ConnectivityResult) {
	if s.recorder == nil || len(results) == 0 {
		return
	}

	s.persistMu.Lock()
	defer s.persistMu.Unlock()

	current := make([]models.ConnectivityResult, 0, len(results))
	for _, r := range results {
		if s.store.Holds(platform, r.ProviderID, r.Sequence) {
			r.Platform = platform
			current = append(current, r)
		}
	}
	if len(current) == 0 {
		return
	}
	if err := s.recorder.RecordResults(ctx, current); err != nil {
		s.logger.Warn("failed to persist connectivity results",
			zap.String("platform", platform.String()),
			zap.Error(err),
		)
	}
}

func (s *Scheduler) recompute(ctx context.Context, platform models.Platform) {
	if s.router == nil {
		return
	}
	if _, err := s.router.Recompute(ctx, platform); err != nil {
		s.logger.Warn("routing recomputation failed",
			zap.String("platform", platform.String()),
			zap.Error(err),
		)
	}
}

// SetAutoTestEnabled starts or stops periodic sweeps. Stopping only cancels future ticks;
// a sweep already running completes and writes its results.
func (s *Scheduler) SetAutoTestEnabled(enabled bool) {
	s.autoMu.Lock()
	defer s.autoMu.Unlock()

	if enabled == (s.autoStop != nil) {
		return
	}

	if !enabled {
		close(s.autoStop)
		s.autoStop = nil
		s.logger.Info("auto connectivity test disabled")
		return
	}

	stop := make(chan struct{})
	s.autoStop = stop
	s.autoWG.Add(1)
	go s.autoLoop(stop)
	s.logger.Info("auto connectivity test enabled", zap.Duration("interval", s.config.Interval))
}

// AutoTestEnabled reports whether periodic sweeps are scheduled
func (s *Scheduler) AutoTestEnabled() bool {
	s.autoMu.Lock()
	defer s.autoMu.Unlock()
	return s.autoStop != nil
}

func (s *Scheduler) autoLoop(stop <-chan struct{}) {
	defer s.autoWG.Done()

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			// a tick racing with stop must not start another sweep
			select {
			case <-stop:
				return
			default:
			}
			s.SweepAll(context.Background())
		}
	}
}

// SweepAll sweeps every known platform in turn
func (s *Scheduler) SweepAll(ctx context.Context) {
	platforms, err := s.source.ListPlatforms(ctx)
	if err != nil {
		s.logger.Error("failed to list platforms for sweep", zap.Error(err))
		return
	}
	for _, platform := range platforms {
		if _, err := s.RunSweep(ctx, platform); err != nil {
			s.logger.Error("scheduled sweep failed",
				zap.String("platform", platform.String()),
				zap.Error(err),
			)
		}
	}
}

// Stop disables auto-test and waits for the loop (and any sweep it started) to exit
func (s *Scheduler) Stop() {
	s.SetAutoTestEnabled(false)
	s.autoWG.Wait()
}

func validateProvider(p *models.Provider) error {
	if err := utils.ValidateStruct(p); err != nil {
		return services.Invalid(fmt.Sprintf("provider %d has invalid configuration", p.ID), err).
			WithDetail("provider_id", p.ID)
	}
	return nil
}
