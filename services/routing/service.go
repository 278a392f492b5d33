package routing

import (
	"context"
	"sort"
	"sync"

	"github.com/upb/llm-failover/internal/observability"
	"github.com/upb/llm-failover/models"
	"github.com/upb/llm-failover/services"
	"go.uber.org/zap"
)

// ProviderLister reads the providers of a platform
type ProviderLister interface {
	ListByPlatform(ctx context.Context, platform models.Platform) ([]*models.Provider, error)
}

// ResultReader reads the latest classified result of a provider
type ResultReader interface {
	Get(platform models.Platform, providerID int64) models.ConnectivityResult
}

// RoundRobinSetting reports whether rotation is enabled
type RoundRobinSetting interface {
	RoundRobinEnabled() bool
}

// ChangeNotifier is told about active-provider changes
type ChangeNotifier interface {
	OnRoutingChanged(ctx context.Context, platform models.Platform, previous, next *int64, reason models.SwitchReason)
}

// platformState is the mutable routing state of one platform
type platformState struct {
	mu       sync.Mutex
	decision models.RoutingDecision
	computed bool

	// cursors holds, per level, the id of the provider last picked by rotation
	cursors map[int]int64
}

// RoutingService selects the active provider of each platform
type RoutingService struct {
	providers ProviderLister
	results   ResultReader
	settings  RoundRobinSetting
	notifier  ChangeNotifier
	metrics   observability.Metrics
	logger    *zap.Logger

	mu     sync.RWMutex
	states map[models.Platform]*platformState
}

// NewRoutingService creates a new routing service. settings and notifier may be nil.
func NewRoutingService(
	providers ProviderLister,
	results ResultReader,
	settings RoundRobinSetting,
	notifier ChangeNotifier,
	metrics observability.Metrics,
	logger *zap.Logger,
) *RoutingService {
	if metrics == nil {
		metrics = observability.NoopMetrics{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RoutingService{
		providers: providers,
		results:   results,
		settings:  settings,
		notifier:  notifier,
		metrics:   metrics,
		logger:    logger,
		states:    make(map[models.Platform]*platformState),
	}
}

func (s *RoutingService) state(platform models.Platform) *platformState {
	s.mu.RLock()
	st, ok := s.states[platform]
	s.mu.RUnlock()
	if ok {
		return st
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok = s.states[platform]; ok {
		return st
	}
	st = &platformState{cursors: make(map[int]int64)}
	s.states[platform] = st
	return st
}

// Active returns the tracked decision without recomputing. ok is false before the first computation.
func (s *RoutingService) Active(platform models.Platform) (models.RoutingDecision, bool) {
	s.mu.RLock()
	st, exists := s.states[platform]
	s.mu.RUnlock()
	if !exists {
		return models.RoutingDecision{}, false
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	return copyDecision(st.decision), st.computed
}

// SelectActive picks the active provider for a platform. It is the same operation as Recompute.
func (s *RoutingService) SelectActive(ctx context.Context, platform models.Platform) (models.RoutingDecision, error) {
	return s.Recompute(ctx, platform)
}

// Recompute reselects the active provider from the current results and notifies on change.
// No eligible provider yields a decision without a provider id, not an error.
func (s *RoutingService) Recompute(ctx context.Context, platform models.Platform) (models.RoutingDecision, error) {
	list, err := s.providers.ListByPlatform(ctx, platform)
	if err != nil {
		return models.RoutingDecision{}, services.WrapExternal("failed to load providers", err)
	}

	roundRobin := s.settings != nil && s.settings.RoundRobinEnabled()

	st := s.state(platform)
	st.mu.Lock()
	defer st.mu.Unlock()

	previous := st.decision
	next, reason := s.choose(platform, list, previous, st.cursors, roundRobin)

	st.decision = next
	st.computed = true

	if !sameProvider(previous.ProviderID, next.ProviderID) {
		s.logger.Info("active provider changed",
			zap.String("platform", platform.String()),
			zap.Any("previous_provider_id", previous.ProviderID),
			zap.Any("provider_id", next.ProviderID),
			zap.String("reason", string(reason)),
		)
		s.metrics.RecordSwitch(ctx, platform.String())
		if s.notifier != nil {
			s.notifier.OnRoutingChanged(ctx, platform, previous.ProviderID, next.ProviderID, reason)
		}
	}

	return copyDecision(next), nil
}

type candidate struct {
	provider *models.Provider
	status   models.Status
}

// choose applies the selection policy. It only mutates cursors.
func (s *RoutingService) choose(
	platform models.Platform,
	list []*models.Provider,
	previous models.RoutingDecision,
	cursors map[int]int64,
	roundRobin bool,
) (models.RoutingDecision, models.SwitchReason) {
	levels := make(map[int][]candidate)
	for _, p := range list {
		if !p.Routable() {
			continue
		}
		status := s.results.Get(platform, p.ID).Status
		if !status.Eligible() {
			continue
		}
		levels[p.Level] = append(levels[p.Level], candidate{provider: p, status: status})
	}

	if len(levels) == 0 {
		return models.RoutingDecision{Platform: platform, Status: models.StatusUnavailable}, models.SwitchReasonNoneActive
	}

	order := make([]int, 0, len(levels))
	for level := range levels {
		order = append(order, level)
	}
	sort.Ints(order)

	level := order[0]
	eligible := levels[level]
	sort.Slice(eligible, func(i, j int) bool { return eligible[i].provider.ID < eligible[j].provider.ID })

	var picked candidate
	var reason models.SwitchReason

	if roundRobin {
		picked = nextInRotation(eligible, cursors[level])
		cursors[level] = picked.provider.ID
		reason = models.SwitchReasonRoundRobin
	} else {
		current, held := find(eligible, previous.ProviderID)
		best := preferred(eligible)
		switch {
		case held && (current.status == models.StatusAvailable || best.status != models.StatusAvailable):
			// stay put while the active provider is still eligible and nothing healthier exists
			picked = current
		case held:
			picked = best
			reason = models.SwitchReasonPreferred
		default:
			picked = best
			reason = s.reasonForNewPick(platform, previous, list)
		}
	}

	lvl := picked.provider.Level
	id := picked.provider.ID
	return models.RoutingDecision{
		Platform:   platform,
		ProviderID: &id,
		Level:      &lvl,
		Status:     picked.status,
	}, reason
}

// reasonForNewPick explains a switch away from a provider that is not in the winning level
func (s *RoutingService) reasonForNewPick(platform models.Platform, previous models.RoutingDecision, list []*models.Provider) models.SwitchReason {
	if previous.ProviderID == nil {
		return models.SwitchReasonInitial
	}
	for _, p := range list {
		if p.ID == *previous.ProviderID && p.Routable() && s.results.Get(platform, p.ID).Status.Eligible() {
			return models.SwitchReasonHigherLevel
		}
	}
	return models.SwitchReasonIneligible
}

// preferred returns the lowest-id Available provider, else the lowest-id Degraded one
func preferred(sorted []candidate) candidate {
	for _, c := range sorted {
		if c.status == models.StatusAvailable {
			return c
		}
	}
	return sorted[0]
}

// nextInRotation returns the first provider after lastID, wrapping around.
// Providers that dropped out since the last pick are simply absent from sorted.
func nextInRotation(sorted []candidate, lastID int64) candidate {
	for _, c := range sorted {
		if c.provider.ID > lastID {
			return c
		}
	}
	return sorted[0]
}

func find(list []candidate, id *int64) (candidate, bool) {
	if id == nil {
		return candidate{}, false
	}
	for _, c := range list {
		if c.provider.ID == *id {
			return c, true
		}
	}
	return candidate{}, false
}

func sameProvider(a, b *int64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func copyDecision(d models.RoutingDecision) models.RoutingDecision {
	if d.ProviderID != nil {
		id := *d.ProviderID
		d.ProviderID = &id
	}
	if d.Level != nil {
		lvl := *d.Level
		d.Level = &lvl
	}
	return d
}
