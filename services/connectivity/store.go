package connectivity

import (
	"sort"
	"sync"
	"sync/atomic"

	"github.com/upb/llm-failover/models"
)

// platformResults is the state of one platform. Each shard has its own lock so
// platforms never contend with each other.
type platformResults struct {
	mu      sync.RWMutex
	latest  map[int64]models.ConnectivityResult
	history map[int64][]models.ConnectivityResult
}

// Store holds the latest connectivity result per (platform, provider).
// Writes carry a sequence number; a write older than the stored one is discarded.
type Store struct {
	mu          sync.RWMutex
	platforms   map[models.Platform]*platformResults
	historySize int
	sequence    atomic.Uint64
}

// NewStore creates a result store. historySize > 0 keeps a bounded trailing window per provider.
func NewStore(historySize int) *Store {
	if historySize < 0 {
		historySize = 0
	}
	return &Store{
		platforms:   make(map[models.Platform]*platformResults),
		historySize: historySize,
	}
}

// NextSequence returns a new, strictly increasing write sequence
func (s *Store) NextSequence() uint64 {
	return s.sequence.Add(1)
}

func (s *Store) shard(platform models.Platform, create bool) *platformResults {
	s.mu.RLock()
	shard, ok := s.platforms[platform]
	s.mu.RUnlock()
	if ok || !create {
		return shard
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if shard, ok = s.platforms[platform]; ok {
		return shard
	}
	shard = &platformResults{
		latest:  make(map[int64]models.ConnectivityResult),
		history: make(map[int64][]models.ConnectivityResult),
	}
	s.platforms[platform] = shard
	return shard
}

// Put stores a result. It returns false when the write is stale and was discarded.
func (s *Store) Put(platform models.Platform, providerID int64, result models.ConnectivityResult) bool {
	result = cloneResult(result)
	result.Platform = platform
	result.ProviderID = providerID

	shard := s.shard(platform, true)
	shard.mu.Lock()
	defer shard.mu.Unlock()

	if current, ok := shard.latest[providerID]; ok && result.Sequence < current.Sequence {
		return false
	}
	shard.latest[providerID] = result

	if s.historySize > 0 {
		window := append(shard.history[providerID], result)
		if len(window) > s.historySize {
			window = append([]models.ConnectivityResult(nil), window[len(window)-s.historySize:]...)
		}
		shard.history[providerID] = window
	}
	return true
}

// Get returns the latest result, or a Missing placeholder when nothing was recorded
func (s *Store) Get(platform models.Platform, providerID int64) models.ConnectivityResult {
	shard := s.shard(platform, false)
	if shard == nil {
		return models.MissingResult(platform, providerID, "")
	}

	shard.mu.RLock()
	defer shard.mu.RUnlock()

	result, ok := shard.latest[providerID]
	if !ok {
		return models.MissingResult(platform, providerID, "")
	}
	return cloneResult(result)
}

// Holds reports whether the stored result for a provider was written with sequence
func (s *Store) Holds(platform models.Platform, providerID int64, sequence uint64) bool {
	shard := s.shard(platform, false)
	if shard == nil {
		return false
	}

	shard.mu.RLock()
	defer shard.mu.RUnlock()

	current, ok := shard.latest[providerID]
	return ok && current.Sequence == sequence
}

// GetAll returns a snapshot of every recorded result of a platform
func (s *Store) GetAll(platform models.Platform) map[int64]models.ConnectivityResult {
	out := make(map[int64]models.ConnectivityResult)
	shard := s.shard(platform, false)
	if shard == nil {
		return out
	}

	shard.mu.RLock()
	defer shard.mu.RUnlock()
	for id, result := range shard.latest {
		out[id] = cloneResult(result)
	}
	return out
}

// History returns the trailing window for a provider, oldest first
func (s *Store) History(platform models.Platform, providerID int64) []models.ConnectivityResult {
	shard := s.shard(platform, false)
	if shard == nil {
		return nil
	}

	shard.mu.RLock()
	defer shard.mu.RUnlock()

	window := shard.history[providerID]
	out := make([]models.ConnectivityResult, len(window))
	for i, r := range window {
		out[i] = cloneResult(r)
	}
	return out
}

// Platforms lists every platform with at least one recorded result
func (s *Store) Platforms() []models.Platform {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Platform, 0, len(s.platforms))
	for p, shard := range s.platforms {
		shard.mu.RLock()
		n := len(shard.latest)
		shard.mu.RUnlock()
		if n > 0 {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Forget drops results for providers that are no longer configured
func (s *Store) Forget(platform models.Platform, keep map[int64]struct{}) int {
	shard := s.shard(platform, false)
	if shard == nil {
		return 0
	}

	shard.mu.Lock()
	defer shard.mu.Unlock()

	removed := 0
	for id := range shard.latest {
		if _, ok := keep[id]; !ok {
			delete(shard.latest, id)
			delete(shard.history, id)
			removed++
		}
	}
	return removed
}

func cloneResult(r models.ConnectivityResult) models.ConnectivityResult {
	if r.LastChecked != nil {
		t := *r.LastChecked
		r.LastChecked = &t
	}
	if r.HTTPCode != nil {
		c := *r.HTTPCode
		r.HTTPCode = &c
	}
	return r
}
