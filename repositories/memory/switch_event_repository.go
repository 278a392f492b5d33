package memory

import (
	"context"
	"sync"

	"github.com/upb/llm-failover/models"
	"github.com/upb/llm-failover/repositories"
)

// defaultEventCapacity bounds the retained switch history
const defaultEventCapacity = 1000

// SwitchEventRepository implements repositories.SwitchEventRepository as a bounded log
type SwitchEventRepository struct {
	mu       sync.RWMutex
	events   []*models.SwitchEvent
	capacity int
}

// NewSwitchEventRepository creates a repository that keeps at most capacity events
func NewSwitchEventRepository(capacity int) *SwitchEventRepository {
	if capacity <= 0 {
		capacity = defaultEventCapacity
	}
	return &SwitchEventRepository{capacity: capacity}
}

// Insert appends an event, evicting the oldest when full
func (r *SwitchEventRepository) Insert(_ context.Context, event *models.SwitchEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c := *event
	r.events = append(r.events, &c)
	if over := len(r.events) - r.capacity; over > 0 {
		r.events = append([]*models.SwitchEvent(nil), r.events[over:]...)
	}
	return nil
}

// List returns matching events, newest first
func (r *SwitchEventRepository) List(_ context.Context, filter repositories.SwitchEventFilter) ([]*models.SwitchEvent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*models.SwitchEvent, 0)
	for i := len(r.events) - 1; i >= 0; i-- {
		e := r.events[i]
		if filter.Platform != "" && e.Platform != filter.Platform {
			continue
		}
		if !filter.Since.IsZero() && e.OccurredAt.Before(filter.Since) {
			continue
		}
		c := *e
		out = append(out, &c)
		if filter.Limit > 0 && len(out) == filter.Limit {
			break
		}
	}
	return out, nil
}
