package connectivity

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/upb/llm-failover/models"
)

func result(status models.Status, sub models.SubStatus, seq uint64) models.ConnectivityResult {
	now := time.Now().UTC()
	code := 200
	return models.ConnectivityResult{
		Status:      status,
		SubStatus:   sub,
		LatencyMs:   int64(seq),
		LastChecked: &now,
		HTTPCode:    &code,
		Sequence:    seq,
	}
}

func TestStore_GetMissing(t *testing.T) {
	store := NewStore(0)

	r := store.Get(models.PlatformClaude, 42)
	assert.True(t, r.IsMissing())
	assert.Equal(t, int64(42), r.ProviderID)
	assert.Nil(t, r.LastChecked)
	assert.Empty(t, store.GetAll(models.PlatformClaude))
	assert.Empty(t, store.Platforms())
}

func TestStore_PutOverwrites(t *testing.T) {
	store := NewStore(0)

	require.True(t, store.Put(models.PlatformClaude, 1, result(models.StatusAvailable, models.SubStatusNone, 1)))
	require.True(t, store.Put(models.PlatformClaude, 1, result(models.StatusDegraded, models.SubStatusRateLimit, 2)))

	r := store.Get(models.PlatformClaude, 1)
	assert.Equal(t, models.StatusDegraded, r.Status)
	assert.Equal(t, models.SubStatusRateLimit, r.SubStatus)
	assert.Equal(t, models.PlatformClaude, r.Platform)
	assert.Equal(t, int64(1), r.ProviderID)
}

func TestStore_Holds(t *testing.T) {
	store := NewStore(0)
	assert.False(t, store.Holds(models.PlatformClaude, 1, 1))

	require.True(t, store.Put(models.PlatformClaude, 1, models.ConnectivityResult{Status: models.StatusAvailable, Sequence: 3}))
	assert.True(t, store.Holds(models.PlatformClaude, 1, 3))
	assert.False(t, store.Holds(models.PlatformClaude, 1, 2))
	assert.False(t, store.Holds(models.PlatformClaude, 2, 3))
}

func TestStore_StaleWriteDiscarded(t *testing.T) {
	store := NewStore(0)

	newer := store.NextSequence() + 1
	older := newer - 1

	require.True(t, store.Put(models.PlatformCodex, 7, result(models.StatusAvailable, models.SubStatusNone, newer)))
	assert.False(t, store.Put(models.PlatformCodex, 7, result(models.StatusUnavailable, models.SubStatusServerError, older)))

	assert.Equal(t, models.StatusAvailable, store.Get(models.PlatformCodex, 7).Status)
	assert.Equal(t, newer, store.Get(models.PlatformCodex, 7).Sequence)
}

func TestStore_NextSequenceIsMonotonic(t *testing.T) {
	store := NewStore(0)
	prev := store.NextSequence()
	for i := 0; i < 100; i++ {
		next := store.NextSequence()
		require.Greater(t, next, prev)
		prev = next
	}
}

func TestStore_PlatformsAreIndependent(t *testing.T) {
	store := NewStore(0)
	store.Put(models.PlatformClaude, 1, result(models.StatusAvailable, models.SubStatusNone, 1))
	store.Put(models.PlatformGemini, 1, result(models.StatusUnavailable, models.SubStatusAuthError, 1))

	assert.Equal(t, models.StatusAvailable, store.Get(models.PlatformClaude, 1).Status)
	assert.Equal(t, models.StatusUnavailable, store.Get(models.PlatformGemini, 1).Status)
	assert.Equal(t, []models.Platform{models.PlatformClaude, models.PlatformGemini}, store.Platforms())
}

func TestStore_SnapshotsDoNotAlias(t *testing.T) {
	store := NewStore(0)
	store.Put(models.PlatformClaude, 1, result(models.StatusAvailable, models.SubStatusNone, 1))

	snapshot := store.GetAll(models.PlatformClaude)
	*snapshot[1].HTTPCode = 500

	assert.Equal(t, 200, *store.Get(models.PlatformClaude, 1).HTTPCode)
}

func TestStore_History(t *testing.T) {
	store := NewStore(3)
	for seq := uint64(1); seq <= 5; seq++ {
		store.Put(models.PlatformCodex, 1, result(models.StatusAvailable, models.SubStatusNone, seq))
	}

	history := store.History(models.PlatformCodex, 1)
	require.Len(t, history, 3)
	assert.Equal(t, uint64(3), history[0].Sequence)
	assert.Equal(t, uint64(5), history[2].Sequence)

	assert.Empty(t, NewStore(0).History(models.PlatformCodex, 1))
}

func TestStore_Forget(t *testing.T) {
	store := NewStore(0)
	store.Put(models.PlatformClaude, 1, result(models.StatusAvailable, models.SubStatusNone, 1))
	store.Put(models.PlatformClaude, 2, result(models.StatusAvailable, models.SubStatusNone, 1))

	removed := store.Forget(models.PlatformClaude, map[int64]struct{}{1: {}})
	assert.Equal(t, 1, removed)
	assert.True(t, store.Get(models.PlatformClaude, 2).IsMissing())
	assert.False(t, store.Get(models.PlatformClaude, 1).IsMissing())
}

func TestStore_ConcurrentWritersNeverTear(t *testing.T) {
	store := NewStore(0)

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				seq := store.NextSequence()
				// status and latency always travel together
				status := models.StatusAvailable
				if seq%2 == 0 {
					status = models.StatusDegraded
				}
				r := result(status, models.SubStatusNone, seq)
				store.Put(models.PlatformClaude, 1, r)
			}
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 500; i++ {
			r := store.Get(models.PlatformClaude, 1)
			if r.IsMissing() {
				continue
			}
			wantStatus := models.StatusAvailable
			if uint64(r.LatencyMs)%2 == 0 {
				wantStatus = models.StatusDegraded
			}
			assert.Equal(t, wantStatus, r.Status)
			assert.Equal(t, uint64(r.LatencyMs), r.Sequence)
		}
	}()

	wg.Wait()

	// the highest sequence always wins
	assert.Equal(t, uint64(8*200), store.Get(models.PlatformClaude, 1).Sequence)
}
