package rules

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/upb/action-gate/models"
)

func TestRuleCache_GetSet(t *testing.T) {
	cache := NewRuleCache(10, 5*time.Minute)

	// Test cache miss
	rules, ok := cache.Get("cancel_order")
	assert.False(t, ok)
	assert.Nil(t, rules)

	// Test cache set and hit
	want := []*models.Rule{models.NewRule("cancel_order", "placed within a day", 2)}
	cache.Set("cancel_order", want)

	rules, ok = cache.Get("cancel_order")
	require.True(t, ok)
	assert.Equal(t, want[0].ID, rules[0].ID)

	stats := cache.Stats()
	assert.Equal(t, 1, stats.Size)
	assert.Equal(t, uint64(1), stats.Hits)
	assert.Equal(t, uint64(1), stats.Misses)
	assert.Equal(t, 0.5, stats.HitRate)
}

func TestRuleCache_EmptyRuleSetIsCached(t *testing.T) {
	cache := NewRuleCache(10, time.Minute)
	cache.Set("get_weather", []*models.Rule{})

	rules, ok := cache.Get("get_weather")
	assert.True(t, ok)
	assert.Empty(t, rules)
}

func TestRuleCache_TTLExpiration(t *testing.T) {
	cache := NewRuleCache(10, time.Minute)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	cache.now = func() time.Time { return now }

	cache.Set("cancel_order", []*models.Rule{})
	_, ok := cache.Get("cancel_order")
	assert.True(t, ok)

	now = now.Add(2 * time.Minute)
	_, ok = cache.Get("cancel_order")
	assert.False(t, ok)
	assert.Equal(t, 0, cache.Stats().Size)
}

func TestRuleCache_LRUEviction(t *testing.T) {
	cache := NewRuleCache(2, time.Minute)

	cache.Set("a", []*models.Rule{})
	cache.Set("b", []*models.Rule{})

	// Touch "a" so "b" becomes least recently used
	_, ok := cache.Get("a")
	require.True(t, ok)

	cache.Set("c", []*models.Rule{})

	_, ok = cache.Get("b")
	assert.False(t, ok)
	_, ok = cache.Get("a")
	assert.True(t, ok)
	_, ok = cache.Get("c")
	assert.True(t, ok)
	assert.Equal(t, 2, cache.Stats().Size)
}

func TestRuleCache_InvalidateAndClear(t *testing.T) {
	cache := NewRuleCache(10, time.Minute)
	cache.Set("a", []*models.Rule{})
	cache.Set("b", []*models.Rule{})

	cache.Invalidate("a")
	_, ok := cache.Get("a")
	assert.False(t, ok)
	_, ok = cache.Get("b")
	assert.True(t, ok)

	cache.Invalidate("missing")

	cache.Clear()
	assert.Equal(t, 0, cache.Stats().Size)
}

func TestRuleCache_CleanupExpired(t *testing.T) {
	cache := NewRuleCache(10, time.Minute)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	cache.now = func() time.Time { return now }

	cache.Set("old", []*models.Rule{})
	now = now.Add(45 * time.Second)
	cache.Set("fresh", []*models.Rule{})
	now = now.Add(30 * time.Second)

	assert.Equal(t, 1, cache.CleanupExpired())
	assert.Equal(t, 1, cache.Stats().Size)
}

func TestRuleCache_StartCleanupWorkerStopsOnCancel(t *testing.T) {
	cache := NewRuleCache(10, time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		cache.StartCleanupWorker(ctx, 5*time.Millisecond)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("cleanup worker did not stop")
	}
}

func TestRuleCache_Concurrent(t *testing.T) {
	cache := NewRuleCache(5, time.Minute)
	actions := []string{"a", "b", "c", "d", "e", "f", "g"}

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			action := actions[i%len(actions)]
			cache.Set(action, []*models.Rule{})
			cache.Get(action)
			if i%5 == 0 {
				cache.Invalidate(action)
			}
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, cache.Stats().Size, 5)
}

type countingRuleStore struct {
	mu     sync.Mutex
	calls  int
	rules  []*models.Rule
	err    error
	onLoad func()
}

func (s *countingRuleStore) RulesForAction(ctx context.Context, actionName string) ([]*models.Rule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.onLoad != nil {
		s.onLoad()
	}
	return s.rules, s.err
}

func TestCachedRuleStore(t *testing.T) {
	backing := &countingRuleStore{rules: []*models.Rule{models.NewRule("cancel_order", "always", 2)}}
	store := NewCachedRuleStore(backing, NewRuleCache(10, time.Minute))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		rules, err := store.RulesForAction(ctx, "cancel_order")
		require.NoError(t, err)
		assert.Len(t, rules, 1)
	}
	assert.Equal(t, 1, backing.calls)
}

func TestCachedRuleStore_ErrorsAreNotCached(t *testing.T) {
	backing := &countingRuleStore{err: errors.New("connection refused")}
	store := NewCachedRuleStore(backing, NewRuleCache(10, time.Minute))
	ctx := context.Background()

	_, err := store.RulesForAction(ctx, "cancel_order")
	require.Error(t, err)

	backing.err = nil
	rules, err := store.RulesForAction(ctx, "cancel_order")
	require.NoError(t, err)
	assert.Empty(t, rules)
	assert.Equal(t, 2, backing.calls)
}

func TestRuleCache_SetIfCurrent(t *testing.T) {
	cache := NewRuleCache(10, time.Minute)
	rules := []*models.Rule{models.NewRule("cancel_order", "always", 2)}

	gen := cache.Generation("cancel_order")
	assert.True(t, cache.SetIfCurrent("cancel_order", rules, gen))

	gen = cache.Generation("cancel_order")
	cache.Invalidate("cancel_order")
	assert.False(t, cache.SetIfCurrent("cancel_order", rules, gen))

	gen = cache.Generation("get_weather")
	cache.Clear()
	assert.False(t, cache.SetIfCurrent("get_weather", rules, gen))

	// Other actions are unaffected by an invalidation
	gen = cache.Generation("get_weather")
	cache.Invalidate("cancel_order")
	assert.True(t, cache.SetIfCurrent("get_weather", rules, gen))
}

func TestCachedRuleStore_InvalidationDuringLoad(t *testing.T) {
	cache := NewRuleCache(10, time.Minute)
	backing := &countingRuleStore{rules: []*models.Rule{models.NewRule("cancel_order", "stale", 2)}}
	backing.onLoad = func() {
		// A rule is created while the stale set is in flight
		cache.Invalidate("cancel_order")
	}
	store := NewCachedRuleStore(backing, cache)
	ctx := context.Background()

	rules, err := store.RulesForAction(ctx, "cancel_order")
	require.NoError(t, err)
	assert.Len(t, rules, 1)

	_, ok := cache.Get("cancel_order")
	assert.False(t, ok, "stale rule set must not be cached")

	backing.onLoad = nil
	_, err = store.RulesForAction(ctx, "cancel_order")
	require.NoError(t, err)
	assert.Equal(t, 2, backing.calls)

	_, ok = cache.Get("cancel_order")
	assert.True(t, ok)
}
