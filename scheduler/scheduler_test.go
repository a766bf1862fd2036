package scheduler

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"commute-annotator/cache"
	"commute-annotator/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu      sync.Mutex
	results map[string]types.CommuteResult
	order   []string
}

func newRecorder() *recorder {
	return &recorder{results: make(map[string]types.CommuteResult)}
}

func (r *recorder) onResult(item Item, res types.CommuteResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results[item.CardID] = res
	r.order = append(r.order, item.CardID)
}

func (r *recorder) get(id string) (types.CommuteResult, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	res, ok := r.results[id]
	return res, ok
}

func success(text string) types.CommuteResult {
	return types.CommuteResult{Status: types.StatusSuccess, DurationText: text}
}

func TestScheduler_DeduplicatesInFlightAddress(t *testing.T) {
	release := make(chan struct{})
	var calls atomic.Int32
	resolve := func(ctx context.Context, address string) types.CommuteResult {
		calls.Add(1)
		<-release
		return success("25 min")
	}
	rec := newRecorder()
	s := New(context.Background(), 3, cache.New(100, time.Hour), resolve, rec.onResult)

	s.Submit(Item{CardID: "c0", Address: "150 East 44th Street, New York, NY"})
	s.Submit(Item{CardID: "c1", Address: "150 East 44th Street, New York, NY"})

	assert.True(t, s.InFlight("150 East 44th Street, New York, NY"))
	assert.Equal(t, 1, s.Active(), "duplicate does not take a slot")

	close(release)
	s.Wait()

	assert.Equal(t, int32(1), calls.Load())
	r0, ok0 := rec.get("c0")
	r1, ok1 := rec.get("c1")
	require.True(t, ok0)
	require.True(t, ok1)
	assert.Equal(t, r0, r1)
	assert.Equal(t, "25 min", r1.DurationText)
	assert.False(t, s.InFlight("150 East 44th Street, New York, NY"))
}

func TestScheduler_DuplicateBehindFullQueueUsesCache(t *testing.T) {
	var calls atomic.Int32
	resolve := func(ctx context.Context, address string) types.CommuteResult {
		calls.Add(1)
		return success("10 min")
	}
	rec := newRecorder()
	s := New(context.Background(), 1, cache.New(100, time.Hour), resolve, rec.onResult)

	s.Submit(Item{CardID: "c0", Address: "1 Main St"})
	s.Wait()
	s.Submit(Item{CardID: "c1", Address: "1 Main St"})
	s.Wait()

	assert.Equal(t, int32(1), calls.Load())
	_, ok := rec.get("c1")
	assert.True(t, ok)
}

func TestScheduler_RespectsConcurrencyBound(t *testing.T) {
	var current, peak atomic.Int32
	resolve := func(ctx context.Context, address string) types.CommuteResult {
		n := current.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		current.Add(-1)
		return success("5 min")
	}
	rec := newRecorder()
	s := New(context.Background(), 3, cache.New(100, time.Hour), resolve, rec.onResult)

	for i := 0; i < 20; i++ {
		s.Submit(Item{CardID: fmt.Sprintf("c%d", i), Address: fmt.Sprintf("%d Broadway", i+1)})
		assert.LessOrEqual(t, s.Active(), 3)
	}
	s.Wait()

	assert.LessOrEqual(t, peak.Load(), int32(3))
	assert.Equal(t, int32(3), peak.Load(), "slots are filled greedily")
	assert.Len(t, rec.order, 20)
	assert.Equal(t, 0, s.Pending())
	assert.Equal(t, 0, s.Active())
}

func TestScheduler_DispatchesFIFO(t *testing.T) {
	var mu sync.Mutex
	var started []string
	resolve := func(ctx context.Context, address string) types.CommuteResult {
		mu.Lock()
		started = append(started, address)
		mu.Unlock()
		return success("1 min")
	}
	s := New(context.Background(), 1, nil, resolve, func(Item, types.CommuteResult) {})

	// Hold the only slot so the rest queue up in order.
	block := make(chan struct{})
	s.resolve = func(ctx context.Context, address string) types.CommuteResult {
		if address == "first" {
			<-block
		}
		return resolve(ctx, address)
	}
	s.Submit(Item{CardID: "0", Address: "first"})
	for _, a := range []string{"a", "b", "c"} {
		s.Submit(Item{CardID: a, Address: a})
	}
	assert.Equal(t, 3, s.Pending())

	close(block)
	s.Wait()

	assert.Equal(t, []string{"first", "a", "b", "c"}, started)
}

func TestScheduler_FailureDoesNotBlockSiblings(t *testing.T) {
	resolve := func(ctx context.Context, address string) types.CommuteResult {
		if address == "bad" {
			return types.Failure(types.KindTransient, "Could not calculate commute")
		}
		return success("7 min")
	}
	rec := newRecorder()
	c := cache.New(100, time.Hour)
	s := New(context.Background(), 1, c, resolve, rec.onResult)

	s.Submit(Item{CardID: "c0", Address: "bad"})
	s.Submit(Item{CardID: "c1", Address: "good"})
	s.Wait()

	r0, _ := rec.get("c0")
	r1, _ := rec.get("c1")
	assert.Equal(t, types.StatusFailure, r0.Status)
	assert.True(t, r1.OK())
	assert.False(t, c.Has("bad"), "transient failures are not cached")
	assert.True(t, c.Has("good"))
}

func TestScheduler_ResetDropsQueue(t *testing.T) {
	block := make(chan struct{})
	resolve := func(ctx context.Context, address string) types.CommuteResult {
		<-block
		return success("3 min")
	}
	rec := newRecorder()
	s := New(context.Background(), 1, nil, resolve, rec.onResult)

	s.Submit(Item{CardID: "c0", Address: "one"})
	s.Submit(Item{CardID: "c1", Address: "two"})
	s.Submit(Item{CardID: "c2", Address: "three"})
	require.Equal(t, 2, s.Pending())

	s.Reset()
	assert.Equal(t, 0, s.Pending())
	assert.Equal(t, 0, s.Active())

	close(block)
	s.Wait()

	_, ok := rec.get("c0")
	assert.True(t, ok, "in-flight resolution still completes")
	_, ok = rec.get("c1")
	assert.False(t, ok)
	assert.Equal(t, 0, s.Active())
}

func TestScheduler_ResetDetachesInFlightResolution(t *testing.T) {
	release := make(chan struct{})
	var calls atomic.Int32
	destination := atomic.Value{}
	destination.Store("old office")
	resolve := func(ctx context.Context, address string) types.CommuteResult {
		calls.Add(1)
		dest := destination.Load().(string)
		if dest == "old office" {
			<-release
		}
		return success(dest)
	}
	rec := newRecorder()
	c := cache.New(100, time.Hour)
	s := New(context.Background(), 3, c, resolve, rec.onResult)

	s.Submit(Item{Session: "old", CardID: "c0", Address: "1 Main St"})
	require.True(t, s.InFlight("1 Main St"))

	s.Reset()
	c.Clear()
	destination.Store("new office")
	assert.False(t, s.InFlight("1 Main St"))

	s.Submit(Item{Session: "new", CardID: "c1", Address: "1 Main St"})
	require.Eventually(t, func() bool {
		_, ok := rec.get("c1")
		return ok
	}, time.Second, time.Millisecond)

	close(release)
	s.Wait()

	assert.Equal(t, int32(2), calls.Load(), "the new session issues its own resolution")
	r0, _ := rec.get("c0")
	r1, _ := rec.get("c1")
	assert.Equal(t, "old office", r0.DurationText)
	assert.Equal(t, "new office", r1.DurationText)

	cached, ok := c.Get("1 Main St")
	require.True(t, ok)
	assert.Equal(t, "new office", cached.DurationText, "a detached resolution does not write the cache")
	assert.Equal(t, 0, s.Active())
}
