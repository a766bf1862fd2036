// Package scheduler bounds the number of outstanding commute resolutions on a
// search-results page and collapses duplicate requests for the same address.
package scheduler

import (
	"context"
	"sync"

	"commute-annotator/cache"
	"commute-annotator/internal/types"
	"commute-annotator/metrics"
)

// Item is one card waiting for its address to be resolved
type Item struct {
	Session string
	CardID  string
	Address string
}

// ResolveFunc performs one distinct address resolution, retries included
type ResolveFunc func(ctx context.Context, address string) types.CommuteResult

// ResultFunc receives the outcome for an item. It is called from the goroutine
// that ran the resolution.
type ResultFunc func(item Item, result types.CommuteResult)

// Scheduler dispatches queued items FIFO with at most limit resolutions in
// flight. Items whose address is already being resolved wait for that
// resolution instead of issuing a duplicate call.
type Scheduler struct {
	mu         sync.Mutex
	ctx        context.Context
	limit      int
	queue      []Item
	active     int
	generation uint64
	pending    map[string]*flight

	resolve  ResolveFunc
	onResult ResultFunc
	cache    *cache.Cache
	wg       sync.WaitGroup
}

// flight is an outstanding resolution and the items waiting on it
type flight struct {
	waiters []Item
}

type delivery struct {
	item   Item
	result types.CommuteResult
}

// New creates a scheduler. Resolutions run under ctx; results are written to
// c before onResult is called.
func New(ctx context.Context, limit int, c *cache.Cache, resolve ResolveFunc, onResult ResultFunc) *Scheduler {
	if limit < 1 {
		limit = 1
	}
	return &Scheduler{
		ctx:      ctx,
		limit:    limit,
		cache:    c,
		resolve:  resolve,
		onResult: onResult,
		pending:  make(map[string]*flight),
	}
}

// Submit enqueues item and dispatches as many queued items as free slots allow
func (s *Scheduler) Submit(item Item) {
	s.mu.Lock()
	if f, ok := s.pending[item.Address]; ok {
		f.waiters = append(f.waiters, item)
		s.mu.Unlock()
		return
	}
	s.queue = append(s.queue, item)
	metrics.QueueDepth.Set(float64(len(s.queue)))
	s.mu.Unlock()

	s.dispatch()
}

// Reset drops queued items, frees every slot and detaches resolutions already
// in flight. Those keep running and deliver to their own waiters, but later
// submissions do not join them and their results are not cached.
func (s *Scheduler) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queue = nil
	s.active = 0
	s.generation++
	s.pending = make(map[string]*flight)
	metrics.QueueDepth.Set(0)
}

// Pending returns the number of queued items not yet dispatched
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// Active returns the number of occupied slots
func (s *Scheduler) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// InFlight reports whether a resolution for address is outstanding
func (s *Scheduler) InFlight(address string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.pending[address]
	return ok
}

// Wait blocks until every dispatched item has been delivered
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

func (s *Scheduler) dispatch() {
	var hits []delivery

	s.mu.Lock()
	for len(s.queue) > 0 {
		item := s.queue[0]

		if f, ok := s.pending[item.Address]; ok {
			s.queue = s.queue[1:]
			f.waiters = append(f.waiters, item)
			continue
		}
		// A card queued behind a duplicate may find its answer already cached.
		if s.cache != nil {
			if res, ok := s.cache.Get(item.Address); ok {
				s.queue = s.queue[1:]
				hits = append(hits, delivery{item, res})
				continue
			}
		}
		if s.active >= s.limit {
			break
		}

		s.queue = s.queue[1:]
		f := &flight{waiters: []Item{item}}
		s.pending[item.Address] = f
		s.active++
		s.wg.Add(1)
		go s.run(item.Address, f, s.generation)
	}
	metrics.QueueDepth.Set(float64(len(s.queue)))
	s.mu.Unlock()

	for _, h := range hits {
		s.onResult(h.item, h.result)
	}
}

func (s *Scheduler) run(address string, f *flight, generation uint64) {
	defer s.wg.Done()

	metrics.InFlight.Inc()
	res := s.resolve(s.ctx, address)
	metrics.InFlight.Dec()

	s.mu.Lock()
	if generation == s.generation {
		if s.cache != nil && Cacheable(res) {
			s.cache.Set(address, res)
		}
		s.active--
	}
	if s.pending[address] == f {
		delete(s.pending, address)
	}
	waiters := f.waiters
	s.mu.Unlock()

	for _, w := range waiters {
		s.onResult(w, res)
	}
	s.dispatch()
}

// Cacheable reports whether a result should be remembered. Transient failures
// are not, so the next visit tries again.
func Cacheable(res types.CommuteResult) bool {
	return res.OK() || (res.Status == types.StatusFailure && res.Kind == types.KindPermanent)
}
