// Package renewer schedules the pre-expiry cache refresh queries RFC 6762
// §5.2 recommends for a cached record as its TTL approaches zero, and the
// synthetic "goodbye" expiry that follows when none of those refreshes
// succeed (spec component ResourceRenewer).
package renewer

import (
	"container/heap"
	"sync"
	"time"

	"github.com/fuchsia-oss/mdnscore/internal/wire"
)

// renewalFractions are the points in a record's TTL lifetime, expressed as
// a fraction of TTL elapsed, at which a fresh query is attempted before the
// record is allowed to expire: 80%, 85%, 90%, 95% (RFC 6762 §5.2 recommends
// "at 80-90-95% of the TTL, or other spacing of the querier's choosing";
// this core uses a fixed 0.80 first attempt with four attempts spaced 0.05
// apart).
var renewalFractions = [...]float64{0.80, 0.85, 0.90, 0.95}

// maxAttempts is len(renewalFractions): after this many renewal attempts
// with no refresh observed, the record is expired synthetically.
const maxAttempts = len(renewalFractions)

// Event describes one renewal callback: either "try to refresh this record
// now" (Expired == false) or "this record's TTL has fully elapsed with no
// refresh" (Expired == true), at which point the caller should synthesize
// a ttl=0 removal for Key.
type Event struct {
	Key      wire.Key
	Attempt  int
	Expired  bool
	CreateAt time.Time
}

type entry struct {
	key        wire.Key
	ttl        uint32
	createdAt  time.Time
	generation uint64
	attempt    int
	fireAt     time.Time
	index      int
}

type renewHeap []*entry

func (h renewHeap) Len() int            { return len(h) }
func (h renewHeap) Less(i, j int) bool  { return h[i].fireAt.Before(h[j].fireAt) }
func (h renewHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i]; h[i].index = i; h[j].index = j }
func (h *renewHeap) Push(x interface{}) {
	e := x.(*entry)
	e.index = len(*h)
	*h = append(*h, e)
}
func (h *renewHeap) Pop() interface{} {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*h = old[:n-1]
	return e
}

// ResourceRenewer tracks a set of (name,type)-keyed records and emits Events
// when a renewal attempt or a terminal expiry is due. It holds no per-record
// data beyond the schedule itself; the caller is responsible for actually
// re-querying or re-announcing the record.
type ResourceRenewer struct {
	mu    sync.Mutex
	items map[wire.Key]*entry
	h     renewHeap
	now   func() time.Time
}

// New creates a ResourceRenewer. now defaults to time.Now; tests may supply
// a manual clock to drive deterministic schedules.
func New(now func() time.Time) *ResourceRenewer {
	if now == nil {
		now = time.Now
	}
	return &ResourceRenewer{
		items: make(map[wire.Key]*entry),
		now:   now,
	}
}

// Track begins or restarts the renewal schedule for key, given a TTL
// observed at createdAt. Calling Track again for an already-tracked key
// (e.g. because a fresh record for it just arrived) resets the schedule
// and invalidates any previously-scheduled events for the old generation.
func (r *ResourceRenewer) Track(key wire.Key, ttl uint32, createdAt time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.items[key]
	if !ok {
		e = &entry{key: key}
		r.items[key] = e
	}
	e.generation++
	e.ttl = ttl
	e.createdAt = createdAt
	e.attempt = 0
	e.fireAt = createdAt.Add(time.Duration(renewalFractions[0] * float64(ttl) * float64(time.Second)))
	heap.Push(&r.h, cloneForHeap(e))
}

// cloneForHeap copies the entry's current generation into a fresh heap node.
// Stale nodes left behind by a Track() reset are filtered out in Poll by
// comparing generations against the live map entry.
func cloneForHeap(e *entry) *entry {
	return &entry{
		key:        e.key,
		ttl:        e.ttl,
		createdAt:  e.createdAt,
		generation: e.generation,
		attempt:    e.attempt,
		fireAt:     e.fireAt,
	}
}

// Forget stops tracking key. Any heap nodes already scheduled for it become
// stale and are dropped by Poll.
func (r *ResourceRenewer) Forget(key wire.Key) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.items[key]; ok {
		e.generation++ // orphan any pending heap nodes
		delete(r.items, key)
	}
}

// NextDeadline reports the time of the next scheduled event, if any. The
// caller (InstanceRequestor) uses this to arm its renewal timer.
func (r *ResourceRenewer) NextDeadline() (time.Time, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.h.Len() == 0 {
		return time.Time{}, false
	}
	return r.h[0].fireAt, true
}

// Poll pops and returns every event due at or before now, advancing each
// key's schedule: a non-terminal event reschedules the next fraction, the
// final attempt's failure path schedules a terminal Expired event at the
// record's full TTL, and the Expired event itself ends tracking for the
// key.
func (r *ResourceRenewer) Poll(now time.Time) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()

	var events []Event
	for r.h.Len() > 0 && !r.h[0].fireAt.After(now) {
		node := heap.Pop(&r.h).(*entry)

		live, ok := r.items[node.key]
		if !ok || live.generation != node.generation {
			continue // superseded by a later Track() or Forget()
		}

		if node.attempt < maxAttempts {
			events = append(events, Event{Key: node.key, Attempt: node.attempt + 1, CreateAt: node.createdAt})
			live.attempt = node.attempt + 1
			if live.attempt < maxAttempts {
				live.fireAt = node.createdAt.Add(time.Duration(renewalFractions[live.attempt] * float64(node.ttl) * float64(time.Second)))
			} else {
				live.fireAt = node.createdAt.Add(time.Duration(node.ttl) * time.Second)
			}
			heap.Push(&r.h, cloneForHeap(live))
		} else {
			events = append(events, Event{Key: node.key, Expired: true, CreateAt: node.createdAt})
			delete(r.items, node.key)
		}
	}
	return events
}

// Len reports how many keys are currently tracked.
func (r *ResourceRenewer) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.items)
}
