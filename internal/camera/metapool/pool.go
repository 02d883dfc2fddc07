// Package metapool correlates asynchronously delivered capture metadata with
// the frames it describes, keyed by sensor timestamp.
package metapool

import (
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/banshee-data/zerolag/internal/camera"
	"github.com/banshee-data/zerolag/internal/monitoring"
)

var (
	// ErrConsumed fails a pop for a timestamp whose future was already taken.
	ErrConsumed = errors.New("metapool: metadata already consumed")
	// ErrEvicted fails a future that aged out of the pool before metadata arrived.
	ErrEvicted = errors.New("metapool: metadata evicted")
	// ErrPoolClosed fails every unresolved future when the pool closes.
	ErrPoolClosed = errors.New("metapool: closed")
)

// DefaultCapacity bounds the number of timestamps tracked when New is given
// a non-positive capacity.
const DefaultCapacity = 64

type entry struct {
	future *camera.Future
	popped bool
}

// Pool maps frame timestamps to metadata futures. Either side may arrive
// first: PopFuture on a timestamp with no metadata yet returns a pending
// future that Put later resolves.
//
// An entry leaves the pool once it has been popped and resolved. The
// timestamp is then remembered in a bounded consumed set so a repeat pop
// still fails with ErrConsumed.
type Pool struct {
	mu        sync.Mutex
	capacity  int
	entries   map[int64]*entry
	order     []int64 // timestamps in insertion order, oldest first
	consumed  map[int64]struct{}
	spent     []int64 // consumed timestamps, oldest first
	closed    bool
	listeners map[string]func(*camera.Metadata)
}

// New creates a pool that tracks at most capacity timestamps.
func New(capacity int) *Pool {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Pool{
		capacity:  capacity,
		entries:   make(map[int64]*entry),
		consumed:  make(map[int64]struct{}),
		listeners: make(map[string]func(*camera.Metadata)),
	}
}

// Put records md for md.Timestamp, resolving any waiting future, then
// notifies subscribers. Put after Close is ignored.
func (p *Pool) Put(md *camera.Metadata) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	if _, ok := p.consumed[md.Timestamp]; ok {
		monitoring.Debugf("[metapool] metadata for consumed ts=%d ignored", md.Timestamp)
	} else {
		e := p.entryLocked(md.Timestamp)
		if !e.future.Complete(md) {
			monitoring.Debugf("[metapool] duplicate metadata for ts=%d ignored", md.Timestamp)
		}
		if e.popped {
			p.consumeLocked(md.Timestamp)
		}
	}
	listeners := make([]func(*camera.Metadata), 0, len(p.listeners))
	for _, fn := range p.listeners {
		listeners = append(listeners, fn)
	}
	p.mu.Unlock()

	for _, fn := range listeners {
		fn(md)
	}
}

// PopFuture removes and returns the metadata future for timestamp. Only the
// first pop for a timestamp gets the real future; later pops get a future
// failed with ErrConsumed. A future popped before its metadata arrives stays
// tracked until Put resolves it or it is evicted.
func (p *Pool) PopFuture(timestamp int64) camera.MetadataFuture {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return camera.FailedFuture(ErrPoolClosed)
	}
	if _, ok := p.consumed[timestamp]; ok {
		return camera.FailedFuture(ErrConsumed)
	}
	e := p.entryLocked(timestamp)
	if e.popped {
		return camera.FailedFuture(ErrConsumed)
	}
	e.popped = true
	select {
	case <-e.future.Done():
		p.consumeLocked(timestamp)
	default:
	}
	return e.future
}

// consumeLocked drops the entry for ts and records ts as consumed, forgetting
// the oldest consumed timestamps beyond capacity.
func (p *Pool) consumeLocked(ts int64) {
	delete(p.entries, ts)
	for i, o := range p.order {
		if o == ts {
			p.order = append(p.order[:i], p.order[i+1:]...)
			break
		}
	}

	p.consumed[ts] = struct{}{}
	p.spent = append(p.spent, ts)
	for len(p.spent) > p.capacity {
		delete(p.consumed, p.spent[0])
		p.spent = p.spent[1:]
	}
}

// entryLocked returns the entry for ts, creating it and evicting the oldest
// entries beyond capacity.
func (p *Pool) entryLocked(ts int64) *entry {
	if e, ok := p.entries[ts]; ok {
		return e
	}
	e := &entry{future: camera.NewFuture()}
	p.entries[ts] = e
	p.order = append(p.order, ts)

	for len(p.entries) > p.capacity {
		oldest := p.order[0]
		p.order = p.order[1:]
		if old, ok := p.entries[oldest]; ok {
			if old.future.Fail(ErrEvicted) {
				monitoring.Debugf("[metapool] evicted unresolved metadata ts=%d", oldest)
			}
			delete(p.entries, oldest)
		}
	}
	return e
}

// Len returns the number of tracked timestamps. Consumed timestamps are not
// counted.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries)
}

// Subscribe registers fn to observe every metadata record passed to Put.
// fn runs on the caller of Put. The returned ID is used to unsubscribe.
func (p *Pool) Subscribe(fn func(*camera.Metadata)) string {
	id := uuid.NewString()
	p.mu.Lock()
	defer p.mu.Unlock()
	p.listeners[id] = fn
	return id
}

// Unsubscribe removes a listener. Unknown IDs are ignored.
func (p *Pool) Unsubscribe(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.listeners, id)
}

// Close fails every unresolved future with ErrPoolClosed.
func (p *Pool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	for _, e := range p.entries {
		e.future.Fail(ErrPoolClosed)
	}
	p.entries = map[int64]*entry{}
	p.order = nil
	p.consumed = map[int64]struct{}{}
	p.spent = nil
}
