// Package debounce collapses bursts of writes per key into one trailing call.
package debounce

import (
	"sync"
	"time"
)

// Debouncer holds at most one pending value per key. Each Schedule restarts
// the key's timer; when it fires, fn runs once with the latest value. Keys are
// independent, so flushes of different keys may run concurrently. Flushes of
// the same key never overlap, and a value being flushed stays visible through
// Pending and Update until fn returns.
type Debouncer[V any] struct {
	delay time.Duration
	fn    func(key string, value V)

	mu      sync.Mutex
	entries map[string]*entry[V]
	closed  bool
}

type entry[V any] struct {
	value    V
	hasValue bool
	timer    *time.Timer
	gen      uint64
	due      bool

	inflight V
	flushing bool
	done     chan struct{}
}

func New[V any](delay time.Duration, fn func(key string, value V)) *Debouncer[V] {
	return &Debouncer[V]{
		delay:   delay,
		fn:      fn,
		entries: map[string]*entry[V]{},
	}
}

// Schedule replaces the pending value for key and restarts its timer.
func (d *Debouncer[V]) Schedule(key string, value V) {
	d.Update(key, func(V, bool) V { return value })
}

// Update derives the new pending value from the current one under the lock,
// so concurrent callers never lose each other's changes. The current value
// is the pending one, or the one being flushed when nothing is pending.
func (d *Debouncer[V]) Update(key string, next func(current V, ok bool) V) V {
	d.mu.Lock()
	defer d.mu.Unlock()

	e, ok := d.entries[key]
	if !ok {
		e = &entry[V]{}
		d.entries[key] = e
	}
	current, ok := e.current()
	if e.timer != nil {
		e.timer.Stop()
	}
	e.value = next(current, ok)
	e.hasValue = true
	e.due = false
	value := e.value

	if d.closed {
		if e.flushing {
			e.due = true
			d.wait(e)
		} else {
			d.drain(key, e)
		}
		return value
	}
	e.gen++
	gen := e.gen
	e.timer = time.AfterFunc(d.delay, func() { d.fire(key, gen) })
	return value
}

func (e *entry[V]) current() (V, bool) {
	switch {
	case e.hasValue:
		return e.value, true
	case e.flushing:
		return e.inflight, true
	default:
		var zero V
		return zero, false
	}
}

// Pending returns the value waiting to be flushed for key, or the value
// currently being written.
func (d *Debouncer[V]) Pending(key string) (V, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	e, ok := d.entries[key]
	if !ok {
		var zero V
		return zero, false
	}
	return e.current()
}

// Len is the number of keys with a value waiting for its timer.
func (d *Debouncer[V]) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, e := range d.entries {
		if e.hasValue {
			n++
		}
	}
	return n
}

func (d *Debouncer[V]) fire(key string, gen uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	e, ok := d.entries[key]
	if !ok || !e.hasValue || e.gen != gen {
		return
	}
	if e.flushing {
		e.due = true
		return
	}
	d.drain(key, e)
}

// drain writes the pending value of e and keeps writing while values become
// due during the write. The caller holds d.mu; it is released around fn.
func (d *Debouncer[V]) drain(key string, e *entry[V]) {
	e.flushing = true
	e.done = make(chan struct{})
	for {
		value := e.value
		var zero V
		e.value = zero
		e.hasValue = false
		e.due = false
		if e.timer != nil {
			e.timer.Stop()
		}
		e.inflight = value

		d.mu.Unlock()
		d.fn(key, value)
		d.mu.Lock()

		if !e.hasValue || !e.due {
			break
		}
	}
	var zero V
	e.inflight = zero
	e.flushing = false
	close(e.done)
	if !e.hasValue && d.entries[key] == e {
		delete(d.entries, key)
	}
}

// wait blocks until the flush running for e has finished. The caller holds
// d.mu; it is released while waiting.
func (d *Debouncer[V]) wait(e *entry[V]) {
	done := e.done
	d.mu.Unlock()
	<-done
	d.mu.Lock()
}

// Flush runs the pending write for key now and reports whether there was
// one. A write already in progress for key is waited for either way.
func (d *Debouncer[V]) Flush(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	e, ok := d.entries[key]
	if !ok {
		return false
	}
	had := e.hasValue
	switch {
	case e.flushing:
		e.due = had
		d.wait(e)
	case had:
		d.drain(key, e)
	}
	return had
}

// Cancel drops the pending value for key without flushing it, then waits
// for a write already in progress, so nothing for key lands afterwards.
func (d *Debouncer[V]) Cancel(key string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	e, ok := d.entries[key]
	if !ok {
		return
	}
	if e.timer != nil {
		e.timer.Stop()
	}
	var zero V
	e.value = zero
	e.hasValue = false
	e.due = false
	if e.flushing {
		d.wait(e)
		return
	}
	delete(d.entries, key)
}

// FlushAll runs every pending write, waits for in-flight ones and switches
// the debouncer to synchronous mode. Used on shutdown.
func (d *Debouncer[V]) FlushAll() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true

	keys := make([]string, 0, len(d.entries))
	for key := range d.entries {
		keys = append(keys, key)
	}
	for _, key := range keys {
		e, ok := d.entries[key]
		if !ok {
			continue
		}
		switch {
		case e.flushing:
			e.due = e.due || e.hasValue
			d.wait(e)
		case e.hasValue:
			d.drain(key, e)
		}
	}
}
