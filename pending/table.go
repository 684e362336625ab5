// Package pending implements the client engine's correlation-id table:
// one entry per in-flight request, removed exactly once by whichever
// side — the reply-poll goroutine or the deadline reaper — observes it
// first. Built on sync.Map, generalized from "one channel per sequence
// number" to a completion plus an optional stream sink, each carrying
// its own deadline.
package pending

import (
	"sync"
	"time"

	"aeronrpc/rpcerrors"
)

// StreamSink receives streaming responses for one correlation id. All
// three methods must be idempotent after the first terminal call — a
// second OnComplete/OnError after the first is a no-op.
type StreamSink interface {
	OnNext(payload []byte)
	OnError(err error)
	OnComplete()
}

// Entry is one in-flight request's bookkeeping. Exactly one of done or
// sink is used for a given entry, depending on whether the call was
// unary or streaming.
type Entry struct {
	RequestID uint64
	Deadline  time.Time

	// done receives the single terminal outcome of a unary call. Buffered
	// (size 1); whichever goroutine completes the entry sends exactly one
	// Result on it and it is never closed.
	done chan Result

	// sink receives every streaming payload plus a terminal signal.  Nil
	// for unary entries.
	sink StreamSink

	completeOnce sync.Once
}

// Result is the terminal outcome of one unary call.
type Result struct {
	Payload []byte
	Err     error
}

// NewUnaryEntry creates an entry whose completion is observed via Wait.
func NewUnaryEntry(requestID uint64, deadline time.Time) *Entry {
	return &Entry{RequestID: requestID, Deadline: deadline, done: make(chan Result, 1)}
}

// NewStreamEntry creates an entry whose payloads and terminal signal are
// delivered to sink.
func NewStreamEntry(requestID uint64, deadline time.Time, sink StreamSink) *Entry {
	return &Entry{RequestID: requestID, Deadline: deadline, sink: sink}
}

// IsStreaming reports whether this entry routes to a StreamSink instead
// of a one-shot Result channel.
func (e *Entry) IsStreaming() bool { return e.sink != nil }

// Wait blocks until the entry's unary completion is delivered. Callers
// must only call Wait on an entry created by NewUnaryEntry.
func (e *Entry) Wait() Result {
	return <-e.done
}

// Done exposes the completion channel directly, for callers that need
// to select on it alongside a context.Context's cancellation. Callers
// must only call Done on an entry created by NewUnaryEntry.
func (e *Entry) Done() <-chan Result {
	return e.done
}

// complete delivers a unary result exactly once; subsequent calls are
// no-ops, satisfying the "at most once" terminal-completion invariant
// even if called racily.
func (e *Entry) complete(r Result) {
	e.completeOnce.Do(func() {
		e.done <- r
	})
}

// deliverNext forwards one streaming payload. Safe to call from any
// worker goroutine; ordering across calls for a single entry is the
// caller's responsibility (the reply-poll goroutine is the sole writer).
func (e *Entry) deliverNext(payload []byte) {
	e.sink.OnNext(payload)
}

func (e *Entry) deliverError(err error) {
	e.completeOnce.Do(func() {
		e.sink.OnError(err)
	})
}

func (e *Entry) deliverComplete() {
	e.completeOnce.Do(func() {
		e.sink.OnComplete()
	})
}

// Table is the concurrent correlation_id -> Entry map backing the
// client engine's in-flight request bookkeeping.
type Table struct {
	m sync.Map // map[uint64]*Entry
}

// NewTable builds an empty table.
func NewTable() *Table {
	return &Table{}
}

// Insert adds e keyed by e.RequestID. Returns rpcerrors.ErrDuplicateID
// if an entry with that id is already present.
func (t *Table) Insert(e *Entry) error {
	if _, loaded := t.m.LoadOrStore(e.RequestID, e); loaded {
		return rpcerrors.ErrDuplicateID
	}
	return nil
}

// Remove atomically removes and returns the entry for id, or nil if
// absent — already removed by a race with the reaper or a prior
// delivery of a terminal frame.
func (t *Table) Remove(id uint64) *Entry {
	v, ok := t.m.LoadAndDelete(id)
	if !ok {
		return nil
	}
	return v.(*Entry)
}

// Peek returns the entry for id without removing it — used to route
// non-terminal streaming RESPONSE frames, which must not remove the
// entry.
func (t *Table) Peek(id uint64) *Entry {
	v, ok := t.m.Load(id)
	if !ok {
		return nil
	}
	return v.(*Entry)
}

// DeliverNext routes a streaming payload to the entry for id, if still
// present. Returns false if the entry was already removed (stale
// frame), so a stale reply is dropped rather than misrouted.
func (t *Table) DeliverNext(id uint64, payload []byte) bool {
	e := t.Peek(id)
	if e == nil {
		return false
	}
	e.deliverNext(payload)
	return true
}

// CompleteUnary removes the entry for id and delivers r to it. Returns
// false if no entry was present, meaning the caller must drop its
// payload without signalling — completion happens at most once per
// entry.
func (t *Table) CompleteUnary(id uint64, r Result) bool {
	e := t.Remove(id)
	if e == nil {
		return false
	}
	e.complete(r)
	return true
}

// CompleteStreamError removes the entry for id and signals OnError.
func (t *Table) CompleteStreamError(id uint64, err error) bool {
	e := t.Remove(id)
	if e == nil {
		return false
	}
	e.deliverError(err)
	return true
}

// CompleteStreamDone removes the entry for id and signals OnComplete.
func (t *Table) CompleteStreamDone(id uint64) bool {
	e := t.Remove(id)
	if e == nil {
		return false
	}
	e.deliverComplete()
	return true
}

// SweepExpired removes and completes every entry whose deadline has
// passed as of now, completing each with Timeout — unary entries via
// their Result channel, streaming entries via OnError. Completion
// happens outside of any table-wide lock: sync.Map has none, and each
// entry's own completeOnce makes this safe against a concurrent
// reply-poll delivery racing the same entry.
func (t *Table) SweepExpired(now time.Time) int {
	var expired []*Entry
	t.m.Range(func(key, value any) bool {
		e := value.(*Entry)
		if !e.Deadline.After(now) {
			expired = append(expired, e)
		}
		return true
	})

	swept := 0
	for _, e := range expired {
		if t.Remove(e.RequestID) == nil {
			continue // raced with the reply-poll goroutine; it already completed this entry
		}
		if e.IsStreaming() {
			e.deliverError(rpcerrors.ErrReplyTimeout)
		} else {
			e.complete(Result{Err: rpcerrors.ErrReplyTimeout})
		}
		swept++
	}
	return swept
}

// DrainCancelled removes every remaining entry and completes it with
// Cancelled — called on client Close.
func (t *Table) DrainCancelled() int {
	var all []*Entry
	t.m.Range(func(key, value any) bool {
		all = append(all, value.(*Entry))
		return true
	})

	drained := 0
	for _, e := range all {
		if t.Remove(e.RequestID) == nil {
			continue
		}
		if e.IsStreaming() {
			e.deliverError(rpcerrors.ErrCancelled)
		} else {
			e.complete(Result{Err: rpcerrors.ErrCancelled})
		}
		drained++
	}
	return drained
}

// Len returns the number of entries currently pending, for metrics and
// tests.
func (t *Table) Len() int {
	n := 0
	t.m.Range(func(key, value any) bool {
		n++
		return true
	})
	return n
}
