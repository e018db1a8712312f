// Package reactor implements a pluggable, single-threaded event-loop
// primitive: register a file descriptor's interests, get a callback run
// when the backend reports it ready. It is the low-level engine the
// transport and server packages register live sockets with; it never
// reads or writes a socket itself.
package reactor

import (
	"errors"
	"sync"
	"sync/atomic"
)

// Interest is a bitmask of the readiness conditions a registration cares
// about.
type Interest uint8

const (
	// Read fires when the fd has data to read or a listener has a pending
	// accept.
	Read Interest = 1 << iota
	// Write fires when the fd can accept a write without blocking.
	Write
	// Error fires when the backend reports an error/hangup condition; it
	// is always delivered regardless of the requested interest set.
	Error
)

// Callback is invoked by the loop when a registered fd becomes ready.
// ready is the subset of the fd's registered interests (plus Error) that
// fired. The callback must not block: it runs on the reactor's own
// goroutine, and a blocking callback stalls every other registration.
type Callback func(fd int, ready Interest)

var (
	// ErrClosed is returned by Loop methods once Stop has completed.
	ErrClosed = errors.New("reactor: loop closed")
	// ErrNotRegistered is returned by Modify/Remove for an unknown fd.
	ErrNotRegistered = errors.New("reactor: fd not registered")
)

// Backend is the platform-specific polling primitive a Loop drives.
// Implementations are not safe for concurrent use except via the Loop,
// which serializes all access onto Run's goroutine.
type Backend interface {
	// Add registers fd with the given interest set.
	Add(fd int, interest Interest) error
	// Modify changes fd's registered interest set.
	Modify(fd int, interest Interest) error
	// Remove unregisters fd. Removing an fd not currently registered is
	// not an error: callers may race a close against a pending event.
	Remove(fd int) error
	// Wait blocks up to timeoutMS milliseconds (negative = forever, zero =
	// non-blocking poll) and appends ready events to dst, returning the
	// extended slice.
	Wait(dst []readyEvent, timeoutMS int) ([]readyEvent, error)
	// Close releases backend resources (epoll/kqueue fd, etc).
	Close() error
}

type readyEvent struct {
	fd    int
	ready Interest
}

type registration struct {
	interest Interest
	cb       Callback
	data     any
}

// Loop is a single reactor instance. Create one per shard/goroutine; the
// concurrency model (spec §5) is one reactor, one owning goroutine —
// Add/Modify/Remove from other goroutines are safe (guarded by a mutex)
// but callbacks always run on the Loop's own goroutine.
type Loop struct {
	backend Backend

	mu   sync.Mutex
	regs map[int]*registration

	stopped  atomic.Bool
	wakeupFD int // self-pipe/eventfd write end, platform specific; 0 if unused
	wake     func() error

	eventsBuf []readyEvent
}

// NewLoop creates a Loop using the best backend for the current platform
// (selected at build time: epoll on linux, kqueue on darwin/bsd, select
// elsewhere; Windows uses a WSAPoll readiness backend, and there is no
// IOCP completion backend).
func NewLoop() (*Loop, error) {
	backend, wakeFn, err := newPlatformBackend()
	if err != nil {
		return nil, err
	}
	return &Loop{
		backend:   backend,
		regs:      make(map[int]*registration),
		wake:      wakeFn,
		eventsBuf: make([]readyEvent, 0, 128),
	}, nil
}

// Add registers fd for the given interests. data is opaque and not used by
// the loop; callers pass it through Callback's closure instead, since Go
// closures make a separate data parameter unnecessary — kept in the
// registration struct only so callers can look it up via Lookup for
// diagnostics.
func (l *Loop) Add(fd int, interest Interest, cb Callback, data any) error {
	if l.stopped.Load() {
		return ErrClosed
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.backend.Add(fd, interest); err != nil {
		return err
	}
	l.regs[fd] = &registration{interest: interest, cb: cb, data: data}
	return nil
}

// Modify changes fd's interest set.
func (l *Loop) Modify(fd int, interest Interest) error {
	if l.stopped.Load() {
		return ErrClosed
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	reg, ok := l.regs[fd]
	if !ok {
		return ErrNotRegistered
	}
	if err := l.backend.Modify(fd, interest); err != nil {
		return err
	}
	reg.interest = interest
	return nil
}

// Remove unregisters fd. Safe to call from within the fd's own callback
// (deferred removal semantics: the backend is told immediately, but any
// event for fd already pulled out of Wait this iteration is dropped
// without being dispatched).
func (l *Loop) Remove(fd int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.regs[fd]; !ok {
		return ErrNotRegistered
	}
	delete(l.regs, fd)
	return l.backend.Remove(fd)
}

// Lookup returns the opaque data associated with fd's registration, if any.
func (l *Loop) Lookup(fd int) (any, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	reg, ok := l.regs[fd]
	if !ok {
		return nil, false
	}
	return reg.data, true
}

// RunOnce polls for ready fds once, waiting up to timeoutMS milliseconds,
// and dispatches callbacks in the order the backend reported them. It
// returns the number of callbacks dispatched.
func (l *Loop) RunOnce(timeoutMS int) (int, error) {
	if l.stopped.Load() {
		return 0, ErrClosed
	}

	l.eventsBuf = l.eventsBuf[:0]
	events, err := l.backend.Wait(l.eventsBuf, timeoutMS)
	if err != nil {
		return 0, err
	}
	l.eventsBuf = events

	dispatched := 0
	for _, ev := range events {
		if l.stopped.Load() {
			break
		}
		l.mu.Lock()
		reg, ok := l.regs[ev.fd]
		l.mu.Unlock()
		if !ok {
			continue // removed between Wait returning and dispatch
		}
		reg.cb(ev.fd, ev.ready)
		dispatched++
	}
	return dispatched, nil
}

// Run drives RunOnce in a loop until Stop is called. It blocks the calling
// goroutine; callers typically run it via `go loop.Run()` and lock that
// goroutine to its OS thread if the backend requires thread affinity
// (none of the backends in this package does).
func (l *Loop) Run() error {
	for !l.stopped.Load() {
		if _, err := l.RunOnce(1000); err != nil {
			if l.stopped.Load() {
				return nil
			}
			return err
		}
	}
	return nil
}

// Stop halts Run/RunOnce and releases the backend. Safe to call from any
// goroutine, any number of times.
func (l *Loop) Stop() error {
	if !l.stopped.CompareAndSwap(false, true) {
		return nil
	}
	if l.wake != nil {
		l.wake()
	}
	return l.backend.Close()
}
