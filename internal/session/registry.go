package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/ashureev/estatepost/internal/workflow"
	"github.com/sourcegraph/conc"
)

const (
	defaultInboxSize = 8
	defaultLockTTL   = 5 * time.Minute
)

// Tracker observes session lifecycle.
type Tracker interface {
	SessionOpened()
	SessionClosed()
}

type entry struct {
	session *Session
	cancel  context.CancelFunc
	wg      conc.WaitGroup
}

// Registry maps client ids to live sessions. All sessions share one engine.
type Registry struct {
	engine    *workflow.Engine
	locker    Locker
	lockTTL   time.Duration
	inboxSize int
	tracker   Tracker

	mu       sync.Mutex
	sessions map[string]*entry
}

// Option configures a Registry.
type Option func(*Registry)

// WithLocker serializes runs per client through l.
func WithLocker(l Locker, ttl time.Duration) Option {
	return func(r *Registry) {
		r.locker = l
		if ttl > 0 {
			r.lockTTL = ttl
		}
	}
}

// WithInboxSize bounds the number of queued messages per session.
func WithInboxSize(n int) Option {
	return func(r *Registry) {
		if n > 0 {
			r.inboxSize = n
		}
	}
}

// WithTracker reports opens and closes to t.
func WithTracker(t Tracker) Option {
	return func(r *Registry) { r.tracker = t }
}

// NewRegistry returns an empty registry over engine.
func NewRegistry(engine *workflow.Engine, opts ...Option) *Registry {
	r := &Registry{
		engine:    engine,
		lockTTL:   defaultLockTTL,
		inboxSize: defaultInboxSize,
		sessions:  make(map[string]*entry),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Open starts a session for clientID that emits to sink. An existing session
// with the same id is cancelled and replaced, and Open waits for its worker to
// exit before the new one starts. The returned release function
// stops the worker, waits for it and removes the entry; it is safe to call
// more than once.
func (r *Registry) Open(ctx context.Context, clientID string, sink workflow.Sink) (*Session, func(), error) {
	state := workflow.NewState(clientID)
	if err := state.Validate(); err != nil {
		return nil, nil, err
	}

	log := slog.Default().With("client_id", clientID)
	s := &Session{
		id:      clientID,
		engine:  r.engine,
		sink:    sink,
		locker:  r.locker,
		lockTTL: r.lockTTL,
		log:     log,
		inbox:   make(chan Message, r.inboxSize),
		done:    make(chan struct{}),
		state:   state,
	}
	runCtx, cancel := context.WithCancel(ctx)
	e := &entry{session: s, cancel: cancel}

	r.mu.Lock()
	prev := r.sessions[clientID]
	r.sessions[clientID] = e
	r.mu.Unlock()

	if prev != nil {
		log.Info("Session replaced")
		prev.cancel()
		prev.wg.Wait()
	}

	e.wg.Go(func() { s.run(runCtx) })
	if r.tracker != nil {
		r.tracker.SessionOpened()
	}
	log.Info("Session opened")

	var once sync.Once
	release := func() {
		once.Do(func() {
			cancel()
			e.wg.Wait()

			r.mu.Lock()
			if current, ok := r.sessions[clientID]; ok && current == e {
				delete(r.sessions, clientID)
			}
			r.mu.Unlock()

			if r.tracker != nil {
				r.tracker.SessionClosed()
			}
			log.Info("Session released")
		})
	}
	return s, release, nil
}

// Get returns the live session for clientID.
func (r *Registry) Get(clientID string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.sessions[clientID]
	if !ok {
		return nil, false
	}
	return e.session, true
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}
