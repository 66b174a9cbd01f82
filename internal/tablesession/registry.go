package tablesession

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/susu3304/tablesplit/internal/hub"
	"golang.org/x/sync/singleflight"
)

// Registry maps session ids to live actors, loading them from the store on
// first use and evicting them once their hub has been empty for the grace
// period.
type Registry struct {
	store Store
	opts  Options
	grace time.Duration
	now   func() time.Time

	mu     sync.Mutex
	actors map[string]*Actor
	group  singleflight.Group

	interval time.Duration
	ticker   *time.Ticker
	stopChan chan struct{}
	stopOnce sync.Once
}

func NewRegistry(store Store, opts Options, grace time.Duration) *Registry {
	interval := grace / 2
	if interval < time.Second {
		interval = time.Second
	}
	return &Registry{
		store:    store,
		opts:     opts,
		grace:    grace,
		now:      time.Now,
		actors:   make(map[string]*Actor),
		interval: interval,
		stopChan: make(chan struct{}),
	}
}

// Lookup returns the live actor for sessionID without loading it.
func (r *Registry) Lookup(sessionID string) *Actor {
	r.mu.Lock()
	defer r.mu.Unlock()
	a := r.actors[sessionID]
	if a == nil || a.Stopped() {
		return nil
	}
	return a
}

// Get returns the actor for sessionID, loading the session if no live actor
// exists. Concurrent loads of the same session are collapsed into one.
func (r *Registry) Get(ctx context.Context, sessionID string) (*Actor, error) {
	if a := r.Lookup(sessionID); a != nil {
		return a, nil
	}

	// The load outlives the caller that started it, since other callers may
	// be waiting on the same result.
	ch := r.group.DoChan(sessionID, func() (any, error) {
		if a := r.Lookup(sessionID); a != nil {
			return a, nil
		}
		loadCtx, cancel := context.WithTimeout(context.Background(), r.opts.withDefaults().PersistTimeout)
		defer cancel()
		snap, err := r.store.LoadSession(loadCtx, sessionID)
		if err != nil {
			return nil, err
		}
		a := newActor(snap, r.store, r.opts)

		r.mu.Lock()
		r.actors[sessionID] = a
		r.mu.Unlock()
		log.Printf("registry: session %s loaded", sessionID)
		return a, nil
	})

	var res singleflight.Result
	select {
	case res = <-ch:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	v, err := res.Val, res.Err
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, persistenceError("load session", err)
	}
	return v.(*Actor), nil
}

// Connect registers c with the session's hub. Registration happens under the
// registry lock so the sweeper never evicts an actor that just gained a
// connection.
func (r *Registry) Connect(ctx context.Context, sessionID string, c *hub.Client) (*Actor, error) {
	for attempt := 0; attempt < 3; attempt++ {
		a, err := r.Get(ctx, sessionID)
		if err != nil {
			return nil, err
		}
		r.mu.Lock()
		if r.actors[sessionID] == a && !a.Stopped() {
			a.hub.Register(c)
			r.mu.Unlock()
			return a, nil
		}
		r.mu.Unlock()
	}
	return nil, ErrActorStopped
}

func (r *Registry) Start() {
	if r == nil {
		return
	}
	r.ticker = time.NewTicker(r.interval)
	go r.loop()
}

// Stop halts the sweeper and every live actor.
func (r *Registry) Stop() {
	if r == nil {
		return
	}
	r.stopOnce.Do(func() {
		close(r.stopChan)
		if r.ticker != nil {
			r.ticker.Stop()
		}
	})

	r.mu.Lock()
	defer r.mu.Unlock()
	for id, a := range r.actors {
		a.Stop()
		delete(r.actors, id)
	}
}

func (r *Registry) loop() {
	for {
		select {
		case <-r.ticker.C:
			r.sweep(r.now())
		case <-r.stopChan:
			return
		}
	}
}

// sweep drops stopped actors and stops idle ones.
func (r *Registry) sweep(now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, a := range r.actors {
		if a.Stopped() {
			log.Printf("registry: session %s actor stopped, discarding", id)
			delete(r.actors, id)
			continue
		}
		since, empty := a.hub.EmptySince()
		if empty && now.Sub(since) >= r.grace {
			a.Stop()
			delete(r.actors, id)
			log.Printf("registry: session %s evicted after idle period", id)
		}
	}
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.actors)
}

// State returns the live session_state when the session is loaded and reads
// the store otherwise, without starting an actor.
func (r *Registry) State(ctx context.Context, sessionID string) (SessionStateEvent, error) {
	v, err := r.view(ctx, sessionID, GetState{}, func(s *state) any { return s.snapshotEvent() })
	if err != nil {
		return SessionStateEvent{}, err
	}
	return v.(SessionStateEvent), nil
}

// Summary is the read-only counterpart of RequestSummary.
func (r *Registry) Summary(ctx context.Context, sessionID string) (SummaryUpdatedEvent, error) {
	v, err := r.view(ctx, sessionID, GetSummary{}, func(s *state) any { return summaryEvent(s.summary()) })
	if err != nil {
		return SummaryUpdatedEvent{}, err
	}
	return v.(SummaryUpdatedEvent), nil
}

func (r *Registry) view(ctx context.Context, sessionID string, cmd Command, fromStore func(*state) any) (any, error) {
	if a := r.Lookup(sessionID); a != nil {
		v, err := a.Do(ctx, cmd)
		if !errors.Is(err, ErrActorStopped) {
			return v, err
		}
	}
	snap, err := r.store.LoadSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return fromStore(newState(snap)), nil
}
