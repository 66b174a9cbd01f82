package tablesession

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/susu3304/tablesplit/internal/hub"
)

func newTestRegistry(t *testing.T, store *fakeStore) *Registry {
	t.Helper()
	r := NewRegistry(store, testOptions(), 30*time.Second)
	t.Cleanup(r.Stop)
	return r
}

func TestRegistryLoadsOnce(t *testing.T) {
	store := newFakeStore(100)
	r := newTestRegistry(t, store)

	var wg sync.WaitGroup
	actors := make([]*Actor, 10)
	for i := range actors {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			a, err := r.Get(context.Background(), "s1")
			assert.NoError(t, err)
			actors[i] = a
		}(i)
	}
	wg.Wait()

	for _, a := range actors {
		assert.Same(t, actors[0], a)
	}
	store.mu.Lock()
	assert.Equal(t, 1, store.loads)
	store.mu.Unlock()
}

func TestRegistryUnknownSession(t *testing.T) {
	r := newTestRegistry(t, newFakeStore(100))
	_, err := r.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.Equal(t, 0, r.Len())
}

func TestRegistrySweep(t *testing.T) {
	store := newFakeStore(100)
	r := newTestRegistry(t, store)

	idle, err := r.Get(context.Background(), "s1")
	require.NoError(t, err)

	r.sweep(time.Now())
	assert.Same(t, idle, r.Lookup("s1"), "within grace period")

	r.sweep(time.Now().Add(time.Minute))
	assert.Nil(t, r.Lookup("s1"))
	require.Eventually(t, idle.Stopped, 2*time.Second, 10*time.Millisecond)

	c := hub.NewClient(8)
	busy, err := r.Connect(context.Background(), "s1", c)
	require.NoError(t, err)
	assert.NotSame(t, idle, busy)

	r.sweep(time.Now().Add(time.Hour))
	assert.Same(t, busy, r.Lookup("s1"), "connected sessions stay live")
}

func TestRegistryReloadsAfterPanic(t *testing.T) {
	store := newFakeStore(100).withParticipants("p1")
	r := newTestRegistry(t, store)

	first, err := r.Get(context.Background(), "s1")
	require.NoError(t, err)

	store.mu.Lock()
	store.panicOnApply = true
	store.mu.Unlock()
	_, err = do(t, first, AssignItem{OrderItemID: "item-1", CreditorID: "p1"})
	assert.ErrorIs(t, err, ErrActorStopped)

	store.mu.Lock()
	store.panicOnApply = false
	store.mu.Unlock()

	second, err := r.Get(context.Background(), "s1")
	require.NoError(t, err)
	assert.NotSame(t, first, second)

	_, err = do(t, second, AssignItem{OrderItemID: "item-1", CreditorID: "p1"})
	assert.NoError(t, err)
}

func TestRegistryStateWithoutActor(t *testing.T) {
	store := newFakeStore(1000).withParticipants("p1")
	store.snap.Assignments = []Assignment{{ID: "a1", OrderItemID: "item-1", CreditorID: "p1", AssignedAmount: 1000}}
	r := newTestRegistry(t, store)

	st, err := r.State(context.Background(), "s1")
	require.NoError(t, err)
	assert.Len(t, st.Assignments, 1)
	assert.EqualValues(t, 1000, st.Session.TotalAmount)
	assert.Equal(t, 0, r.Len(), "reads do not start actors")

	sum, err := r.Summary(context.Background(), "s1")
	require.NoError(t, err)
	assert.EqualValues(t, 1000, sum.Summary["p1"])

	_, err = r.State(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestRegistryStatePrefersLiveActor(t *testing.T) {
	store := newFakeStore(1000).withParticipants("p1")
	r := newTestRegistry(t, store)

	a, err := r.Get(context.Background(), "s1")
	require.NoError(t, err)
	_, err = do(t, a, AssignItem{OrderItemID: "item-1", CreditorID: "p1"})
	require.NoError(t, err)

	// the store copy is stale on purpose
	store.mu.Lock()
	store.snap.Assignments = nil
	store.mu.Unlock()

	st, err := r.State(context.Background(), "s1")
	require.NoError(t, err)
	assert.Len(t, st.Assignments, 1)
}

func TestRegistryLoadSurvivesCancelledCaller(t *testing.T) {
	store := newFakeStore(100)
	store.loadGate = make(chan struct{})
	r := newTestRegistry(t, store)

	ctx, cancel := context.WithCancel(context.Background())
	first := make(chan error, 1)
	go func() {
		_, err := r.Get(ctx, "s1")
		first <- err
	}()
	require.Eventually(t, func() bool {
		store.mu.Lock()
		defer store.mu.Unlock()
		return store.loads == 1
	}, 2*time.Second, 5*time.Millisecond)

	second := make(chan *Actor, 1)
	go func() {
		a, err := r.Get(context.Background(), "s1")
		assert.NoError(t, err)
		second <- a
	}()

	cancel()
	select {
	case err := <-first:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("cancelled caller still waiting")
	}

	close(store.loadGate)
	select {
	case a := <-second:
		require.NotNil(t, a)
		assert.Same(t, a, r.Lookup("s1"))
	case <-time.After(2 * time.Second):
		t.Fatal("load never finished")
	}
	store.mu.Lock()
	assert.Equal(t, 1, store.loads)
	store.mu.Unlock()
}
