package tablesession

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/susu3304/tablesplit/internal/hub"
)

type fakeStore struct {
	mu           sync.Mutex
	snap         Snapshot
	loads        int
	applyCalls   int
	failApply    error
	failLock     error
	panicOnApply bool
	closedTotal  int64
	loadGate     chan struct{}
}

func newFakeStore(prices ...int64) *fakeStore {
	base := time.Date(2024, 1, 1, 19, 0, 0, 0, time.UTC)
	s := &fakeStore{snap: Snapshot{
		Session: Session{ID: "s1", Status: StatusOpen, Currency: "JPY", CreatedAt: base},
	}}
	for i, price := range prices {
		s.snap.Items = append(s.snap.Items, OrderItem{
			ID:        fmt.Sprintf("item-%d", i+1),
			SessionID: "s1",
			Name:      fmt.Sprintf("dish %d", i+1),
			UnitPrice: price,
			OrderedAt: base,
		})
	}
	return s
}

func (s *fakeStore) withParticipants(ids ...string) *fakeStore {
	for _, id := range ids {
		uid := "user-" + id
		s.snap.Participants = append(s.snap.Participants, Participant{ID: id, SessionID: "s1", UserID: &uid, DisplayName: id})
	}
	return s
}

func (s *fakeStore) snapshot() *Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := s.snap
	snap.Participants = append([]Participant(nil), s.snap.Participants...)
	snap.Items = append([]OrderItem(nil), s.snap.Items...)
	snap.Assignments = append([]Assignment(nil), s.snap.Assignments...)
	return &snap
}

func (s *fakeStore) LoadSession(ctx context.Context, sessionID string) (*Snapshot, error) {
	s.mu.Lock()
	s.loads++
	id := s.snap.Session.ID
	gate := s.loadGate
	s.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if sessionID != id {
		return nil, ErrSessionNotFound
	}
	return s.snapshot(), nil
}

func (s *fakeStore) SaveParticipant(_ context.Context, p Participant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap.Participants = append(s.snap.Participants, p)
	return nil
}

func (s *fakeStore) DeleteParticipant(_ context.Context, _ string, participantID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, p := range s.snap.Participants {
		if p.ID == participantID {
			s.snap.Participants = append(s.snap.Participants[:i], s.snap.Participants[i+1:]...)
			break
		}
	}
	return nil
}

func (s *fakeStore) ApplyAssignments(_ context.Context, _ string, change AssignmentChange) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.panicOnApply {
		panic("store exploded")
	}
	if s.failApply != nil {
		return s.failApply
	}
	s.applyCalls++
	for _, id := range change.Deleted {
		if i := indexOf(s.snap.Assignments, id); i >= 0 {
			s.snap.Assignments = append(s.snap.Assignments[:i], s.snap.Assignments[i+1:]...)
		}
	}
	for _, a := range change.Saved {
		if i := indexOf(s.snap.Assignments, a.ID); i >= 0 {
			s.snap.Assignments[i] = a
		} else {
			s.snap.Assignments = append(s.snap.Assignments, a)
		}
	}
	return nil
}

func (s *fakeStore) SaveLock(_ context.Context, _ string, status Status, lockedBy *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failLock != nil {
		return s.failLock
	}
	s.snap.Session.Status = status
	s.snap.Session.LockedBy = lockedBy
	return nil
}

func (s *fakeStore) CloseSession(_ context.Context, _ string, total int64, closedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap.Session.Status = StatusClosed
	s.snap.Session.TotalAmount = total
	s.snap.Session.ClosedAt = &closedAt
	s.closedTotal = total
	return nil
}

func (s *fakeStore) assignmentCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.snap.Assignments)
}

type fakeInvoicer struct {
	mu    sync.Mutex
	calls []Settlement
}

func (f *fakeInvoicer) MaterializeSettlement(_ context.Context, s Settlement) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, s)
	return nil
}

type fakeNotifier struct {
	ch chan Settlement
}

func (f *fakeNotifier) SessionFinalized(_ context.Context, s Settlement) error {
	f.ch <- s
	return nil
}

type fakeDirectory map[string]Profile

func (d fakeDirectory) LookupUser(_ context.Context, userID string) (Profile, error) {
	p, ok := d[userID]
	if !ok {
		return Profile{}, fmt.Errorf("unknown user %s", userID)
	}
	return p, nil
}

// testOptions returns deterministic ids and a clock that advances one
// second per call.
func testOptions() Options {
	var mu sync.Mutex
	n := 0
	clock := time.Date(2024, 1, 1, 20, 0, 0, 0, time.UTC)
	return Options{
		QueueSize:      16,
		PersistTimeout: time.Second,
		NewID: func() string {
			mu.Lock()
			defer mu.Unlock()
			n++
			return fmt.Sprintf("id-%d", n)
		},
		Now: func() time.Time {
			mu.Lock()
			defer mu.Unlock()
			clock = clock.Add(time.Second)
			return clock
		},
	}
}

func startActor(t *testing.T, store *fakeStore, opts Options) *Actor {
	t.Helper()
	a := newActor(store.snapshot(), store, opts)
	t.Cleanup(a.Stop)
	return a
}

func attach(a *Actor) *hub.Client {
	c := hub.NewClient(64)
	a.Hub().Register(c)
	return c
}

func do(t *testing.T, a *Actor, cmd Command) (any, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return a.Do(ctx, cmd)
}

func nextFrame(t *testing.T, c *hub.Client) []byte {
	t.Helper()
	select {
	case frame := <-c.Outbox():
		return frame
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for frame on client %s", c.ID())
		return nil
	}
}

func expectEvent(t *testing.T, c *hub.Client, eventType string) map[string]any {
	t.Helper()
	var ev map[string]any
	require.NoError(t, json.Unmarshal(nextFrame(t, c), &ev))
	require.Equal(t, eventType, ev["type"], "event: %v", ev)
	return ev
}

func expectQuiet(t *testing.T, c *hub.Client) {
	t.Helper()
	select {
	case frame := <-c.Outbox():
		t.Fatalf("unexpected frame: %s", frame)
	default:
	}
}

func drain(c *hub.Client) {
	for {
		select {
		case <-c.Outbox():
		default:
			return
		}
	}
}

func strPtr(s string) *string { return &s }
