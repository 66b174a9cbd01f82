package hub

import (
	"encoding/json"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
)

var ErrClientGone = errors.New("hub: client is gone")

// Client is one live connection. Frames are queued on a bounded outbox that
// a writer goroutine drains.
type Client struct {
	id   string
	send chan []byte
	done chan struct{}
	once sync.Once

	mu            sync.Mutex
	participantID string
}

func NewClient(buffer int) *Client {
	if buffer <= 0 {
		buffer = 1
	}
	return &Client{
		id:   uuid.NewString(),
		send: make(chan []byte, buffer),
		done: make(chan struct{}),
	}
}

func (c *Client) ID() string { return c.id }

// ParticipantID is empty until the client has joined.
func (c *Client) ParticipantID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.participantID
}

func (c *Client) setParticipant(id string) {
	c.mu.Lock()
	c.participantID = id
	c.mu.Unlock()
}

func (c *Client) Outbox() <-chan []byte { return c.send }

// Done is closed once the hub has dropped the client.
func (c *Client) Done() <-chan struct{} { return c.done }

func (c *Client) close() {
	c.once.Do(func() { close(c.done) })
}

func (c *Client) enqueue(frame []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

// Hub is the set of connections attached to one session.
type Hub struct {
	sessionID string
	onLeave   func(participantID string)
	now       func() time.Time

	mu         sync.Mutex
	clients    map[*Client]struct{}
	emptySince time.Time
}

// New returns an empty hub. onLeave runs on its own goroutine whenever the
// last connection bound to a participant goes away.
func New(sessionID string, onLeave func(participantID string)) *Hub {
	return &Hub{
		sessionID:  sessionID,
		onLeave:    onLeave,
		now:        time.Now,
		clients:    make(map[*Client]struct{}),
		emptySince: time.Now(),
	}
}

func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.emptySince = time.Time{}
	h.mu.Unlock()
}

// Bind attaches a participant identity to a registered client.
func (h *Hub) Bind(c *Client, participantID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		c.setParticipant(participantID)
	}
}

// Release unbinds every connection of a participant that left the session.
// The connections stay registered as spectators.
func (h *Hub) Release(participantID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		if c.ParticipantID() == participantID {
			c.setParticipant("")
		}
	}
}

// Unregister drops c. It is safe to call more than once.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c)
	c.close()
	if len(h.clients) == 0 {
		h.emptySince = h.now()
	}
	pid := c.ParticipantID()
	orphaned := pid != "" && !h.connectedLocked(pid)
	h.mu.Unlock()

	if orphaned && h.onLeave != nil {
		go h.onLeave(pid)
	}
}

// Broadcast sends v to every client. Clients whose outbox is full are
// dropped rather than blocking the caller.
func (h *Hub) Broadcast(v any) error {
	frame, err := json.Marshal(v)
	if err != nil {
		return err
	}

	h.mu.Lock()
	var slow []*Client
	for c := range h.clients {
		if !c.enqueue(frame) {
			slow = append(slow, c)
		}
	}
	h.mu.Unlock()

	for _, c := range slow {
		log.Printf("hub: session %s dropping slow client %s", h.sessionID, c.id)
		h.Unregister(c)
	}
	return nil
}

// Send queues v for a single client.
func (h *Hub) Send(c *Client, v any) error {
	frame, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if c.enqueue(frame) {
		return nil
	}
	h.mu.Lock()
	_, registered := h.clients[c]
	h.mu.Unlock()
	if registered {
		log.Printf("hub: session %s dropping slow client %s", h.sessionID, c.id)
		h.Unregister(c)
	}
	return ErrClientGone
}

func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Connected reports whether any live connection is bound to participantID.
func (h *Hub) Connected(participantID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.connectedLocked(participantID)
}

func (h *Hub) connectedLocked(participantID string) bool {
	for c := range h.clients {
		if c.ParticipantID() == participantID {
			return true
		}
	}
	return false
}

// EmptySince returns when the hub last became empty. ok is false while
// clients are attached.
func (h *Hub) EmptySince() (since time.Time, ok bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.clients) > 0 {
		return time.Time{}, false
	}
	return h.emptySince, true
}

// Close drops every client.
func (h *Hub) Close() {
	h.mu.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()
	for _, c := range clients {
		h.Unregister(c)
	}
}
