package socket

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"

	"collabdoc/internal/access"
	"collabdoc/internal/metrics"
	"collabdoc/internal/version"
	"collabdoc/middleware"
	"collabdoc/pkg/logger"
)

// Authenticator resolves the identity behind an upgrade request.
type Authenticator interface {
	Authenticate(r *http.Request) (middleware.Identity, error)
}

// Hub owns one room per document with at least one connected client. Each
// room is a single goroutine, which is the only place edits for that
// document are accepted.
type Hub struct {
	store   *version.Store
	auth    Authenticator
	policy  access.Policy
	metrics *metrics.Metrics

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	seq    atomic.Uint64

	mu    sync.Mutex
	rooms map[string]*room
}

func NewHub(store *version.Store, auth Authenticator, policy access.Policy, m *metrics.Metrics) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		store:   store,
		auth:    auth,
		policy:  policy,
		metrics: m,
		ctx:     ctx,
		cancel:  cancel,
		rooms:   make(map[string]*room),
	}
}

// Run blocks until ctx is done, then stops every room.
func (h *Hub) Run(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-h.ctx.Done():
	}
	h.Shutdown()
}

// Shutdown disconnects all clients and waits for the rooms to exit.
func (h *Hub) Shutdown() {
	h.mu.Lock()
	h.cancel()
	h.mu.Unlock()
	h.wg.Wait()
}

// RoomCount reports how many documents currently have a live room.
func (h *Hub) RoomCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.rooms)
}

// join hands c to its document's room, starting the room if needed.
func (h *Hub) join(c *Client) bool {
	h.mu.Lock()
	if h.ctx.Err() != nil {
		h.mu.Unlock()
		return false
	}
	r, ok := h.rooms[c.DocID]
	if !ok {
		r = newRoom(h, c.DocID)
		h.rooms[c.DocID] = r
		h.wg.Add(1)
		go r.run()
		h.metrics.RoomOpened()
	}
	// A pending join keeps the room alive until it has been processed.
	r.pending++
	h.mu.Unlock()

	c.room = r
	return r.send(event{kind: eventJoin, client: c})
}

// Notify pushes a notice to every client of docID. Documents without a
// room are skipped.
func (h *Hub) Notify(docID, msgType string, payload any) {
	h.mu.Lock()
	r := h.rooms[docID]
	h.mu.Unlock()
	if r == nil {
		return
	}
	b, err := json.Marshal(NoticeMessage{Type: msgType, DocumentID: docID, Payload: payload})
	if err != nil {
		logger.Sugar.Errorf("Error marshalling %s notice for %s: %v", msgType, docID, err)
		return
	}
	r.send(event{kind: eventNotify, payload: b})
}

// release removes r from the hub unless a join is still queued for it.
// force is used on shutdown.
func (h *Hub) release(r *room, force bool) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if r.pending > 0 && !force {
		return false
	}
	if h.rooms[r.docID] == r {
		delete(h.rooms, r.docID)
	}
	close(r.done)
	h.metrics.RoomClosed()
	return true
}

func (h *Hub) joined(r *room) {
	h.mu.Lock()
	r.pending--
	h.mu.Unlock()
}
