package socket

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"collabdoc/internal/ot"
	"collabdoc/internal/version"
	"collabdoc/pkg/apperr"
	"collabdoc/pkg/logger"
)

const (
	inboxSize    = 256
	opLogSize    = 512
	storeTimeout = 10 * time.Second
)

type eventKind int

const (
	eventJoin eventKind = iota
	eventLeave
	eventEdit
	eventSync
	eventReject
	eventNotify
)

type event struct {
	kind    eventKind
	client  *Client
	in      Inbound
	err     error
	payload []byte
}

// room serializes everything that happens to one document. Its fields are
// owned by the run goroutine, except pending which is guarded by hub.mu.
type room struct {
	hub   *Hub
	docID string
	inbox chan event
	done  chan struct{}

	pending int

	clients  map[*Client]struct{}
	joinedAt map[string]time.Time
	loaded   bool
	content  string
	revision int

	// ops holds recently accepted operations by the revision they produced.
	ops     map[int]ot.Operation
	opOrder []int
}

func newRoom(h *Hub, docID string) *room {
	return &room{
		hub:      h,
		docID:    docID,
		inbox:    make(chan event, inboxSize),
		done:     make(chan struct{}),
		clients:  make(map[*Client]struct{}),
		joinedAt: make(map[string]time.Time),
		ops:      make(map[int]ot.Operation),
	}
}

// send queues ev. It reports false if the room has already exited.
func (r *room) send(ev event) bool {
	select {
	case r.inbox <- ev:
		return true
	case <-r.done:
		return false
	}
}

func (r *room) run() {
	defer r.hub.wg.Done()
	logger.Sugar.Infof("Opened room for document %s", r.docID)
	for {
		select {
		case <-r.hub.ctx.Done():
			r.shutdown()
			return
		case ev := <-r.inbox:
			r.handle(ev)
			if len(r.clients) == 0 && r.hub.release(r, false) {
				logger.Sugar.Infof("Closed and cleaned up empty room: %s", r.docID)
				return
			}
		}
	}
}

// shutdown drops every client. Joins admitted before the hub was cancelled
// may still be on their way, so the inbox is served until none are pending
// and each of them is closed unprocessed.
func (r *room) shutdown() {
	for c := range r.clients {
		r.drop(c)
	}
	for r.pendingJoins() > 0 {
		ev := <-r.inbox
		if ev.kind == eventJoin {
			r.hub.joined(r)
			close(ev.client.Send)
		}
	}
	r.hub.release(r, true)
}

func (r *room) pendingJoins() int {
	r.hub.mu.Lock()
	defer r.hub.mu.Unlock()
	return r.pending
}

func (r *room) handle(ev event) {
	switch ev.kind {
	case eventJoin:
		r.hub.joined(r)
		r.handleJoin(ev.client)
	case eventLeave:
		if _, ok := r.clients[ev.client]; ok {
			r.drop(ev.client)
			r.broadcastPresence()
		}
	case eventEdit:
		if _, ok := r.clients[ev.client]; ok {
			r.handleEdit(ev.client, ev.in)
		}
	case eventSync:
		if _, ok := r.clients[ev.client]; ok {
			r.deliver(ev.client, r.syncFrame())
		}
	case eventReject:
		if _, ok := r.clients[ev.client]; ok {
			r.deliver(ev.client, errorFrame(ev.err))
		}
	case eventNotify:
		for c := range r.clients {
			r.deliver(c, ev.payload)
		}
	}
}

func (r *room) handleJoin(c *Client) {
	if !r.loaded {
		if err := r.reload(); err != nil {
			logger.Sugar.Errorf("Failed to load document %s: %v", r.docID, err)
			c.Send <- errorFrame(err)
			close(c.Send)
			return
		}
	}
	r.clients[c] = struct{}{}
	if _, ok := r.joinedAt[c.UserID]; !ok {
		r.joinedAt[c.UserID] = time.Now().UTC()
	}
	r.hub.metrics.SessionOpened()
	r.deliver(c, r.syncFrame())
	r.broadcastPresence()
}

func (r *room) reload() error {
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	doc, err := r.hub.store.Document(ctx, r.docID)
	if err != nil {
		return err
	}
	r.content = doc.Content
	r.revision = doc.Revision
	r.loaded = true
	return nil
}

// handleEdit accepts or rejects one operation. On success the originator
// gets an ACK and everyone else the committed EDIT.
func (r *room) handleEdit(c *Client, in Inbound) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	rev, op, err := r.accept(ctx, c, in)
	if err != nil {
		logger.Sugar.Warnf("Rejected edit from %s on %s at base %d: %v", c.UserID, r.docID, in.BaseRevision, err)
		r.hub.metrics.Edit(strings.ToLower(reasonFor(err)))
		r.deliver(c, errorFrame(err))
		return
	}
	r.hub.metrics.ObserveCommit(start)
	r.hub.metrics.Edit("accepted")

	seq := r.hub.seq.Add(1)
	ack, _ := json.Marshal(AckMessage{Type: AckType, DocumentID: r.docID, Revision: rev, Seq: seq})
	r.deliver(c, ack)

	relay, _ := json.Marshal(EditMessage{
		Type:       EditType,
		DocumentID: r.docID,
		Revision:   rev,
		Seq:        seq,
		Operation:  op,
		Author:     c.UserID,
		Timestamp:  time.Now().UTC(),
	})
	for peer := range r.clients {
		if peer != c {
			r.deliver(peer, relay)
		}
	}
}

func (r *room) accept(ctx context.Context, c *Client, in Inbound) (int, ot.Operation, error) {
	const name = "socket.accept"
	op := *in.Operation
	if in.BaseRevision > r.revision {
		return 0, op, apperr.Conflictf(name, "base revision %d is ahead of current revision %d", in.BaseRevision, r.revision)
	}
	if in.BaseRevision < r.revision {
		history, err := r.history(ctx, in.BaseRevision)
		if err != nil {
			return 0, op, err
		}
		if op, err = ot.TransformAll(op, history); err != nil {
			return 0, op, err
		}
		r.hub.metrics.Transformed()
	}

	updated, err := op.Apply(r.content)
	if err != nil {
		return 0, op, err
	}
	committed, err := r.hub.store.Commit(ctx, r.docID, r.revision, version.MakePatch(r.content, updated), c.UserID)
	if err != nil {
		if apperr.IsKind(err, apperr.Conflict) {
			// Someone committed outside this room; pick up their revision.
			if rerr := r.reload(); rerr != nil {
				logger.Sugar.Errorf("Failed to reload document %s: %v", r.docID, rerr)
			}
		}
		return 0, op, err
	}

	r.content = updated
	r.revision = committed.ToRevision
	r.remember(committed.ToRevision, op)
	return committed.ToRevision, op, nil
}

// history returns the operations that took base to the current revision.
// Revisions no longer in the log are rebuilt from their stored content.
func (r *room) history(ctx context.Context, base int) ([]ot.Operation, error) {
	var out []ot.Operation
	for k := base + 1; k <= r.revision; k++ {
		if op, ok := r.ops[k]; ok {
			out = append(out, op)
			continue
		}
		before, err := r.hub.store.Reconstruct(ctx, r.docID, k-1)
		if err != nil {
			return nil, err
		}
		after, err := r.hub.store.Reconstruct(ctx, r.docID, k)
		if err != nil {
			return nil, err
		}
		out = append(out, ot.FromDiff(before, after)...)
	}
	return out, nil
}

func (r *room) remember(rev int, op ot.Operation) {
	r.ops[rev] = op
	r.opOrder = append(r.opOrder, rev)
	if len(r.opOrder) > opLogSize {
		delete(r.ops, r.opOrder[0])
		r.opOrder = r.opOrder[1:]
	}
}

func (r *room) syncFrame() []byte {
	b, _ := json.Marshal(SyncMessage{Type: SyncType, DocumentID: r.docID, Revision: r.revision, Content: r.content})
	return b
}

func (r *room) broadcastPresence() {
	if len(r.clients) == 0 {
		return
	}
	seen := make(map[string]bool, len(r.clients))
	users := make([]UserStatus, 0, len(r.clients))
	for c := range r.clients {
		if seen[c.UserID] {
			continue
		}
		seen[c.UserID] = true
		users = append(users, UserStatus{UserID: c.UserID, JoinedAt: r.joinedAt[c.UserID]})
	}
	b, err := json.Marshal(PresenceMessage{Type: PresenceUpdateType, DocumentID: r.docID, Users: users})
	if err != nil {
		logger.Sugar.Errorf("Error marshalling presence broadcast: %v", err)
		return
	}
	for c := range r.clients {
		r.deliver(c, b)
	}
}

// deliver queues payload for c, dropping c if it cannot keep up.
func (r *room) deliver(c *Client, payload []byte) {
	select {
	case c.Send <- payload:
	default:
		logger.Sugar.Warnf("Client %s's send buffer is full. Dropping session.", c.UserID)
		r.drop(c)
	}
}

// drop ends c's session. Only the room closes a client's Send channel.
func (r *room) drop(c *Client) {
	if _, ok := r.clients[c]; !ok {
		return
	}
	delete(r.clients, c)
	close(c.Send)
	r.hub.metrics.SessionClosed()

	for other := range r.clients {
		if other.UserID == c.UserID {
			return
		}
	}
	delete(r.joinedAt, c.UserID)
}
