package socket

import (
	"net/http"
	"time"

	"collabdoc/pkg/apperr"
	"collabdoc/pkg/logger"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 30 * time.Second
	maxMessageSize = 1 << 20
	sendBufferSize = 256
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	room   *room
	DocID  string
	UserID string
	Level  int
	Send   chan []byte
}

// ServeWs upgrades the request and attaches the connection to the room of
// the docId query parameter. Authentication happens after the upgrade so the
// browser receives the rejection reason before the close.
func ServeWs(hub *Hub, w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Sugar.Error(err)
		return
	}

	const op = "socket.ServeWs"
	id, err := hub.auth.Authenticate(r)
	if err != nil {
		logger.Sugar.Warnf("Connection rejected: authentication failed: %v", err)
		reject(conn, apperr.Wrap(apperr.Authorization, op, err, "authentication failed"))
		return
	}

	docID := r.URL.Query().Get("docId")
	if docID == "" {
		reject(conn, apperr.Validationf(op, "docId is required"))
		return
	}
	doc, err := hub.store.Document(r.Context(), docID)
	if err != nil {
		logger.Sugar.Warnf("Connection rejected: document %s: %v", docID, err)
		reject(conn, err)
		return
	}
	if !hub.policy.CanEdit(id.Level, doc) {
		logger.Sugar.Warnf("Connection rejected: user %s (level %d) may not edit %s", id.UserID, id.Level, docID)
		reject(conn, apperr.Unauthorizedf(op, "classification level %d may not edit this document", id.Level))
		return
	}

	client := &Client{
		hub:    hub,
		conn:   conn,
		DocID:  docID,
		UserID: id.UserID,
		Level:  id.Level,
		Send:   make(chan []byte, sendBufferSize),
	}
	if !hub.join(client) {
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(writeWait))
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}

// reject writes an ERROR frame and closes the connection with a policy
// violation.
func reject(conn *websocket.Conn, err error) {
	defer conn.Close()
	deadline := time.Now().Add(writeWait)
	conn.SetWriteDeadline(deadline)
	if werr := conn.WriteMessage(websocket.TextMessage, errorFrame(err)); werr != nil {
		return
	}
	conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reasonFor(err)),
		deadline)
}

func (c *Client) readPump() {
	defer func() {
		c.room.send(event{kind: eventLeave, client: c})
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				logger.Sugar.Errorf("error: %v", err)
			}
			return
		}

		in, err := DecodeInbound(raw)
		if err == nil && in.DocumentID != "" && in.DocumentID != c.DocID {
			err = apperr.Validationf("socket.readPump", "connection is bound to document %s", c.DocID)
		}
		if err != nil {
			logger.Sugar.Warnf("Invalid message from %s: %v", c.UserID, err)
			if !c.room.send(event{kind: eventReject, client: c, err: err}) {
				return
			}
			continue
		}

		kind := eventEdit
		if in.Type == SyncType {
			kind = eventSync
		}
		if !c.room.send(event{kind: kind, client: c, in: in}) {
			return
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The room ended this session.
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

