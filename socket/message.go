package socket

import (
	"encoding/json"
	"time"

	"collabdoc/internal/ot"
	"collabdoc/pkg/apperr"
)

const (
	EditType           = "EDIT"            // Client edit, or a committed edit relayed to peers
	AckType            = "ACK"             // Originator's edit was committed
	ErrorType          = "ERROR"           // Request rejected
	SyncType           = "SYNC"            // Full content at the current revision
	PresenceUpdateType = "PRESENCE_UPDATE" // A user joined or left
	FlagType           = "FLAG"            // Flag created or resolved
	ReviewType         = "REVIEW"          // Review status changed

	ReasonInvalid      = "INVALID"
	ReasonUnauthorized = "UNAUTHORIZED"
	ReasonConflict     = "CONFLICT"
)

// Inbound is a message received from a client. Only EDIT and SYNC are
// accepted.
type Inbound struct {
	Type         string        `json:"type"`
	DocumentID   string        `json:"documentId"`
	BaseRevision int           `json:"baseRevision"`
	Operation    *ot.Operation `json:"operation,omitempty"`
}

// DecodeInbound parses and validates a client frame.
func DecodeInbound(raw []byte) (Inbound, error) {
	const op = "socket.DecodeInbound"
	var in Inbound
	if err := json.Unmarshal(raw, &in); err != nil {
		return Inbound{}, apperr.Wrap(apperr.Validation, op, err, "malformed message")
	}
	switch in.Type {
	case EditType:
		if in.BaseRevision < 1 {
			return Inbound{}, apperr.Validationf(op, "baseRevision must be at least 1")
		}
		if in.Operation == nil {
			return Inbound{}, apperr.Validationf(op, "operation is required")
		}
		if err := in.Operation.Validate(); err != nil {
			return Inbound{}, err
		}
	case SyncType:
	default:
		return Inbound{}, apperr.Validationf(op, "unsupported message type %q", in.Type)
	}
	return in, nil
}

type AckMessage struct {
	Type       string `json:"type"`
	DocumentID string `json:"documentId"`
	Revision   int    `json:"revision"`
	Seq        uint64 `json:"seq"`
}

type EditMessage struct {
	Type       string       `json:"type"`
	DocumentID string       `json:"documentId"`
	Revision   int          `json:"revision"`
	Seq        uint64       `json:"seq"`
	Operation  ot.Operation `json:"operation"`
	Author     string       `json:"author"`
	Timestamp  time.Time    `json:"timestamp"`
}

type ErrorMessage struct {
	Type    string `json:"type"`
	Reason  string `json:"reason"`
	Message string `json:"message,omitempty"`
}

type SyncMessage struct {
	Type       string `json:"type"`
	DocumentID string `json:"documentId"`
	Revision   int    `json:"revision"`
	Content    string `json:"content"`
}

type UserStatus struct {
	UserID   string    `json:"userId"`
	JoinedAt time.Time `json:"joinedAt"`
}

type PresenceMessage struct {
	Type       string       `json:"type"`
	DocumentID string       `json:"documentId"`
	Users      []UserStatus `json:"users"`
}

// NoticeMessage carries a record changed outside the edit stream.
type NoticeMessage struct {
	Type       string `json:"type"`
	DocumentID string `json:"documentId"`
	Payload    any    `json:"payload"`
}

// reasonFor maps an error to the reason reported to the client. Storage
// failures and corrupt history are reported as CONFLICT so the client
// resyncs and retries.
func reasonFor(err error) string {
	switch apperr.KindOf(err) {
	case apperr.Validation, apperr.NotFound:
		return ReasonInvalid
	case apperr.Authorization:
		return ReasonUnauthorized
	default:
		return ReasonConflict
	}
}

func errorFrame(err error) []byte {
	b, _ := json.Marshal(ErrorMessage{Type: ErrorType, Reason: reasonFor(err), Message: apperr.Message(err)})
	return b
}
