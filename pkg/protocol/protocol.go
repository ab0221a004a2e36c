/*
Package protocol defines the session protocol messages exchanged between
the core and connected subscribers: the tagged union a transport
layer frames onto the wire, plus the heartbeat timing constants. The
transport itself (WebSocket framing, connection management) is out of
scope; pkg/editor produces these messages and the transport fans them out.
*/
package protocol

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/rossdb/ross/pkg/commit"
	"github.com/rossdb/ross/pkg/objstate"
)

// Heartbeat timing, binding for any transport carrying these messages:
// the server pings every PingInterval; a client that hears nothing for
// ClientTimeout gives the connection up for dead.
const (
	PingInterval  = 5 * time.Second
	ClientTimeout = 10 * time.Second
)

// MessageKind tags the active variant of a Message.
type MessageKind int

const (
	MsgHostID MessageKind = iota
	MsgClock
	MsgPatch
	MsgConflicts
	MsgFullSync
	MsgCommitted
	MsgPing
	MsgPong
)

func (k MessageKind) String() string {
	switch k {
	case MsgHostID:
		return "HostID"
	case MsgClock:
		return "Clock"
	case MsgPatch:
		return "Patch"
	case MsgConflicts:
		return "Conflicts"
	case MsgFullSync:
		return "FullSync"
	case MsgCommitted:
		return "Committed"
	case MsgPing:
		return "Ping"
	case MsgPong:
		return "Pong"
	default:
		return fmt.Sprintf("MessageKind(%d)", int(k))
	}
}

// Head names a branch position: a commit plus how many live changes have
// been applied on top of it. Two sessions whose Heads are equal have seen
// exactly the same sequence of batches.
type Head struct {
	Commit commit.CommitId `json:"commit"`
	Live   int             `json:"live"`
}

// Message is one server-to-client protocol message. Only the fields
// relevant to Kind are meaningful: a tagged union with exhaustive match,
// not an interface hierarchy.
type Message struct {
	Kind MessageKind

	// HostID
	HostID uint32

	// Clock: seconds since the Unix epoch, fractional, for round-trip
	// time sync.
	Timestamp float64

	// Patch
	Patch *objstate.BatchPatch

	// Conflicts
	Conflicts []objstate.Conflict

	// FullSync
	Head     Head
	Snapshot *objstate.State

	// Committed
	Branch commit.BranchId
	Commit commit.CommitId
}

// NewHostID builds the id-assignment message sent to a newly connected
// subscriber.
func NewHostID(id uint32) Message {
	return Message{Kind: MsgHostID, HostID: id}
}

// NewClock builds a time-sync message for the given instant.
func NewClock(at time.Time) Message {
	return Message{Kind: MsgClock, Timestamp: float64(at.UnixNano()) / float64(time.Second)}
}

// NewPatch builds the broadcast for a peer's successful perform.
func NewPatch(batch objstate.BatchPatch) Message {
	return Message{Kind: MsgPatch, Patch: &batch}
}

// NewConflicts builds the failure response to a rejected perform.
func NewConflicts(conflicts []objstate.Conflict) Message {
	return Message{Kind: MsgConflicts, Conflicts: conflicts}
}

// NewFullSync builds a full state dump at the given head.
func NewFullSync(head Head, snapshot *objstate.State) Message {
	return Message{Kind: MsgFullSync, Head: head, Snapshot: snapshot}
}

// NewCommitted builds the notification broadcast after a commit lands.
func NewCommitted(branch commit.BranchId, id commit.CommitId) Message {
	return Message{Kind: MsgCommitted, Branch: branch, Commit: id}
}

// NewPing and NewPong are the heartbeat pair.
func NewPing() Message { return Message{Kind: MsgPing} }
func NewPong() Message { return Message{Kind: MsgPong} }

// wireMessage is the JSON envelope: a type tag plus the variant's fields,
// so a client can switch on "type" without probing field presence.
type wireMessage struct {
	Type      string               `json:"type"`
	HostID    *uint32              `json:"host_id,omitempty"`
	Timestamp *float64             `json:"timestamp,omitempty"`
	Patch     *objstate.BatchPatch `json:"patch,omitempty"`
	Conflicts []objstate.Conflict  `json:"conflicts,omitempty"`
	Head      *Head                `json:"head,omitempty"`
	Snapshot  *objstate.State      `json:"snapshot,omitempty"`
	Branch    *commit.BranchId     `json:"branch,omitempty"`
	Commit    *commit.CommitId     `json:"commit,omitempty"`
}

// MarshalJSON encodes the message as its tagged wire envelope.
func (m Message) MarshalJSON() ([]byte, error) {
	w := wireMessage{Type: m.Kind.String()}
	switch m.Kind {
	case MsgHostID:
		w.HostID = &m.HostID
	case MsgClock:
		w.Timestamp = &m.Timestamp
	case MsgPatch:
		w.Patch = m.Patch
	case MsgConflicts:
		w.Conflicts = m.Conflicts
	case MsgFullSync:
		w.Head = &m.Head
		w.Snapshot = m.Snapshot
	case MsgCommitted:
		w.Branch = &m.Branch
		w.Commit = &m.Commit
	case MsgPing, MsgPong:
	default:
		return nil, fmt.Errorf("protocol: marshal unknown message kind %v", m.Kind)
	}
	return json.Marshal(w)
}

// UnmarshalJSON is MarshalJSON's inverse.
func (m *Message) UnmarshalJSON(data []byte) error {
	var w wireMessage
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}

	switch w.Type {
	case "HostID":
		m.Kind = MsgHostID
		if w.HostID != nil {
			m.HostID = *w.HostID
		}
	case "Clock":
		m.Kind = MsgClock
		if w.Timestamp != nil {
			m.Timestamp = *w.Timestamp
		}
	case "Patch":
		m.Kind = MsgPatch
		m.Patch = w.Patch
	case "Conflicts":
		m.Kind = MsgConflicts
		m.Conflicts = w.Conflicts
	case "FullSync":
		m.Kind = MsgFullSync
		if w.Head != nil {
			m.Head = *w.Head
		}
		m.Snapshot = w.Snapshot
	case "Committed":
		m.Kind = MsgCommitted
		if w.Branch != nil {
			m.Branch = *w.Branch
		}
		if w.Commit != nil {
			m.Commit = *w.Commit
		}
	case "Ping":
		m.Kind = MsgPing
	case "Pong":
		m.Kind = MsgPong
	default:
		return fmt.Errorf("protocol: unknown message type %q", w.Type)
	}
	return nil
}
