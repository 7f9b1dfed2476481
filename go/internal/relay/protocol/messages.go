package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// MessageKind identifies the envelope type on the wire
type MessageKind string

const (
	KindSnapshotRequest MessageKind = "snapshot-request"
	KindStateUpdate     MessageKind = "state-update"
	KindScanReport      MessageKind = "scan-report"
)

// Role is the tag a client announces in its snapshot request
type Role string

const (
	RolePublisher  Role = "publisher"
	RoleSubscriber Role = "subscriber"
)

// CollectionKind names one of the replicated collections
type CollectionKind string

const (
	CollectionRoster     CollectionKind = "roster"
	CollectionAttendance CollectionKind = "attendance-log"
)

// Collections lists every replicated collection in the order snapshots are sent.
var Collections = []CollectionKind{CollectionRoster, CollectionAttendance}

// ErrMalformed is returned by Decode for frames that can't be routed.
var ErrMalformed = errors.New("malformed message")

// emptyCollection is the payload of a collection nobody has published yet.
var emptyCollection = json.RawMessage("[]")

// Envelope is the single frame shape exchanged between clients and the relay.
// Payload always carries a complete value, never a delta.
type Envelope struct {
	Kind    MessageKind     `json:"kind"`
	Role    Role            `json:"role,omitempty"`
	Type    CollectionKind  `json:"type,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// NewSnapshotRequest builds the role announcement a client sends after connecting.
func NewSnapshotRequest(role Role) *Envelope {
	return &Envelope{Kind: KindSnapshotRequest, Role: role}
}

// NewStateUpdate marshals the full value of a collection into an update.
func NewStateUpdate(kind CollectionKind, value interface{}) (*Envelope, error) {
	payload, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", kind, err)
	}
	// nil slices marshal to null; collections are always arrays on the wire
	if bytes.Equal(payload, []byte("null")) {
		payload = emptyCollection
	}
	return &Envelope{Kind: KindStateUpdate, Type: kind, Payload: payload}, nil
}

// NewRawStateUpdate wraps an already encoded collection value.
func NewRawStateUpdate(kind CollectionKind, payload json.RawMessage) *Envelope {
	if len(payload) == 0 {
		payload = emptyCollection
	}
	return &Envelope{Kind: KindStateUpdate, Type: kind, Payload: payload}
}

// NewScanReport wraps a single attendance record produced at a kiosk.
func NewScanReport(record interface{}) (*Envelope, error) {
	payload, err := json.Marshal(record)
	if err != nil {
		return nil, fmt.Errorf("marshal scan report: %w", err)
	}
	return &Envelope{Kind: KindScanReport, Payload: payload}, nil
}

// Encode serializes the envelope into a text frame.
func (e *Envelope) Encode() ([]byte, error) {
	return json.Marshal(e)
}

// Decode parses a frame and checks that it can be routed. Collection items are
// not inspected; a state update only has to carry a JSON array.
func Decode(frame []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if err := env.Validate(); err != nil {
		return nil, err
	}
	return &env, nil
}

// Validate checks the routing fields of an envelope.
func (e *Envelope) Validate() error {
	switch e.Kind {
	case KindSnapshotRequest:
		if !e.Role.Valid() {
			return fmt.Errorf("%w: unknown role %q", ErrMalformed, e.Role)
		}
	case KindStateUpdate:
		if !e.Type.Valid() {
			return fmt.Errorf("%w: unknown collection %q", ErrMalformed, e.Type)
		}
		if !isArray(e.Payload) {
			return fmt.Errorf("%w: %s payload is not an array", ErrMalformed, e.Type)
		}
	case KindScanReport:
		if len(bytes.TrimSpace(e.Payload)) == 0 {
			return fmt.Errorf("%w: empty scan report", ErrMalformed)
		}
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrMalformed, e.Kind)
	}
	return nil
}

// DecodePayload unmarshals the envelope payload into dst.
func DecodePayload(e *Envelope, dst interface{}) error {
	if err := json.Unmarshal(e.Payload, dst); err != nil {
		return fmt.Errorf("decode %s payload: %w", e.Kind, err)
	}
	return nil
}

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RolePublisher || r == RoleSubscriber
}

// Valid reports whether k is a known collection.
func (k CollectionKind) Valid() bool {
	return k == CollectionRoster || k == CollectionAttendance
}

// ParseCollectionKind maps a path segment to a collection.
func ParseCollectionKind(s string) (CollectionKind, error) {
	k := CollectionKind(s)
	if !k.Valid() {
		return "", fmt.Errorf("unknown collection %q", s)
	}
	return k, nil
}

func isArray(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && trimmed[0] == '[' && json.Valid(trimmed)
}
