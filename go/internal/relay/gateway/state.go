package gateway

import (
	"encoding/json"
	"sync"

	"github.com/mcdev12/facescan/go/internal/relay/protocol"
)

// SnapshotCache holds the last-known copy of each replicated collection. It is
// written only by the dispatcher loop; the lock is for the REST readers.
type SnapshotCache struct {
	mu     sync.RWMutex
	copies map[protocol.CollectionKind]json.RawMessage
}

// NewSnapshotCache creates an empty cache
func NewSnapshotCache() *SnapshotCache {
	return &SnapshotCache{
		copies: make(map[protocol.CollectionKind]json.RawMessage),
	}
}

// Get returns the stored copy for a collection, or an empty array when nothing
// has been published yet.
func (c *SnapshotCache) Get(kind protocol.CollectionKind) json.RawMessage {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if payload, ok := c.copies[kind]; ok {
		return payload
	}
	return json.RawMessage("[]")
}

// Put replaces the stored copy for a collection. Last write wins.
func (c *SnapshotCache) Put(kind protocol.CollectionKind, payload json.RawMessage) {
	stored := make(json.RawMessage, len(payload))
	copy(stored, payload)

	c.mu.Lock()
	c.copies[kind] = stored
	c.mu.Unlock()
}

// Snapshot builds one state update per collection from the stored copies.
func (c *SnapshotCache) Snapshot() []*protocol.Envelope {
	updates := make([]*protocol.Envelope, 0, len(protocol.Collections))
	for _, kind := range protocol.Collections {
		updates = append(updates, protocol.NewRawStateUpdate(kind, c.Get(kind)))
	}
	return updates
}
