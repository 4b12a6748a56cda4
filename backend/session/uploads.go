package session

import (
	"sync"

	"github.com/google/uuid"
	"github.com/showkit/scenerelay/backend/model"
)

// Buffer accumulates a host's uploaded parts until the host signals
// product-upload-complete, at which point the batch is drained as one
// unit. Viewer uploads are never buffered.
type Buffer struct {
	mx      sync.Mutex
	pending map[string][]model.Asset
}

func NewBuffer() *Buffer {
	return &Buffer{
		pending: make(map[string][]model.Asset),
	}
}

// Add appends an asset to the uploader's batch and returns true.
// Non-host uploads return false and leave the buffer untouched.
func (b *Buffer) Add(conn, role string, asset model.Asset) bool {
	if role != model.RoleHost {
		return false
	}
	asset.ID = uuid.NewString()
	asset.Sender = conn

	b.mx.Lock()
	b.pending[conn] = append(b.pending[conn], asset)
	b.mx.Unlock()
	return true
}

// Flush atomically drains the uploader's batch in insertion order.
// Returns nil if nothing was buffered.
func (b *Buffer) Flush(conn string) []model.Asset {
	b.mx.Lock()
	defer b.mx.Unlock()

	parts := b.pending[conn]
	delete(b.pending, conn)
	return parts
}

// Drop discards any unflushed batch for a departed connection.
// Connection ids are not stable across reconnects, so nothing
// could ever flush an orphaned batch.
func (b *Buffer) Drop(conn string) {
	b.mx.Lock()
	delete(b.pending, conn)
	b.mx.Unlock()
}

// Len reports how many parts are buffered for conn.
func (b *Buffer) Len(conn string) int {
	b.mx.Lock()
	defer b.mx.Unlock()
	return len(b.pending[conn])
}
