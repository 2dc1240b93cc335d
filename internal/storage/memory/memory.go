package memory

import (
	"context"
	"sync"

	"github.com/meshcompute/inference-marketplace/internal/storage"
)

// Memory is a thread-safe in-memory Store. Direct (non-transactional) calls
// lock for the duration of the call; BeginSerializable locks for the
// duration of the whole transaction and hands back a snapshot that only
// becomes visible to other callers on Commit.
type Memory struct {
	mu  sync.Mutex
	cur *store
}

// NewMemory returns an empty in-memory Store.
func NewMemory() *Memory {
	return &Memory{cur: newStore()}
}

var _ storage.Store = (*Memory)(nil)

// BeginSerializable locks the store and returns a transaction operating on
// a private snapshot; no other caller observes its writes until Commit.
func (m *Memory) BeginSerializable(_ context.Context) (storage.Tx, error) {
	m.mu.Lock()
	return &memTx{memory: m, store: m.cur.clone()}, nil
}
