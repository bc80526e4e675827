package conversation

import (
	"context"
	"sync"
	"time"
)

// Store keeps conversation state keyed by conversation id. Implementations make
// each Merge atomic per key; turns on different keys never interfere.
type Store interface {
	// Get returns a copy of the state, or a fresh IDLE state for an unknown id.
	Get(ctx context.Context, conversationID string) (State, error)
	// Merge applies p to the stored state, creating it if absent.
	Merge(ctx context.Context, conversationID string, p Patch) (State, error)
	// Reset wipes every slot and returns the conversation to IDLE.
	Reset(ctx context.Context, conversationID string) error
	// Clear forgets the conversation entirely.
	Clear(ctx context.Context, conversationID string) error
}

// SetStage merges a stage change.
func SetStage(ctx context.Context, s Store, conversationID string, stage Stage) (State, error) {
	return s.Merge(ctx, conversationID, Patch{Stage: &stage})
}

// SetSelectedProduct merges a product snapshot.
func SetSelectedProduct(ctx context.Context, s Store, conversationID string, p ProductSnapshot) (State, error) {
	return s.Merge(ctx, conversationID, Patch{SelectedProduct: &p})
}

// SetWanted merges the wanted attributes.
func SetWanted(ctx context.Context, s Store, conversationID string, w Wanted) (State, error) {
	return s.Merge(ctx, conversationID, Patch{Wanted: &w})
}

type memoryEntry struct {
	mu    sync.Mutex
	state State
}

// MemoryStore is an in-process Store with one mutex per conversation.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]*memoryEntry
	now     func() time.Time
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]*memoryEntry),
		now:     time.Now,
	}
}

func (m *MemoryStore) entry(conversationID string, create bool) *memoryEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[conversationID]
	if !ok && create {
		e = &memoryEntry{state: NewState(conversationID)}
		m.entries[conversationID] = e
	}
	return e
}

// Get returns a copy of the state for conversationID.
func (m *MemoryStore) Get(_ context.Context, conversationID string) (State, error) {
	e := m.entry(conversationID, false)
	if e == nil {
		return NewState(conversationID), nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.Clone(), nil
}

// Merge applies p under the conversation's lock.
func (m *MemoryStore) Merge(_ context.Context, conversationID string, p Patch) (State, error) {
	e := m.entry(conversationID, true)
	e.mu.Lock()
	defer e.mu.Unlock()
	e.state.Apply(p)
	e.state.UpdatedAt = m.now()
	return e.state.Clone(), nil
}

// Reset returns the conversation to a fresh IDLE state.
func (m *MemoryStore) Reset(_ context.Context, conversationID string) error {
	e := m.entry(conversationID, true)
	e.mu.Lock()
	defer e.mu.Unlock()
	e.state = NewState(conversationID)
	e.state.UpdatedAt = m.now()
	return nil
}

// Clear removes the conversation.
func (m *MemoryStore) Clear(_ context.Context, conversationID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, conversationID)
	return nil
}

// ResetIdle resets every non-idle conversation that has not changed for
// longer than idleFor and returns how many were reset.
func (m *MemoryStore) ResetIdle(ctx context.Context, idleFor time.Duration) int {
	cutoff := m.now().Add(-idleFor)

	m.mu.Lock()
	ids := make([]string, 0, len(m.entries))
	for id := range m.entries {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	n := 0
	for _, id := range ids {
		e := m.entry(id, false)
		if e == nil {
			continue
		}
		e.mu.Lock()
		if e.state.Stage != StageIdle && e.state.UpdatedAt.Before(cutoff) {
			e.state = NewState(id)
			e.state.UpdatedAt = m.now()
			n++
		}
		e.mu.Unlock()
	}
	return n
}

// Len returns the number of tracked conversations.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}
