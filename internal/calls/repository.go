package calls

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Repository defines storage for call audit records. Calls are never deleted.
type Repository interface {
	Create(ctx context.Context, call *Call) error
	Get(ctx context.Context, id string) (*Call, error)
	GetBySessionRef(ctx context.Context, sessionRef string) (*Call, error)
	List(ctx context.Context) ([]*Call, error)
	Update(ctx context.Context, call *Call) error
}

// InMemoryRepository keeps calls in process memory.
type InMemoryRepository struct {
	mu        sync.RWMutex
	calls     map[string]*Call
	bySession map[string]string
}

// NewInMemoryRepository creates a new in-memory repository
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		calls:     make(map[string]*Call),
		bySession: make(map[string]string),
	}
}

// Create stores a new call.
func (r *InMemoryRepository) Create(ctx context.Context, call *Call) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.bySession[call.SessionRef]; exists {
		return ErrDuplicateSession
	}
	r.calls[call.ID] = call.Clone()
	r.bySession[call.SessionRef] = call.ID
	return nil
}

// Get retrieves a call by ID
func (r *InMemoryRepository) Get(ctx context.Context, id string) (*Call, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	call, ok := r.calls[id]
	if !ok {
		return nil, ErrCallNotFound
	}
	return call.Clone(), nil
}

// GetBySessionRef resolves the external session reference.
func (r *InMemoryRepository) GetBySessionRef(ctx context.Context, sessionRef string) (*Call, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.bySession[sessionRef]
	if !ok {
		return nil, ErrCallNotFound
	}
	return r.calls[id].Clone(), nil
}

// List returns all calls, newest first.
func (r *InMemoryRepository) List(ctx context.Context) ([]*Call, error) {
	r.mu.RLock()
	out := make([]*Call, 0, len(r.calls))
	for _, call := range r.calls {
		out = append(out, call.Clone())
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// Update overwrites the stored call. The consent flag is merged so a stale
// copy can never clear it. Writes to a terminated call, or writes that would
// move status or intake state backward, fail with ErrStaleUpdate.
func (r *InMemoryRepository) Update(ctx context.Context, call *Call) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.calls[call.ID]
	if !ok {
		return ErrCallNotFound
	}
	if err := checkForward(existing, call); err != nil {
		return err
	}
	next := call.Clone()
	next.ConsentToBook = next.ConsentToBook || existing.ConsentToBook
	r.calls[call.ID] = next
	return nil
}

// checkForward mirrors the guard in the Postgres UPDATE.
func checkForward(stored, next *Call) error {
	if stored.Status.Terminal() ||
		next.Status.Rank() < stored.Status.Rank() ||
		next.State.Rank() < stored.State.Rank() {
		return fmt.Errorf("calls: update %s (%s/%s over %s/%s): %w",
			next.ID, next.Status, next.State, stored.Status, stored.State, ErrStaleUpdate)
	}
	return nil
}
