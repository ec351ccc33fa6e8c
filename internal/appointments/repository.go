package appointments

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Repository defines storage for appointments. Appointments are never deleted.
type Repository interface {
	// Insert stores a new appointment. It fails with ErrSlotConflict when an
	// active appointment already holds the same timestamp.
	Insert(ctx context.Context, appt *Appointment) error
	Get(ctx context.Context, id string) (*Appointment, error)
	List(ctx context.Context) ([]*Appointment, error)
	HasActiveAt(ctx context.Context, at time.Time) (bool, error)
	ActiveTimes(ctx context.Context, from, to time.Time) ([]time.Time, error)
	// TransitionStatus moves id from one status to another, failing with
	// ErrStatusChanged if the stored status is no longer from.
	TransitionStatus(ctx context.Context, id string, from, to Status) (*Appointment, error)
	// MarkConfirmationSent flips the sent flag false->true. It reports false
	// when the flag was already set.
	MarkConfirmationSent(ctx context.Context, id string) (bool, error)
}

// InMemoryRepository keeps appointments in process memory.
type InMemoryRepository struct {
	mu     sync.RWMutex
	byID   map[string]*Appointment
	active map[int64]string
	now    func() time.Time
}

// NewInMemoryRepository creates a new in-memory repository
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		byID:   make(map[string]*Appointment),
		active: make(map[int64]string),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (r *InMemoryRepository) Insert(ctx context.Context, appt *Appointment) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := appt.ScheduledFor.Unix()
	if appt.Status.Active() {
		if _, taken := r.active[key]; taken {
			return ErrSlotConflict
		}
	}
	stored := *appt
	r.byID[appt.ID] = &stored
	if appt.Status.Active() {
		r.active[key] = appt.ID
	}
	return nil
}

func (r *InMemoryRepository) Get(ctx context.Context, id string) (*Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	appt, ok := r.byID[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	out := *appt
	return &out, nil
}

// List returns appointments, latest appointment time first.
func (r *InMemoryRepository) List(ctx context.Context) ([]*Appointment, error) {
	r.mu.RLock()
	out := make([]*Appointment, 0, len(r.byID))
	for _, appt := range r.byID {
		cp := *appt
		out = append(out, &cp)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].ScheduledFor.Equal(out[j].ScheduledFor) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ScheduledFor.After(out[j].ScheduledFor)
	})
	return out, nil
}

func (r *InMemoryRepository) HasActiveAt(ctx context.Context, at time.Time) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, taken := r.active[at.Unix()]
	return taken, nil
}

func (r *InMemoryRepository) ActiveTimes(ctx context.Context, from, to time.Time) ([]time.Time, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []time.Time
	for _, id := range r.active {
		at := r.byID[id].ScheduledFor
		if !at.Before(from) && !at.After(to) {
			out = append(out, at)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out, nil
}

func (r *InMemoryRepository) TransitionStatus(ctx context.Context, id string, from, to Status) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	appt, ok := r.byID[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	if appt.Status != from {
		return nil, ErrStatusChanged
	}
	appt.Status = to
	appt.UpdatedAt = r.now()
	if !to.Active() {
		key := appt.ScheduledFor.Unix()
		if r.active[key] == id {
			delete(r.active, key)
		}
	}
	out := *appt
	return &out, nil
}

func (r *InMemoryRepository) MarkConfirmationSent(ctx context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	appt, ok := r.byID[id]
	if !ok {
		return false, ErrAppointmentNotFound
	}
	if appt.ConfirmationEmailSent {
		return false, nil
	}
	appt.ConfirmationEmailSent = true
	appt.UpdatedAt = r.now()
	return true, nil
}
