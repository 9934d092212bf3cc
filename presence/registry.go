package presence

import (
	"fmt"
	"sync"
	"time"
)

// Registry owns the session records of a single room. All methods are
// safe for concurrent use and never hand out pointers into its storage.
type Registry struct {
	mu      sync.Mutex
	records map[string]*SessionRecord
	order   []string
	now     func() time.Time
}

func NewRegistry() *Registry {
	return &Registry{
		records: make(map[string]*SessionRecord),
		now:     time.Now,
	}
}

// Register creates a record for id. It never overwrites an existing record.
func (r *Registry) Register(id string, initial *State) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.records[id]; ok {
		return fmt.Errorf("register %s: %w", id, ErrDuplicateConnection)
	}

	now := r.now()
	rec := &SessionRecord{
		ID:        id,
		JoinedAt:  now,
		UpdatedAt: now,
	}
	if initial != nil {
		st := *initial
		rec.State = &st
	}

	r.records[id] = rec
	r.order = append(r.order, id)

	return nil
}

func (r *Registry) UpdateState(id string, s State) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[id]
	if !ok {
		return fmt.Errorf("update %s: %w", id, ErrUnknownConnection)
	}
	rec.State = &s
	rec.UpdatedAt = r.now()

	return nil
}

func (r *Registry) SetUsername(id, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[id]
	if !ok {
		return fmt.Errorf("identify %s: %w", id, ErrUnknownConnection)
	}
	rec.Username = name
	rec.UpdatedAt = r.now()

	return nil
}

// Remove deletes the record for id and returns it. Removing an id that is
// not present is a no-op.
func (r *Registry) Remove(id string) (SessionRecord, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[id]
	if !ok {
		return SessionRecord{}, false
	}
	delete(r.records, id)
	for i, oid := range r.order {
		if oid == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}

	return *rec, true
}

func (r *Registry) Get(id string) (SessionRecord, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[id]
	if !ok {
		return SessionRecord{}, false
	}
	return rec.clone(), true
}

// Snapshot returns every active record in registration order.
func (r *Registry) Snapshot() []SessionRecord {
	r.mu.Lock()
	defer r.mu.Unlock()

	snap := make([]SessionRecord, 0, len(r.order))
	for _, id := range r.order {
		rec := r.records[id]
		if !rec.Active() {
			continue
		}
		snap = append(snap, rec.clone())
	}

	return snap
}

// Len counts every record, active or not.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.records)
}
