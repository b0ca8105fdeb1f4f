package plan

import (
	"errors"
	"fmt"
	"sync"
)

var (
	// ErrPlanNotFound is returned for an unknown plan id.
	ErrPlanNotFound = errors.New("plan not found")
	// ErrPlanExists is returned when creating a plan with a used id.
	ErrPlanExists = errors.New("plan already exists")
	// ErrNoActivePlan is returned when no id is given and no plan is active.
	ErrNoActivePlan = errors.New("no active plan")
)

// Store is an in-memory plan collection with one active plan.
type Store struct {
	mu     sync.RWMutex
	plans  map[string]*Plan
	order  []string
	active string
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{plans: make(map[string]*Plan)}
}

// Create builds a plan, stores it and makes it active.
func (s *Store) Create(id, title string, descriptions []string) (*Plan, error) {
	p, err := New(id, title, descriptions)
	if err != nil {
		return nil, err
	}
	if err := s.Add(p); err != nil {
		return nil, err
	}
	return p, nil
}

// Add stores p and makes it active.
func (s *Store) Add(p *Plan) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.plans[p.ID()]; ok {
		return fmt.Errorf("%w: %s", ErrPlanExists, p.ID())
	}
	s.plans[p.ID()] = p
	s.order = append(s.order, p.ID())
	s.active = p.ID()
	return nil
}

// Get returns the plan with id, or the active plan when id is empty.
func (s *Store) Get(id string) (*Plan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if id == "" {
		if s.active == "" {
			return nil, ErrNoActivePlan
		}
		id = s.active
	}
	p, ok := s.plans[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPlanNotFound, id)
	}
	return p, nil
}

// Active returns the active plan id.
func (s *Store) Active() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active
}

// SetActive makes id the active plan.
func (s *Store) SetActive(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.plans[id]; !ok {
		return fmt.Errorf("%w: %s", ErrPlanNotFound, id)
	}
	s.active = id
	return nil
}

// Delete removes id; deleting the active plan leaves no plan active.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.plans[id]; !ok {
		return fmt.Errorf("%w: %s", ErrPlanNotFound, id)
	}
	delete(s.plans, id)
	for i, v := range s.order {
		if v == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	if s.active == id {
		s.active = ""
	}
	return nil
}

// List returns the plans in creation order.
func (s *Store) List() []*Plan {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Plan, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.plans[id])
	}
	return out
}
