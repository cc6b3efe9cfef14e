package usecase

import (
	"fmt"
	"sync"

	"github.com/medicompare/backend/internal/domain"
)

// ResolutionMachine owns the set of pending items and tracks each one through
// Pending -> Matched or Pending -> Dismissed. Both are terminal: the id is
// remembered and never re-displayed or reused.
type ResolutionMachine struct {
	mu       sync.Mutex
	order    []string
	items    map[string]*domain.PendingItem
	terminal map[string]domain.ItemState
}

// NewResolutionMachine creates an empty machine
func NewResolutionMachine() *ResolutionMachine {
	return &ResolutionMachine{
		items:    make(map[string]*domain.PendingItem),
		terminal: make(map[string]domain.ItemState),
	}
}

// Enqueue creates a pending item for a detected item that did not auto-match.
// A reused id is a defect and is rejected.
func (m *ResolutionMachine) Enqueue(item domain.DetectedItem, suggestions []domain.Candidate) (domain.PendingItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if item.ID == "" {
		return domain.PendingItem{}, fmt.Errorf("%w: empty item id", domain.ErrInvalidInput)
	}
	if _, ok := m.items[item.ID]; ok {
		return domain.PendingItem{}, fmt.Errorf("%w: duplicate item id %s", domain.ErrInvalidInput, item.ID)
	}
	if _, ok := m.terminal[item.ID]; ok {
		return domain.PendingItem{}, fmt.Errorf("%w: item id %s already used", domain.ErrInvalidInput, item.ID)
	}

	p := &domain.PendingItem{
		ID:           item.ID,
		DetectedText: item.Text,
		CurrentQuery: item.Text,
		Suggestions:  cloneCandidates(suggestions),
	}
	m.items[item.ID] = p
	m.order = append(m.order, item.ID)
	return clonePending(p), nil
}

// Get returns a pending item by id
func (m *ResolutionMachine) Get(id string) (domain.PendingItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.items[id]
	if !ok {
		return domain.PendingItem{}, domain.ErrItemNotFound
	}
	return clonePending(p), nil
}

// List returns all pending items in creation order
func (m *ResolutionMachine) List() []domain.PendingItem {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]domain.PendingItem, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, clonePending(m.items[id]))
	}
	return out
}

// Len returns the number of pending items
func (m *ResolutionMachine) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.order)
}

// UpdateQuery changes the resolver query of a pending item; detectedText is kept
func (m *ResolutionMachine) UpdateQuery(id, query string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.items[id]
	if !ok {
		return domain.ErrItemNotFound
	}
	p.CurrentQuery = query
	return nil
}

// SetSuggestions replaces the suggestion list of a pending item
func (m *ResolutionMachine) SetSuggestions(id string, suggestions []domain.Candidate) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.items[id]
	if !ok {
		return domain.ErrItemNotFound
	}
	p.Suggestions = cloneCandidates(suggestions)
	return nil
}

// Resolve moves an item to Matched and removes it from the active set
func (m *ResolutionMachine) Resolve(id string) (domain.PendingItem, error) {
	return m.finish(id, domain.StateMatched)
}

// Dismiss moves an item to Dismissed and removes it from the active set
func (m *ResolutionMachine) Dismiss(id string) (domain.PendingItem, error) {
	return m.finish(id, domain.StateDismissed)
}

// State returns the lifecycle state of an id
func (m *ResolutionMachine) State(id string) domain.ItemState {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.items[id]; ok {
		return domain.StatePending
	}
	return m.terminal[id]
}

func (m *ResolutionMachine) finish(id string, state domain.ItemState) (domain.PendingItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.items[id]
	if !ok {
		return domain.PendingItem{}, domain.ErrItemNotFound
	}

	delete(m.items, id)
	for i, oid := range m.order {
		if oid == id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	m.terminal[id] = state
	return clonePending(p), nil
}

func clonePending(p *domain.PendingItem) domain.PendingItem {
	out := *p
	out.Suggestions = cloneCandidates(p.Suggestions)
	return out
}

func cloneCandidates(list []domain.Candidate) []domain.Candidate {
	if list == nil {
		return []domain.Candidate{}
	}
	out := make([]domain.Candidate, len(list))
	copy(out, list)
	return out
}
