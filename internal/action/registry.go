package action

import (
	"fmt"
	"sync"

	"github.com/alanyoungcy/polytrader/internal/domain"
)

// composite is implemented by variants that decompose into children.
type composite interface {
	Action
	SetStateFromAtomicActions(children []Action) error
}

// Registry is the arena every live action is registered in. Parents refer to
// children by id only; Registry resolves those ids.
type Registry struct {
	mu      sync.RWMutex
	actions map[string]Action
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{actions: make(map[string]Action)}
}

// Add registers actions. A nil action or an id already present is an error.
func (r *Registry) Add(as ...Action) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range as {
		if a == nil {
			return fmt.Errorf("action: registry add: nil action: %w", domain.ErrUnknownAction)
		}
		if _, ok := r.actions[a.ID()]; ok {
			return fmt.Errorf("action: registry add %s: %w", a.ID(), domain.ErrAlreadyExists)
		}
		r.actions[a.ID()] = a
	}
	return nil
}

// Get looks up an action by id.
func (r *Registry) Get(id string) (Action, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.actions[id]
	return a, ok
}

// Children resolves the recorded child ids of parentID, in decomposition
// order.
func (r *Registry) Children(parentID string) ([]Action, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	parent, ok := r.actions[parentID]
	if !ok {
		return nil, fmt.Errorf("action: registry children of %s: %w", parentID, domain.ErrNotFound)
	}
	ids := parent.ChildIDs()
	out := make([]Action, 0, len(ids))
	for _, id := range ids {
		c, ok := r.actions[id]
		if !ok {
			return nil, fmt.Errorf("action: registry child %s of %s: %w", id, parentID, domain.ErrNotFound)
		}
		out = append(out, c)
	}
	return out, nil
}

// Settle resolves the children of a composite and derives its final state.
func (r *Registry) Settle(parentID string) error {
	a, ok := r.Get(parentID)
	if !ok {
		return fmt.Errorf("action: settle %s: %w", parentID, domain.ErrNotFound)
	}
	c, ok := a.(composite)
	if !ok {
		return fmt.Errorf("action: settle %s: %s is not composite: %w", parentID, a.Kind(), domain.ErrInvalidTransition)
	}
	children, err := r.Children(parentID)
	if err != nil {
		return err
	}
	return c.SetStateFromAtomicActions(children)
}

// Forget drops an action and its children from the arena.
func (r *Registry) Forget(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.actions[id]
	if !ok {
		return
	}
	for _, cid := range a.ChildIDs() {
		delete(r.actions, cid)
	}
	delete(r.actions, id)
}

// Len reports the number of registered actions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.actions)
}
