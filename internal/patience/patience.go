// Package patience debounces action requests across strategy iterations.
//
// A request has to be resubmitted with the same dedup key for a number of
// consecutive iterations before it is approved. Missing a single iteration
// forgets the accumulated count.
package patience

import (
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/alanyoungcy/polytrader/internal/action"
	"github.com/alanyoungcy/polytrader/internal/domain"
)

type entry struct {
	iteration int64
	action    action.Action
	count     int
}

// WaitingEntry is a read-only view of one waiting request.
type WaitingEntry struct {
	Key         action.Key `json:"key"`
	Iteration   int64      `json:"iteration"`
	Count       int        `json:"count"`
	ActionID    string     `json:"action_id"`
	Kind        string     `json:"kind"`
	Description string     `json:"description"`
}

// Patience holds the waiting requests of one strategy run. A single
// goroutine is expected to drive the iteration bracket; the mutex only
// protects against concurrent readers such as Snapshot.
type Patience struct {
	mu          sync.Mutex
	waiting     map[action.Key]entry
	passed      []action.Action
	iterationNr int64
	inIteration bool
}

// New creates an empty Patience.
func New() *Patience {
	return &Patience{waiting: make(map[action.Key]entry)}
}

// StartIteration opens the next iteration bracket.
func (p *Patience) StartIteration() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.inIteration {
		return fmt.Errorf("patience: start iteration %d: previous iteration not finished: %w",
			p.iterationNr+1, domain.ErrIterationState)
	}
	p.iterationNr++
	p.inIteration = true
	return nil
}

// ProcActionWish submits a request. With iterationRequire 0 and no
// pauseRelease it is approved at once; otherwise it is approved when its key
// has been seen on iterationRequire further consecutive iterations and
// pauseRelease is off. Approved actions are moved to the Approved state and
// returned by FinishIteration.
func (p *Patience) ProcActionWish(a action.Action, label string, iterationRequire int, pauseRelease bool) (bool, error) {
	if a == nil {
		return false, fmt.Errorf("patience: nil action: %w", domain.ErrUnknownAction)
	}
	if iterationRequire < 0 {
		return false, fmt.Errorf("patience: %s: negative iteration requirement %d: %w",
			a.ID(), iterationRequire, domain.ErrInvalidAction)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.inIteration {
		return false, fmt.Errorf("patience: %s submitted outside an iteration: %w", a.ID(), domain.ErrIterationState)
	}

	urgent := iterationRequire == 0 && !pauseRelease
	key := a.DedupKey(label)

	prev, ok := p.waiting[key]
	if !ok {
		if urgent {
			return p.approve(a)
		}
		p.waiting[key] = entry{iteration: p.iterationNr, action: a}
		return false, nil
	}

	if urgent {
		return p.approveWaiting(key, a)
	}
	// A repeat within the same iteration replaces the action but is not a
	// new observation.
	if prev.iteration == p.iterationNr {
		p.waiting[key] = entry{iteration: p.iterationNr, action: a, count: prev.count}
		return false, nil
	}
	count := prev.count + 1
	if count >= iterationRequire && !pauseRelease {
		return p.approveWaiting(key, a)
	}
	p.waiting[key] = entry{iteration: p.iterationNr, action: a, count: count}
	return false, nil
}

// approveWaiting approves a and drops its waiting entry. The entry is kept
// when approval fails.
func (p *Patience) approveWaiting(key action.Key, a action.Action) (bool, error) {
	ok, err := p.approve(a)
	if err != nil {
		return false, err
	}
	delete(p.waiting, key)
	return ok, nil
}

func (p *Patience) approve(a action.Action) (bool, error) {
	if err := a.SetApproved(); err != nil {
		return false, fmt.Errorf("patience: approve: %w", err)
	}
	p.passed = append(p.passed, a)
	return true, nil
}

// FinishIteration closes the bracket, expires every request that was not
// resubmitted during it and returns the approved actions in submission
// order.
func (p *Patience) FinishIteration() ([]action.Action, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.inIteration {
		return nil, fmt.Errorf("patience: finish iteration %d: not started: %w", p.iterationNr, domain.ErrIterationState)
	}
	for k, e := range p.waiting {
		if e.iteration != p.iterationNr {
			delete(p.waiting, k)
		}
	}
	out := p.passed
	p.passed = nil
	p.inIteration = false
	return out, nil
}

// Clear forgets every waiting and passed action. The iteration counter and
// bracket state are kept.
func (p *Patience) Clear() {
	p.mu.Lock()
	defer p.mu.Unlock()
	clear(p.waiting)
	p.passed = nil
}

// IterationNr returns the number of the current or last iteration.
func (p *Patience) IterationNr() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.iterationNr
}

// InIteration reports whether a bracket is open.
func (p *Patience) InIteration() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.inIteration
}

// Snapshot lists the waiting requests ordered by key.
func (p *Patience) Snapshot() []WaitingEntry {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]WaitingEntry, 0, len(p.waiting))
	for k, e := range p.waiting {
		out = append(out, WaitingEntry{
			Key:         k,
			Iteration:   e.iteration,
			Count:       e.count,
			ActionID:    e.action.ID(),
			Kind:        e.action.Kind().String(),
			Description: e.action.String(),
		})
	}
	slices.SortFunc(out, func(a, b WaitingEntry) int { return strings.Compare(string(a.Key), string(b.Key)) })
	return out
}
