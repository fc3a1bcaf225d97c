// Package permission implements a priority lock registry that restricts what
// a strategy run may do. Any number of owners can hold a level; the highest
// level wins.
package permission

import (
	"fmt"
	"maps"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alanyoungcy/polytrader/internal/domain"
)

// Predefined levels.
const (
	LevelNormalTrade = 0
	LevelCancelOnly  = 10
	LevelSuspend     = 20
	LevelBackoff     = 100

	MaxLevel = LevelBackoff
)

var predefined = map[int]string{
	LevelNormalTrade: "normal_trade",
	LevelCancelOnly:  "cancel_only",
	LevelSuspend:     "suspend",
	LevelBackoff:     "backoff",
}

// Change describes one mutation of the lock, delivered to OnChange observers.
type Change struct {
	Op       string // put, release, sudo_release_all
	Owner    string
	Level    int
	Previous int
	Current  int
	At       time.Time
}

// Lock maps owners to levels. Mutations are serialised; the effective level
// is cached atomically so readers never block.
//
// Observers see changes in mutation order: dispatch holds a second mutex
// across the mutation and the observer calls. Observers may read the lock
// but must not mutate it.
type Lock struct {
	dispatch  sync.Mutex
	mu        sync.Mutex
	owners    map[string]int
	labels    map[int]string
	observers []func(Change)

	current atomic.Int64
}

// New creates a lock with the predefined levels registered and no owners.
func New() *Lock {
	return &Lock{
		owners: make(map[string]int),
		labels: maps.Clone(predefined),
	}
}

// RegisterLevel adds or replaces a custom level label. Predefined levels
// cannot be relabelled.
func (l *Lock) RegisterLevel(level int, label string) error {
	if err := checkLevel(level); err != nil {
		return err
	}
	if _, ok := predefined[level]; ok {
		return fmt.Errorf("permission: register level %d: collides with predefined %q: %w",
			level, predefined[level], domain.ErrLockMisuse)
	}
	if label == "" {
		return fmt.Errorf("permission: register level %d: empty label: %w", level, domain.ErrLockMisuse)
	}
	l.mu.Lock()
	l.labels[level] = label
	l.mu.Unlock()
	return nil
}

// OnChange registers an observer called after every mutation, in mutation
// order and outside the state mutex.
func (l *Lock) OnChange(fn func(Change)) {
	l.mu.Lock()
	l.observers = append(l.observers, fn)
	l.mu.Unlock()
}

// PutLock sets owner's level. An owner already holding a lock is an error
// unless override is set.
func (l *Lock) PutLock(level int, owner string, override bool) error {
	if err := checkLevel(level); err != nil {
		return err
	}
	if owner == "" {
		return fmt.Errorf("permission: put lock: empty owner: %w", domain.ErrLockMisuse)
	}

	l.dispatch.Lock()
	defer l.dispatch.Unlock()
	l.mu.Lock()
	if held, ok := l.owners[owner]; ok && !override {
		l.mu.Unlock()
		return fmt.Errorf("permission: put lock %d for %q: already holds %d: %w",
			level, owner, held, domain.ErrLockMisuse)
	}
	prev := l.recompute()
	l.owners[owner] = level
	ch := Change{Op: "put", Owner: owner, Level: level, Previous: prev, Current: l.recompute()}
	obs := l.observers
	l.mu.Unlock()

	notify(obs, ch)
	return nil
}

// PutBackoff locks owner at the maximum level.
func (l *Lock) PutBackoff(owner string, override bool) error {
	return l.PutLock(LevelBackoff, owner, override)
}

// ReleaseLock removes owner. A missing owner is an error only when
// raiseIfMissing is set.
func (l *Lock) ReleaseLock(owner string, raiseIfMissing bool) error {
	l.dispatch.Lock()
	defer l.dispatch.Unlock()
	l.mu.Lock()
	held, ok := l.owners[owner]
	if !ok {
		l.mu.Unlock()
		if raiseIfMissing {
			return fmt.Errorf("permission: release %q: not held: %w", owner, domain.ErrLockMisuse)
		}
		return nil
	}
	prev := l.recompute()
	delete(l.owners, owner)
	ch := Change{Op: "release", Owner: owner, Level: held, Previous: prev, Current: l.recompute()}
	obs := l.observers
	l.mu.Unlock()

	notify(obs, ch)
	return nil
}

// SudoReleaseAll drops every owner to LevelNormalTrade without removing
// them, so owners can still release their own lock later.
func (l *Lock) SudoReleaseAll() {
	l.dispatch.Lock()
	defer l.dispatch.Unlock()
	l.mu.Lock()
	prev := l.recompute()
	for owner := range l.owners {
		l.owners[owner] = LevelNormalTrade
	}
	ch := Change{Op: "sudo_release_all", Previous: prev, Current: l.recompute()}
	obs := l.observers
	l.mu.Unlock()

	notify(obs, ch)
}

// CurrentLevel returns the highest level held, 0 without owners. It reads
// the cached value and may lag a concurrent mutation.
func (l *Lock) CurrentLevel() int {
	return int(l.current.Load())
}

// CurrentLabel returns the label of CurrentLevel, or its decimal form when
// no label is registered.
func (l *Lock) CurrentLabel() string {
	return l.Label(l.CurrentLevel())
}

// Label returns the registered label of level.
func (l *Lock) Label(level int) string {
	l.mu.Lock()
	defer l.mu.Unlock()
	if s, ok := l.labels[level]; ok {
		return s
	}
	return strconv.Itoa(level)
}

// Owners returns a snapshot of owner levels.
func (l *Lock) Owners() map[string]int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return maps.Clone(l.owners)
}

// Permits reports whether an action may run at the current level.
func (l *Lock) Permits(isCancel bool) bool {
	return PermitsAt(l.CurrentLevel(), isCancel)
}

// PermitsAt applies the level policy: normal trading allows everything,
// suspend allows nothing, any other level from cancel_only up allows
// cancels only. Custom levels below cancel_only trade normally.
func PermitsAt(level int, isCancel bool) bool {
	switch {
	case level < LevelCancelOnly:
		return true
	case level == LevelSuspend:
		return false
	default:
		return isCancel
	}
}

// recompute refreshes the cached level and returns it. Callers hold mu.
func (l *Lock) recompute() int {
	top := LevelNormalTrade
	for _, lv := range l.owners {
		top = max(top, lv)
	}
	l.current.Store(int64(top))
	return top
}

func notify(obs []func(Change), ch Change) {
	ch.At = time.Now()
	for _, fn := range obs {
		fn(ch)
	}
}

func checkLevel(level int) error {
	if level < LevelNormalTrade || level > MaxLevel {
		return fmt.Errorf("permission: level %d outside [%d, %d]: %w",
			level, LevelNormalTrade, MaxLevel, domain.ErrLockMisuse)
	}
	return nil
}
