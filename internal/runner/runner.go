// Package runner drives one strategy run: once per tick it asks the brain
// for wishes, debounces them through patience, filters them through the
// permission lock, executes what survives and journals the outcome.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alanyoungcy/polytrader/internal/action"
	"github.com/alanyoungcy/polytrader/internal/domain"
	"github.com/alanyoungcy/polytrader/internal/executor"
	"github.com/alanyoungcy/polytrader/internal/journal"
	"github.com/alanyoungcy/polytrader/internal/metrics"
	"github.com/alanyoungcy/polytrader/internal/patience"
	"github.com/alanyoungcy/polytrader/internal/permission"
	"github.com/alanyoungcy/polytrader/internal/strategy"
)

// Owner is the permission lock owner used by the runner for backoff.
const Owner = "runner"

const backoffLabel = "backoff"

// Config controls tick pacing and failure backoff.
type Config struct {
	TickInterval time.Duration
	// BackoffAfterFailures consecutive failed ticks put the lock in backoff.
	BackoffAfterFailures int
	// BackoffIterations clean ticks in backoff release it again.
	BackoffIterations int
}

// Status is a point-in-time view of the run for monitors.
type Status struct {
	RunID               string                  `json:"run_id"`
	Strategy            string                  `json:"strategy"`
	Iteration           int64                   `json:"iteration"`
	InIteration         bool                    `json:"in_iteration"`
	Ticks               int64                   `json:"ticks"`
	LastTick            time.Time               `json:"last_tick"`
	LastError           string                  `json:"last_error,omitempty"`
	ConsecutiveFailures int                     `json:"consecutive_failures"`
	InBackoff           bool                    `json:"in_backoff"`
	LockLevel           int                     `json:"lock_level"`
	LockLabel           string                  `json:"lock_label"`
	LockOwners          map[string]int          `json:"lock_owners"`
	Waiting             []patience.WaitingEntry `json:"waiting"`
	RegisteredActions   int                     `json:"registered_actions"`
}

// Runner holds the per-run state. Tick must be driven by a single
// goroutine; Status may be called concurrently.
type Runner struct {
	cfg      Config
	brain    strategy.Brain
	patience *patience.Patience
	lock     *permission.Lock
	registry *action.Registry
	exec     *executor.Executor
	journal  *journal.Journal
	metrics  *metrics.Metrics
	logger   *slog.Logger

	onBackoff func(entered bool, reason string)

	mu             sync.Mutex
	ticks          int64
	lastTick       time.Time
	lastErr        string
	failures       int
	cleanTicks     int
	holdsBackoff   bool
	backoffCleared bool
}

// New creates a Runner. The lock is shared with other owners; registry must
// be the one the executor registers children in.
func New(
	cfg Config,
	brain strategy.Brain,
	lock *permission.Lock,
	exec *executor.Executor,
	registry *action.Registry,
	j *journal.Journal,
	logger *slog.Logger,
) *Runner {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = time.Second
	}
	return &Runner{
		cfg:      cfg,
		brain:    brain,
		patience: patience.New(),
		lock:     lock,
		registry: registry,
		exec:     exec,
		journal:  j,
		logger:   logger.With(slog.String("component", "runner")),
	}
}

// SetMetrics enables runner metrics.
func (r *Runner) SetMetrics(m *metrics.Metrics) { r.metrics = m }

// OnBackoff registers a callback invoked when the runner enters or leaves
// backoff because of execution failures.
func (r *Runner) OnBackoff(fn func(entered bool, reason string)) { r.onBackoff = fn }

// Run ticks every TickInterval until ctx is done. Only invariant violations
// end the run early.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.Info("runner started",
		slog.String("strategy", r.brain.Name()),
		slog.Duration("tick_interval", r.cfg.TickInterval),
	)
	defer r.logger.Info("runner stopped")

	ticker := time.NewTicker(r.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := r.Tick(ctx); err != nil {
				return err
			}
		}
	}
}

// Tick runs one iteration. Exchange failures are absorbed into the backoff
// policy; the returned error is always a broken invariant.
func (r *Runner) Tick(ctx context.Context) error {
	start := time.Now()

	freeze := r.lock.CurrentLevel() >= permission.LevelSuspend
	wishes, err := r.brain.UpdateStateAndGetActions(ctx, freeze)
	if err != nil {
		r.logger.Warn("brain update failed", slog.String("error", err.Error()))
		wishes = nil
	}
	if freeze && len(wishes) > 0 {
		r.logger.Warn("brain returned wishes while frozen, dropping", slog.Int("count", len(wishes)))
		wishes = nil
	}

	approved, labels, err := r.debounce(wishes)
	if err != nil {
		return err
	}
	iteration := r.patience.IterationNr()

	permitted, all := r.gate(approved, labels)

	execErr := r.exec.Execute(ctx, permitted)
	if errors.Is(execErr, domain.ErrInvalidTransition) || errors.Is(execErr, domain.ErrUnknownAction) {
		return fmt.Errorf("runner: iteration %d: %w", iteration, execErr)
	}
	if err := r.settleFailures(execErr); err != nil {
		return err
	}

	r.record(ctx, iteration, all, labels)
	r.brain.OnExecuted(ctx, all)

	r.metrics.SetPermissionLevel(r.lock.CurrentLevel())
	r.metrics.SetPatienceWaiting(len(r.patience.Snapshot()))
	r.metrics.ObserveTick(time.Since(start))

	r.mu.Lock()
	r.ticks++
	r.lastTick = start
	r.lastErr = ""
	if execErr != nil {
		r.lastErr = execErr.Error()
	}
	r.mu.Unlock()
	return nil
}

// debounce runs the patience bracket over wishes.
func (r *Runner) debounce(wishes []strategy.Wish) ([]action.Action, map[string]string, error) {
	if err := r.patience.StartIteration(); err != nil {
		return nil, nil, fmt.Errorf("runner: %w", err)
	}
	labels := make(map[string]string, len(wishes))
	for _, w := range wishes {
		if _, err := r.patience.ProcActionWish(w.Action, w.Label, w.IterationRequire, w.PauseRelease); err != nil {
			// Close the bracket before bailing out.
			_, _ = r.patience.FinishIteration()
			return nil, nil, fmt.Errorf("runner: %w", err)
		}
		labels[w.Action.ID()] = w.Label
	}
	approved, err := r.patience.FinishIteration()
	if err != nil {
		return nil, nil, fmt.Errorf("runner: %w", err)
	}
	return approved, labels, nil
}

// gate applies the permission lock. Denied actions are aborted. Entering
// backoff queues a single cancel-all per episode ahead of everything else.
// It returns the actions to execute and every action of the iteration.
func (r *Runner) gate(approved []action.Action, labels map[string]string) (permitted, all []action.Action) {
	level := r.lock.CurrentLevel()

	if level == permission.LevelBackoff {
		r.mu.Lock()
		first := !r.backoffCleared
		r.backoffCleared = true
		r.mu.Unlock()
		if first {
			ca := action.NewCancelAllOrders()
			if err := ca.SetApproved(); err == nil {
				labels[ca.ID()] = backoffLabel
				permitted = append(permitted, ca)
				all = append(all, ca)
			}
			r.metrics.IncBackoff()
			r.logger.Warn("backoff entered, cancelling all orders", slog.String("lock_label", r.lock.CurrentLabel()))
		}
	} else {
		r.mu.Lock()
		r.backoffCleared = false
		r.mu.Unlock()
	}

	for _, a := range approved {
		all = append(all, a)
		if permission.PermitsAt(level, a.Kind().IsCancel()) {
			permitted = append(permitted, a)
			continue
		}
		if err := a.SetAborted(); err != nil {
			r.logger.Error("abort denied action", slog.String("action_id", a.ID()), slog.String("error", err.Error()))
			continue
		}
		r.logger.Info("action denied by permission lock",
			slog.String("action_id", a.ID()),
			slog.String("kind", a.Kind().String()),
			slog.Int("lock_level", level),
		)
	}
	return permitted, all
}

// settleFailures counts consecutive failed ticks and moves the runner's own
// backoff lock.
func (r *Runner) settleFailures(execErr error) error {
	r.mu.Lock()
	var enter, leave bool
	if execErr != nil {
		r.failures++
		r.cleanTicks = 0
		if r.cfg.BackoffAfterFailures > 0 && r.failures >= r.cfg.BackoffAfterFailures && !r.holdsBackoff {
			r.holdsBackoff = true
			enter = true
		}
	} else {
		r.failures = 0
		if r.holdsBackoff {
			r.cleanTicks++
			if r.cleanTicks >= r.cfg.BackoffIterations {
				r.holdsBackoff = false
				r.cleanTicks = 0
				leave = true
			}
		}
	}
	failures := r.failures
	r.mu.Unlock()

	switch {
	case enter:
		if err := r.lock.PutBackoff(Owner, true); err != nil {
			return fmt.Errorf("runner: enter backoff: %w", err)
		}
		reason := fmt.Sprintf("%d consecutive failed iterations: %v", failures, execErr)
		r.logger.Error("entering backoff", slog.Int("failures", failures), slog.String("error", execErr.Error()))
		if r.onBackoff != nil {
			r.onBackoff(true, reason)
		}
	case leave:
		if err := r.lock.ReleaseLock(Owner, false); err != nil {
			return fmt.Errorf("runner: leave backoff: %w", err)
		}
		r.logger.Info("leaving backoff", slog.Int("clean_iterations", r.cfg.BackoffIterations))
		if r.onBackoff != nil {
			r.onBackoff(false, fmt.Sprintf("%d clean iterations", r.cfg.BackoffIterations))
		}
	}
	return nil
}

// record journals every action of the iteration, children included, and
// drops composites from the registry.
func (r *Runner) record(ctx context.Context, iteration int64, all []action.Action, labels map[string]string) {
	for _, a := range all {
		label := labels[a.ID()]
		r.journalOne(ctx, iteration, label, a)
		if !a.Kind().IsComposite() {
			continue
		}
		if children, err := r.registry.Children(a.ID()); err == nil {
			for _, c := range children {
				r.journalOne(ctx, iteration, label, c)
			}
		}
		r.registry.Forget(a.ID())
	}
}

func (r *Runner) journalOne(ctx context.Context, iteration int64, label string, a action.Action) {
	r.metrics.ObserveAction(a.Kind().String(), a.State().String())
	if r.journal == nil {
		return
	}
	if err := r.journal.Record(ctx, iteration, label, a); err != nil {
		r.logger.Warn("journal record failed", slog.String("action_id", a.ID()), slog.String("error", err.Error()))
	}
}

// Status returns a snapshot of the run.
func (r *Runner) Status() Status {
	r.mu.Lock()
	st := Status{
		Strategy:            r.brain.Name(),
		Ticks:               r.ticks,
		LastTick:            r.lastTick,
		LastError:           r.lastErr,
		ConsecutiveFailures: r.failures,
		InBackoff:           r.holdsBackoff,
	}
	r.mu.Unlock()

	if r.journal != nil {
		st.RunID = r.journal.RunID()
	}
	st.Iteration = r.patience.IterationNr()
	st.InIteration = r.patience.InIteration()
	st.LockLevel = r.lock.CurrentLevel()
	st.LockLabel = r.lock.CurrentLabel()
	st.LockOwners = r.lock.Owners()
	st.Waiting = r.patience.Snapshot()
	st.RegisteredActions = r.registry.Len()
	return st
}

// Patience exposes the run's patience engine for monitors.
func (r *Runner) Patience() *patience.Patience { return r.patience }
