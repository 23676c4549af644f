// Package batch fans a set of work units out to the worker pool and folds
// their terminal results back into a single BatchResult.
package batch

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/neobackupapp/neobackup-server/internal/domain"
	domainerrors "github.com/neobackupapp/neobackup-server/internal/errors"
	"github.com/neobackupapp/neobackup-server/internal/logger"
)

// historyTimeout bounds persisting a completed batch.
const historyTimeout = 5 * time.Second

// Pool executes work units. report must be called exactly once per
// submitted unit, from any goroutine, in any order.
// CancelBatch must make later submissions of the batch fail until
// ReleaseBatch.
type Pool interface {
	Submit(unit domain.WorkUnit, report func(domain.UnitResult)) error
	CancelBatch(batchName string) int
	ReleaseBatch(batchName string)
}

// HistoryStore persists completed batches.
type HistoryStore interface {
	SaveBatch(ctx context.Context, result domain.BatchResult) error
	GetBatch(ctx context.Context, name string) (*domain.BatchResult, error)
}

// CompleteFunc observes a batch completion.
type CompleteFunc func(domain.BatchResult)

// UnitFunc observes a unit that did not succeed.
type UnitFunc func(batchName string, scheduleID int64, r domain.UnitResult)

// Coordinator owns the running batches.
type Coordinator struct {
	pool    Pool
	history HistoryStore
	logger  *slog.Logger
	now     func() time.Time

	mu        sync.RWMutex
	batches   map[string]*batch
	hooks     []CompleteFunc
	unitHooks []UnitFunc
}

// batch holds the counters of one run. mu is per batch so completions in
// different batches never contend.
type batch struct {
	mu        sync.Mutex
	result    domain.BatchResult
	reported  map[string]struct{}
	completed bool
	onDone    CompleteFunc
	done      chan struct{}
}

// Handle refers to a running or completed batch.
type Handle struct {
	b *batch
}

// New creates a Coordinator. history may be nil.
func New(pool Pool, history HistoryStore, logger *slog.Logger) *Coordinator {
	return &Coordinator{
		pool:    pool,
		history: history,
		logger:  logger,
		now:     time.Now,
		batches: make(map[string]*batch),
	}
}

// OnComplete registers a hook invoked once for every completed batch.
func (c *Coordinator) OnComplete(fn CompleteFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hooks = append(c.hooks, fn)
}

// OnUnitError registers a hook invoked for every failed or cancelled unit.
func (c *Coordinator) OnUnitError(fn UnitFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.unitHooks = append(c.unitHooks, fn)
}

// Run opens the batch and submits every unit. It returns as soon as the
// units are handed to the pool; use the Handle to wait for the result.
// onDone, when non-nil, runs exactly once before the Handle is released.
func (c *Coordinator) Run(ctx context.Context, name string, scheduleID int64, units []domain.WorkUnit, onDone CompleteFunc) (*Handle, error) {
	if len(units) == 0 {
		return nil, domainerrors.EmptySelectionf("batch %q has no work units", name)
	}

	b := &batch{
		result: domain.BatchResult{
			Name:       name,
			ScheduleID: scheduleID,
			Units:      make([]string, 0, len(units)),
			Queued:     len(units),
			Success:    true,
			StartedAt:  c.now(),
		},
		reported: make(map[string]struct{}, len(units)),
		onDone:   onDone,
		done:     make(chan struct{}),
	}
	for _, u := range units {
		b.result.Units = append(b.result.Units, u.ID)
	}

	// The batch is visible before the first submit so Cancel can find it.
	c.mu.Lock()
	if _, exists := c.batches[name]; exists {
		c.mu.Unlock()
		return nil, domainerrors.Conflictf("batch %q is already running", name)
	}
	c.batches[name] = b
	c.mu.Unlock()

	logger.ForBatch(c.logger, name).Info("batch started",
		slog.Int64("schedule_id", scheduleID),
		slog.Int("queued", len(units)),
	)

	for _, u := range units {
		unit := u
		if err := ctx.Err(); err != nil {
			c.report(b, cancelledUnit(unit, "batch aborted before submission"))
			continue
		}
		if b.isCancelled() {
			c.report(b, cancelledUnit(unit, "batch cancelled"))
			continue
		}
		err := c.pool.Submit(unit, func(r domain.UnitResult) {
			if r.UnitID == "" {
				r.UnitID = unit.ID
			}
			if r.PackageName == "" {
				r.PackageName = unit.PackageName
			}
			c.report(b, r)
		})
		if err != nil {
			// A cancel between the check above and Submit makes the pool
			// reject the unit.
			if b.isCancelled() {
				c.report(b, cancelledUnit(unit, "batch cancelled"))
				continue
			}
			c.report(b, domain.UnitResult{
				UnitID:      unit.ID,
				PackageName: unit.PackageName,
				Status:      domain.UnitFailed,
				Error:       err.Error(),
			})
		}
	}

	return &Handle{b: b}, nil
}

func cancelledUnit(u domain.WorkUnit, reason string) domain.UnitResult {
	return domain.UnitResult{
		UnitID:      u.ID,
		PackageName: u.PackageName,
		Status:      domain.UnitCancelled,
		Error:       reason,
	}
}

// report folds one terminal unit event into the batch.
func (c *Coordinator) report(b *batch, r domain.UnitResult) {
	b.mu.Lock()
	if b.completed {
		b.mu.Unlock()
		logger.ForBatch(c.logger, b.result.Name).Warn("unit reported after batch completion",
			slog.String("unit_id", r.UnitID))
		return
	}
	if _, dup := b.reported[r.UnitID]; dup {
		b.mu.Unlock()
		logger.ForBatch(c.logger, b.result.Name).Warn("unit reported twice",
			slog.String("unit_id", r.UnitID))
		return
	}
	b.reported[r.UnitID] = struct{}{}

	b.result.Finished++
	b.result.Success = b.result.Success && r.Succeeded()
	if r.Error != "" {
		b.result.Errors += fmt.Sprintf("%s: %s\n", r.Label(), r.Error)
	}

	var (
		name       = b.result.Name
		scheduleID = b.result.ScheduleID
		finished   = b.result.Finished == b.result.Queued
		result     domain.BatchResult
	)
	if finished {
		b.completed = true
		b.result.CompletedAt = c.now()
		result = b.result
		result.Units = slices.Clone(b.result.Units)
	}
	b.mu.Unlock()

	if !r.Succeeded() {
		logger.ForBatch(c.logger, name).Debug("unit did not succeed",
			slog.String("package", r.PackageName),
			slog.String("status", string(r.Status)),
			slog.String("error", r.Error),
		)
		c.mu.RLock()
		unitHooks := slices.Clone(c.unitHooks)
		c.mu.RUnlock()
		for _, hook := range unitHooks {
			hook(name, scheduleID, r)
		}
	}

	if finished {
		c.complete(b, result)
	}
}

// complete runs only for the event that observed finished == queued.
func (c *Coordinator) complete(b *batch, result domain.BatchResult) {
	c.mu.Lock()
	delete(c.batches, result.Name)
	hooks := slices.Clone(c.hooks)
	c.mu.Unlock()

	if result.Cancelled {
		c.pool.ReleaseBatch(result.Name)
	}

	log := logger.ForBatch(c.logger, result.Name)
	log.Info("batch completed",
		slog.Int64("schedule_id", result.ScheduleID),
		slog.Int("finished", result.Finished),
		slog.Bool("success", result.Success),
		slog.Bool("cancelled", result.Cancelled),
		slog.Duration("duration", result.Duration()),
	)

	if c.history != nil {
		ctx, cancel := context.WithTimeout(context.Background(), historyTimeout)
		if err := c.history.SaveBatch(ctx, result); err != nil {
			log.Error("failed to persist batch", slog.String("error", err.Error()))
		}
		cancel()
	}

	for _, hook := range hooks {
		hook(result)
	}
	if b.onDone != nil {
		b.onDone(result)
	}
	close(b.done)
}

// Cancel stops the pool from starting further units of the batch. Units
// already executing run to completion and are still aggregated.
func (c *Coordinator) Cancel(name string) (int, error) {
	c.mu.RLock()
	b, ok := c.batches[name]
	c.mu.RUnlock()
	if !ok {
		return 0, domainerrors.NotFoundf("no running batch named %q", name)
	}

	b.mu.Lock()
	if b.completed {
		b.mu.Unlock()
		return 0, domainerrors.NotFoundf("no running batch named %q", name)
	}
	b.result.Cancelled = true
	b.mu.Unlock()

	dropped := c.pool.CancelBatch(name)
	// complete may have released the name before CancelBatch recorded it.
	if b.isCompleted() {
		c.pool.ReleaseBatch(name)
	}
	logger.ForBatch(c.logger, name).Info("batch cancelled", slog.Int("dropped", dropped))
	return dropped, nil
}

// Active returns snapshots of the running batches, oldest first.
func (c *Coordinator) Active() []domain.BatchResult {
	c.mu.RLock()
	running := make([]*batch, 0, len(c.batches))
	for _, b := range c.batches {
		running = append(running, b)
	}
	c.mu.RUnlock()

	out := make([]domain.BatchResult, 0, len(running))
	for _, b := range running {
		out = append(out, b.snapshot())
	}
	slices.SortFunc(out, func(a, b domain.BatchResult) int {
		if c := a.StartedAt.Compare(b.StartedAt); c != 0 {
			return c
		}
		return strings.Compare(a.Name, b.Name)
	})
	return out
}

// Get returns a running batch, falling back to history.
func (c *Coordinator) Get(ctx context.Context, name string) (*domain.BatchResult, error) {
	c.mu.RLock()
	b, ok := c.batches[name]
	c.mu.RUnlock()
	if ok {
		snap := b.snapshot()
		return &snap, nil
	}
	if c.history == nil {
		return nil, domainerrors.NotFoundf("batch %q not found", name)
	}
	return c.history.GetBatch(ctx, name)
}

func (b *batch) isCancelled() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.result.Cancelled
}

func (b *batch) isCompleted() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.completed
}

func (b *batch) snapshot() domain.BatchResult {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := b.result
	out.Units = slices.Clone(b.result.Units)
	return out
}

// Name returns the batch name.
func (h *Handle) Name() string {
	return h.b.result.Name
}

// Done is closed after the completion side effects ran.
func (h *Handle) Done() <-chan struct{} {
	return h.b.done
}

// Result returns the aggregate and whether the batch has completed.
func (h *Handle) Result() (domain.BatchResult, bool) {
	select {
	case <-h.b.done:
		return h.b.snapshot(), true
	default:
		return h.b.snapshot(), false
	}
}

// Wait blocks until the batch completes or ctx is done.
func (h *Handle) Wait(ctx context.Context) (domain.BatchResult, error) {
	select {
	case <-h.b.done:
		return h.b.snapshot(), nil
	case <-ctx.Done():
		return domain.BatchResult{}, ctx.Err()
	}
}
