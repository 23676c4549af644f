// Package worker runs work units on a fixed set of goroutines.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/neobackupapp/neobackup-server/internal/domain"
)

var (
	// ErrStopped is returned by Submit after Stop.
	ErrStopped = errors.New("worker pool stopped")
	// ErrBatchCancelled is returned by Submit for a unit of a cancelled batch.
	ErrBatchCancelled = errors.New("batch cancelled")
)

// pollInterval is how often idle workers look for jobs in case a
// notification was missed.
const pollInterval = 5 * time.Second

// Executor performs one unit. The returned label names the package for
// error aggregation and may be empty.
type Executor interface {
	Execute(ctx context.Context, unit domain.WorkUnit) (label string, err error)
}

// ExecutorFunc adapts a function to Executor.
type ExecutorFunc func(ctx context.Context, unit domain.WorkUnit) (string, error)

// Execute calls f.
func (f ExecutorFunc) Execute(ctx context.Context, unit domain.WorkUnit) (string, error) {
	return f(ctx, unit)
}

type job struct {
	unit   domain.WorkUnit
	report func(domain.UnitResult)
}

// Pool is a FIFO queue served by N workers.
type Pool struct {
	exec    Executor
	logger  *slog.Logger
	workers int

	// Worker management
	ctx       context.Context //nolint:containedctx // Context needed for worker lifecycle management
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	jobNotify chan struct{}

	mu        sync.Mutex
	queue     []job
	cancelled map[string]struct{}
	running   int
	started bool
	stopped bool
}

// New creates a pool. Call Start to launch the workers.
func New(exec Executor, workers int, logger *slog.Logger) *Pool {
	if workers < 1 {
		workers = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		exec:      exec,
		logger:    logger,
		workers:   workers,
		ctx:       ctx,
		cancel:    cancel,
		jobNotify: make(chan struct{}, 1),
		cancelled: make(map[string]struct{}),
	}
}

// Start launches the workers. Calling it twice is a no-op.
func (p *Pool) Start() {
	p.mu.Lock()
	if p.started || p.stopped {
		p.mu.Unlock()
		return
	}
	p.started = true
	p.mu.Unlock()

	p.logger.Info("starting backup workers", slog.Int("workers", p.workers))
	for i := range p.workers {
		p.wg.Add(1)
		go p.worker(i)
	}
}

// Stop waits for in-flight units and reports every queued unit as cancelled.
func (p *Pool) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	p.mu.Unlock()

	p.logger.Info("stopping backup workers")
	p.cancel()
	p.wg.Wait()

	p.mu.Lock()
	pending := p.queue
	p.queue = nil
	p.mu.Unlock()
	for _, j := range pending {
		j.report(cancelledResult(j.unit, "worker pool stopped"))
	}
	p.logger.Info("backup workers stopped", slog.Int("dropped", len(pending)))
}

// Shutdown implements do.Shutdowner.
func (p *Pool) Shutdown() error {
	p.Stop()
	return nil
}

// Submit queues a unit. report is called exactly once when it terminates.
func (p *Pool) Submit(unit domain.WorkUnit, report func(domain.UnitResult)) error {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return ErrStopped
	}
	if _, ok := p.cancelled[unit.BatchName]; ok {
		p.mu.Unlock()
		return ErrBatchCancelled
	}
	p.queue = append(p.queue, job{unit: unit, report: report})
	p.mu.Unlock()

	p.notify()
	return nil
}

// CancelBatch drops every queued unit of the batch and reports it as
// cancelled. Later submissions for the batch are rejected until
// ReleaseBatch. Units already executing are left alone.
func (p *Pool) CancelBatch(batchName string) int {
	p.mu.Lock()
	p.cancelled[batchName] = struct{}{}
	var dropped []job
	kept := p.queue[:0]
	for _, j := range p.queue {
		if j.unit.BatchName == batchName {
			dropped = append(dropped, j)
			continue
		}
		kept = append(kept, j)
	}
	// clear the tail so dropped reports can be collected
	for i := len(kept); i < len(p.queue); i++ {
		p.queue[i] = job{}
	}
	p.queue = kept
	p.mu.Unlock()

	for _, j := range dropped {
		j.report(cancelledResult(j.unit, "batch cancelled"))
	}
	return len(dropped)
}

// ReleaseBatch forgets a cancelled batch name so it can be reused.
func (p *Pool) ReleaseBatch(batchName string) {
	p.mu.Lock()
	delete(p.cancelled, batchName)
	p.mu.Unlock()
}

// Stats returns the number of queued and executing units.
func (p *Pool) Stats() (queued, running int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.queue), p.running
}

func (p *Pool) notify() {
	select {
	case p.jobNotify <- struct{}{}:
	default:
		// Already notified
	}
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()

	p.logger.Debug("backup worker started", slog.Int("worker_id", id))

	for {
		select {
		case <-p.ctx.Done():
			p.logger.Debug("backup worker stopping", slog.Int("worker_id", id))
			return
		case <-p.jobNotify:
			p.drain(id)
		case <-time.After(pollInterval):
			p.drain(id)
		}
	}
}

// drain runs jobs until the queue is empty or the pool stops.
func (p *Pool) drain(workerID int) {
	for {
		if p.ctx.Err() != nil {
			return
		}
		j, ok := p.next()
		if !ok {
			return
		}
		p.run(workerID, j)
	}
}

func (p *Pool) next() (job, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.queue) == 0 {
		return job{}, false
	}
	j := p.queue[0]
	p.queue[0] = job{}
	p.queue = p.queue[1:]
	p.running++
	if len(p.queue) > 0 {
		p.notify()
	}
	return j, true
}

func (p *Pool) run(workerID int, j job) {
	result := domain.UnitResult{
		UnitID:      j.unit.ID,
		PackageName: j.unit.PackageName,
	}

	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("work unit panicked",
				slog.Int("worker_id", workerID),
				slog.String("unit_id", j.unit.ID),
				slog.String("package", j.unit.PackageName),
				slog.Any("panic", r),
			)
			result.Status = domain.UnitFailed
			result.Error = fmt.Sprintf("panic: %v", r)
		}
		p.mu.Lock()
		p.running--
		p.mu.Unlock()
		j.report(result)
	}()

	p.logger.Debug("running work unit",
		slog.Int("worker_id", workerID),
		slog.String("unit_id", j.unit.ID),
		slog.String("package", j.unit.PackageName),
		slog.String("direction", string(j.unit.Direction)),
		slog.String("batch", j.unit.BatchName),
	)

	label, err := p.exec.Execute(p.ctx, j.unit)
	result.PackageLabel = label
	switch {
	case err == nil:
		result.Status = domain.UnitSucceeded
	case errors.Is(err, context.Canceled):
		result.Status = domain.UnitCancelled
		result.Error = err.Error()
	default:
		result.Status = domain.UnitFailed
		result.Error = err.Error()
	}
}

func cancelledResult(u domain.WorkUnit, reason string) domain.UnitResult {
	return domain.UnitResult{
		UnitID:      u.ID,
		PackageName: u.PackageName,
		Status:      domain.UnitCancelled,
		Error:       reason,
	}
}
