package scanner

import "sync"

// ProgressTracker collects scan progress from concurrent readers.
type ProgressTracker struct {
	mu       sync.Mutex
	progress Progress
	onChange func(Progress)
}

// NewProgressTracker creates a tracker. onChange may be nil; it is called
// without the lock held, with a copy of the progress.
func NewProgressTracker(onChange func(Progress)) *ProgressTracker {
	return &ProgressTracker{
		onChange: onChange,
		progress: Progress{Phase: PhaseListing},
	}
}

// SetPhase starts a new phase with the given total.
func (p *ProgressTracker) SetPhase(phase ScanPhase, total int) {
	p.update(func(pr *Progress) {
		pr.Phase = phase
		pr.Current = 0
		pr.Total = total
		pr.CurrentItem = ""
	})
}

// Increment marks one item of the current phase done.
func (p *ProgressTracker) Increment(item string) {
	p.update(func(pr *Progress) {
		pr.Current++
		pr.CurrentItem = item
	})
}

// AddError records an error.
func (p *ProgressTracker) AddError(err ScanError) {
	p.update(func(pr *Progress) {
		pr.Errors = append(pr.Errors, err)
	})
}

// Get returns a copy of the current progress.
func (p *ProgressTracker) Get() Progress {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.copyLocked()
}

func (p *ProgressTracker) update(fn func(*Progress)) {
	p.mu.Lock()
	fn(&p.progress)
	snap := p.copyLocked()
	p.mu.Unlock()

	if p.onChange != nil {
		p.onChange(snap)
	}
}

func (p *ProgressTracker) copyLocked() Progress {
	out := p.progress
	out.Errors = append([]ScanError(nil), p.progress.Errors...)
	return out
}
