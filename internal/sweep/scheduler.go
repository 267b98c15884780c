// Package sweep drives the periodic evaluation of all open tabs against the
// eviction policy.
package sweep

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/kmorozov/tabreaper/internal/host"
	"github.com/kmorozov/tabreaper/internal/ledger"
	"github.com/kmorozov/tabreaper/internal/policy"
	"github.com/kmorozov/tabreaper/internal/settings"
	"github.com/kmorozov/tabreaper/pkg/models"
)

// DefaultInterval is the sweep cadence.
const DefaultInterval = 60 * time.Second

// hostCallTimeout bounds each browser round-trip inside a sweep.
const hostCallTimeout = 30 * time.Second

// ErrStopped is returned by TriggerNow when the scheduler is not running.
var ErrStopped = errors.New("scheduler is not running")

// Options tune a Scheduler. The zero value selects the defaults.
type Options struct {
	Interval        time.Duration
	UseHostFallback bool

	// PruneOnSweep removes ledger entries for tabs absent from a successful
	// enumeration at the end of each sweep.
	PruneOnSweep bool

	// Now overrides the clock, for tests.
	Now func() time.Time
}

// Scheduler runs one sweep immediately on Start, then repeats at a fixed
// interval. TriggerNow cancels the pending wait, sweeps once, and restarts
// the cadence from that point. Sweeps never run concurrently: a weighted
// semaphore of size one serializes the timer path and the manual path.
type Scheduler struct {
	host     host.TabHost
	ledger   *ledger.Ledger
	settings *settings.Store
	opts     Options

	sem *semaphore.Weighted

	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	timer   *time.Timer
	stopped bool
}

// New creates a scheduler.
func New(h host.TabHost, l *ledger.Ledger, s *settings.Store, opts Options) *Scheduler {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Scheduler{
		host:     h,
		ledger:   l,
		settings: s,
		opts:     opts,
		sem:      semaphore.NewWeighted(1),
		stopped:  true,
	}
}

// Start runs one sweep immediately and then keeps sweeping every interval
// until Stop. Calling Start on a running scheduler is a no-op.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if !s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = false
	s.ctx, s.cancel = context.WithCancel(ctx)
	runCtx := s.ctx
	s.mu.Unlock()

	go func() {
		if _, err := s.sweep(runCtx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("⚠️ Startup sweep failed: %v", err)
		}
		s.schedule()
	}()
}

// Stop cancels the pending timer and any in-flight sweep.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return
	}
	s.stopped = true
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	if s.cancel != nil {
		s.cancel()
	}
}

// TriggerNow cancels the pending scheduled sweep, runs one immediately, and
// resumes the normal cadence from this point.
func (s *Scheduler) TriggerNow() (models.SweepReport, error) {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return models.SweepReport{}, ErrStopped
	}
	// Cancel the pending wait before sweeping so the timer cannot fire a
	// duplicate pass moments later.
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	runCtx := s.ctx
	s.mu.Unlock()

	report, err := s.sweep(runCtx)
	s.schedule()
	return report, err
}

// schedule arms the timer for the next sweep.
func (s *Scheduler) schedule() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return
	}
	if s.timer != nil {
		s.timer.Stop()
	}

	runCtx := s.ctx
	s.timer = time.AfterFunc(s.opts.Interval, func() {
		if _, err := s.sweep(runCtx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("⚠️ Scheduled sweep failed: %v", err)
		}
		s.schedule()
	})
}

// sweep performs one full evaluation pass over all open tabs.
func (s *Scheduler) sweep(ctx context.Context) (models.SweepReport, error) {
	if err := s.sem.Acquire(ctx, 1); err != nil {
		return models.SweepReport{}, err
	}
	defer s.sem.Release(1)

	// One instant for the whole pass, so every tab's age is computed against
	// the same clock reading.
	now := s.opts.Now()
	report := models.SweepReport{
		SweepID:   uuid.New().String()[:8],
		StartedAt: now,
	}

	cfg, err := s.settings.Load()
	if err != nil {
		return report, err
	}

	opCtx, cancel := context.WithTimeout(ctx, hostCallTimeout)
	defer cancel()

	tabs, err := s.host.ListTabs(opCtx)
	if err != nil {
		return report, fmt.Errorf("list tabs: %w", err)
	}

	pol := policy.Config{
		ThresholdMinutes: cfg.Minutes,
		Whitelist:        cfg.Whitelist,
		UseHostFallback:  s.opts.UseHostFallback,
	}

	live := make(map[models.TabID]bool, len(tabs))
	for _, tab := range tabs {
		live[tab.ID] = true
		report.Evaluated++

		var lastAccessed *int64
		if ms, ok := s.ledger.Get(tab.ID); ok {
			lastAccessed = &ms
		}

		verdict, err := policy.Decide(tab, lastAccessed, pol, now)
		if err != nil {
			// Malformed URL: the tab stays, the pass continues.
			report.Errors++
			log.Printf("[sweep %s] ⚠️ %v", report.SweepID, err)
		}

		switch verdict.Kind {
		case models.VerdictClose:
			if err := s.host.CloseTab(opCtx, tab.ID); err != nil {
				report.Errors++
				log.Printf("[sweep %s] ⚠️ Failed to close tab %d: %v", report.SweepID, tab.ID, err)
				continue
			}
			report.Closed++
			log.Printf("[sweep %s] Closed inactive tab %d (%s)", report.SweepID, tab.ID, tab.URL)

		case models.VerdictWarn:
			report.Warned++

		default:
			report.Kept++
		}
	}

	if s.opts.PruneOnSweep {
		report.Pruned = s.ledger.Prune(live)
	}

	return report, nil
}
