// Package lifecycle wires the ledger, observer and scheduler together across
// process starts and stops.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/kmorozov/tabreaper/internal/ledger"
	"github.com/kmorozov/tabreaper/internal/observer"
	"github.com/kmorozov/tabreaper/internal/sweep"
	"github.com/kmorozov/tabreaper/pkg/models"
)

// State is the controller's lifecycle state.
type State string

const (
	StateStopped State = "STOPPED"
	StateRunning State = "RUNNING"
)

// ErrNotRunning is returned for operations that require a running controller.
var ErrNotRunning = errors.New("controller is not running")

// Controller orchestrates cold start, warm restart and shutdown. On every
// transition into RUNNING the persisted ledger is merged into memory with
// newer-wins per tab, so a warm restart keeps whatever activity the previous
// period recorded.
type Controller struct {
	ledger    *ledger.Ledger
	observer  *observer.Observer
	scheduler *sweep.Scheduler

	mu     sync.Mutex
	state  State
	cancel context.CancelFunc
}

// New creates a stopped controller.
func New(l *ledger.Ledger, o *observer.Observer, s *sweep.Scheduler) *Controller {
	return &Controller{
		ledger:    l,
		observer:  o,
		scheduler: s,
		state:     StateStopped,
	}
}

// Start transitions into RUNNING: restore the ledger, start the observer and
// the sweep scheduler. Starting a running controller is a no-op.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateRunning {
		return nil
	}

	if err := c.ledger.Restore(); err != nil {
		return fmt.Errorf("restore ledger: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	go func() {
		if err := c.observer.Run(runCtx); err != nil {
			log.Printf("⚠️ Observer stopped: %v", err)
		}
	}()

	c.scheduler.Start(runCtx)
	c.state = StateRunning
	return nil
}

// Stop transitions into STOPPED: cancel the scheduler's pending timer, stop
// the observer, flush the ledger. The controller can be started again.
func (c *Controller) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateStopped {
		return nil
	}

	c.scheduler.Stop()
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.state = StateStopped

	return c.ledger.Flush()
}

// TriggerNow runs a manual sweep while RUNNING, without changing state.
func (c *Controller) TriggerNow() (models.SweepReport, error) {
	c.mu.Lock()
	state := c.state
	c.mu.Unlock()

	if state != StateRunning {
		return models.SweepReport{}, ErrNotRunning
	}
	return c.scheduler.TriggerNow()
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}
