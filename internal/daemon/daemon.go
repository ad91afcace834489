package daemon

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"dojibot/internal/scanner"
	"dojibot/internal/scheduler"
	"dojibot/pkg/logger"
	"dojibot/pkg/model"
)

// State of the scan loop
type State string

const (
	StateIdle       State = "idle"
	StateFetching   State = "fetching"
	StateEvaluating State = "evaluating"
	StateSleeping   State = "sleeping"
	StateStopped    State = "stopped"
)

// Config holds loop settings
type Config struct {
	Timeframes   []model.Timeframe
	ErrorBackoff time.Duration // sleep after a failed or panicked cycle
}

// DefaultConfig returns the standard loop settings
func DefaultConfig() Config {
	return Config{
		Timeframes:   []model.Timeframe{model.TF1h, model.TF4h, model.TF1d},
		ErrorBackoff: 10 * time.Second,
	}
}

// Status is a point-in-time view of the daemon
type Status struct {
	State     State                `json:"state"`
	Ready     bool                 `json:"ready"`
	Cycles    int                  `json:"cycles"`
	Failures  int                  `json:"failures"`
	LastError string               `json:"last_error,omitempty"`
	LastCycle *scanner.CycleResult `json:"last_cycle,omitempty"`
	NextPoll  time.Duration        `json:"next_poll"`
	NextWake  time.Time            `json:"next_wake"`
	Today     DailyState           `json:"today"`
}

// Daemon drives scan cycles until stopped
type Daemon struct {
	config  Config
	scanner *scanner.Scanner
	tracker *DailyTracker

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	mu        sync.RWMutex
	state     State
	cycles    int
	failures  int
	lastErr   string
	lastCycle *scanner.CycleResult
	nextPoll  time.Duration
	nextWake  time.Time
}

func NewDaemon(cfg Config, sc *scanner.Scanner) *Daemon {
	if cfg.ErrorBackoff <= 0 {
		cfg.ErrorBackoff = DefaultConfig().ErrorBackoff
	}
	if len(cfg.Timeframes) == 0 {
		cfg.Timeframes = sc.Timeframes()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Daemon{
		config:  cfg,
		scanner: sc,
		tracker: NewDailyTracker(),
		now:     time.Now,
		sleep:   sleepCtx,
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
		state:   StateIdle,
	}
}

// Run blocks in the scan loop until Stop is called
func (d *Daemon) Run() error {
	defer close(d.done)
	logger.Info("[DAEMON] Starting scan loop (timeframes %v)", d.config.Timeframes)

	for {
		if d.ctx.Err() != nil {
			return d.shutdown("cancelled")
		}

		err := d.runCycle()
		// delay is taken from the clock after the cycle
		delay := scheduler.NextPollDelay(d.now(), d.config.Timeframes)
		if err != nil {
			if d.ctx.Err() != nil {
				return d.shutdown("cancelled")
			}
			d.recordFailure(err)
			delay = d.config.ErrorBackoff
			logger.Warn("[DAEMON] Cycle failed, backing off %s: %v", scheduler.FormatDuration(delay), err)
		}

		d.mu.Lock()
		d.state = StateSleeping
		d.nextPoll = delay
		d.nextWake = d.now().Add(delay)
		d.mu.Unlock()

		logger.Debug("[DAEMON] Sleeping %s", scheduler.FormatDuration(delay))
		if err := d.sleep(d.ctx, delay); err != nil {
			return d.shutdown("cancelled")
		}
	}
}

// runCycle runs one fetch/evaluate pass. Panics are converted to errors.
func (d *Daemon) runCycle() (err error) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("[DAEMON] Panic in scan cycle: %v\n%s", r, debug.Stack())
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	d.setState(StateFetching)
	batch, err := d.scanner.Fetch(d.ctx)
	if batch == nil {
		return err
	}
	if err != nil {
		// cancelled mid-fetch: the partial batch is dropped unmarked
		return err
	}

	d.setState(StateEvaluating)
	res := d.scanner.Dispatch(d.ctx, batch)
	d.tracker.Record(res, d.now())

	d.mu.Lock()
	d.cycles++
	d.lastCycle = res
	d.lastErr = ""
	d.mu.Unlock()

	logger.Info("[DAEMON] Cycle %d: %d jobs, %d signals in %s (rejected %d, stale %d, no data %d, errors %d)",
		d.Cycles(), res.Jobs, len(res.Signals), res.Duration.Round(time.Millisecond),
		res.Outcomes[scanner.OutcomeRejected], res.Outcomes[scanner.OutcomeStale],
		res.Outcomes[scanner.OutcomeNoData], res.Outcomes[scanner.OutcomeError])
	return nil
}

func (d *Daemon) recordFailure(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failures++
	d.lastErr = err.Error()
}

func (d *Daemon) setState(s State) {
	d.mu.Lock()
	d.state = s
	d.mu.Unlock()
}

func (d *Daemon) shutdown(reason string) error {
	d.setState(StateStopped)
	logger.Info("[DAEMON] Shutting down. Reason: %s", reason)
	logger.Info("[DAEMON] %s", d.tracker.GenerateReport())
	return nil
}

// Stop cancels the loop; Run returns once the current wait ends
func (d *Daemon) Stop() {
	logger.Info("[DAEMON] Stop requested...")
	d.cancel()
}

// Done is closed when Run returns
func (d *Daemon) Done() <-chan struct{} {
	return d.done
}

// Cycles returns the number of completed cycles
func (d *Daemon) Cycles() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.cycles
}

// Ready reports whether at least one cycle completed
func (d *Daemon) Ready() bool {
	return d.Cycles() > 0
}

// Status returns a snapshot of the loop state
func (d *Daemon) Status() Status {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return Status{
		State:     d.state,
		Ready:     d.cycles > 0,
		Cycles:    d.cycles,
		Failures:  d.failures,
		LastError: d.lastErr,
		LastCycle: d.lastCycle,
		NextPoll:  d.nextPoll,
		NextWake:  d.nextWake,
		Today:     d.tracker.State(),
	}
}

// Scanner returns the scanner driven by the daemon
func (d *Daemon) Scanner() *scanner.Scanner {
	return d.scanner
}

func sleepCtx(ctx context.Context, dur time.Duration) error {
	t := time.NewTimer(dur)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
