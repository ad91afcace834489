package scanner

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"dojibot/internal/notify"
	"dojibot/internal/pattern"
	"dojibot/internal/provider"
	"dojibot/internal/ratelimit"
	"dojibot/internal/scheduler"
	"dojibot/internal/signalcache"
	"dojibot/internal/srzone"
	"dojibot/pkg/logger"
	"dojibot/pkg/model"
)

// ProgressCallback is called with progress updates
type ProgressCallback func(scanned, total int)

// SymbolSource lists the symbols to scan
type SymbolSource interface {
	List(ctx context.Context) ([]string, error)
}

// Config holds scan cycle settings
type Config struct {
	Timeframes []model.Timeframe
	Workers    int
	FetchLimit int
	Pacing     time.Duration
	Grace      time.Duration
}

// Outcome classifies what happened to one symbol/timeframe in a cycle
type Outcome string

const (
	OutcomeSignal      Outcome = "signal"
	OutcomeRejected    Outcome = "rejected"
	OutcomeAlreadySent Outcome = "already_sent"
	OutcomeStale       Outcome = "stale"
	OutcomeNotClosed   Outcome = "not_closed"
	OutcomeNoData      Outcome = "no_data"
	OutcomeError       Outcome = "error"
)

// JobResult is the result of evaluating one symbol/timeframe
type JobResult struct {
	Symbol    string
	Timeframe model.Timeframe
	Outcome   Outcome
	Signal    *model.Signal
	Rejection *pattern.Rejection
	Err       error
}

// Batch is the set of job results gathered in one fetch pass
type Batch struct {
	Started time.Time
	Results []JobResult
}

// CycleResult summarises one scan cycle
type CycleResult struct {
	Started    time.Time            `json:"started"`
	Duration   time.Duration        `json:"duration"`
	Jobs       int                  `json:"jobs"`
	Outcomes   map[Outcome]int      `json:"outcomes"`
	Rejections map[pattern.Gate]int `json:"rejections"`
	Signals    []model.Signal       `json:"signals"`
}

// Scanner runs Doji scan cycles over the watchlist
type Scanner struct {
	config       Config
	source       provider.CandleSource
	zones        srzone.ZoneComputer
	engine       *pattern.Engine
	fired        *signalcache.Cache
	notifier     notify.Notifier
	symbols      SymbolSource
	pacer        *ratelimit.Limiter
	now          func() time.Time
	progressFunc ProgressCallback
}

// NewScanner creates a new scanner. zones is usually a *srzone.SnapshotCache
// and fired is owned by the caller so it survives across cycles.
func NewScanner(cfg Config, source provider.CandleSource, zones srzone.ZoneComputer, engine *pattern.Engine,
	fired *signalcache.Cache, n notify.Notifier, symbols SymbolSource) *Scanner {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.FetchLimit < 3 {
		cfg.FetchLimit = 3
	}
	return &Scanner{
		config:   cfg,
		source:   source,
		zones:    zones,
		engine:   engine,
		fired:    fired,
		notifier: n,
		symbols:  symbols,
		pacer:    ratelimit.NewPacer("scan", cfg.Pacing),
		now:      time.Now,
	}
}

// SetProgressCallback sets the progress callback function
func (s *Scanner) SetProgressCallback(fn ProgressCallback) {
	s.progressFunc = fn
}

// SetClock overrides the time source
func (s *Scanner) SetClock(now func() time.Time) {
	s.now = now
}

// Timeframes returns the tracked timeframes
func (s *Scanner) Timeframes() []model.Timeframe {
	return s.config.Timeframes
}

// SignalCache returns the dedup cache
func (s *Scanner) SignalCache() *signalcache.Cache {
	return s.fired
}

type job struct {
	symbol string
	tf     model.Timeframe
}

// ScanOnce fetches, evaluates and dispatches one cycle. A batch cut short by
// cancellation is dropped, so none of its signals are marked or delivered.
func (s *Scanner) ScanOnce(ctx context.Context) (*CycleResult, error) {
	batch, err := s.Fetch(ctx)
	if err != nil {
		return nil, err
	}
	return s.Dispatch(ctx, batch), nil
}

// Fetch evaluates every symbol/timeframe pair. It returns the partial batch
// together with ctx.Err() when cancelled during pacing.
func (s *Scanner) Fetch(ctx context.Context) (*Batch, error) {
	batch := &Batch{Started: s.now()}

	symbols, err := s.symbols.List(ctx)
	if err != nil {
		return nil, err
	}

	jobs := make([]job, 0, len(symbols)*len(s.config.Timeframes))
	for _, sym := range symbols {
		for _, tf := range s.config.Timeframes {
			jobs = append(jobs, job{symbol: sym, tf: tf})
		}
	}
	if len(jobs) == 0 {
		return batch, nil
	}

	jobChan := make(chan job, len(jobs))
	resultChan := make(chan JobResult, len(jobs))

	for _, j := range jobs {
		jobChan <- j
	}
	close(jobChan)

	var scannedCount int64

	workers := s.config.Workers
	if workers > len(jobs) {
		workers = len(jobs)
	}

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobChan {
				if err := s.pacer.Wait(ctx); err != nil {
					return
				}
				resultChan <- s.evaluate(ctx, j.symbol, j.tf)

				count := atomic.AddInt64(&scannedCount, 1)
				if s.progressFunc != nil {
					s.progressFunc(int(count), len(jobs))
				}
			}
		}()
	}

	go func() {
		wg.Wait()
		close(resultChan)
	}()

	for r := range resultChan {
		batch.Results = append(batch.Results, r)
	}

	return batch, ctx.Err()
}

func (s *Scanner) evaluate(ctx context.Context, symbol string, tf model.Timeframe) JobResult {
	res := JobResult{Symbol: symbol, Timeframe: tf}

	candles, err := s.source.FetchCandles(ctx, symbol, tf, s.config.FetchLimit)
	if err != nil {
		return s.failed(res, err)
	}

	now := s.now()
	idx := scheduler.LastSettled(candles, now, s.config.Grace)
	if idx < 1 {
		res.Outcome = OutcomeNotClosed
		return res
	}
	cur, prev := candles[idx], candles[idx-1]

	if s.fired.HasFired(model.NewSignalKey(symbol, tf, cur.CloseTime)) {
		res.Outcome = OutcomeAlreadySent
		return res
	}
	if !scheduler.IsFresh(cur, now, tf) {
		res.Outcome = OutcomeStale
		return res
	}

	cand, rej := s.engine.Candidate(tf, cur, prev)
	if rej != nil {
		res.Outcome = OutcomeRejected
		res.Rejection = rej
		return res
	}

	snap, err := s.zones.ComputeZones(ctx, symbol, tf)
	if err != nil {
		return s.failed(res, err)
	}

	sig, rej := s.engine.Confirm(symbol, tf, cur, cand, snap)
	if rej != nil {
		res.Outcome = OutcomeRejected
		res.Rejection = rej
		return res
	}

	res.Outcome = OutcomeSignal
	res.Signal = sig
	return res
}

func (s *Scanner) failed(res JobResult, err error) JobResult {
	res.Err = err
	switch {
	case errors.Is(err, provider.ErrDataUnavailable):
		res.Outcome = OutcomeNoData
		logger.Info("[SCAN] %s %s: %v", res.Symbol, res.Timeframe, err)
	case provider.IsTransient(err):
		res.Outcome = OutcomeError
		logger.Warn("[SCAN] %s %s: transient fetch error: %v", res.Symbol, res.Timeframe, err)
	default:
		res.Outcome = OutcomeError
		logger.Error("[SCAN] %s %s: %v", res.Symbol, res.Timeframe, err)
	}
	return res
}

// Dispatch marks and delivers the signals in batch. Delivery failures are
// logged and never stop the cycle.
func (s *Scanner) Dispatch(ctx context.Context, batch *Batch) *CycleResult {
	result := &CycleResult{
		Started:    batch.Started,
		Jobs:       len(batch.Results),
		Outcomes:   make(map[Outcome]int),
		Rejections: make(map[pattern.Gate]int),
	}

	for _, r := range batch.Results {
		if r.Outcome == OutcomeSignal {
			key := r.Signal.Key()
			if s.fired.HasFired(key) {
				result.Outcomes[OutcomeAlreadySent]++
				continue
			}
			s.fired.MarkFired(key)
			result.Signals = append(result.Signals, *r.Signal)

			logger.Debug("[SCAN] signal %s %s %s @ %.6g (zone %.6g-%.6g)",
				r.Signal.Direction, r.Symbol, r.Timeframe, r.Signal.Price,
				r.Signal.ConfluenceZone.Low, r.Signal.ConfluenceZone.High)

			if err := s.notifier.Notify(ctx, *r.Signal); err != nil {
				logger.Error("[SCAN] notify %s %s: %v", r.Symbol, r.Timeframe, err)
			}
		}
		if r.Rejection != nil {
			result.Rejections[r.Rejection.Gate]++
			logger.Debug("[SCAN] %s %s rejected at %s", r.Symbol, r.Timeframe, r.Rejection)
		}
		result.Outcomes[r.Outcome]++
	}

	result.Duration = s.now().Sub(batch.Started)
	return result
}
