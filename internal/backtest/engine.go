package backtest

import (
	"context"
	"fmt"
	"time"

	"dojibot/internal/pattern"
	"dojibot/internal/provider"
	"dojibot/internal/srzone"
	"dojibot/pkg/model"
)

// ProgressCallback is called after each evaluated candle
type ProgressCallback func(done, total int)

// ZoneComputer builds a snapshot from a candle window, oldest first.
// *srzone.Calculator satisfies it.
type ZoneComputer interface {
	Compute(symbol string, tf model.Timeframe, candles []model.Candle, now time.Time) (*model.SRSnapshot, error)
}

// Config holds replay parameters
type Config struct {
	Warmup  int // first evaluated index
	Window  int // max candles fed to the zone computer
	Horizon int // bars after a signal used to score it
}

// DefaultConfig derives the warmup and window from the zone settings
func DefaultConfig(sr srzone.Config) Config {
	return Config{
		Warmup:  sr.Loopback + sr.PivotPeriod,
		Window:  sr.HistoryLimit,
		Horizon: 5,
	}
}

// SignalOutcome is a replayed signal and how price moved afterwards
type SignalOutcome struct {
	Signal     model.Signal `json:"signal"`
	Index      int          `json:"index"`
	ExitPrice  float64      `json:"exit_price"`
	ForwardPct float64      `json:"forward_pct"` // signed in the signal direction
	Hit        bool         `json:"hit"`
	Resolved   bool         `json:"resolved"` // false when fewer than Horizon bars followed
}

// Result contains the replay summary
type Result struct {
	Symbol        string               `json:"symbol"`
	Timeframe     model.Timeframe      `json:"timeframe"`
	Period        string               `json:"period"`
	Candles       int                  `json:"candles"`
	Evaluated     int                  `json:"evaluated"`
	Rejections    map[pattern.Gate]int `json:"rejections"`
	Signals       []SignalOutcome      `json:"signals"`
	PassRate      float64              `json:"pass_rate"` // percent of evaluated candles that signalled
	Long          int                  `json:"long"`
	Short         int                  `json:"short"`
	HitRate       float64              `json:"hit_rate"`
	AvgForwardPct float64              `json:"avg_forward_pct"`
	MaxWinStreak  int                  `json:"max_win_streak"`
	MaxLoseStreak int                  `json:"max_lose_streak"`
}

// Backtester replays the signal pipeline over historical candles
type Backtester struct {
	config       Config
	engine       *pattern.Engine
	zones        ZoneComputer
	source       provider.CandleSource
	progressFunc ProgressCallback
}

// NewBacktester creates a new backtester. source may be nil when only
// Replay is used.
func NewBacktester(cfg Config, engine *pattern.Engine, zones ZoneComputer, source provider.CandleSource) *Backtester {
	if cfg.Warmup < 1 {
		cfg.Warmup = 1
	}
	return &Backtester{
		config: cfg,
		engine: engine,
		zones:  zones,
		source: source,
	}
}

// SetProgressCallback sets the progress callback function
func (b *Backtester) SetProgressCallback(fn ProgressCallback) {
	b.progressFunc = fn
}

// Run fetches limit candles for symbol and replays them
func (b *Backtester) Run(ctx context.Context, symbol string, tf model.Timeframe, limit int) (*Result, error) {
	if b.source == nil {
		return nil, fmt.Errorf("backtest: no candle source")
	}
	candles, err := b.source.FetchCandles(ctx, symbol, tf, limit)
	if err != nil {
		return nil, fmt.Errorf("backtest %s %s: %w", symbol, tf, err)
	}
	return b.Replay(symbol, tf, candles)
}

// Replay evaluates every candle from Warmup on against its predecessor,
// with zones computed only from the candles before it.
func (b *Backtester) Replay(symbol string, tf model.Timeframe, candles []model.Candle) (*Result, error) {
	if len(candles) <= b.config.Warmup {
		return nil, fmt.Errorf("backtest %s %s: have %d candles, need more than %d: %w",
			symbol, tf, len(candles), b.config.Warmup, provider.ErrDataUnavailable)
	}

	result := &Result{
		Symbol:     symbol,
		Timeframe:  tf,
		Period:     candles[0].OpenTime.UTC().Format("2006-01-02 15:04") + " ~ " + candles[len(candles)-1].CloseTime.UTC().Format("2006-01-02 15:04"),
		Candles:    len(candles),
		Rejections: make(map[pattern.Gate]int),
	}

	total := len(candles) - b.config.Warmup
	for i := b.config.Warmup; i < len(candles); i++ {
		result.Evaluated++
		b.evaluate(result, symbol, tf, candles, i)
		if b.progressFunc != nil {
			b.progressFunc(result.Evaluated, total)
		}
	}

	b.calculateStats(result)
	return result, nil
}

func (b *Backtester) evaluate(result *Result, symbol string, tf model.Timeframe, candles []model.Candle, i int) {
	cur, prev := candles[i], candles[i-1]

	cand, rej := b.engine.Candidate(tf, cur, prev)
	if rej != nil {
		result.Rejections[rej.Gate]++
		return
	}

	start := 0
	if b.config.Window > 0 && i > b.config.Window {
		start = i - b.config.Window
	}
	snap, err := b.zones.Compute(symbol, tf, candles[start:i], cur.CloseTime)
	if err != nil {
		// not enough history before i counts as no zone
		result.Rejections[pattern.GateConfluence]++
		return
	}

	sig, rej := b.engine.Confirm(symbol, tf, cur, cand, snap)
	if rej != nil {
		result.Rejections[rej.Gate]++
		return
	}

	out := SignalOutcome{Signal: *sig, Index: i}
	if exit := i + b.config.Horizon; b.config.Horizon > 0 && exit < len(candles) {
		out.Resolved = true
		out.ExitPrice = candles[exit].Close
		move := (out.ExitPrice - sig.Price) / sig.Price * 100
		if sig.Direction == model.Short {
			move = -move
		}
		out.ForwardPct = move
		out.Hit = move > 0
	}
	result.Signals = append(result.Signals, out)
}

func (b *Backtester) calculateStats(result *Result) {
	if result.Evaluated > 0 {
		result.PassRate = float64(len(result.Signals)) / float64(result.Evaluated) * 100
	}

	var moves []float64
	hits, winStreak, loseStreak := 0, 0, 0
	for _, s := range result.Signals {
		if s.Signal.Direction == model.Long {
			result.Long++
		} else {
			result.Short++
		}
		if !s.Resolved {
			continue
		}
		moves = append(moves, s.ForwardPct)
		if s.Hit {
			hits++
			winStreak++
			loseStreak = 0
		} else {
			loseStreak++
			winStreak = 0
		}
		if winStreak > result.MaxWinStreak {
			result.MaxWinStreak = winStreak
		}
		if loseStreak > result.MaxLoseStreak {
			result.MaxLoseStreak = loseStreak
		}
	}

	if len(moves) > 0 {
		result.HitRate = float64(hits) / float64(len(moves)) * 100
		result.AvgForwardPct = average(moves)
	}
}

func average(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}
