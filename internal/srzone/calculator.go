package srzone

import (
	"context"
	"fmt"
	"time"

	"dojibot/internal/provider"
	"dojibot/pkg/model"
)

// ErrDataUnavailable is returned when there is not enough history for the lookback window
var ErrDataUnavailable = provider.ErrDataUnavailable

// Config holds support/resistance settings
type Config struct {
	PivotPeriod     int     `yaml:"pivot_period"`      // bars on each side of a pivot
	ChannelWidthPct float64 `yaml:"channel_width_pct"` // percent of the 300-bar range
	MinStrength     int     `yaml:"min_strength"`      // minimum pivots per channel
	MaxNumSR        int     `yaml:"max_num_sr"`
	Loopback        int     `yaml:"loopback"`
	HistoryLimit    int     `yaml:"history_limit"` // candles fetched per computation
	WidthWindow     int     `yaml:"width_window"`
}

// DefaultConfig returns the default S/R configuration
func DefaultConfig() Config {
	return Config{
		PivotPeriod:     10,
		ChannelWidthPct: 5,
		MinStrength:     1,
		MaxNumSR:        6,
		Loopback:        290,
		HistoryLimit:    500,
		WidthWindow:     300,
	}
}

// Validate checks the S/R configuration
func (c Config) Validate() error {
	if c.PivotPeriod < 1 {
		return fmt.Errorf("pivot_period must be at least 1")
	}
	if c.ChannelWidthPct <= 0 || c.ChannelWidthPct > 100 {
		return fmt.Errorf("channel_width_pct must be in (0, 100]")
	}
	if c.MinStrength < 1 {
		return fmt.Errorf("min_strength must be at least 1")
	}
	if c.MaxNumSR < 1 {
		return fmt.Errorf("max_num_sr must be at least 1")
	}
	if c.Loopback < 2*c.PivotPeriod+1 {
		return fmt.Errorf("loopback must cover at least one pivot window (%d bars)", 2*c.PivotPeriod+1)
	}
	if c.HistoryLimit < c.Loopback {
		return fmt.Errorf("history_limit (%d) must not be below loopback (%d)", c.HistoryLimit, c.Loopback)
	}
	if c.WidthWindow < 1 {
		return fmt.Errorf("width_window must be at least 1")
	}
	return nil
}

// Calculator derives support/resistance zones from pivot points
type Calculator struct {
	config Config
	source provider.CandleSource
	now    func() time.Time
}

// NewCalculator creates a calculator reading history from source
func NewCalculator(cfg Config, source provider.CandleSource) *Calculator {
	return &Calculator{
		config: cfg,
		source: source,
		now:    time.Now,
	}
}

// Config returns the calculator settings
func (c *Calculator) Config() Config {
	return c.config
}

// ComputeZones fetches history for symbol/tf and computes its snapshot
func (c *Calculator) ComputeZones(ctx context.Context, symbol string, tf model.Timeframe) (*model.SRSnapshot, error) {
	candles, err := c.source.FetchCandles(ctx, symbol, tf, c.config.HistoryLimit)
	if err != nil {
		return nil, fmt.Errorf("fetching history for %s %s: %w", symbol, tf, err)
	}
	return c.Compute(symbol, tf, candles, c.now())
}

// Compute builds a snapshot from candles, oldest first. The last candle's
// close is taken as the current price.
func (c *Calculator) Compute(symbol string, tf model.Timeframe, candles []model.Candle, now time.Time) (*model.SRSnapshot, error) {
	if len(candles) < c.config.Loopback {
		return nil, fmt.Errorf("%s %s: have %d candles, need %d: %w",
			symbol, tf, len(candles), c.config.Loopback, ErrDataUnavailable)
	}

	price := candles[len(candles)-1].Close
	snap := &model.SRSnapshot{
		Symbol:       symbol,
		Timeframe:    tf,
		CurrentPrice: price,
		ComputedAt:   now,
	}

	pivots := FindPivots(candles, c.config.PivotPeriod, c.config.Loopback)
	if len(pivots) < 2 {
		return snap, nil
	}

	width := ChannelWidth(candles, c.config.WidthWindow, c.config.ChannelWidthPct)
	channels := BuildChannels(pivots, width)
	AugmentStrength(channels, candles, c.config.Loopback)
	kept := SelectChannels(channels, c.config.MinStrength, c.config.MaxNumSR)

	snap.SupportZones, snap.ResistanceZones = Classify(kept, price)
	return snap, nil
}
