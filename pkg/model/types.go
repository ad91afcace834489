package model

import (
	"fmt"
	"math"
	"time"
)

// Candle represents a single closed (or forming) OHLCV bar
type Candle struct {
	OpenTime  time.Time `json:"open_time"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
	CloseTime time.Time `json:"close_time"`
}

// Body returns |close - open|
func (c Candle) Body() float64 { return math.Abs(c.Close - c.Open) }

// Range returns high - low
func (c Candle) Range() float64 { return c.High - c.Low }

// UpperShadow returns the distance from the top of the body to the high
func (c Candle) UpperShadow() float64 { return c.High - math.Max(c.Open, c.Close) }

// LowerShadow returns the distance from the low to the bottom of the body
func (c Candle) LowerShadow() float64 { return math.Min(c.Open, c.Close) - c.Low }

func (c Candle) IsBullish() bool { return c.Close > c.Open }
func (c Candle) IsBearish() bool { return c.Close < c.Open }

// Valid reports whether the OHLC values are internally consistent
func (c Candle) Valid() bool {
	return c.High >= math.Max(c.Open, c.Close) && c.Low <= math.Min(c.Open, c.Close)
}

// Timeframe is a candle aggregation period
type Timeframe string

const (
	TF1h Timeframe = "1h"
	TF2h Timeframe = "2h"
	TF4h Timeframe = "4h"
	TF1d Timeframe = "1d"
)

// Timeframes lists every supported timeframe, shortest first
var Timeframes = []Timeframe{TF1h, TF2h, TF4h, TF1d}

// ParseTimeframe converts a string like "4h" into a Timeframe
func ParseTimeframe(s string) (Timeframe, error) {
	tf := Timeframe(s)
	if tf.Duration() == 0 {
		return "", fmt.Errorf("unsupported timeframe %q", s)
	}
	return tf, nil
}

// Duration returns the length of one candle, or 0 for unknown values
func (tf Timeframe) Duration() time.Duration {
	switch tf {
	case TF1h:
		return time.Hour
	case TF2h:
		return 2 * time.Hour
	case TF4h:
		return 4 * time.Hour
	case TF1d:
		return 24 * time.Hour
	}
	return 0
}

// IsDaily reports whether the timeframe is the daily one
func (tf Timeframe) IsDaily() bool { return tf == TF1d }

// Label returns a human-readable name, e.g. "H4 (4 hours)"
func (tf Timeframe) Label() string {
	switch tf {
	case TF1h:
		return "H1 (1 hour)"
	case TF2h:
		return "H2 (2 hours)"
	case TF4h:
		return "H4 (4 hours)"
	case TF1d:
		return "D1 (1 day)"
	}
	return string(tf)
}

func (tf Timeframe) String() string { return string(tf) }

// PivotKind distinguishes local highs from local lows
type PivotKind int

const (
	PivotHigh PivotKind = iota
	PivotLow
)

func (k PivotKind) String() string {
	if k == PivotHigh {
		return "high"
	}
	return "low"
}

// PivotPoint is a local extreme inside the lookback window
type PivotPoint struct {
	Index int       `json:"index"`
	Price float64   `json:"price"`
	Kind  PivotKind `json:"kind"`
}

// Channel is a candidate support/resistance band
type Channel struct {
	Low      float64 `json:"low"`
	High     float64 `json:"high"`
	Strength int     `json:"strength"`
}

// Overlaps reports whether [lo, hi] intersects the channel, edges included
func (c Channel) Overlaps(lo, hi float64) bool {
	return c.Low <= hi && c.High >= lo
}

// Contains reports whether price lies within the channel bounds
func (c Channel) Contains(price float64) bool {
	return c.Low <= price && price <= c.High
}

// ZoneKind tags a channel relative to the current price
type ZoneKind string

const (
	Support    ZoneKind = "support"
	Resistance ZoneKind = "resistance"
)

// Zone is a classified channel
type Zone struct {
	Channel
	Kind ZoneKind `json:"kind"`
}

// SRSnapshot holds the zones computed for one symbol/timeframe
type SRSnapshot struct {
	Symbol          string    `json:"symbol"`
	Timeframe       Timeframe `json:"timeframe"`
	SupportZones    []Zone    `json:"support_zones"`
	ResistanceZones []Zone    `json:"resistance_zones"`
	CurrentPrice    float64   `json:"current_price"`
	ComputedAt      time.Time `json:"computed_at"`
}

// Zones returns the zones matching kind
func (s *SRSnapshot) Zones(kind ZoneKind) []Zone {
	if s == nil {
		return nil
	}
	if kind == Support {
		return s.SupportZones
	}
	return s.ResistanceZones
}

// Direction of a reversal signal
type Direction string

const (
	Long  Direction = "LONG"
	Short Direction = "SHORT"
)

// ZoneKind returns the zone class a signal in this direction must touch
func (d Direction) ZoneKind() ZoneKind {
	if d == Long {
		return Support
	}
	return Resistance
}

// SignalMetrics are the measurements that let a signal through
type SignalMetrics struct {
	BodyPct         float64 `json:"body_pct"`
	BodyPosition    float64 `json:"body_position"`
	UpperShadowPct  float64 `json:"upper_shadow_pct"`
	LowerShadowPct  float64 `json:"lower_shadow_pct"`
	VolumeRatio     float64 `json:"volume_ratio"` // current/previous, 0 when the gate was skipped
	PrevUpperShadow float64 `json:"prev_upper_shadow_pct"`
	PrevBodyPct     float64 `json:"prev_body_pct"`
}

// Signal is an emitted reversal signal
type Signal struct {
	ID             string        `json:"id"`
	Symbol         string        `json:"symbol"`
	Timeframe      Timeframe     `json:"timeframe"`
	CloseTime      time.Time     `json:"close_time"`
	Price          float64       `json:"price"`
	Direction      Direction     `json:"direction"`
	ConfluenceZone Zone          `json:"confluence_zone"`
	Metrics        SignalMetrics `json:"metrics"`
}

// Key returns the deduplication key of the signal
func (s Signal) Key() SignalKey {
	return SignalKey{Symbol: s.Symbol, Timeframe: s.Timeframe, CloseTime: s.CloseTime.UnixMilli()}
}

// SignalKey identifies a candle that already produced a signal.
// CloseTime is in unix milliseconds so the key stays comparable.
type SignalKey struct {
	Symbol    string
	Timeframe Timeframe
	CloseTime int64
}

// NewSignalKey builds a key from a candle close time
func NewSignalKey(symbol string, tf Timeframe, closeTime time.Time) SignalKey {
	return SignalKey{Symbol: symbol, Timeframe: tf, CloseTime: closeTime.UnixMilli()}
}

func (k SignalKey) String() string {
	return fmt.Sprintf("%s_%s_%d", k.Symbol, k.Timeframe, k.CloseTime)
}
