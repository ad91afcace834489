package pattern

import (
	"errors"
	"fmt"
	"math"

	"github.com/google/uuid"

	"dojibot/pkg/model"
)

// ErrDegenerateCandle is reported when a candle has zero price range
var ErrDegenerateCandle = errors.New("degenerate candle: zero range")

// Gate names a stage of the evaluation
type Gate string

const (
	GateShape      Gate = "shape"
	GateVolume     Gate = "volume"
	GateMomentum   Gate = "momentum"
	GateConfluence Gate = "confluence"
)

// Gates lists the stages in evaluation order
var Gates = []Gate{GateShape, GateVolume, GateMomentum, GateConfluence}

// Rejection explains why a candle produced no signal. It is not an error:
// failing a gate is the normal outcome for most candles.
type Rejection struct {
	Gate   Gate
	Reason string
	Err    error // set for ErrDegenerateCandle
}

func (r *Rejection) String() string {
	return fmt.Sprintf("%s: %s", r.Gate, r.Reason)
}

func reject(gate Gate, format string, args ...interface{}) *Rejection {
	return &Rejection{Gate: gate, Reason: fmt.Sprintf(format, args...)}
}

// Candidate is a candle pair that passed shape, volume and momentum
type Candidate struct {
	Direction model.Direction
	Metrics   model.SignalMetrics
}

// Engine evaluates Doji reversal conditions. It holds no state beyond its config.
type Engine struct {
	config Config
}

// NewEngine creates an engine with cfg
func NewEngine(cfg Config) *Engine {
	return &Engine{config: cfg}
}

// Config returns the engine thresholds
func (e *Engine) Config() Config {
	return e.config
}

// Evaluate runs every gate in order and returns a signal, or the first rejection
func (e *Engine) Evaluate(symbol string, tf model.Timeframe, cur, prev model.Candle, snap *model.SRSnapshot) (*model.Signal, *Rejection) {
	cand, rej := e.Candidate(tf, cur, prev)
	if rej != nil {
		return nil, rej
	}
	return e.Confirm(symbol, tf, cur, cand, snap)
}

// Candidate runs the shape, volume and momentum gates
func (e *Engine) Candidate(tf model.Timeframe, cur, prev model.Candle) (*Candidate, *Rejection) {
	var m model.SignalMetrics

	if rej := e.checkShape(cur, &m); rej != nil {
		return nil, rej
	}
	if rej := e.checkVolume(tf, cur, prev, &m); rej != nil {
		return nil, rej
	}
	dir, rej := e.checkMomentum(prev, &m)
	if rej != nil {
		return nil, rej
	}
	return &Candidate{Direction: dir, Metrics: m}, nil
}

// Confirm runs the confluence gate and builds the signal
func (e *Engine) Confirm(symbol string, tf model.Timeframe, cur model.Candle, cand *Candidate, snap *model.SRSnapshot) (*model.Signal, *Rejection) {
	zone, ok := FindConfluence(cur, cand.Direction, snap)
	if !ok {
		return nil, reject(GateConfluence, "no %s zone overlaps [%.6g, %.6g]",
			cand.Direction.ZoneKind(), cur.Low, cur.High)
	}

	return &model.Signal{
		ID:             uuid.NewString(),
		Symbol:         symbol,
		Timeframe:      tf,
		CloseTime:      cur.CloseTime,
		Price:          cur.Close,
		Direction:      cand.Direction,
		ConfluenceZone: zone,
		Metrics:        cand.Metrics,
	}, nil
}

// IsDoji reports whether c passes the shape gate
func (e *Engine) IsDoji(c model.Candle) bool {
	var m model.SignalMetrics
	return e.checkShape(c, &m) == nil
}

func (e *Engine) checkShape(c model.Candle, m *model.SignalMetrics) *Rejection {
	rng := c.Range()
	if rng <= 0 {
		return &Rejection{Gate: GateShape, Reason: "zero range", Err: ErrDegenerateCandle}
	}

	m.BodyPct = c.Body() / rng * 100
	m.BodyPosition = (math.Min(c.Open, c.Close) - c.Low) / rng * 100
	m.UpperShadowPct = c.UpperShadow() / rng * 100
	m.LowerShadowPct = c.LowerShadow() / rng * 100

	cfg := e.config
	if m.BodyPct > cfg.DojiThresholdPct {
		return reject(GateShape, "body %.2f%% > %.2f%%", m.BodyPct, cfg.DojiThresholdPct)
	}
	if m.BodyPosition < cfg.MinBodyPosition || m.BodyPosition > cfg.MaxBodyPosition {
		return reject(GateShape, "body position %.2f%% outside [%.2f, %.2f]",
			m.BodyPosition, cfg.MinBodyPosition, cfg.MaxBodyPosition)
	}
	if m.UpperShadowPct < cfg.MinShadowPct {
		return reject(GateShape, "upper shadow %.2f%% < %.2f%%", m.UpperShadowPct, cfg.MinShadowPct)
	}
	if m.LowerShadowPct < cfg.MinShadowPct {
		return reject(GateShape, "lower shadow %.2f%% < %.2f%%", m.LowerShadowPct, cfg.MinShadowPct)
	}
	return nil
}

func (e *Engine) checkVolume(tf model.Timeframe, cur, prev model.Candle, m *model.SignalMetrics) *Rejection {
	if tf.IsDaily() {
		return nil
	}
	if prev.Volume <= 0 {
		return reject(GateVolume, "previous volume is zero")
	}

	m.VolumeRatio = cur.Volume / prev.Volume
	if cur.Volume > e.config.VolumeRatio*prev.Volume {
		return reject(GateVolume, "volume ratio %.2f > %.2f", m.VolumeRatio, e.config.VolumeRatio)
	}
	return nil
}

func (e *Engine) checkMomentum(prev model.Candle, m *model.SignalMetrics) (model.Direction, *Rejection) {
	rng := prev.Range()
	if rng <= 0 {
		return "", reject(GateMomentum, "previous candle has zero range")
	}

	var upper float64
	var dir model.Direction
	switch {
	case prev.IsBearish():
		upper = prev.High - prev.Close
		dir = model.Long
	case prev.IsBullish():
		upper = prev.High - prev.Open
		dir = model.Short
	default:
		return "", reject(GateMomentum, "previous candle is flat")
	}

	m.PrevUpperShadow = upper / rng * 100
	m.PrevBodyPct = prev.Body() / rng * 100

	if m.PrevUpperShadow <= e.config.ShadowThresholdPct {
		return "", reject(GateMomentum, "previous upper shadow %.2f%% <= %.2f%%", m.PrevUpperShadow, e.config.ShadowThresholdPct)
	}
	if m.PrevBodyPct < e.config.BodyThresholdPct {
		return "", reject(GateMomentum, "previous body %.2f%% < %.2f%%", m.PrevBodyPct, e.config.BodyThresholdPct)
	}
	return dir, nil
}

// FindConfluence returns the strongest zone of the kind matching dir whose
// range intersects the candle's [low, high].
func FindConfluence(c model.Candle, dir model.Direction, snap *model.SRSnapshot) (model.Zone, bool) {
	for _, z := range snap.Zones(dir.ZoneKind()) {
		if z.Overlaps(c.Low, c.High) {
			return z, true
		}
	}
	return model.Zone{}, false
}
