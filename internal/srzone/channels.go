package srzone

import (
	"sort"

	"dojibot/pkg/model"
)

// pivotWeight is the strength each absorbed pivot adds to a channel
const pivotWeight = 20

// ChannelWidth returns the maximum channel height: the high/low span of the
// last window candles scaled by widthPct percent.
func ChannelWidth(candles []model.Candle, window int, widthPct float64) float64 {
	if len(candles) == 0 {
		return 0
	}
	start := len(candles) - window
	if start < 0 || window <= 0 {
		start = 0
	}

	hi, lo := candles[start].High, candles[start].Low
	for _, c := range candles[start+1:] {
		if c.High > hi {
			hi = c.High
		}
		if c.Low < lo {
			lo = c.Low
		}
	}
	return (hi - lo) * widthPct / 100
}

// BuildChannels grows one candidate channel per seed pivot. Pivots are
// absorbed in order while the channel stays within width; each absorbed pivot,
// the seed included, adds pivotWeight to the strength.
func BuildChannels(pivots []model.PivotPoint, width float64) []model.Channel {
	channels := make([]model.Channel, 0, len(pivots))
	for _, seed := range pivots {
		lo, hi := seed.Price, seed.Price
		strength := 0
		for _, p := range pivots {
			var w float64
			if p.Price <= hi {
				w = hi - p.Price
			} else {
				w = p.Price - lo
			}
			if w > width {
				continue
			}
			if p.Price <= hi {
				lo = min(lo, p.Price)
			} else {
				hi = max(hi, p.Price)
			}
			strength += pivotWeight
		}
		channels = append(channels, model.Channel{Low: lo, High: hi, Strength: strength})
	}
	return channels
}

// AugmentStrength adds one point per candle in the last loopback bars whose
// high or low falls inside the channel.
func AugmentStrength(channels []model.Channel, candles []model.Candle, loopback int) {
	start := len(candles) - loopback
	if start < 0 {
		start = 0
	}
	recent := candles[start:]
	for i := range channels {
		for _, c := range recent {
			if channels[i].Contains(c.High) || channels[i].Contains(c.Low) {
				channels[i].Strength++
			}
		}
	}
}

// SelectChannels drops weak candidates, orders by strength and keeps at most
// maxNum channels that do not overlap any stronger kept channel.
func SelectChannels(channels []model.Channel, minStrength, maxNum int) []model.Channel {
	threshold := minStrength * pivotWeight
	candidates := make([]model.Channel, 0, len(channels))
	for _, ch := range channels {
		if ch.Strength >= threshold {
			candidates = append(candidates, ch)
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Strength > candidates[j].Strength
	})

	var kept []model.Channel
	for _, ch := range candidates {
		if len(kept) >= maxNum {
			break
		}
		overlapping := false
		for _, k := range kept {
			if k.Overlaps(ch.Low, ch.High) {
				overlapping = true
				break
			}
		}
		if !overlapping {
			kept = append(kept, ch)
		}
	}
	return kept
}

// Classify splits channels into support (entirely below price) and resistance
// (entirely above price). Channels touching price are discarded.
func Classify(channels []model.Channel, price float64) (support, resistance []model.Zone) {
	for _, ch := range channels {
		switch {
		case ch.High < price:
			support = append(support, model.Zone{Channel: ch, Kind: model.Support})
		case ch.Low > price:
			resistance = append(resistance, model.Zone{Channel: ch, Kind: model.Resistance})
		}
	}
	return support, resistance
}
