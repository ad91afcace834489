package srzone

import "dojibot/pkg/model"

// FindPivots returns strict pivot highs and lows, most recent first.
//
// Bar i is a pivot high when its high is strictly greater than every high
// within period bars on each side; pivot lows mirror this on lows. Only bars
// with a full window on both sides and within loopback bars of the last
// candle are considered.
func FindPivots(candles []model.Candle, period, loopback int) []model.PivotPoint {
	n := len(candles)
	if period < 1 || n < 2*period+1 {
		return nil
	}

	last := n - 1
	var pivots []model.PivotPoint
	for i := n - 1 - period; i >= period; i-- {
		if last-i > loopback {
			break
		}
		if isPivotHigh(candles, i, period) {
			pivots = append(pivots, model.PivotPoint{Index: i, Price: candles[i].High, Kind: model.PivotHigh})
		}
		if isPivotLow(candles, i, period) {
			pivots = append(pivots, model.PivotPoint{Index: i, Price: candles[i].Low, Kind: model.PivotLow})
		}
	}
	return pivots
}

func isPivotHigh(candles []model.Candle, i, period int) bool {
	h := candles[i].High
	for j := i - period; j <= i+period; j++ {
		if j != i && candles[j].High >= h {
			return false
		}
	}
	return true
}

func isPivotLow(candles []model.Candle, i, period int) bool {
	l := candles[i].Low
	for j := i - period; j <= i+period; j++ {
		if j != i && candles[j].Low <= l {
			return false
		}
	}
	return true
}
