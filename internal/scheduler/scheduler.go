package scheduler

import (
	"fmt"
	"time"

	"dojibot/pkg/model"
)

const (
	// DefaultGrace is how long a candle must be closed before it is evaluated
	DefaultGrace = 10 * time.Second

	minUntilBoundary = 10 * time.Second
)

// pollStep maps time-to-next-close onto a poll interval
type pollStep struct {
	above time.Duration
	delay time.Duration
}

var pollTable = []pollStep{
	{above: 300 * time.Second, delay: 60 * time.Second},
	{above: 120 * time.Second, delay: 30 * time.Second},
}

const nearDelay = 10 * time.Second

// NextBoundary returns the first UTC timeframe boundary strictly after now
func NextBoundary(now time.Time, tf model.Timeframe) time.Time {
	d := tf.Duration()
	if d == 0 {
		return now
	}
	return now.UTC().Truncate(d).Add(d)
}

// UntilBoundary returns the time left until the next close of tf
func UntilBoundary(now time.Time, tf model.Timeframe) time.Duration {
	return NextBoundary(now, tf).Sub(now)
}

// NextPollDelay picks how long to sleep before the next scan: the closer the
// nearest timeframe close, the sooner we poll.
func NextPollDelay(now time.Time, tfs []model.Timeframe) time.Duration {
	if len(tfs) == 0 {
		return nearDelay
	}

	nearest := time.Duration(-1)
	for _, tf := range tfs {
		left := UntilBoundary(now, tf)
		if left < minUntilBoundary {
			left = minUntilBoundary
		}
		if nearest < 0 || left < nearest {
			nearest = left
		}
	}

	for _, step := range pollTable {
		if nearest > step.above {
			return step.delay
		}
	}
	return nearDelay
}

// IsSettled reports whether c has been closed for at least grace
func IsSettled(c model.Candle, now time.Time, grace time.Duration) bool {
	return !c.CloseTime.Add(grace).After(now)
}

// FreshnessWindow is how long after a close a candle is still worth alerting on
func FreshnessWindow(tf model.Timeframe) time.Duration {
	switch tf {
	case model.TF1h:
		return 5 * time.Minute
	case model.TF2h:
		return 10 * time.Minute
	case model.TF4h:
		return 15 * time.Minute
	case model.TF1d:
		return 30 * time.Minute
	}
	return 10 * time.Minute
}

// IsFresh reports whether c closed recently enough to alert on
func IsFresh(c model.Candle, now time.Time, tf model.Timeframe) bool {
	return now.Sub(c.CloseTime) <= FreshnessWindow(tf)
}

// LastSettled returns the index of the most recent candle closed for at
// least grace, or -1 when none is.
func LastSettled(candles []model.Candle, now time.Time, grace time.Duration) int {
	for i := len(candles) - 1; i >= 0; i-- {
		if IsSettled(candles[i], now, grace) {
			return i
		}
	}
	return -1
}

// FormatDuration formats a duration as "1h 5m", "4m 30s" or "10s"
func FormatDuration(d time.Duration) string {
	if d < 0 {
		return "0s"
	}

	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60

	if hours > 0 {
		return fmt.Sprintf("%dh %dm", hours, minutes)
	}
	if minutes > 0 {
		return fmt.Sprintf("%dm %ds", minutes, seconds)
	}
	return fmt.Sprintf("%ds", seconds)
}
