package scheduler

import (
	"testing"
	"time"

	"dojibot/pkg/model"
)

func at(h, m, s int) time.Time {
	return time.Date(2024, 3, 15, h, m, s, 0, time.UTC)
}

func TestNextBoundary(t *testing.T) {
	tests := []struct {
		name string
		now  time.Time
		tf   model.Timeframe
		want time.Time
	}{
		{"1h mid hour", at(13, 20, 5), model.TF1h, at(14, 0, 0)},
		{"1h on boundary", at(13, 0, 0), model.TF1h, at(14, 0, 0)},
		{"2h odd hour", at(13, 20, 0), model.TF2h, at(14, 0, 0)},
		{"4h", at(13, 20, 0), model.TF4h, at(16, 0, 0)},
		{"4h late evening", at(22, 30, 0), model.TF4h, time.Date(2024, 3, 16, 0, 0, 0, 0, time.UTC)},
		{"1d", at(13, 20, 0), model.TF1d, time.Date(2024, 3, 16, 0, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NextBoundary(tt.now, tt.tf); !got.Equal(tt.want) {
				t.Errorf("Expected %s, got %s", tt.want, got)
			}
		})
	}
}

func TestNextBoundaryNonUTCInput(t *testing.T) {
	loc := time.FixedZone("ICT", 7*3600)
	now := time.Date(2024, 3, 15, 20, 30, 0, 0, loc) // 13:30 UTC
	want := at(16, 0, 0)
	if got := NextBoundary(now, model.TF4h); !got.Equal(want) {
		t.Errorf("Expected %s, got %s", want, got)
	}
}

func TestNextPollDelay(t *testing.T) {
	tfs := []model.Timeframe{model.TF1h, model.TF4h, model.TF1d}

	tests := []struct {
		name string
		now  time.Time
		tfs  []model.Timeframe
		want time.Duration
	}{
		{"far from close", at(13, 10, 0), tfs, 60 * time.Second},      // 50m left
		{"just above 300s", at(13, 54, 59), tfs, 60 * time.Second},    // 301s left
		{"exactly 300s", at(13, 55, 0), tfs, 30 * time.Second},        // 300s left
		{"between 120s and 300s", at(13, 57, 0), tfs, 30 * time.Second}, // 180s left
		{"exactly 120s", at(13, 58, 0), tfs, 10 * time.Second},
		{"near close", at(13, 59, 30), tfs, 10 * time.Second},
		{"daily only, far", at(13, 59, 30), []model.Timeframe{model.TF1d}, 60 * time.Second},
		{"no timeframes", at(13, 0, 0), nil, 10 * time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NextPollDelay(tt.now, tt.tfs); got != tt.want {
				t.Errorf("Expected %s, got %s", tt.want, got)
			}
		})
	}
}

func TestNextPollDelayNeverBelowFloor(t *testing.T) {
	start := at(0, 0, 0)
	for s := 0; s < 24*3600; s += 7 {
		d := NextPollDelay(start.Add(time.Duration(s)*time.Second), []model.Timeframe{model.TF1h, model.TF2h})
		if d < 10*time.Second || d > 60*time.Second {
			t.Fatalf("delay %s out of range at +%ds", d, s)
		}
	}
}

func TestIsSettled(t *testing.T) {
	c := model.Candle{CloseTime: at(13, 59, 59)}

	tests := []struct {
		name string
		now  time.Time
		want bool
	}{
		{"still open", at(13, 59, 0), false},
		{"inside grace", at(14, 0, 5), false},
		{"grace elapsed", at(14, 0, 9), true},
		{"long after", at(15, 0, 0), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsSettled(c, tt.now, DefaultGrace); got != tt.want {
				t.Errorf("IsSettled = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsFresh(t *testing.T) {
	c := model.Candle{CloseTime: at(11, 59, 59)}

	if !IsFresh(c, at(12, 4, 0), model.TF1h) {
		t.Error("1h candle 4m after close should be fresh")
	}
	if IsFresh(c, at(12, 6, 0), model.TF1h) {
		t.Error("1h candle 6m after close should be stale")
	}
	if !IsFresh(c, at(12, 14, 0), model.TF4h) {
		t.Error("4h candle 14m after close should be fresh")
	}
	if !IsFresh(c, at(12, 29, 0), model.TF1d) {
		t.Error("1d candle 29m after close should be fresh")
	}
	if IsFresh(c, at(12, 31, 0), model.TF1d) {
		t.Error("1d candle 31m after close should be stale")
	}
}

func TestLastSettled(t *testing.T) {
	candles := []model.Candle{
		{CloseTime: at(11, 59, 59)},
		{CloseTime: at(12, 59, 59)},
		{CloseTime: at(13, 59, 59)}, // still forming
	}
	if got := LastSettled(candles, at(13, 30, 0), DefaultGrace); got != 1 {
		t.Errorf("Expected index 1, got %d", got)
	}
	if got := LastSettled(candles, at(14, 0, 20), DefaultGrace); got != 2 {
		t.Errorf("Expected index 2, got %d", got)
	}
	if got := LastSettled(candles, at(11, 0, 0), DefaultGrace); got != -1 {
		t.Errorf("Expected -1, got %d", got)
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{-time.Second, "0s"},
		{10 * time.Second, "10s"},
		{4*time.Minute + 30*time.Second, "4m 30s"},
		{time.Hour + 5*time.Minute, "1h 5m"},
	}
	for _, tt := range tests {
		if got := FormatDuration(tt.d); got != tt.want {
			t.Errorf("FormatDuration(%s) = %q, want %q", tt.d, got, tt.want)
		}
	}
}
