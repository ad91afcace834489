package provider

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"dojibot/pkg/model"
)

const klinesBody = `[
 [1717200000000,"100.0","103.0","97.0","100.5","1200.5",1717203599999,"0",10,"0","0","0"],
 [1717203600000,"100.5","104.0","99.0","102.0","800",1717207199999,"0",8,"0","0","0"]
]`

func TestBinanceFetchCandles(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v3/klines" {
			t.Errorf("Expected path /api/v3/klines, got %s", r.URL.Path)
		}
		gotQuery = r.URL.RawQuery
		w.Write([]byte(klinesBody))
	}))
	defer srv.Close()

	src := NewBinanceSource(srv.URL, time.Second, 600)
	candles, err := src.FetchCandles(context.Background(), "btcusdt", model.TF1h, 2)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if gotQuery != "interval=1h&limit=2&symbol=BTCUSDT" {
		t.Errorf("Unexpected query %q", gotQuery)
	}
	if len(candles) != 2 {
		t.Fatalf("Expected 2 candles, got %d", len(candles))
	}

	c := candles[0]
	if c.Open != 100.0 || c.High != 103.0 || c.Low != 97.0 || c.Close != 100.5 || c.Volume != 1200.5 {
		t.Errorf("Unexpected OHLCV: %+v", c)
	}
	if !c.OpenTime.Equal(time.UnixMilli(1717200000000)) {
		t.Errorf("Unexpected open time %s", c.OpenTime)
	}
	if !c.CloseTime.Equal(time.UnixMilli(1717203599999)) {
		t.Errorf("Unexpected close time %s", c.CloseTime)
	}
	if !candles[1].OpenTime.After(candles[0].OpenTime) {
		t.Error("Candles should be oldest first")
	}
}

func TestBinanceErrors(t *testing.T) {
	tests := []struct {
		name          string
		status        int
		body          string
		wantRetryable bool
		wantNoData    bool
	}{
		{name: "rate limited", status: http.StatusTooManyRequests, body: `{}`, wantRetryable: true},
		{name: "server error", status: http.StatusBadGateway, body: ``, wantRetryable: true},
		{name: "bad symbol", status: http.StatusBadRequest, body: `{"code":-1121,"msg":"Invalid symbol."}`},
		{name: "empty", status: http.StatusOK, body: `[]`, wantNoData: true},
		{name: "high below close", status: http.StatusOK, body: `[[1717200000000,"100","99","97","100.5","10",1717203599999]]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			src := NewBinanceSource(srv.URL, time.Second, 600)
			_, err := src.FetchCandles(context.Background(), "XUSDT", model.TF4h, 10)
			if err == nil {
				t.Fatal("Expected error")
			}
			if got := IsTransient(err); got != tt.wantRetryable {
				t.Errorf("IsTransient = %v, want %v (err: %v)", got, tt.wantRetryable, err)
			}
			if got := errors.Is(err, ErrDataUnavailable); got != tt.wantNoData {
				t.Errorf("errors.Is(ErrDataUnavailable) = %v, want %v", got, tt.wantNoData)
			}
		})
	}
}

func TestBinanceRateLimitSignalsLimiter(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	src := NewBinanceSource(srv.URL, time.Second, 600)
	src.FetchCandles(context.Background(), "BTCUSDT", model.TF1h, 3)
	if src.limiter.GetBackoff() == 0 {
		t.Error("Expected limiter backoff after 429")
	}
}

func TestParseKlinesMalformed(t *testing.T) {
	if _, err := parseKlines([]byte(`[[1,"a","b"]]`)); err == nil {
		t.Error("Expected error for short row")
	}
	if _, err := parseKlines([]byte(`[[1,"x","1","1","1","1",2]]`)); err == nil {
		t.Error("Expected error for non-numeric price")
	}
	if _, err := parseKlines([]byte(`[[1,"100","101","100.2","100.5","1",2]]`)); err == nil {
		t.Error("Expected error for low above open")
	}
}

type stubSource struct {
	name    string
	candles []model.Candle
	err     error
	calls   int
}

func (s *stubSource) Name() string { return s.name }

func (s *stubSource) FetchCandles(ctx context.Context, symbol string, tf model.Timeframe, limit int) ([]model.Candle, error) {
	s.calls++
	return s.candles, s.err
}

func TestFallbackSource(t *testing.T) {
	failing := &stubSource{name: "a", err: &ProviderError{Provider: "a", Err: errors.New("down"), Retryable: true}}
	working := &stubSource{name: "b", candles: []model.Candle{{Close: 1}}}

	f := NewFallbackSource(failing, working)
	candles, err := f.FetchCandles(context.Background(), "BTCUSDT", model.TF1h, 3)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(candles) != 1 {
		t.Errorf("Expected 1 candle, got %d", len(candles))
	}
	if failing.calls != 1 || working.calls != 1 {
		t.Errorf("Expected each source called once, got %d and %d", failing.calls, working.calls)
	}

	allFail := NewFallbackSource(failing)
	if _, err := allFail.FetchCandles(context.Background(), "BTCUSDT", model.TF1h, 3); !IsTransient(err) {
		t.Errorf("Expected last transient error, got %v", err)
	}

	if _, err := NewFallbackSource().FetchCandles(context.Background(), "BTCUSDT", model.TF1h, 3); err == nil {
		t.Error("Expected error with no sources")
	}
}
