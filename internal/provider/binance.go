package provider

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/bytedance/sonic"

	"dojibot/internal/ratelimit"
	"dojibot/pkg/model"
)

const binanceBaseURL = "https://api.binance.com"

// maxKlinesLimit is the largest page Binance serves per request
const maxKlinesLimit = 1000

// BinanceSource implements CandleSource over the Binance spot REST API
type BinanceSource struct {
	baseURL string
	client  *http.Client
	limiter *ratelimit.Limiter
}

// NewBinanceSource creates a new Binance klines source
func NewBinanceSource(baseURL string, timeout time.Duration, perMinute int) *BinanceSource {
	if baseURL == "" {
		baseURL = binanceBaseURL
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &BinanceSource{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		limiter: ratelimit.NewLimiter("binance", perMinute),
	}
}

// Name returns the source name
func (b *BinanceSource) Name() string {
	return "binance"
}

// binanceError is the error body Binance returns on 4xx
type binanceError struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

// FetchCandles fetches klines for symbol, oldest first
func (b *BinanceSource) FetchCandles(ctx context.Context, symbol string, tf model.Timeframe, limit int) ([]model.Candle, error) {
	if tf.Duration() == 0 {
		return nil, &ProviderError{Provider: b.Name(), Err: fmt.Errorf("unsupported timeframe %q", tf), Retryable: false}
	}
	if limit < 1 {
		limit = 1
	}
	if limit > maxKlinesLimit {
		limit = maxKlinesLimit
	}

	if err := b.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	q := url.Values{}
	q.Set("symbol", strings.ToUpper(symbol))
	q.Set("interval", string(tf))
	q.Set("limit", strconv.Itoa(limit))
	endpoint := b.baseURL + "/api/v3/klines?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, &ProviderError{Provider: b.Name(), Err: err, Retryable: true}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &ProviderError{Provider: b.Name(), Err: fmt.Errorf("reading response: %w", err), Retryable: true}
	}

	// 418 is Binance's IP ban after ignoring 429s
	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusTeapot {
		b.limiter.SignalRateLimited()
		return nil, &ProviderError{Provider: b.Name(), Err: fmt.Errorf("rate limited (status %d)", resp.StatusCode), Retryable: true}
	}

	if resp.StatusCode >= 500 {
		return nil, &ProviderError{Provider: b.Name(), Err: fmt.Errorf("status %d", resp.StatusCode), Retryable: true}
	}

	if resp.StatusCode != http.StatusOK {
		var be binanceError
		if sonic.Unmarshal(body, &be) == nil && be.Msg != "" {
			return nil, &ProviderError{Provider: b.Name(), Err: fmt.Errorf("status %d: %s (code %d)", resp.StatusCode, be.Msg, be.Code), Retryable: false}
		}
		return nil, &ProviderError{Provider: b.Name(), Err: fmt.Errorf("status %d", resp.StatusCode), Retryable: false}
	}

	b.limiter.ResetBackoff()

	candles, err := parseKlines(body)
	if err != nil {
		return nil, &ProviderError{Provider: b.Name(), Err: err, Retryable: false}
	}
	if len(candles) == 0 {
		return nil, fmt.Errorf("%s %s: %w", symbol, tf, ErrDataUnavailable)
	}
	return candles, nil
}

// parseKlines decodes [[openTime,"o","h","l","c","v",closeTime,...], ...]
func parseKlines(body []byte) ([]model.Candle, error) {
	var rows [][]interface{}
	if err := sonic.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("decoding klines: %w", err)
	}

	candles := make([]model.Candle, 0, len(rows))
	for i, row := range rows {
		if len(row) < 7 {
			return nil, fmt.Errorf("kline %d: expected at least 7 fields, got %d", i, len(row))
		}

		var vals [7]float64
		for j := 0; j < 7; j++ {
			v, err := toFloat(row[j])
			if err != nil {
				return nil, fmt.Errorf("kline %d field %d: %w", i, j, err)
			}
			vals[j] = v
		}

		c := model.Candle{
			OpenTime:  time.UnixMilli(int64(vals[0])).UTC(),
			Open:      vals[1],
			High:      vals[2],
			Low:       vals[3],
			Close:     vals[4],
			Volume:    vals[5],
			CloseTime: time.UnixMilli(int64(vals[6])).UTC(),
		}
		if !c.Valid() {
			return nil, fmt.Errorf("kline %d: inconsistent OHLC o=%g h=%g l=%g c=%g", i, c.Open, c.High, c.Low, c.Close)
		}
		candles = append(candles, c)
	}
	return candles, nil
}

func toFloat(v interface{}) (float64, error) {
	switch x := v.(type) {
	case float64:
		return x, nil
	case string:
		return strconv.ParseFloat(x, 64)
	case int64:
		return float64(x), nil
	default:
		return 0, fmt.Errorf("unexpected type %T", v)
	}
}
