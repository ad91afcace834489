package provider

import (
	"context"
	"errors"
	"fmt"

	"dojibot/pkg/model"
)

// ErrDataUnavailable is returned when a source has fewer candles than asked for
var ErrDataUnavailable = errors.New("data unavailable")

// CandleSource defines the interface for market data sources
type CandleSource interface {
	// Name returns the source name
	Name() string

	// FetchCandles returns up to limit candles for symbol, oldest first.
	// The last element may be the still-open candle.
	FetchCandles(ctx context.Context, symbol string, tf model.Timeframe, limit int) ([]model.Candle, error)
}

// ProviderError represents a source-specific error
type ProviderError struct {
	Provider  string
	Err       error
	Retryable bool
}

func (e *ProviderError) Error() string {
	return e.Provider + ": " + e.Err.Error()
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// IsTransient reports whether err is a retryable fetch failure
func IsTransient(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe) && pe.Retryable
}

// FallbackSource tries multiple sources in order
type FallbackSource struct {
	sources []CandleSource
}

// NewFallbackSource creates a new fallback source
func NewFallbackSource(sources ...CandleSource) *FallbackSource {
	return &FallbackSource{sources: sources}
}

// Name returns the combined source name
func (f *FallbackSource) Name() string {
	return "fallback"
}

// FetchCandles tries each source in order until one succeeds.
// ErrDataUnavailable from one source does not stop the next from being tried.
func (f *FallbackSource) FetchCandles(ctx context.Context, symbol string, tf model.Timeframe, limit int) ([]model.Candle, error) {
	if len(f.sources) == 0 {
		return nil, fmt.Errorf("no candle sources configured")
	}
	var lastErr error
	for _, s := range f.sources {
		candles, err := s.FetchCandles(ctx, symbol, tf, limit)
		if err == nil {
			return candles, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		lastErr = err
	}
	return nil, lastErr
}
