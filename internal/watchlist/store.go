package watchlist

import (
	"context"
	"strings"

	"github.com/pkg/errors"
)

var (
	ErrInvalidSymbol = errors.New("invalid symbol: must be a USDT pair, e.g. BTCUSDT")
	ErrDuplicate     = errors.New("symbol already in watchlist")
	ErrNotFound      = errors.New("symbol not in watchlist")
	ErrLastSymbol    = errors.New("cannot remove the last symbol")
)

// Store persists the list of tracked symbols
type Store interface {
	List(ctx context.Context) ([]string, error)
	Add(ctx context.Context, symbol string) error
	Remove(ctx context.Context, symbol string) error
}

// Normalize upper-cases and validates a symbol
func Normalize(symbol string) (string, error) {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	if len(s) <= len("USDT") || !strings.HasSuffix(s, "USDT") {
		return "", errors.Wrapf(ErrInvalidSymbol, "%q", symbol)
	}
	for _, r := range s {
		if (r < 'A' || r > 'Z') && (r < '0' || r > '9') {
			return "", errors.Wrapf(ErrInvalidSymbol, "%q", symbol)
		}
	}
	return s, nil
}
