package notify

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"dojibot/pkg/logger"
	"dojibot/pkg/model"
)

// Notifier receives emitted signals
type Notifier interface {
	Name() string
	Notify(ctx context.Context, sig model.Signal) error
}

// Log writes signals to the structured log. It never fails.
type Log struct{}

func NewLog() *Log { return &Log{} }

func (l *Log) Name() string { return "log" }

func (l *Log) Notify(ctx context.Context, sig model.Signal) error {
	logger.Info("[SIGNAL] %s %s %s close=%s price=%.6g zone=%s[%.6g, %.6g] id=%s",
		sig.Direction, sig.Symbol, sig.Timeframe, sig.CloseTime.UTC().Format("2006-01-02 15:04:05"),
		sig.Price, sig.ConfluenceZone.Kind, sig.ConfluenceZone.Low, sig.ConfluenceZone.High, sig.ID)
	return nil
}

// Multi fans a signal out to several notifiers. Every notifier is tried; a
// failure is logged and reported in the combined error.
type Multi struct {
	notifiers []Notifier
}

func NewMulti(notifiers ...Notifier) *Multi {
	return &Multi{notifiers: notifiers}
}

func (m *Multi) Name() string {
	names := make([]string, len(m.notifiers))
	for i, n := range m.notifiers {
		names[i] = n.Name()
	}
	return "multi(" + strings.Join(names, ",") + ")"
}

// Notify delivers to every notifier concurrently
func (m *Multi) Notify(ctx context.Context, sig model.Signal) error {
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []string
	)
	for _, n := range m.notifiers {
		wg.Add(1)
		go func(n Notifier) {
			defer wg.Done()
			if err := n.Notify(ctx, sig); err != nil {
				logger.Error("[NOTIFY] %s failed for %s %s: %v", n.Name(), sig.Symbol, sig.Timeframe, err)
				mu.Lock()
				errs = append(errs, n.Name()+": "+err.Error())
				mu.Unlock()
			}
		}(n)
	}
	wg.Wait()

	if len(errs) > 0 {
		return fmt.Errorf("%d of %d notifiers failed: %s", len(errs), len(m.notifiers), strings.Join(errs, "; "))
	}
	return nil
}
