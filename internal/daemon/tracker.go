package daemon

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"dojibot/internal/pattern"
	"dojibot/internal/scanner"
	"dojibot/pkg/model"
)

// DailyState accumulates cycle results for one UTC day
type DailyState struct {
	Date       string               `json:"date"`
	Cycles     int                  `json:"cycles"`
	Jobs       int                  `json:"jobs"`
	Signals    int                  `json:"signals"`
	Long       int                  `json:"long"`
	Short      int                  `json:"short"`
	Errors     int                  `json:"errors"`
	NoData     int                  `json:"no_data"`
	Rejections map[pattern.Gate]int `json:"rejections"`
	BySymbol   map[string]int       `json:"by_symbol"`
	StartTime  time.Time            `json:"start_time"`
}

// DailyTracker keeps today's totals and resets at UTC midnight
type DailyTracker struct {
	mu    sync.RWMutex
	state DailyState
}

func NewDailyTracker() *DailyTracker {
	return &DailyTracker{}
}

// Record adds a cycle to the day containing now
func (t *DailyTracker) Record(res *scanner.CycleResult, now time.Time) {
	if res == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	today := now.UTC().Format("2006-01-02")
	if t.state.Date != today {
		t.state = DailyState{
			Date:       today,
			Rejections: make(map[pattern.Gate]int),
			BySymbol:   make(map[string]int),
			StartTime:  now,
		}
	}

	s := &t.state
	s.Cycles++
	s.Jobs += res.Jobs
	s.Errors += res.Outcomes[scanner.OutcomeError]
	s.NoData += res.Outcomes[scanner.OutcomeNoData]
	for g, n := range res.Rejections {
		s.Rejections[g] += n
	}
	for _, sig := range res.Signals {
		s.Signals++
		s.BySymbol[sig.Symbol]++
		if sig.Direction == model.Long {
			s.Long++
		} else {
			s.Short++
		}
	}
}

// State returns a copy of today's totals
func (t *DailyTracker) State() DailyState {
	t.mu.RLock()
	defer t.mu.RUnlock()

	s := t.state
	s.Rejections = make(map[pattern.Gate]int, len(t.state.Rejections))
	for k, v := range t.state.Rejections {
		s.Rejections[k] = v
	}
	s.BySymbol = make(map[string]int, len(t.state.BySymbol))
	for k, v := range t.state.BySymbol {
		s.BySymbol[k] = v
	}
	return s
}

// GenerateReport renders today's totals as a one-block summary
func (t *DailyTracker) GenerateReport() string {
	s := t.State()
	if s.Date == "" {
		return "No cycles completed"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Daily report %s: %d cycles, %d jobs, %d signals (%d long, %d short), %d errors, %d no-data",
		s.Date, s.Cycles, s.Jobs, s.Signals, s.Long, s.Short, s.Errors, s.NoData)

	var gates []string
	for _, g := range pattern.Gates {
		if n := s.Rejections[g]; n > 0 {
			gates = append(gates, fmt.Sprintf("%s=%d", g, n))
		}
	}
	if len(gates) > 0 {
		b.WriteString("; rejected ")
		b.WriteString(strings.Join(gates, " "))
	}

	if len(s.BySymbol) > 0 {
		syms := make([]string, 0, len(s.BySymbol))
		for sym := range s.BySymbol {
			syms = append(syms, sym)
		}
		sort.Slice(syms, func(i, j int) bool {
			if s.BySymbol[syms[i]] != s.BySymbol[syms[j]] {
				return s.BySymbol[syms[i]] > s.BySymbol[syms[j]]
			}
			return syms[i] < syms[j]
		})
		if len(syms) > 5 {
			syms = syms[:5]
		}
		parts := make([]string, len(syms))
		for i, sym := range syms {
			parts[i] = fmt.Sprintf("%s=%d", sym, s.BySymbol[sym])
		}
		b.WriteString("; top ")
		b.WriteString(strings.Join(parts, " "))
	}
	return b.String()
}
