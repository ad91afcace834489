package signalcache

import (
	"sync"
	"testing"
	"time"

	"dojibot/pkg/model"
)

func key(symbol string, hour int) model.SignalKey {
	return model.NewSignalKey(symbol, model.TF1h, time.Date(2024, 1, 1, hour, 59, 59, 0, time.UTC))
}

func TestFIFOEviction(t *testing.T) {
	c := New(2)
	k1, k2, k3 := key("BTCUSDT", 1), key("BTCUSDT", 2), key("BTCUSDT", 3)

	c.MarkFired(k1)
	c.MarkFired(k2)
	c.MarkFired(k3)

	if c.HasFired(k1) {
		t.Error("K1 should have been evicted")
	}
	if !c.HasFired(k2) || !c.HasFired(k3) {
		t.Error("K2 and K3 should still be present")
	}
	if c.Len() != 2 {
		t.Errorf("Expected len 2, got %d", c.Len())
	}
}

func TestLookupDoesNotRefresh(t *testing.T) {
	c := New(2)
	k1, k2, k3 := key("ETHUSDT", 1), key("ETHUSDT", 2), key("ETHUSDT", 3)

	c.MarkFired(k1)
	c.MarkFired(k2)
	c.HasFired(k1) // an LRU would now evict k2 next
	c.MarkFired(k1)
	c.MarkFired(k3)

	if c.HasFired(k1) {
		t.Error("Oldest-inserted key should be evicted regardless of access")
	}
	if !c.HasFired(k2) {
		t.Error("K2 should be kept")
	}
}

func TestMarkFiredIdempotent(t *testing.T) {
	c := New(10)
	k := key("SOLUSDT", 5)

	c.MarkFired(k)
	c.MarkFired(k)

	if !c.HasFired(k) {
		t.Error("Key should be marked")
	}
	if c.Len() != 1 {
		t.Errorf("Expected a single entry, got %d", c.Len())
	}
}

func TestKeysDifferByTimeframe(t *testing.T) {
	c := New(10)
	ct := time.Date(2024, 1, 1, 3, 59, 59, 0, time.UTC)

	c.MarkFired(model.NewSignalKey("BTCUSDT", model.TF1h, ct))
	if c.HasFired(model.NewSignalKey("BTCUSDT", model.TF4h, ct)) {
		t.Error("Same close time on another timeframe must be a different key")
	}
	if c.HasFired(model.NewSignalKey("ETHUSDT", model.TF1h, ct)) {
		t.Error("Same close time on another symbol must be a different key")
	}
}

func TestCapacityBound(t *testing.T) {
	c := New(DefaultCapacity)
	for i := 0; i < 5000; i++ {
		c.MarkFired(model.NewSignalKey("BTCUSDT", model.TF1h, time.Unix(int64(i)*3600, 0)))
		if c.Len() > c.Capacity() {
			t.Fatalf("Len %d exceeds capacity %d after %d inserts", c.Len(), c.Capacity(), i+1)
		}
	}
	if c.Len() != DefaultCapacity {
		t.Errorf("Expected cache to be full, got %d", c.Len())
	}
	if !c.HasFired(model.NewSignalKey("BTCUSDT", model.TF1h, time.Unix(4999*3600, 0))) {
		t.Error("Most recent key should be present")
	}
}

func TestConcurrentMarks(t *testing.T) {
	c := New(100)
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				c.MarkFired(key("BTCUSDT", (g*200+i)%24))
			}
		}(g)
	}
	wg.Wait()
	if c.Len() > 100 {
		t.Errorf("Len %d exceeds capacity", c.Len())
	}
}

func TestNewDefaultsCapacity(t *testing.T) {
	if c := New(0); c.Capacity() != DefaultCapacity {
		t.Errorf("Expected default capacity %d, got %d", DefaultCapacity, c.Capacity())
	}
}
