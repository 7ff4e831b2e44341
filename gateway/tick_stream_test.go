package gateway

import (
	"testing"
	"time"
)

func TestParseStreamTick(t *testing.T) {
	raw := []byte(`{"symbol":"EURUSD","bid":1.0999,"ask":1.1001,"last":1.1,"time_ms":1700000000000}`)
	tick, ok := ParseStreamTick(raw)
	if !ok {
		t.Fatal("expected valid tick")
	}
	if tick.Symbol != "EURUSD" || tick.Last != 1.1 {
		t.Fatalf("unexpected tick: %+v", tick)
	}
	if tick.Time.UnixMilli() != 1700000000000 {
		t.Fatalf("unexpected time: %v", tick.Time)
	}
}

func TestParseStreamTickMalformed(t *testing.T) {
	for _, raw := range []string{
		`not json`,
		`{}`,
		`{"symbol":"","bid":1.1}`,
		`{"symbol":"EURUSD"}`,
	} {
		if _, ok := ParseStreamTick([]byte(raw)); ok {
			t.Fatalf("expected %q to be dropped", raw)
		}
	}
}

func TestTickCacheFreshness(t *testing.T) {
	cache := NewTickCache(50 * time.Millisecond)
	cache.Put(Tick{Symbol: "EURUSD", Last: 1.1, Time: time.Now()})
	if _, ok := cache.Get("EURUSD"); !ok {
		t.Fatal("fresh tick should hit")
	}
	cache.Put(Tick{Symbol: "GBPUSD", Last: 1.3, Time: time.Now().Add(-time.Second)})
	if _, ok := cache.Get("GBPUSD"); ok {
		t.Fatal("stale tick must miss")
	}
	if _, ok := cache.Get("USDJPY"); ok {
		t.Fatal("unknown symbol must miss")
	}
}
