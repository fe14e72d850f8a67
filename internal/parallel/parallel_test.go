package parallel

import (
	"sync/atomic"
	"testing"
)

func TestFor(t *testing.T) {
	cfg := DefaultConfig()

	var counter int64
	n := 10000

	For(n, func(_ int) {
		atomic.AddInt64(&counter, 1)
	}, cfg)

	if counter != int64(n) {
		t.Errorf("Expected %d, got %d", n, counter)
	}
}

func TestForCoversEveryIndex(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinChunkSize = 8

	n := 1000
	seen := make([]int32, n)
	For(n, func(i int) {
		atomic.AddInt32(&seen[i], 1)
	}, cfg)

	for i, c := range seen {
		if c != 1 {
			t.Errorf("index %d visited %d times", i, c)
		}
	}
}

func TestFor_Sequential(t *testing.T) {
	cfg := Config{Enabled: false}

	var counter int64
	For(100, func(_ int) {
		atomic.AddInt64(&counter, 1)
	}, cfg)

	if counter != 100 {
		t.Errorf("Expected 100, got %d", counter)
	}
}

func TestFor_SmallChunk(t *testing.T) {
	// Small work units fall back to sequential.
	cfg := DefaultConfig()

	var counter int64
	n := cfg.MinChunkSize - 1

	For(n, func(_ int) {
		atomic.AddInt64(&counter, 1)
	}, cfg)

	if counter != int64(n) {
		t.Errorf("Expected %d, got %d", n, counter)
	}
}

func BenchmarkFor(b *testing.B) {
	cfg := DefaultConfig()
	n := 100000

	b.Run("parallel", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			var sum int64
			For(n, func(i int) {
				atomic.AddInt64(&sum, int64(i))
			}, cfg)
		}
	})

	b.Run("sequential", func(b *testing.B) {
		cfgSeq := cfg
		cfgSeq.Enabled = false
		for i := 0; i < b.N; i++ {
			var sum int64
			For(n, func(i int) {
				atomic.AddInt64(&sum, int64(i))
			}, cfgSeq)
		}
	})
}
