package relay

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestDedupCacheMarkUnmarkContains(t *testing.T) {
	t.Parallel()

	cache := NewDedupCache(100, time.Minute, nil)

	if !cache.Mark("B1") {
		t.Fatal("first Mark() = false, want true")
	}
	if cache.Mark("B1") {
		t.Fatal("second Mark() = true, want false")
	}
	if !cache.Contains("B1") {
		t.Fatal("Contains() = false after mark")
	}

	cache.Unmark("B1")
	if cache.Contains("B1") {
		t.Fatal("Contains() = true after unmark")
	}
	if !cache.Mark("B1") {
		t.Fatal("Mark() after unmark = false, want true")
	}
	if cache.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", cache.Len())
	}
}

func TestDedupCacheConcurrentMarkSingleWinner(t *testing.T) {
	t.Parallel()

	cache := NewDedupCache(100, time.Minute, nil)

	const goroutines = 32
	wins := make(chan bool, goroutines)

	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			wins <- cache.Mark("B1")
		}()
	}
	wg.Wait()
	close(wins)

	winners := 0
	for won := range wins {
		if won {
			winners++
		}
	}
	if winners != 1 {
		t.Fatalf("winners = %d, want exactly 1", winners)
	}
}

func TestDedupCacheEvictionKeepsNewestEntries(t *testing.T) {
	t.Parallel()

	cache := NewDedupCache(10000, time.Minute, nil)

	for i := 0; i < 12001; i++ {
		cache.Mark(fmt.Sprintf("B%05d", i))
	}

	cache.EvictIfNeeded()

	if got := cache.Len(); got > 8000 {
		t.Fatalf("Len() after eviction = %d, want <= 8000", got)
	}

	// FIFO on insertion order: the oldest ids go first, the newest survive.
	if cache.Contains("B00000") {
		t.Fatal("oldest entry survived eviction")
	}
	if !cache.Contains("B12000") {
		t.Fatal("newest entry was evicted")
	}
}

func TestDedupCacheEvictionNoopUnderBound(t *testing.T) {
	t.Parallel()

	cache := NewDedupCache(100, time.Minute, nil)
	for i := 0; i < 100; i++ {
		cache.Mark(fmt.Sprintf("B%d", i))
	}

	cache.EvictIfNeeded()

	if got := cache.Len(); got != 100 {
		t.Fatalf("Len() = %d, want 100 (no eviction at bound)", got)
	}
	if !cache.Contains("B0") {
		t.Fatal("entry evicted while cache within bound")
	}
}

func TestDedupCacheEvictionSkipsUnmarkedSlots(t *testing.T) {
	t.Parallel()

	cache := NewDedupCache(10, time.Minute, nil)
	for i := 0; i < 10; i++ {
		cache.Mark(fmt.Sprintf("old%d", i))
	}
	// Release the oldest half; their insertion-order slots go stale.
	for i := 0; i < 5; i++ {
		cache.Unmark(fmt.Sprintf("old%d", i))
	}
	for i := 0; i < 6; i++ {
		cache.Mark(fmt.Sprintf("new%d", i))
	}

	cache.EvictIfNeeded()

	if got := cache.Len(); got > 8 {
		t.Fatalf("Len() = %d, want <= 8", got)
	}
	if !cache.Contains("new5") {
		t.Fatal("newest entry was evicted")
	}
}
