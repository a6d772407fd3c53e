package engine

import (
	"sync"
	"testing"
)

func TestClock_NextIncrements(t *testing.T) {
	c := NewClock()

	if got := c.Next(); got != 1 {
		t.Errorf("first Next() = %d, want 1", got)
	}
	if got := c.Next(); got != 2 {
		t.Errorf("second Next() = %d, want 2", got)
	}
	if got := c.Current(); got != 2 {
		t.Errorf("Current() = %d, want 2", got)
	}
}

func TestClock_NewClockAt(t *testing.T) {
	c := NewClockAt(100)

	if got := c.Current(); got != 100 {
		t.Errorf("Current() = %d, want 100", got)
	}
	if got := c.Next(); got != 101 {
		t.Errorf("Next() = %d, want 101", got)
	}
}

func TestClock_ConcurrentUnique(t *testing.T) {
	c := NewClock()
	const n = 100

	var wg sync.WaitGroup
	results := make([]int64, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = c.Next()
		}(i)
	}
	wg.Wait()

	seen := make(map[int64]bool, n)
	for _, seq := range results {
		if seen[seq] {
			t.Fatalf("duplicate seq %d", seq)
		}
		seen[seq] = true
	}
}
