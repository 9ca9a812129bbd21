package ids

import (
	"sync"
	"testing"
)

func TestNewRequestIDUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := NewRequestID()
		if len(id) != 26 {
			t.Fatalf("unexpected id length: %q", id)
		}
		if seen[id] {
			t.Fatalf("duplicate id: %q", id)
		}
		seen[id] = true
	}
}

func TestNewRequestIDConcurrent(t *testing.T) {
	const workers = 16
	var wg sync.WaitGroup
	out := make(chan string, workers*100)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				out <- NewRequestID()
			}
		}()
	}
	wg.Wait()
	close(out)

	seen := make(map[string]bool)
	for id := range out {
		if seen[id] {
			t.Fatalf("duplicate id under concurrency: %q", id)
		}
		seen[id] = true
	}
}
