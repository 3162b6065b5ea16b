package common

import (
	"sync"
	"testing"
)

type poolItem struct {
	reused int
}

func TestObjectPoolReuse(t *testing.T) {
	var allocated int
	pool := NewObjectPool(2,
		func() *poolItem {
			allocated++
			return &poolItem{}
		},
		func(pi *poolItem) {
			pi.reused++
		})

	first := pool.Get()
	if allocated != 1 {
		t.Fatalf("allocated got %d want 1", allocated)
	}
	pool.Release(first)

	second := pool.Get()
	if second != first {
		t.Errorf("released item was not reused")
	}
	if second.reused != 1 {
		t.Errorf("reused got %d want 1", second.reused)
	}
	if allocated != 1 {
		t.Errorf("allocated got %d want 1", allocated)
	}
}

func TestObjectPoolReuseLimit(t *testing.T) {
	var allocated int
	pool := NewObjectPool(1,
		func() *poolItem {
			allocated++
			return &poolItem{}
		}, nil)

	items := []*poolItem{pool.Get(), pool.Get(), pool.Get()}
	if allocated != 3 {
		t.Fatalf("allocated got %d want 3", allocated)
	}
	for _, item := range items {
		pool.Release(item)
	}

	// Only one item fits the reuse queue; the next Get reuses it and the
	// one after allocates.
	pool.Get()
	pool.Get()
	if allocated != 4 {
		t.Errorf("allocated got %d want 4", allocated)
	}
}

func TestObjectPoolConcurrent(t *testing.T) {
	pool := NewObjectPool(16,
		func() *poolItem {
			return &poolItem{}
		},
		func(pi *poolItem) {
			pi.reused++
		})

	var wg sync.WaitGroup
	for thrd := 0; thrd < 8; thrd++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			for i := 0; i < 1000; i++ {
				item := pool.Get()
				pool.Release(item)
			}
		}()
	}
	wg.Wait()
}
