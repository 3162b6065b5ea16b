package common

// ObjectPool reuses allocations of a single type. Get returns a recycled
// item when one is available and a fresh one otherwise; Release recycles the
// item unless the pool already holds reuseLimit items, in which case the
// item is dropped for the garbage collector.
//
// Memory handed to Release may be handed out again before it is freed, so
// callers must not touch an item after releasing it.
type ObjectPool[T any] struct {
	newItem func() T
	reuse   func(T)
	queue   chan T
}

// NewObjectPool returns a pool holding at most reuseLimit recycled items.
// newItem allocates a fresh item; reuse, if not nil, is called on a recycled
// item before it is handed out again.
func NewObjectPool[T any](reuseLimit int, newItem func() T, reuse func(T)) *ObjectPool[T] {
	return &ObjectPool[T]{
		newItem: newItem,
		reuse:   reuse,
		queue:   make(chan T, reuseLimit),
	}
}

func (op *ObjectPool[T]) Get() T {
	select {
	case item := <-op.queue:
		if op.reuse != nil {
			op.reuse(item)
		}
		return item
	default:
		return op.newItem()
	}
}

func (op *ObjectPool[T]) Release(item T) {
	select {
	case op.queue <- item:
	default:
	}
}
