package lifecycle

import "sync"

// orderLocks serializes mutations per order id. Cross-order operations never
// contend on the same lock.
type orderLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newOrderLocks() *orderLocks {
	return &orderLocks{locks: make(map[string]*sync.Mutex)}
}

// Lock acquires the exclusive section for an order id and returns the
// unlock function.
func (l *orderLocks) Lock(orderID string) func() {
	l.mu.Lock()
	m, ok := l.locks[orderID]
	if !ok {
		m = &sync.Mutex{}
		l.locks[orderID] = m
	}
	l.mu.Unlock()

	m.Lock()
	return m.Unlock
}
