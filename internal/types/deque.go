package types

import "sync"

// Deque is a thread-safe unbounded queue backed by a slice.
// Producers never block. A consumer waits on [Deque.Ready] and then drains
// the buffered items in FIFO order.
type Deque[T any] struct {
	mu     sync.Mutex
	data   []T
	ready  chan struct{}
	closed bool
}

func (d *Deque[T]) readyCh() chan struct{} {
	if d.ready == nil {
		d.ready = make(chan struct{}, 1)
	}
	return d.ready
}

func (d *Deque[T]) signal() {
	select {
	case d.readyCh() <- struct{}{}:
	default:
	}
}

// Append adds the element to the end of the deque.
// It returns false if the deque is closed.
func (d *Deque[T]) Append(item T) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return false
	}
	d.data = append(d.data, item)
	d.signal()
	return true
}

// Ready returns a channel that receives a value whenever items were added
// since the last receive.
func (d *Deque[T]) Ready() <-chan struct{} {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.readyCh()
}

// Drain returns all buffered elements in FIFO order and clears the deque.
func (d *Deque[T]) Drain() []T {
	d.mu.Lock()
	defer d.mu.Unlock()

	if len(d.data) == 0 {
		return nil
	}
	out := make([]T, len(d.data))
	copy(out, d.data)
	clear(d.data)
	d.data = d.data[:0]
	return out
}

// Close rejects further items and returns the ones still buffered.
func (d *Deque[T]) Close() []T {
	d.mu.Lock()
	d.closed = true
	out := d.data
	d.data = nil
	d.mu.Unlock()
	return out
}

// Len returns the current number of elements in the deque.
func (d *Deque[T]) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.data)
}
