package analytics

import "sync"

// RollingWindow keeps the last size values of a series in a ring buffer.
type RollingWindow struct {
	mu     sync.Mutex
	size   int
	values []float64
	next   int
	count  int
	sum    float64
}

func NewRollingWindow(size int) *RollingWindow {
	if size < 1 {
		size = 1
	}
	return &RollingWindow{
		size:   size,
		values: make([]float64, size),
	}
}

func (rw *RollingWindow) Add(value float64) {
	rw.mu.Lock()
	defer rw.mu.Unlock()

	if rw.count < rw.size {
		rw.count++
	} else {
		rw.sum -= rw.values[rw.next]
	}
	rw.values[rw.next] = value
	rw.sum += value
	rw.next = (rw.next + 1) % rw.size
}

func (rw *RollingWindow) Average() float64 {
	rw.mu.Lock()
	defer rw.mu.Unlock()

	if rw.count == 0 {
		return 0.0
	}
	return rw.sum / float64(rw.count)
}

func (rw *RollingWindow) Len() int {
	rw.mu.Lock()
	defer rw.mu.Unlock()
	return rw.count
}

// Values returns a copy of the window, oldest first.
func (rw *RollingWindow) Values() []float64 {
	rw.mu.Lock()
	defer rw.mu.Unlock()

	out := make([]float64, 0, rw.count)
	start := 0
	if rw.count == rw.size {
		start = rw.next
	}
	for i := 0; i < rw.count; i++ {
		out = append(out, rw.values[(start+i)%rw.size])
	}
	return out
}
