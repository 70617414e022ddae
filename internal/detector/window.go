package detector

// window is a bounded FIFO of the most recent values for one parameter.
// Once at capacity, each push evicts the oldest value.
type window struct {
	values []float64
	cap    int
}

func newWindow(capacity int) *window {
	return &window{values: make([]float64, 0, capacity), cap: capacity}
}

func (w *window) push(value float64) {
	if len(w.values) == w.cap {
		copy(w.values, w.values[1:])
		w.values[len(w.values)-1] = value
		return
	}
	w.values = append(w.values, value)
}

func (w *window) full() bool {
	return len(w.values) == w.cap
}

// spread returns max - min over the window contents.
func (w *window) spread() float64 {
	if len(w.values) == 0 {
		return 0
	}
	lo, hi := w.values[0], w.values[0]
	for _, v := range w.values[1:] {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	return hi - lo
}
