// Package streaming provides a bounded window of samples and the deviation
// estimator that drives adaptive pulse timing.
package streaming

// Window is a bounded sliding window of samples. Once full, the oldest sample
// is dropped.
type Window struct {
	samples []float64
	size    int
}

// NewWindow returns a window holding at most size samples.
func NewWindow(size int) *Window {
	if size < 1 {
		size = 1
	}
	return &Window{samples: make([]float64, 0, size), size: size}
}

// Sample adds v, evicting the oldest sample if the window is full.
func (w *Window) Sample(v float64) {
	w.samples = append(w.samples, v)
	if over := len(w.samples) - w.size; over > 0 {
		w.samples = append(w.samples[:0], w.samples[over:]...)
	}
}

// Len counts the samples held.
func (w *Window) Len() int {
	return len(w.samples)
}

// Values returns the samples, oldest first. The slice must not be modified.
func (w *Window) Values() []float64 {
	return w.samples
}
