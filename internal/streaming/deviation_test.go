package streaming

import (
	"math"
	"testing"
)

func TestWindow_Evicts(t *testing.T) {
	w := NewWindow(3)
	for _, v := range []float64{1, 2, 3, 4} {
		w.Sample(v)
	}
	if w.Len() != 3 {
		t.Fatalf("expected 3 samples, got %d", w.Len())
	}
	want := []float64{2, 3, 4}
	for i, v := range w.Values() {
		if v != want[i] {
			t.Errorf("sample %d: expected %v, got %v", i, want[i], v)
		}
	}

	if NewWindow(0).size != 1 {
		t.Error("expected window size clamped to 1")
	}
}

func TestDeviation(t *testing.T) {
	d := NewDeviation(20)
	if d.Mean() != 0 || d.StdDev() != 0 {
		t.Error("expected zero estimates without samples")
	}

	d.Sample(100)
	if d.Mean() != 100 {
		t.Errorf("expected mean 100, got %v", d.Mean())
	}
	if d.StdDev() != 0 {
		t.Errorf("expected zero deviation with one sample, got %v", d.StdDev())
	}

	d = NewDeviation(20)
	for _, v := range []float64{2, 4, 4, 4, 5, 5, 7, 9} {
		d.Sample(v)
	}
	if d.Mean() != 5 {
		t.Errorf("expected mean 5, got %v", d.Mean())
	}
	// sample variance is 32/7
	if got, want := d.StdDev(), math.Sqrt(32.0/7.0); math.Abs(got-want) > 1e-9 {
		t.Errorf("expected std dev %v, got %v", want, got)
	}
}

func TestDeviation_WindowEvicts(t *testing.T) {
	d := NewDeviation(2)
	d.Sample(1000)
	d.Sample(10)
	d.Sample(10)

	if d.Samples() != 2 {
		t.Errorf("expected 2 samples, got %d", d.Samples())
	}
	if d.Mean() != 10 {
		t.Errorf("expected old sample evicted and mean 10, got %v", d.Mean())
	}
	if d.StdDev() != 0 {
		t.Errorf("expected zero deviation for equal samples, got %v", d.StdDev())
	}
}
