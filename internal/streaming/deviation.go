package streaming

import (
	"gonum.org/v1/gonum/stat"
)

// Deviation estimates the mean and spread of the most recent samples.
// It is not safe for concurrent use.
type Deviation struct {
	window *Window
}

// NewDeviation keeps the last window samples.
func NewDeviation(window int) *Deviation {
	return &Deviation{window: NewWindow(window)}
}

// Sample records v.
func (d *Deviation) Sample(v float64) {
	d.window.Sample(v)
}

// Samples returns how many samples are in the window.
func (d *Deviation) Samples() int {
	return d.window.Len()
}

// Mean returns the average of the window, 0 when empty.
func (d *Deviation) Mean() float64 {
	if d.window.Len() == 0 {
		return 0
	}
	return stat.Mean(d.window.Values(), nil)
}

// StdDev returns the sample standard deviation, 0 with fewer than two samples.
func (d *Deviation) StdDev() float64 {
	if d.window.Len() < 2 {
		return 0
	}
	_, std := stat.MeanStdDev(d.window.Values(), nil)
	return std
}
