// Package indicator provides incremental technical indicators built on
// fixed-capacity ring buffers. Every indicator consumes one value per bar and
// never looks past the most recent value pushed.
package indicator

import "math"

// Ring is a fixed-capacity FIFO of float64 values. Pushing onto a full ring
// evicts the oldest value. Ring is not safe for concurrent use; each
// strategy owns its buffers.
type Ring struct {
	data   []float64
	front  int
	length int
}

// NewRing creates a Ring holding at most capacity values. Capacities below
// one are raised to one.
func NewRing(capacity int) *Ring {
	if capacity < 1 {
		capacity = 1
	}
	return &Ring{data: make([]float64, capacity)}
}

// Push appends v, evicting the oldest value when full.
func (r *Ring) Push(v float64) {
	if r.length == len(r.data) {
		r.data[r.front] = v
		r.front = (r.front + 1) % len(r.data)
		return
	}
	r.data[(r.front+r.length)%len(r.data)] = v
	r.length++
}

// Get returns the value at index i, oldest first. Negative indices count
// back from the newest value (-1 is the newest). Out-of-range indices
// return 0.
func (r *Ring) Get(i int) float64 {
	if i < 0 {
		i += r.length
	}
	if i < 0 || i >= r.length {
		return 0
	}
	return r.data[(r.front+i)%len(r.data)]
}

// Last returns the newest value, or 0 when empty.
func (r *Ring) Last() float64 { return r.Get(-1) }

// Len returns the number of values held.
func (r *Ring) Len() int { return r.length }

// Cap returns the ring capacity.
func (r *Ring) Cap() int { return len(r.data) }

// Full reports whether the ring holds Cap values.
func (r *Ring) Full() bool { return r.length == len(r.data) }

// Reset empties the ring without releasing storage.
func (r *Ring) Reset() {
	r.front = 0
	r.length = 0
}

// Values returns a copy of the held values, oldest first.
func (r *Ring) Values() []float64 {
	out := make([]float64, r.length)
	for i := range out {
		out[i] = r.Get(i)
	}
	return out
}

// Sum returns the sum of values in [from, to), oldest-first indexing.
func (r *Ring) Sum(from, to int) float64 {
	var s float64
	for i := from; i < to; i++ {
		s += r.Get(i)
	}
	return s
}

// Mean returns the mean of all held values, or 0 when empty.
func (r *Ring) Mean() float64 {
	if r.length == 0 {
		return 0
	}
	return r.Sum(0, r.length) / float64(r.length)
}

// Max returns the largest value in [from, to). It returns -Inf for an empty
// range.
func (r *Ring) Max(from, to int) float64 {
	m := math.Inf(-1)
	for i := from; i < to; i++ {
		if v := r.Get(i); v > m {
			m = v
		}
	}
	return m
}

// Min returns the smallest value in [from, to). It returns +Inf for an
// empty range.
func (r *Ring) Min(from, to int) float64 {
	m := math.Inf(1)
	for i := from; i < to; i++ {
		if v := r.Get(i); v < m {
			m = v
		}
	}
	return m
}

// PopulationStd returns the population standard deviation of the held
// values.
func (r *Ring) PopulationStd() float64 {
	if r.length == 0 {
		return 0
	}
	mean := r.Mean()
	var ss float64
	for i := 0; i < r.length; i++ {
		d := r.Get(i) - mean
		ss += d * d
	}
	return math.Sqrt(ss / float64(r.length))
}
