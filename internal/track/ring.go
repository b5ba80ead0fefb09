package track

import "gonum.org/v1/gonum/stat"

// ringCapacity is the number of samples the moving-average filter holds per
// slot.
const ringCapacity = 5

// sampleRing is a fixed-capacity circular buffer of position/speed samples.
// The valid-count field guards against averaging uninitialized entries
// before the ring fills.
type sampleRing struct {
	x     [ringCapacity]float64
	y     [ringCapacity]float64
	speed [ringCapacity]float64
	next  int
	count int
}

func (r *sampleRing) push(x, y, speed float64) {
	r.x[r.next] = x
	r.y[r.next] = y
	r.speed[r.next] = speed
	r.next = (r.next + 1) % ringCapacity
	if r.count < ringCapacity {
		r.count++
	}
}

// mean returns the arithmetic mean over the currently valid entries. The
// mean is order-independent, so entries are read in storage order without
// unwinding the wraparound.
func (r *sampleRing) mean() (x, y, speed float64) {
	if r.count == 0 {
		return 0, 0, 0
	}
	x = stat.Mean(r.x[:r.count], nil)
	y = stat.Mean(r.y[:r.count], nil)
	speed = stat.Mean(r.speed[:r.count], nil)
	return x, y, speed
}

func (r *sampleRing) reset() {
	*r = sampleRing{}
}
