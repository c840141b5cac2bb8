package stats

import (
	"encoding/json"
	"math"
	"sort"
)

// DataSample accumulates a sorted sample of float64 observations, mirroring
// the percentile/mean/std helpers used throughout the estimation pipeline.
type DataSample struct {
	points []float64
	sorted bool
}

func (d *DataSample) Add(x float64) {
	d.points = append(d.points, x)
	d.sorted = false
}

func (d *DataSample) N() int { return len(d.points) }

func (d *DataSample) ensureSorted() {
	if !d.sorted {
		sort.Float64s(d.points)
		d.sorted = true
	}
}

func (d *DataSample) Mean() float64 {
	if len(d.points) == 0 {
		return 0
	}
	var sum float64
	for _, x := range d.points {
		sum += x
	}
	return sum / float64(len(d.points))
}

// Std returns the sample standard deviation (n-1 denominator), or 0 if
// there are fewer than 2 points.
func (d *DataSample) Std() float64 {
	n := len(d.points)
	if n < 2 {
		return 0
	}
	mean := d.Mean()
	var ss float64
	for _, x := range d.points {
		ss += (x - mean) * (x - mean)
	}
	return math.Sqrt(ss / float64(n-1))
}

// Percentile returns the p-th percentile (p in [0,1]) of the sample.
func (d *DataSample) Percentile(p float64) float64 {
	d.ensureSorted()
	if len(d.points) == 0 {
		return 0
	}
	return percentileSorted(d.points, p)
}

// MarshalJSON exposes the raw sample, so a TransientStats can cross the
// HTTP API as plain JSON and still support Mean/Percentile on the other
// end.
func (d DataSample) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.points)
}

func (d *DataSample) UnmarshalJSON(b []byte) error {
	var points []float64
	if err := json.Unmarshal(b, &points); err != nil {
		return err
	}
	d.points = points
	d.sorted = false
	return nil
}
