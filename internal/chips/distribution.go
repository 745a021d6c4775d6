// Package chips estimates, per instrument, how many outstanding shares were
// acquired at each price, using only daily bars. The reconstruction is a
// deterministic heuristic: seed, decay by turnover, inject around the VWAP,
// renormalize to the free float.
package chips

import (
	"math"
	"sort"
)

// Distribution is a histogram of estimated held volume by acquisition price.
// Buckets are indexed by round(price / bucketWidth).
type Distribution struct {
	bucketWidth float64
	volumes     map[int]float64
}

// NewDistribution creates an empty distribution with the given bucket width.
func NewDistribution(bucketWidth float64) *Distribution {
	return &Distribution{
		bucketWidth: bucketWidth,
		volumes:     make(map[int]float64),
	}
}

func (d *Distribution) bucket(price float64) int {
	return int(math.Round(price / d.bucketWidth))
}

// BucketPrice returns the representative price of a bucket index.
func (d *Distribution) BucketPrice(idx int) float64 {
	return float64(idx) * d.bucketWidth
}

// TotalVolume is the sum of all bucket volumes.
func (d *Distribution) TotalVolume() float64 {
	var total float64
	for _, v := range d.volumes {
		total += v
	}
	return total
}

// Buckets returns non-empty buckets in ascending price order.
func (d *Distribution) Buckets() (prices, volumes []float64) {
	idxs := make([]int, 0, len(d.volumes))
	for i := range d.volumes {
		idxs = append(idxs, i)
	}
	sort.Ints(idxs)
	prices = make([]float64, len(idxs))
	volumes = make([]float64, len(idxs))
	for n, i := range idxs {
		prices[n] = d.BucketPrice(i)
		volumes[n] = d.volumes[i]
	}
	return prices, volumes
}

// Decay scales every bucket by factor, modeling holders who sold that day.
func (d *Distribution) Decay(factor float64) {
	if factor == 1 {
		return
	}
	for i := range d.volumes {
		d.volumes[i] *= factor
	}
}

// Inject distributes volume across buckets in [low, high] with a triangular
// kernel centered on center: weight falls linearly with distance from the
// center, reaching zero at the bandwidth edge. A degenerate range puts all
// volume into the center bucket.
func (d *Distribution) Inject(center, low, high, volume, bandwidthFactor float64) {
	if volume <= 0 {
		return
	}
	if high < low {
		low, high = high, low
	}

	bandwidth := math.Max(high-center, center-low) * bandwidthFactor
	if bandwidth < d.bucketWidth {
		d.volumes[d.bucket(center)] += volume
		return
	}

	lowIdx, highIdx := d.bucket(low), d.bucket(high)
	weights := make([]float64, highIdx-lowIdx+1)
	var weightSum float64
	for i := lowIdx; i <= highIdx; i++ {
		w := 1 - math.Abs(d.BucketPrice(i)-center)/bandwidth
		if w < 0 {
			w = 0
		}
		weights[i-lowIdx] = w
		weightSum += w
	}
	if weightSum == 0 {
		d.volumes[d.bucket(center)] += volume
		return
	}
	for i := lowIdx; i <= highIdx; i++ {
		if w := weights[i-lowIdx]; w > 0 {
			d.volumes[i] += volume * w / weightSum
		}
	}
}

// Renormalize rescales the distribution so its total volume equals target,
// correcting the compounding drift of repeated decay and injection.
func (d *Distribution) Renormalize(target float64) {
	total := d.TotalVolume()
	if total <= 0 || target <= 0 {
		return
	}
	scale := target / total
	for i := range d.volumes {
		d.volumes[i] *= scale
	}
}

// Concentration measures how narrowly the held volume is packed in price,
// as a doubled Gini coefficient over the bucket volumes, clamped to
// [0.1, 0.95].
func (d *Distribution) Concentration() float64 {
	_, volumes := d.Buckets()
	n := len(volumes)
	if n == 0 {
		return 0.5
	}
	total := 0.0
	for _, v := range volumes {
		total += v
	}
	if total == 0 {
		return 0.5
	}

	sorted := make([]float64, n)
	copy(sorted, volumes)
	sort.Float64s(sorted)

	// Gini over sorted values: (2*Σ i*v_i − (n+1)*Σ v_i) / (n*Σ v_i).
	var rankSum float64
	for i, v := range sorted {
		rankSum += float64(i+1) * v
	}
	gini := (2*rankSum - float64(n+1)*total) / (float64(n) * total)

	return clamp(gini*2, 0.1, 0.95)
}

// ProfitRatio is the fraction of held volume with an estimated acquisition
// price below the given close, clamped to [0.05, 0.95].
func (d *Distribution) ProfitRatio(close float64) float64 {
	closeIdx := d.bucket(close)
	var profitable, total float64
	for i, v := range d.volumes {
		total += v
		if i < closeIdx {
			profitable += v
		}
	}
	if total == 0 {
		return 0.5
	}
	return clamp(profitable/total, 0.05, 0.95)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
