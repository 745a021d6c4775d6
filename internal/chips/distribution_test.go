package chips

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDistributionInjectAndTotal(t *testing.T) {
	d := NewDistribution(0.01)
	d.Inject(10.0, 9.5, 10.5, 1000, 1.0)

	assert.InDelta(t, 1000, d.TotalVolume(), 1e-6)

	prices, volumes := d.Buckets()
	require.NotEmpty(t, prices)

	// Triangular kernel: the center bucket carries the most volume.
	var peakPrice, peakVolume float64
	for i, p := range prices {
		if volumes[i] > peakVolume {
			peakVolume = volumes[i]
			peakPrice = p
		}
	}
	assert.InDelta(t, 10.0, peakPrice, 0.011)
}

func TestDistributionInjectDegenerateRange(t *testing.T) {
	// A day with high == low puts everything into the center bucket.
	d := NewDistribution(0.01)
	d.Inject(10.0, 10.0, 10.0, 500, 1.0)

	prices, volumes := d.Buckets()
	require.Len(t, prices, 1)
	assert.InDelta(t, 10.0, prices[0], 1e-9)
	assert.InDelta(t, 500, volumes[0], 1e-9)
}

func TestDistributionRenormalize(t *testing.T) {
	d := NewDistribution(0.01)
	d.Inject(10.0, 9.0, 11.0, 12345, 1.0)
	d.Decay(0.8)

	d.Renormalize(1e8)
	assert.InDelta(t, 1e8, d.TotalVolume(), 1e-2)

	// Renormalizing an empty distribution must not panic or invent volume.
	empty := NewDistribution(0.01)
	empty.Renormalize(1e8)
	assert.Zero(t, empty.TotalVolume())
}

func TestDecayPreservesShapeAfterRenormalize(t *testing.T) {
	// A uniform decay is exactly undone by renormalization: the histogram's
	// shape can only change through injection.
	d := NewDistribution(0.01)
	d.Inject(10.0, 9.0, 11.0, 5000, 1.0)
	d.Inject(10.5, 10.0, 11.0, 2000, 1.0)

	_, before := d.Buckets()
	total := d.TotalVolume()

	d.Decay(0.999)
	d.Renormalize(total)

	_, after := d.Buckets()
	require.Len(t, after, len(before))
	for i := range before {
		assert.InDelta(t, before[i], after[i], 1e-6)
	}
}

func TestConcentrationBounds(t *testing.T) {
	testCases := []struct {
		name   string
		inject func(d *Distribution)
	}{
		{
			name: "single spike",
			inject: func(d *Distribution) {
				d.Inject(10.0, 10.0, 10.0, 1e6, 1.0)
			},
		},
		{
			name: "wide and flat",
			inject: func(d *Distribution) {
				for p := 5.0; p < 15.0; p += 0.01 {
					d.Inject(p, p, p, 100, 1.0)
				}
			},
		},
		{
			name: "two clusters",
			inject: func(d *Distribution) {
				d.Inject(8.0, 7.5, 8.5, 5e5, 1.0)
				d.Inject(12.0, 11.5, 12.5, 5e5, 1.0)
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			d := NewDistribution(0.01)
			tc.inject(d)
			c := d.Concentration()
			assert.GreaterOrEqual(t, c, 0.1)
			assert.LessOrEqual(t, c, 0.95)
		})
	}
}

func TestConcentrationOrdersByTightness(t *testing.T) {
	tight := NewDistribution(0.01)
	tight.Inject(10.0, 9.9, 10.1, 1e6, 1.0)
	// Give the tight distribution the same support width as the flat one so
	// the comparison is about volume packing, not bucket count.
	for p := 5.0; p < 15.0; p += 0.05 {
		tight.Inject(p, p, p, 10, 1.0)
	}

	flat := NewDistribution(0.01)
	for p := 5.0; p < 15.0; p += 0.05 {
		flat.Inject(p, p, p, 5000, 1.0)
	}

	assert.Greater(t, tight.Concentration(), flat.Concentration())
}

func TestProfitRatio(t *testing.T) {
	d := NewDistribution(0.01)
	d.Inject(8.0, 8.0, 8.0, 300, 1.0)  // below
	d.Inject(12.0, 12.0, 12.0, 700, 1.0) // above

	assert.InDelta(t, 0.3, d.ProfitRatio(10.0), 1e-9)

	// Clamps at the boundaries.
	assert.InDelta(t, 0.95, d.ProfitRatio(100.0), 1e-9)
	assert.InDelta(t, 0.05, d.ProfitRatio(1.0), 1e-9)

	// Empty distribution resolves to neutral, never divides by zero.
	empty := NewDistribution(0.01)
	assert.InDelta(t, 0.5, empty.ProfitRatio(10.0), 1e-9)
}
