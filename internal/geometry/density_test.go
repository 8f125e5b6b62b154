package geometry

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func page(w, h float64, rects ...Rect) Page {
	boxes := make([]Box, len(rects))
	for i, r := range rects {
		boxes[i] = Box{Rect: r, Label: "text"}
	}
	return Page{Width: w, Height: h, Boxes: boxes}
}

func TestAxisDensityEmptyPage(t *testing.T) {
	p := page(612, 792)
	for _, axis := range []Axis{AxisX, AxisY} {
		profile, err := AxisDensity(p, axis)
		require.NoError(t, err)
		assert.Empty(t, profile, "axis %s", axis)
	}
}

func TestAxisDensityFullPageBox(t *testing.T) {
	p := page(612, 792, Rect{X0: 0, Y0: 0, X1: 612, Y1: 792})
	for _, axis := range []Axis{AxisX, AxisY} {
		profile, err := AxisDensity(p, axis)
		require.NoError(t, err)
		require.NotEmpty(t, profile)
		for _, pt := range profile {
			assert.GreaterOrEqual(t, pt.Density, 0.9, "axis %s coord %g", axis, pt.Coord)
			assert.InDelta(t, 1.0, pt.Density, 1e-6)
		}
	}
}

func TestAxisDensityBreakpointScenario(t *testing.T) {
	p := page(100, 100,
		Rect{X0: 10, Y0: 10, X1: 50, Y1: 50},
		Rect{X0: 60, Y0: 60, X1: 90, Y1: 90},
	)
	profile, err := AxisDensity(p, AxisX)
	require.NoError(t, err)

	require.Equal(t, []float64{0, 10, 50, 60, 90, 100}, profile.Coords())

	byCoord := map[float64]float64{}
	for _, pt := range profile {
		byCoord[pt.Coord] = pt.Density
	}
	assert.InDelta(t, 0.0, byCoord[0], 1e-9)
	assert.InDelta(t, 0.4, byCoord[10], 1e-9)
	assert.InDelta(t, 0.0, byCoord[50], 1e-9)
	assert.InDelta(t, 0.3, byCoord[60], 1e-9)
	assert.InDelta(t, 0.0, byCoord[90], 1e-9)
}

func TestAxisDensityProfileInvariants(t *testing.T) {
	p := page(200, 100,
		Rect{X0: 20, Y0: 0, X1: 80, Y1: 40},
		Rect{X0: 50, Y0: 30, X1: 170, Y1: 90},
		Rect{X0: -5, Y0: 10, X1: 300, Y1: 20}, // reaches past both bounds
	)
	profile, err := AxisDensity(p, AxisX)
	require.NoError(t, err)
	for i, pt := range profile {
		assert.GreaterOrEqual(t, pt.Coord, 0.0)
		assert.LessOrEqual(t, pt.Coord, 200.0)
		assert.GreaterOrEqual(t, pt.Density, 0.0)
		assert.LessOrEqual(t, pt.Density, 1.0)
		if i > 0 {
			assert.Greater(t, pt.Coord, profile[i-1].Coord, "coordinates strictly sorted")
		}
	}
}

func TestAxisDensityOverlapNotDoubleCounted(t *testing.T) {
	// Two identical boxes: union, not sum.
	p := page(100, 100,
		Rect{X0: 0, Y0: 0, X1: 100, Y1: 60},
		Rect{X0: 0, Y0: 0, X1: 100, Y1: 60},
	)
	profile, err := AxisDensity(p, AxisX)
	require.NoError(t, err)
	for _, pt := range profile {
		assert.InDelta(t, 0.6, pt.Density, 1e-9)
	}
}

func TestAxisDensityRejectsMalformedPage(t *testing.T) {
	_, err := AxisDensity(Page{Width: 0, Height: 100}, AxisX)
	var gerr *Error
	require.ErrorAs(t, err, &gerr)

	_, err = AxisDensity(page(100, 100, Rect{X0: math.NaN(), X1: 10, Y1: 10}), AxisY)
	require.ErrorAs(t, err, &gerr)

	_, err = AxisDensity(page(100, 100, Rect{X0: 50, Y0: 0, X1: 10, Y1: 10}), AxisX)
	require.ErrorAs(t, err, &gerr)
}

func TestRegionDensityFullPage(t *testing.T) {
	p := page(100, 100, Rect{X0: 0, Y0: 0, X1: 100, Y1: 100})
	d, err := RegionDensity(p, Rect{X0: 0, Y0: 0, X1: 100, Y1: 100})
	require.NoError(t, err)
	assert.InDelta(t, 1.0, d, 1e-6)
}

func TestRegionDensityDegenerateRegion(t *testing.T) {
	p := page(100, 100, Rect{X0: 0, Y0: 0, X1: 100, Y1: 100})
	d, err := RegionDensity(p, Rect{X0: 40, Y0: 10, X1: 40, Y1: 90})
	require.NoError(t, err)
	assert.Zero(t, d)
}

func TestRegionDensityPartialAndOverlap(t *testing.T) {
	p := page(100, 100,
		Rect{X0: 0, Y0: 0, X1: 50, Y1: 100},
		Rect{X0: 0, Y0: 0, X1: 50, Y1: 100}, // duplicate must not double count
	)
	d, err := RegionDensity(p, Rect{X0: 0, Y0: 0, X1: 100, Y1: 100})
	require.NoError(t, err)
	assert.InDelta(t, 0.5, d, 1e-9)

	d, err = RegionDensity(p, Rect{X0: 0, Y0: 0, X1: 50, Y1: 100})
	require.NoError(t, err)
	assert.InDelta(t, 1.0, d, 1e-9)

	d, err = RegionDensity(p, Rect{X0: 50, Y0: 0, X1: 100, Y1: 100})
	require.NoError(t, err)
	assert.InDelta(t, 0.0, d, 1e-9)
}

func TestRegionDensityConsistentWithAxisDensity(t *testing.T) {
	p := page(100, 100, Rect{X0: 10, Y0: 10, X1: 50, Y1: 50})
	// The slab [10,50) has x-density 0.4; the matching region query over the
	// full page height must agree.
	d, err := RegionDensity(p, Rect{X0: 10, Y0: 0, X1: 50, Y1: 100})
	require.NoError(t, err)
	assert.InDelta(t, 0.4, d, 1e-9)
}

func TestProfileDifferenceSelfIsZero(t *testing.T) {
	p := page(100, 100, Rect{X0: 10, Y0: 10, X1: 50, Y1: 50})
	profile, err := AxisDensity(p, AxisX)
	require.NoError(t, err)

	diff := ProfileDifference(profile, profile)
	require.Len(t, diff, len(profile))
	for _, pt := range diff {
		assert.InDelta(t, 0.0, pt.Density, 1e-9)
	}
}

func TestProfileDifferenceUnionOfBreakpoints(t *testing.T) {
	a := Profile{{Coord: 0, Density: 0.5}, {Coord: 50, Density: 0.2}}
	b := Profile{{Coord: 0, Density: 0.1}, {Coord: 30, Density: 0.4}}
	diff := ProfileDifference(a, b)
	require.Equal(t, []float64{0, 30, 50}, diff.Coords())
	assert.InDelta(t, 0.4, diff[0].Density, 1e-9)  // 0.5 - 0.1
	assert.InDelta(t, 0.1, diff[1].Density, 1e-9)  // 0.5 - 0.4
	assert.InDelta(t, -0.2, diff[2].Density, 1e-9) // 0.2 - 0.4
	for _, pt := range diff {
		assert.GreaterOrEqual(t, pt.Density, -1.0)
		assert.LessOrEqual(t, pt.Density, 1.0)
	}
}

func TestProfileDifferenceAgainstEmpty(t *testing.T) {
	a := Profile{{Coord: 0, Density: 0.5}, {Coord: 80, Density: 0.0}}
	diff := ProfileDifference(a, Profile{})
	require.Equal(t, a.Coords(), diff.Coords())
	assert.InDelta(t, 0.5, diff[0].Density, 1e-9)
}
