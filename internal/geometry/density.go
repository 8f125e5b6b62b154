package geometry

import "sort"

// ProfilePoint pairs a breakpoint coordinate with the occupancy density of
// the right-open slab starting at that coordinate.
type ProfilePoint struct {
	Coord   float64 `json:"coord"`
	Density float64 `json:"density"`
}

// Profile is an occupancy profile along one axis: a sorted, deduplicated
// sequence of breakpoints with piecewise-constant densities in [0,1].
type Profile []ProfilePoint

// Coords returns the breakpoint coordinates of the profile.
func (p Profile) Coords() []float64 {
	out := make([]float64, len(p))
	for i, pt := range p {
		out[i] = pt.Coord
	}
	return out
}

// interval is a 1-D closed interval used for union computations.
type interval struct{ lo, hi float64 }

// unionLength merges overlapping or Epsilon-adjacent intervals and returns
// the total covered length.
func unionLength(ivs []interval) float64 {
	if len(ivs) == 0 {
		return 0
	}
	sort.Slice(ivs, func(i, j int) bool { return ivs[i].lo < ivs[j].lo })
	total := 0.0
	cur := ivs[0]
	for _, iv := range ivs[1:] {
		if iv.lo <= cur.hi+Epsilon {
			if iv.hi > cur.hi {
				cur.hi = iv.hi
			}
			continue
		}
		total += cur.hi - cur.lo
		cur = iv
	}
	total += cur.hi - cur.lo
	return total
}

// span projects a rectangle onto the given axis.
func span(r Rect, axis Axis) (lo, hi float64) {
	if axis == AxisX {
		return r.X0, r.X1
	}
	return r.Y0, r.Y1
}

// AxisDensity computes the occupancy profile of the page along axis.
//
// Breakpoints are the page bounds plus every box edge projected on the
// axis, sorted and deduplicated within Epsilon. The density at breakpoint c
// is the occupied fraction of the opposite extent over the slab [c, next):
// the union length of the opposite-axis intervals of all boxes whose span
// contains c, divided by the opposite page dimension. The terminal
// breakpoint (the page bound) is sampled just inside the page so that a
// box spanning the whole page reads ~1.0 there as well.
//
// A page with no boxes yields an empty profile.
func AxisDensity(p Page, axis Axis) (Profile, error) {
	if err := validatePage(p); err != nil {
		return nil, err
	}
	if len(p.Boxes) == 0 {
		return Profile{}, nil
	}

	length, extent := p.Width, p.Height
	if axis == AxisY {
		length, extent = p.Height, p.Width
	}
	opposite := AxisY
	if axis == AxisY {
		opposite = AxisX
	}

	breaks := make([]float64, 0, 2+2*len(p.Boxes))
	breaks = append(breaks, 0, length)
	for _, b := range p.Boxes {
		lo, hi := span(b.Rect, axis)
		breaks = append(breaks, clamp(lo, 0, length), clamp(hi, 0, length))
	}
	sort.Float64s(breaks)
	breaks = dedupe(breaks)

	profile := make(Profile, 0, len(breaks))
	for _, c := range breaks {
		x := c
		if x > length-Epsilon {
			// Terminal slab is empty; sample the one ending at the bound.
			x = length - Epsilon
		}
		ivs := make([]interval, 0, len(p.Boxes))
		for _, b := range p.Boxes {
			lo, hi := span(b.Rect, axis)
			if x < lo-Epsilon || x >= hi {
				continue
			}
			olo, ohi := span(b.Rect, opposite)
			olo, ohi = clamp(olo, 0, extent), clamp(ohi, 0, extent)
			if ohi-olo > Epsilon {
				ivs = append(ivs, interval{lo: olo, hi: ohi})
			}
		}
		profile = append(profile, ProfilePoint{
			Coord:   c,
			Density: clamp(unionLength(ivs)/extent, 0, 1),
		})
	}
	return profile, nil
}

// RegionDensity evaluates the occupied fraction of the region r on the
// page: every box is clipped to r, and the union area of the clipped boxes
// is computed by a sweep over the x axis (for each x-slab, the union of the
// active boxes' y-intervals times the slab width). Degenerate regions
// (zero area within Epsilon) yield 0.
func RegionDensity(p Page, r Rect) (float64, error) {
	if err := validatePage(p); err != nil {
		return 0, err
	}
	if err := validateRect(r); err != nil {
		return 0, err
	}
	area := r.Area()
	if area <= Epsilon {
		return 0, nil
	}

	clipped := make([]Rect, 0, len(p.Boxes))
	for _, b := range p.Boxes {
		if c, ok := b.Rect.Intersect(r); ok {
			clipped = append(clipped, c)
		}
	}
	if len(clipped) == 0 {
		return 0, nil
	}

	xs := make([]float64, 0, 2*len(clipped))
	for _, c := range clipped {
		xs = append(xs, c.X0, c.X1)
	}
	sort.Float64s(xs)
	xs = dedupe(xs)

	covered := 0.0
	ivs := make([]interval, 0, len(clipped))
	for i := 0; i+1 < len(xs); i++ {
		width := xs[i+1] - xs[i]
		if width <= Epsilon {
			continue
		}
		ivs = ivs[:0]
		for _, c := range clipped {
			// Edges come from the clipped boxes themselves, so a box
			// either covers the whole slab or none of it.
			if c.X0 <= xs[i]+Epsilon && c.X1 >= xs[i+1]-Epsilon {
				ivs = append(ivs, interval{lo: c.Y0, hi: c.Y1})
			}
		}
		covered += width * unionLength(ivs)
	}
	return clamp(covered/area, 0, 1), nil
}

// ProfileDifference subtracts b from a pointwise over the union of their
// breakpoints. Both profiles are treated as right-open step functions: the
// value at coordinate c is the density of the last breakpoint at or before
// c, and zero before the first breakpoint. Differences are clamped to
// [-1, 1]. No interpolation or resampling is performed, so the result is
// piecewise-constant exactly like its inputs.
func ProfileDifference(a, b Profile) Profile {
	coords := make([]float64, 0, len(a)+len(b))
	for _, pt := range a {
		coords = append(coords, pt.Coord)
	}
	for _, pt := range b {
		coords = append(coords, pt.Coord)
	}
	sort.Float64s(coords)
	coords = dedupe(coords)

	out := make(Profile, 0, len(coords))
	for _, c := range coords {
		d := clamp(valueAt(a, c)-valueAt(b, c), -1, 1)
		out = append(out, ProfilePoint{Coord: c, Density: d})
	}
	return out
}

// valueAt evaluates a profile as a step function at coordinate c.
func valueAt(p Profile, c float64) float64 {
	v := 0.0
	for _, pt := range p {
		if pt.Coord > c+Epsilon {
			break
		}
		v = pt.Density
	}
	return v
}

// dedupe removes values within Epsilon of their predecessor. Input must be
// sorted.
func dedupe(vs []float64) []float64 {
	out := vs[:0]
	for _, v := range vs {
		if len(out) == 0 || v-out[len(out)-1] > Epsilon {
			out = append(out, v)
		}
	}
	return out
}
