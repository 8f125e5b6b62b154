// Package geometry computes occupancy profiles and region density over the
// bounding boxes of a page. All functions are pure: no I/O, no shared state,
// safe for any number of parallel callers.
package geometry

import (
	"fmt"
	"math"
)

// Epsilon is the tolerance used when deduplicating breakpoints, merging
// adjacent intervals and comparing coordinates. Coordinates closer than
// this are treated as equal.
const Epsilon = 1e-6

// Axis selects the direction of a density profile.
type Axis int

const (
	AxisX Axis = iota
	AxisY
)

func (a Axis) String() string {
	if a == AxisX {
		return "x"
	}
	return "y"
}

// Rect is an axis-aligned rectangle with X0 <= X1 and Y0 <= Y1, in the
// page coordinate unit.
type Rect struct {
	X0 float64 `json:"x0"`
	Y0 float64 `json:"y0"`
	X1 float64 `json:"x1"`
	Y1 float64 `json:"y1"`
}

// Width returns X1-X0.
func (r Rect) Width() float64 { return r.X1 - r.X0 }

// Height returns Y1-Y0.
func (r Rect) Height() float64 { return r.Y1 - r.Y0 }

// Area returns the rectangle area.
func (r Rect) Area() float64 { return r.Width() * r.Height() }

// Intersect clips r to o. The second return value is false when the
// intersection is empty (within Epsilon).
func (r Rect) Intersect(o Rect) (Rect, bool) {
	c := Rect{
		X0: math.Max(r.X0, o.X0),
		Y0: math.Max(r.Y0, o.Y0),
		X1: math.Min(r.X1, o.X1),
		Y1: math.Min(r.Y1, o.Y1),
	}
	if c.Width() <= Epsilon || c.Height() <= Epsilon {
		return Rect{}, false
	}
	return c, true
}

// Box is a labelled rectangle on a page. The label is irrelevant to the
// geometry computations and carried only for downstream consumers.
type Box struct {
	Rect  Rect
	Label string
}

// Page is a bounded page with a finite ordered collection of boxes.
// Boxes may overlap; occupancy is always computed by interval union,
// never by summing areas.
type Page struct {
	Width  float64
	Height float64
	Boxes  []Box
}

// Error reports a malformed page or rectangle. It is fatal to the single
// call that produced it and is never silently corrected.
type Error struct {
	Reason string
}

func (e *Error) Error() string { return "geometry: " + e.Reason }

func finite(vs ...float64) bool {
	for _, v := range vs {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

func validateRect(r Rect) error {
	if !finite(r.X0, r.Y0, r.X1, r.Y1) {
		return &Error{Reason: fmt.Sprintf("non-finite rectangle coordinates %+v", r)}
	}
	if r.X0 > r.X1 || r.Y0 > r.Y1 {
		return &Error{Reason: fmt.Sprintf("inverted rectangle %+v", r)}
	}
	return nil
}

func validatePage(p Page) error {
	if !finite(p.Width, p.Height) || p.Width <= 0 || p.Height <= 0 {
		return &Error{Reason: fmt.Sprintf("non-positive page dimensions %gx%g", p.Width, p.Height)}
	}
	for i, b := range p.Boxes {
		if err := validateRect(b.Rect); err != nil {
			return &Error{Reason: fmt.Sprintf("box %d: %v", i, err)}
		}
	}
	return nil
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
