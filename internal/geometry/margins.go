package geometry

// Margins are the gaps between the content hull of a page and its edges.
type Margins struct {
	Left   float64 `json:"left"`
	Right  float64 `json:"right"`
	Top    float64 `json:"top"`
	Bottom float64 `json:"bottom"`
}

// PageMargins measures the distance from each page edge to the nearest box
// edge. Boxes reaching past the page bound contribute a zero margin. A page
// with no boxes has zero margins.
func PageMargins(p Page) (Margins, error) {
	if err := validatePage(p); err != nil {
		return Margins{}, err
	}
	if len(p.Boxes) == 0 {
		return Margins{}, nil
	}
	minX, minY := p.Width, p.Height
	maxX, maxY := 0.0, 0.0
	for _, b := range p.Boxes {
		if b.Rect.X0 < minX {
			minX = b.Rect.X0
		}
		if b.Rect.Y0 < minY {
			minY = b.Rect.Y0
		}
		if b.Rect.X1 > maxX {
			maxX = b.Rect.X1
		}
		if b.Rect.Y1 > maxY {
			maxY = b.Rect.Y1
		}
	}
	return Margins{
		Left:   clamp(minX, 0, p.Width),
		Right:  clamp(p.Width-maxX, 0, p.Width),
		Top:    clamp(minY, 0, p.Height),
		Bottom: clamp(p.Height-maxY, 0, p.Height),
	}, nil
}
