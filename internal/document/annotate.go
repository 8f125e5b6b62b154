package document

import (
	"fmt"

	"github.com/local/docsmith/internal/geometry"
)

// AnnotateDensity recomputes the derived margins and density profiles of
// every page from its current elements, replacing any previous values.
// Run after extraction and again after every correction pass.
func (d *Document) AnnotateDensity() error {
	for i := range d.Pages {
		gp := d.Pages[i].Geometry()

		margins, err := geometry.PageMargins(gp)
		if err != nil {
			return fmt.Errorf("page %d margins: %w", d.Pages[i].PageNumber, err)
		}
		xp, err := geometry.AxisDensity(gp, geometry.AxisX)
		if err != nil {
			return fmt.Errorf("page %d x-density: %w", d.Pages[i].PageNumber, err)
		}
		yp, err := geometry.AxisDensity(gp, geometry.AxisY)
		if err != nil {
			return fmt.Errorf("page %d y-density: %w", d.Pages[i].PageNumber, err)
		}

		d.Pages[i].Margins = &margins
		d.Pages[i].Density = &Density{X: xp, Y: yp}
	}
	return nil
}
