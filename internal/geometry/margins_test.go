package geometry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPageMarginsEmpty(t *testing.T) {
	m, err := PageMargins(page(612, 792))
	require.NoError(t, err)
	assert.Equal(t, Margins{}, m)
}

func TestPageMarginsHull(t *testing.T) {
	m, err := PageMargins(page(100, 200,
		Rect{X0: 10, Y0: 20, X1: 60, Y1: 150},
		Rect{X0: 30, Y0: 40, X1: 80, Y1: 120},
	))
	require.NoError(t, err)
	assert.InDelta(t, 10, m.Left, 1e-9)
	assert.InDelta(t, 20, m.Right, 1e-9)
	assert.InDelta(t, 20, m.Top, 1e-9)
	assert.InDelta(t, 50, m.Bottom, 1e-9)
}

func TestPageMarginsClampedToPage(t *testing.T) {
	m, err := PageMargins(page(100, 100, Rect{X0: -20, Y0: -5, X1: 130, Y1: 140}))
	require.NoError(t, err)
	assert.Equal(t, Margins{}, m)
}

func TestPageMarginsRejectsMalformedPage(t *testing.T) {
	_, err := PageMargins(Page{Width: 100, Height: -1})
	var gerr *Error
	require.ErrorAs(t, err, &gerr)
}
