package domain

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"
)

// MaskedMean averages the valid raster pixels selected by the mask and rounds
// the result to one decimal place. It returns nil when no valid pixel is
// selected.
func MaskedMean(r *Raster, m Mask) (*float64, error) {
	if !r.SameGrid(m) {
		return nil, fmt.Errorf("%w: raster %dx%d, mask %dx%d", ErrGridMismatch, r.Width, r.Height, m.Width, m.Height)
	}

	var selected []float64
	for i, set := range m.Bits {
		if set && r.Valid(i) {
			selected = append(selected, r.Values[i])
		}
	}
	if len(selected) == 0 {
		return nil, nil
	}

	mean := RoundTenth(stat.Mean(selected, nil))
	return &mean, nil
}

// RoundTenth rounds v to one decimal place, half to even.
func RoundTenth(v float64) float64 {
	return math.RoundToEven(v*10) / 10
}
