package transformer

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// SinCosPositionalEncoding builds the fixed sinusoidal table, one column
// per position: pe[2i, pos] = sin(pos/10000^(2i/d)),
// pe[2i+1, pos] = cos(pos/10000^(2i/d)). The table is never trained.
func SinCosPositionalEncoding(maxPositions, d int) *mat.Dense {
	pe := mat.NewDense(d, maxPositions, nil)
	for pos := 0; pos < maxPositions; pos++ {
		for i := 0; i < d; i++ {
			denom := math.Pow(10000, float64(2*(i/2))/float64(d))
			val := float64(pos) / denom
			if i%2 == 0 {
				pe.Set(i, pos, math.Sin(val))
			} else {
				pe.Set(i, pos, math.Cos(val))
			}
		}
	}
	return pe
}

// addPositions returns X plus the first T columns of the table.
func addPositions(x, pe *mat.Dense) *mat.Dense {
	d, t := x.Dims()
	out := mat.NewDense(d, t, nil)
	for j := 0; j < t; j++ {
		for i := 0; i < d; i++ {
			out.Set(i, j, x.At(i, j)+pe.At(i, j))
		}
	}
	return out
}
