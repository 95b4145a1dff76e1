package transformer

import (
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

// Dropout implements inverted dropout. Each sublayer owns one instance so
// the mask from the last forward pass is available to the backward pass.
// Inactive (rate 0 or inference) it is the identity.
type Dropout struct {
	Rate float64
	rng  *rand.Rand

	mask *mat.Dense // nil when the last forward was a no-op
}

func newDropout(rate float64, rng *rand.Rand) *Dropout {
	return &Dropout{Rate: rate, rng: rng}
}

func (dr *Dropout) Forward(x *mat.Dense, training bool) *mat.Dense {
	if !training || dr.Rate <= 0 {
		dr.mask = nil
		return x
	}
	r, c := x.Dims()
	keep := 1.0 / (1.0 - dr.Rate)
	mask := mat.NewDense(r, c, nil)
	out := mat.NewDense(r, c, nil)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			if dr.rng.Float64() >= dr.Rate {
				mask.Set(i, j, keep)
				out.Set(i, j, x.At(i, j)*keep)
			}
		}
	}
	dr.mask = mask
	return out
}

func (dr *Dropout) Backward(dy *mat.Dense) *mat.Dense {
	if dr.mask == nil {
		return dy
	}
	r, c := dy.Dims()
	out := mat.NewDense(r, c, nil)
	out.MulElem(dy, dr.mask)
	return out
}
