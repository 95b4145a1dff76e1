package transformer

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// LayerNorm normalizes each column of a (d x T) activation matrix and
// applies a learned per-row affine transform.
type LayerNorm struct {
	D     int
	Eps   float64
	Gamma *Param // (d x 1)
	Beta  *Param // (d x 1)

	// cache
	xhat   *mat.Dense
	invStd []float64
}

func newLayerNorm(d int) *LayerNorm {
	gamma := make([]float64, d)
	for i := range gamma {
		gamma[i] = 1.0
	}
	return &LayerNorm{
		D:     d,
		Eps:   1e-5,
		Gamma: newParam(d, 1, gamma, false),
		Beta:  newParam(d, 1, nil, false),
	}
}

func (ln *LayerNorm) Forward(x *mat.Dense) *mat.Dense {
	d, t := x.Dims()
	out := mat.NewDense(d, t, nil)
	xhat := mat.NewDense(d, t, nil)
	inv := make([]float64, t)
	for j := 0; j < t; j++ {
		mu := 0.0
		for i := 0; i < d; i++ {
			mu += x.At(i, j)
		}
		mu /= float64(d)
		var v float64
		for i := 0; i < d; i++ {
			diff := x.At(i, j) - mu
			v += diff * diff
		}
		v /= float64(d)
		istd := 1.0 / math.Sqrt(v+ln.Eps)
		inv[j] = istd
		for i := 0; i < d; i++ {
			n := (x.At(i, j) - mu) * istd
			xhat.Set(i, j, n)
			out.Set(i, j, ln.Gamma.W.At(i, 0)*n+ln.Beta.W.At(i, 0))
		}
	}
	ln.xhat = xhat
	ln.invStd = inv
	return out
}

// Backward accumulates gamma/beta gradients and returns dX.
func (ln *LayerNorm) Backward(dy *mat.Dense) *mat.Dense {
	d, t := dy.Dims()
	for i := 0; i < d; i++ {
		sumDG := 0.0
		sumDB := 0.0
		for j := 0; j < t; j++ {
			sumDG += dy.At(i, j) * ln.xhat.At(i, j)
			sumDB += dy.At(i, j)
		}
		ln.Gamma.G.Set(i, 0, ln.Gamma.G.At(i, 0)+sumDG)
		ln.Beta.G.Set(i, 0, ln.Beta.G.At(i, 0)+sumDB)
	}

	dx := mat.NewDense(d, t, nil)
	for j := 0; j < t; j++ {
		istd := ln.invStd[j]
		sum1 := 0.0
		sum2 := 0.0
		for i := 0; i < d; i++ {
			gy := dy.At(i, j) * ln.Gamma.W.At(i, 0)
			sum1 += gy
			sum2 += gy * ln.xhat.At(i, j)
		}
		for i := 0; i < d; i++ {
			gy := dy.At(i, j) * ln.Gamma.W.At(i, 0)
			dxi := (float64(d)*gy - sum1 - ln.xhat.At(i, j)*sum2) * (istd / float64(d))
			dx.Set(i, j, dxi)
		}
	}
	return dx
}

func (ln *LayerNorm) params() []*Param {
	return []*Param{ln.Gamma, ln.Beta}
}
