package optimizations

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

// Minimizing f(p) = p^2 with Adam should walk p toward zero.
func TestAdamUpdateConverges(t *testing.T) {
	p := mat.NewDense(1, 1, []float64{5})
	m := mat.NewDense(1, 1, nil)
	v := mat.NewDense(1, 1, nil)

	for step := 1; step <= 500; step++ {
		g := mat.NewDense(1, 1, []float64{2 * p.At(0, 0)})
		AdamUpdateInPlace(p, g, m, v, step, 0.05, 0.9, 0.999, 1e-8, 0)
	}
	require.InDelta(t, 0, p.At(0, 0), 0.1)
}

func TestAdamFirstStepIsBiasCorrected(t *testing.T) {
	p := mat.NewDense(1, 1, []float64{1})
	m := mat.NewDense(1, 1, nil)
	v := mat.NewDense(1, 1, nil)
	g := mat.NewDense(1, 1, []float64{0.5})

	AdamUpdateInPlace(p, g, m, v, 1, 0.1, 0.9, 0.999, 1e-8, 0)

	// With bias correction, step 1 moves by nearly the full learning rate
	// regardless of gradient magnitude.
	require.InDelta(t, 1-0.1, p.At(0, 0), 1e-6)
}

func TestAdamWeightDecayShrinksWeights(t *testing.T) {
	p := mat.NewDense(1, 1, []float64{1})
	m := mat.NewDense(1, 1, nil)
	v := mat.NewDense(1, 1, nil)
	g := mat.NewDense(1, 1, nil)

	AdamUpdateInPlace(p, g, m, v, 1, 0.1, 0.9, 0.999, 1e-8, 0.01)
	require.Less(t, p.At(0, 0), 1.0)
}

func TestClipGrads(t *testing.T) {
	a := mat.NewDense(1, 2, []float64{3, 0})
	b := mat.NewDense(1, 1, []float64{4})

	scale := ClipGrads(1.0, a, b)
	require.InDelta(t, 0.2, scale, 1e-12)

	total := a.At(0, 0)*a.At(0, 0) + b.At(0, 0)*b.At(0, 0)
	require.InDelta(t, 1.0, math.Sqrt(total), 1e-12)

	// Below the limit nothing changes.
	c := mat.NewDense(1, 1, []float64{0.5})
	require.Equal(t, 1.0, ClipGrads(1.0, c))
	require.Equal(t, 0.5, c.At(0, 0))
}
