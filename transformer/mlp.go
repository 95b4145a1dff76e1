package transformer

import (
	"math/rand"

	"gonum.org/v1/gonum/mat"

	"github.com/wetdog/cumbiaGEN/utils"
)

// MLP is the position-wise feed-forward sublayer: a ReLU hidden layer
// expanding dModel to dFF and a linear projection back. Columns (positions)
// are independent.
type MLP struct {
	W1 *Param // (dFF x dModel)
	B1 *Param // (dFF x 1)
	W2 *Param // (dModel x dFF)
	B2 *Param // (dModel x 1)

	// cache
	lastInput *mat.Dense
	hiddenPre *mat.Dense
	hiddenOut *mat.Dense
}

func newMLP(rng *rand.Rand, dModel, dFF int) *MLP {
	return &MLP{
		W1: randParam(rng, dFF, dModel, dModel, true),
		B1: newParam(dFF, 1, nil, false),
		W2: randParam(rng, dModel, dFF, dFF, true),
		B2: newParam(dModel, 1, nil, false),
	}
}

func relu(i, j int, v float64) float64 {
	if v > 0 {
		return v
	}
	return 0
}

func (m *MLP) Forward(x *mat.Dense) *mat.Dense {
	m.lastInput = x
	hiddenLin := utils.ToDense(utils.Dot(m.W1.W, x))
	m.hiddenPre = utils.AddBias(hiddenLin, m.B1.W)
	m.hiddenOut = utils.ToDense(utils.Apply(relu, m.hiddenPre))
	finalLin := utils.ToDense(utils.Dot(m.W2.W, m.hiddenOut))
	return utils.AddBias(finalLin, m.B2.W)
}

// Backward accumulates parameter gradients and returns dX.
func (m *MLP) Backward(grad *mat.Dense) *mat.Dense {
	m.W2.addGrad(utils.Dot(grad, m.hiddenOut.T()))
	gr, gt := grad.Dims()
	for i := 0; i < gr; i++ {
		s := 0.0
		for t := 0; t < gt; t++ {
			s += grad.At(i, t)
		}
		m.B2.G.Set(i, 0, m.B2.G.At(i, 0)+s)
	}

	hiddenGrad := utils.ToDense(utils.Dot(m.W2.W.T(), grad))
	hr, ht := hiddenGrad.Dims()
	hiddenErr := mat.NewDense(hr, ht, nil)
	for i := 0; i < hr; i++ {
		for t := 0; t < ht; t++ {
			if m.hiddenPre.At(i, t) > 0 {
				hiddenErr.Set(i, t, hiddenGrad.At(i, t))
			}
		}
	}

	m.W1.addGrad(utils.Dot(hiddenErr, m.lastInput.T()))
	for i := 0; i < hr; i++ {
		s := 0.0
		for t := 0; t < ht; t++ {
			s += hiddenErr.At(i, t)
		}
		m.B1.G.Set(i, 0, m.B1.G.At(i, 0)+s)
	}

	return utils.ToDense(utils.Dot(m.W1.W.T(), hiddenErr))
}

func (m *MLP) params() []*Param {
	return []*Param{m.W1, m.B1, m.W2, m.B2}
}
