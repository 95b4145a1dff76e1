package transformer

import (
	"math/rand"

	"gonum.org/v1/gonum/mat"

	"github.com/wetdog/cumbiaGEN/optimizations"
	"github.com/wetdog/cumbiaGEN/utils"
)

// Param bundles a weight matrix with its accumulated gradient and Adam
// moment estimates. Gradients accumulate across the sequences of a batch
// and are consumed by a single optimizer step.
type Param struct {
	W *mat.Dense
	G *mat.Dense
	M *mat.Dense
	V *mat.Dense

	// decay marks weight matrices eligible for weight decay; biases and
	// norm parameters are exempt.
	decay bool
}

func newParam(r, c int, data []float64, decay bool) *Param {
	return &Param{
		W:     mat.NewDense(r, c, data),
		G:     mat.NewDense(r, c, nil),
		M:     mat.NewDense(r, c, nil),
		V:     mat.NewDense(r, c, nil),
		decay: decay,
	}
}

// randParam initializes a weight matrix the way the rest of the stack does:
// uniform in [-1/sqrt(fanIn), 1/sqrt(fanIn)].
func randParam(rng *rand.Rand, r, c, fanIn int, decay bool) *Param {
	return newParam(r, c, utils.RandomArray(rng, r*c, float64(fanIn)), decay)
}

func (p *Param) zeroGrad() {
	p.G.Zero()
}

// addGrad accumulates g into the stored gradient.
func (p *Param) addGrad(g mat.Matrix) {
	p.G.Add(p.G, g)
}

func (p *Param) update(t int, cfg Config) {
	wd := 0.0
	if p.decay {
		wd = cfg.WeightDecay
	}
	optimizations.AdamUpdateInPlace(p.W, p.G, p.M, p.V, t,
		cfg.LearningRate, cfg.AdamBeta1, cfg.AdamBeta2, cfg.AdamEps, wd)
}
