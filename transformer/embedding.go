package transformer

import (
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

// Embedding maps token ids to columns of a (dModel x vocab) weight matrix,
// scaled by sqrt(dModel) so embeddings and positional encodings live on a
// comparable scale.
type Embedding struct {
	Weights *Param
	dModel  int
	vocab   int
	scale   float64

	lastIDs []int
}

func newEmbedding(rng *rand.Rand, dModel, vocab int) *Embedding {
	return &Embedding{
		Weights: randParam(rng, dModel, vocab, dModel, false),
		dModel:  dModel,
		vocab:   vocab,
		scale:   math.Sqrt(float64(dModel)),
	}
}

// Forward returns a (dModel x len(ids)) matrix of scaled embedding columns.
func (e *Embedding) Forward(ids []int) (*mat.Dense, error) {
	for _, id := range ids {
		if id < 0 || id >= e.vocab {
			return nil, fmt.Errorf("embedding: token id %d outside vocabulary of size %d", id, e.vocab)
		}
	}
	out := mat.NewDense(e.dModel, len(ids), nil)
	for t, id := range ids {
		for i := 0; i < e.dModel; i++ {
			out.Set(i, t, e.Weights.W.At(i, id)*e.scale)
		}
	}
	e.lastIDs = append(e.lastIDs[:0], ids...)
	return out, nil
}

// Backward scatters the incoming gradient into the columns used by the
// last forward pass.
func (e *Embedding) Backward(dx *mat.Dense) {
	for t, id := range e.lastIDs {
		for i := 0; i < e.dModel; i++ {
			e.Weights.G.Set(i, id, e.Weights.G.At(i, id)+dx.At(i, t)*e.scale)
		}
	}
}

func (e *Embedding) params() []*Param {
	return []*Param{e.Weights}
}
