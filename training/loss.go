package training

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/wetdog/cumbiaGEN/utils"
)

// PadID is the token id reserved for padding; positions carrying it are
// excluded from the loss and from its normalizer.
const PadID = 0

// ErrAllPadding is returned when a batch contains no real target positions,
// which would otherwise divide the loss by zero.
var ErrAllPadding = errors.New("training: batch contains only padding positions")

// CountNonPadding returns the number of non-pad positions across all
// sequences. The loss for a batch is normalized by this count, so it must
// be computed from the expected outputs before any gradients are taken.
func CountNonPadding(seqs [][]int) int {
	n := 0
	for _, s := range seqs {
		for _, id := range s {
			if id != PadID {
				n++
			}
		}
	}
	return n
}

// SequenceCrossEntropy scores one sequence of logits (vocab x T) against
// its expected ids. It returns the raw sum of per-position losses over
// non-pad positions and the logits gradient already scaled by invCount, so
// gradients summed across a batch come out batch-averaged.
func SequenceCrossEntropy(logits *mat.Dense, expected []int, invCount float64) (float64, *mat.Dense) {
	vocab, t := logits.Dims()
	if t != len(expected) {
		panic("training: logits width does not match expected sequence length")
	}

	sum := 0.0
	dLogits := mat.NewDense(vocab, t, nil)
	for j := 0; j < t; j++ {
		if expected[j] == PadID {
			continue
		}
		probs := utils.ColVectorSoftmax(logits.Slice(0, vocab, j, j+1).(*mat.Dense))
		sum += -math.Log(probs.At(expected[j], 0) + 1e-12)
		for i := 0; i < vocab; i++ {
			g := probs.At(i, 0)
			if i == expected[j] {
				g -= 1.0
			}
			dLogits.Set(i, j, g*invCount)
		}
	}
	return sum, dLogits
}
