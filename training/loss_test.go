package training

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestCountNonPadding(t *testing.T) {
	require.Equal(t, 0, CountNonPadding(nil))
	require.Equal(t, 0, CountNonPadding([][]int{{0, 0}, {0}}))
	require.Equal(t, 4, CountNonPadding([][]int{{1, 2, 0}, {3, 0, 4}}))
}

func TestSequenceCrossEntropyUniform(t *testing.T) {
	// All-zero logits give a uniform distribution, so each scored position
	// contributes log(vocab).
	logits := mat.NewDense(4, 3, nil)
	sum, grad := SequenceCrossEntropy(logits, []int{1, 2, 3}, 1.0/3.0)

	require.InDelta(t, 3*math.Log(4), sum, 1e-9)

	r, c := grad.Dims()
	require.Equal(t, 4, r)
	require.Equal(t, 3, c)
	// Gradient columns sum to zero: probabilities minus a one-hot vector.
	for j := 0; j < c; j++ {
		colSum := 0.0
		for i := 0; i < r; i++ {
			colSum += grad.At(i, j)
		}
		require.InDelta(t, 0, colSum, 1e-9)
	}
}

func TestSequenceCrossEntropySkipsPadding(t *testing.T) {
	logits := mat.NewDense(4, 3, nil)
	sum, grad := SequenceCrossEntropy(logits, []int{2, 0, 0}, 1.0)

	require.InDelta(t, math.Log(4), sum, 1e-9)
	for i := 0; i < 4; i++ {
		require.Zero(t, grad.At(i, 1))
		require.Zero(t, grad.At(i, 2))
	}
}

func TestRightPadOnce(t *testing.T) {
	require.Equal(t, []int{3, 4, 0}, rightPadOnce([]int{3, 4}))
	require.Equal(t, []int{0}, rightPadOnce(nil))
}
