package transformer_test

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/wetdog/cumbiaGEN/training"
	"github.com/wetdog/cumbiaGEN/transformer"
)

func testConfig() transformer.Config {
	cfg := transformer.DefaultConfig()
	cfg.NumLayers = 1
	cfg.DModel = 4
	cfg.NumHeads = 2
	cfg.DFeedForward = 8
	cfg.InputVocabSize = 6
	cfg.TargetVocabSize = 6
	cfg.MaxPositionsEncoder = 10
	cfg.MaxPositionsDecoder = 10
	cfg.DropoutRate = 0
	return cfg
}

func newTestModel(t *testing.T, cfg transformer.Config, seed int64) *transformer.Transformer {
	t.Helper()
	m, err := transformer.New(cfg, rand.New(rand.NewSource(seed)))
	require.NoError(t, err)
	return m
}

func TestForwardShape(t *testing.T) {
	m := newTestModel(t, testConfig(), 1)

	logits, err := m.Forward([]int{1, 2, 3}, []int{1, 2, 3, 4, 5}, false)
	require.NoError(t, err)

	r, c := logits.Dims()
	require.Equal(t, 6, r)
	require.Equal(t, 5, c)
}

func TestForwardRejectsBadInput(t *testing.T) {
	m := newTestModel(t, testConfig(), 1)

	_, err := m.Forward(nil, []int{1}, false)
	require.Error(t, err)

	_, err = m.Forward([]int{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11}, []int{1}, false)
	require.Error(t, err)

	_, err = m.Forward([]int{1, 6}, []int{1}, false)
	require.Error(t, err)
}

func finiteDiffCheck(t *testing.T, name string, param, grad *mat.Dense,
	forward func() float64, i, j int) {
	t.Helper()

	eps := 1e-5
	w0 := param.At(i, j)

	param.Set(i, j, w0+eps)
	lp := forward()

	param.Set(i, j, w0-eps)
	lm := forward()

	param.Set(i, j, w0)

	numGrad := (lp - lm) / (2.0 * eps)
	anaGrad := grad.At(i, j)

	if math.Abs(numGrad-anaGrad) > 1e-4 {
		t.Fatalf("%s[%d,%d] grad mismatch: num=%.6g ana=%.6g",
			name, i, j, numGrad, anaGrad)
	}
}

func TestModelGradCheck(t *testing.T) {
	m := newTestModel(t, testConfig(), 123)

	encIDs := []int{1, 2, 3}
	decIDs := []int{1, 2, 3}
	expected := []int{2, 3, 4}

	forward := func() float64 {
		logits, err := m.Forward(encIDs, decIDs, false)
		require.NoError(t, err)
		loss, _ := training.SequenceCrossEntropy(logits, expected, 1.0)
		return loss
	}

	m.ZeroGrads()
	logits, err := m.Forward(encIDs, decIDs, false)
	require.NoError(t, err)
	_, dLogits := training.SequenceCrossEntropy(logits, expected, 1.0)
	m.Backward(dLogits)

	enc := m.EncLayers[0]
	dec := m.DecLayers[0]
	checks := []struct {
		name  string
		param *transformer.Param
	}{
		{"EncEmbed", m.EncEmbed.Weights},
		{"DecEmbed", m.DecEmbed.Weights},
		{"Enc.SelfAttn.Wquery", enc.SelfAttn.Wquery[0]},
		{"Enc.SelfAttn.Woutput", enc.SelfAttn.Woutput},
		{"Enc.Ff.W1", enc.Ff.W1},
		{"Enc.Norm1.Gamma", enc.Norm1.Gamma},
		{"Dec.SelfAttn.Wkey", dec.SelfAttn.Wkey[0]},
		{"Dec.CrossAttn.Wvalue", dec.CrossAttn.Wvalue[0]},
		{"Dec.CrossAttn.Woutput", dec.CrossAttn.Woutput},
		{"Dec.Ff.W2", dec.Ff.W2},
		{"Dec.Norm3.Beta", dec.Norm3.Beta},
		{"ProjW", m.ProjW},
		{"ProjB", m.ProjB},
	}
	for _, c := range checks {
		_, cols := c.param.W.Dims()
		finiteDiffCheck(t, c.name, c.param.W, c.param.G, forward, 0, 0)
		if cols > 1 {
			finiteDiffCheck(t, c.name, c.param.W, c.param.G, forward, 0, cols-1)
		}
	}
}

// Changing a decoder token must not change the logits of the positions
// before it.
func TestDecoderCausality(t *testing.T) {
	m := newTestModel(t, testConfig(), 7)
	encIDs := []int{1, 2, 3, 4}

	base, err := m.Forward(encIDs, []int{1, 2, 3, 4}, false)
	require.NoError(t, err)
	changed, err := m.Forward(encIDs, []int{1, 2, 5, 5}, false)
	require.NoError(t, err)

	vocab, _ := base.Dims()
	for j := 0; j < 2; j++ {
		for i := 0; i < vocab; i++ {
			require.InDelta(t, base.At(i, j), changed.At(i, j), 1e-12,
				"position %d changed when a later token changed", j)
		}
	}
}

// Padding appended to the encoder input is masked out of attention, so the
// decoder logits must not move.
func TestEncoderPaddingInvariance(t *testing.T) {
	m := newTestModel(t, testConfig(), 7)
	decIDs := []int{1, 2, 3}

	base, err := m.Forward([]int{1, 2, 3}, decIDs, false)
	require.NoError(t, err)
	padded, err := m.Forward([]int{1, 2, 3, 0, 0}, decIDs, false)
	require.NoError(t, err)

	vocab, cols := base.Dims()
	for i := 0; i < vocab; i++ {
		for j := 0; j < cols; j++ {
			require.InDelta(t, base.At(i, j), padded.At(i, j), 1e-12)
		}
	}
}

func TestUpdateChangesWeights(t *testing.T) {
	m := newTestModel(t, testConfig(), 9)

	m.ZeroGrads()
	logits, err := m.Forward([]int{1, 2}, []int{1, 2}, true)
	require.NoError(t, err)
	_, dLogits := training.SequenceCrossEntropy(logits, []int{2, 3}, 0.5)
	m.Backward(dLogits)

	before := mat.DenseCopyOf(m.ProjW.W)
	m.Update()

	require.Equal(t, 1, m.Step)
	require.False(t, mat.Equal(before, m.ProjW.W))
}
