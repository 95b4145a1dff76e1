package training_test

import (
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wetdog/cumbiaGEN/melody"
	"github.com/wetdog/cumbiaGEN/training"
	"github.com/wetdog/cumbiaGEN/transformer"
)

func tinyModel(t *testing.T) *transformer.Transformer {
	t.Helper()
	cfg := transformer.DefaultConfig()
	cfg.NumLayers = 1
	cfg.DModel = 8
	cfg.NumHeads = 2
	cfg.DFeedForward = 16
	cfg.InputVocabSize = 6
	cfg.TargetVocabSize = 6
	cfg.MaxPositionsEncoder = 12
	cfg.MaxPositionsDecoder = 12
	cfg.DropoutRate = 0

	m, err := transformer.New(cfg, rand.New(rand.NewSource(42)))
	require.NoError(t, err)
	return m
}

func tinyBatches() []melody.Batch {
	return []melody.Batch{{
		Inputs:  [][]int{{1, 2, 3, 4}, {2, 3, 4, 0}},
		Targets: [][]int{{1, 2, 3, 4}, {2, 3, 4, 0}},
	}}
}

func TestTrainStepAllPadding(t *testing.T) {
	tr := &training.Trainer{Model: tinyModel(t)}

	_, err := tr.TrainStep([][]int{{3}}, [][]int{{3}})
	require.ErrorIs(t, err, training.ErrAllPadding)
}

func TestTrainStepReturnsFiniteLoss(t *testing.T) {
	tr := &training.Trainer{Model: tinyModel(t)}
	b := tinyBatches()[0]

	loss, err := tr.TrainStep(b.Inputs, b.Targets)
	require.NoError(t, err)
	require.Greater(t, loss, 0.0)
}

func TestTrainReducesLoss(t *testing.T) {
	tr := &training.Trainer{Model: tinyModel(t), Epochs: 30}
	batches := tinyBatches()

	before, err := tr.EvalLoss(batches)
	require.NoError(t, err)

	losses, err := tr.Train(batches)
	require.NoError(t, err)
	require.Len(t, losses, 30)

	after, err := tr.EvalLoss(batches)
	require.NoError(t, err)
	require.Less(t, after, before)
}

// Extra trailing padding is masked out of attention and excluded from the
// loss, so it must not move the evaluated loss at all.
func TestEvalLossIgnoresTrailingPadding(t *testing.T) {
	m := tinyModel(t)
	tr := &training.Trainer{Model: m}

	plain := []melody.Batch{{
		Inputs:  [][]int{{1, 2, 3, 4}},
		Targets: [][]int{{1, 2, 3, 4}},
	}}
	padded := []melody.Batch{{
		Inputs:  [][]int{{1, 2, 3, 4, 0, 0}},
		Targets: [][]int{{1, 2, 3, 4, 0, 0}},
	}}

	a, err := tr.EvalLoss(plain)
	require.NoError(t, err)
	b, err := tr.EvalLoss(padded)
	require.NoError(t, err)
	require.InDelta(t, a, b, 1e-9)
}

func TestTrainWritesAndPrunesCheckpoints(t *testing.T) {
	dir := t.TempDir()
	tr := &training.Trainer{
		Model:         tinyModel(t),
		Epochs:        5,
		CheckpointDir: dir,
		KeepLast:      2,
		Vocab:         []string{"<pad>", "a", "b", "c", "d", "e"},
	}

	_, err := tr.Train(tinyBatches())
	require.NoError(t, err)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	require.ElementsMatch(t, []string{"epoch_3", "epoch_4"}, names)

	_, vocab, err := transformer.Load(filepath.Join(dir, "epoch_4"))
	require.NoError(t, err)
	require.Equal(t, tr.Vocab, vocab)
}

func TestWriteLossCurve(t *testing.T) {
	path := filepath.Join(t.TempDir(), "curve.csv")
	require.NoError(t, training.WriteLossCurve(path, []float64{2.5, 1.25}))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "epoch,loss\n0,2.5\n1,1.25\n", string(raw))
}
