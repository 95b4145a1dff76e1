package transformer_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wetdog/cumbiaGEN/transformer"
)

func TestCheckpointRoundTrip(t *testing.T) {
	m := newTestModel(t, testConfig(), 11)
	m.Step = 17
	vocab := []string{"<pad>", "C4-1.0", "D4-1.0", "E4-1.0", "F4-1.0", "G4-1.0"}

	dir := filepath.Join(t.TempDir(), "epoch_0")
	require.NoError(t, m.Save(dir, vocab))

	restored, gotVocab, err := transformer.Load(dir)
	require.NoError(t, err)
	require.Equal(t, vocab, gotVocab)
	require.Equal(t, 17, restored.Step)
	require.Equal(t, m.Cfg, restored.Cfg)

	encIDs := []int{1, 2, 3}
	decIDs := []int{1, 2}
	want, err := m.Forward(encIDs, decIDs, false)
	require.NoError(t, err)
	got, err := restored.Forward(encIDs, decIDs, false)
	require.NoError(t, err)

	r, c := want.Dims()
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			require.Equal(t, want.At(i, j), got.At(i, j))
		}
	}
}

func TestLoadMissingCheckpoint(t *testing.T) {
	_, _, err := transformer.Load(filepath.Join(t.TempDir(), "nope"))
	require.Error(t, err)
	require.Contains(t, err.Error(), "checkpoint not found")
}
