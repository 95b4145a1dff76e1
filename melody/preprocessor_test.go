package melody

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeDataset(t *testing.T, entries string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "dataset.json")
	require.NoError(t, os.WriteFile(path, []byte(entries), 0o644))
	return path
}

func TestPreprocessorLoad(t *testing.T) {
	path := writeDataset(t, `["C4-1.0, D4-1.0, E4-1.0", "C4-1.0, r-0.5"]`)

	p := NewPreprocessor(path, 2)
	require.NoError(t, p.Load())

	// 4 distinct events plus padding.
	require.Equal(t, 5, p.NumTokensWithPadding())
	require.Equal(t, 3, p.MaxMelodyLength())
}

func TestPreprocessorLoadErrors(t *testing.T) {
	p := NewPreprocessor(filepath.Join(t.TempDir(), "missing.json"), 2)
	require.Error(t, p.Load())

	p = NewPreprocessor(writeDataset(t, `[]`), 2)
	require.ErrorContains(t, p.Load(), "empty")

	p = NewPreprocessor(writeDataset(t, `["C4-1.0"]`), 0)
	require.Error(t, p.Load())
}

func TestCreateTrainingBatches(t *testing.T) {
	path := writeDataset(t, `["C4-1.0, D4-1.0, E4-1.0", "C4-1.0", "D4-1.0, E4-1.0"]`)

	p := NewPreprocessor(path, 2)
	require.NoError(t, p.Load())

	batches, err := p.CreateTrainingBatches()
	require.NoError(t, err)
	require.Len(t, batches, 2)

	// First batch pads both melodies to the longer one's length.
	require.Len(t, batches[0].Inputs, 2)
	require.Len(t, batches[0].Inputs[0], 3)
	require.Len(t, batches[0].Inputs[1], 3)
	require.Equal(t, 0, batches[0].Inputs[1][2])

	// Batches pad only to their own widest sequence.
	require.Len(t, batches[1].Inputs, 1)
	require.Len(t, batches[1].Inputs[0], 2)

	for _, b := range batches {
		require.Equal(t, b.Inputs, b.Targets)
	}
}

func TestBatchesAreIndependentCopies(t *testing.T) {
	path := writeDataset(t, `["C4-1.0, D4-1.0"]`)

	p := NewPreprocessor(path, 1)
	require.NoError(t, p.Load())
	batches, err := p.CreateTrainingBatches()
	require.NoError(t, err)

	batches[0].Inputs[0][0] = 99
	require.NotEqual(t, 99, batches[0].Targets[0][0])
}
