package training

import (
	"encoding/csv"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/wetdog/cumbiaGEN/melody"
	"github.com/wetdog/cumbiaGEN/transformer"
)

// Trainer drives the epoch loop over a model: teacher-forced train steps,
// per-epoch checkpoints, and a loss history for plotting.
type Trainer struct {
	Model  *transformer.Transformer
	Epochs int

	// CheckpointDir receives one epoch_<N> subdirectory per epoch; leave
	// empty to disable checkpointing. KeepLast prunes all but the newest
	// K epoch directories (0 keeps everything).
	CheckpointDir string
	KeepLast      int

	// Vocab is stored inside every checkpoint so generation can rebuild
	// the tokenizer without the dataset.
	Vocab []string

	Log *slog.Logger
}

// Train runs the full loop and returns the mean batch loss per epoch. A
// non-finite loss aborts the run with an error; the failing epoch is not
// checkpointed. Checkpoint write failures are logged and ignored.
func (t *Trainer) Train(batches []melody.Batch) ([]float64, error) {
	if len(batches) == 0 {
		return nil, fmt.Errorf("training: no batches")
	}
	log := t.logger()

	var losses []float64
	for epoch := 0; epoch < t.Epochs; epoch++ {
		total := 0.0
		for i, b := range batches {
			loss, err := t.TrainStep(b.Inputs, b.Targets)
			if err != nil {
				return losses, fmt.Errorf("epoch %d batch %d: %w", epoch, i, err)
			}
			total += loss
			log.Info("batch done", "epoch", epoch, "batch", i, "loss", loss)
		}

		epochLoss := total / float64(len(batches))
		losses = append(losses, epochLoss)
		log.Info("epoch done", "epoch", epoch, "loss", epochLoss)

		if t.CheckpointDir != "" {
			dir := filepath.Join(t.CheckpointDir, fmt.Sprintf("epoch_%d", epoch))
			if err := t.Model.Save(dir, t.Vocab); err != nil {
				log.Warn("checkpoint failed", "dir", dir, "error", err)
			} else if err := pruneCheckpoints(t.CheckpointDir, t.KeepLast); err != nil {
				log.Warn("checkpoint prune failed", "error", err)
			}
		}
	}
	return losses, nil
}

// TrainStep runs one gradient update over a batch. The decoder is teacher
// forced: its input is each target shifted right and its expected output
// is the target shifted left, both padded back to the original length.
func (t *Trainer) TrainStep(inputs, targets [][]int) (float64, error) {
	if len(inputs) != len(targets) {
		return 0, fmt.Errorf("training: %d inputs vs %d targets", len(inputs), len(targets))
	}

	decIn := make([][]int, len(targets))
	decReal := make([][]int, len(targets))
	for i, tgt := range targets {
		if len(tgt) == 0 {
			return 0, fmt.Errorf("training: target %d is empty", i)
		}
		decIn[i] = rightPadOnce(tgt[:len(tgt)-1])
		decReal[i] = rightPadOnce(tgt[1:])
	}

	totalNonPad := CountNonPadding(decReal)
	if totalNonPad == 0 {
		return 0, ErrAllPadding
	}
	invCount := 1.0 / float64(totalNonPad)

	t.Model.ZeroGrads()
	sum := 0.0
	for i := range inputs {
		logits, err := t.Model.Forward(inputs[i], decIn[i], true)
		if err != nil {
			return 0, err
		}
		seqSum, dLogits := SequenceCrossEntropy(logits, decReal[i], invCount)
		sum += seqSum
		t.Model.Backward(dLogits)
	}

	loss := sum * invCount
	if math.IsNaN(loss) || math.IsInf(loss, 0) {
		return loss, fmt.Errorf("training: loss is not finite (%v)", loss)
	}
	if !t.Model.GradsFinite() {
		return loss, fmt.Errorf("training: gradients are not finite")
	}
	t.Model.Update()
	return loss, nil
}

// EvalLoss scores batches without touching parameters or dropout.
func (t *Trainer) EvalLoss(batches []melody.Batch) (float64, error) {
	sum := 0.0
	count := 0
	for _, b := range batches {
		for i, tgt := range b.Targets {
			decIn := rightPadOnce(tgt[:len(tgt)-1])
			decReal := rightPadOnce(tgt[1:])
			n := CountNonPadding([][]int{decReal})
			if n == 0 {
				continue
			}
			logits, err := t.Model.Forward(b.Inputs[i], decIn, false)
			if err != nil {
				return 0, err
			}
			seqSum, _ := SequenceCrossEntropy(logits, decReal, 0)
			sum += seqSum
			count += n
		}
	}
	if count == 0 {
		return 0, ErrAllPadding
	}
	return sum / float64(count), nil
}

// WriteLossCurve writes the per-epoch losses as a two-column CSV.
func WriteLossCurve(path string, losses []float64) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create loss curve: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"epoch", "loss"}); err != nil {
		return err
	}
	for i, l := range losses {
		rec := []string{strconv.Itoa(i), strconv.FormatFloat(l, 'g', -1, 64)}
		if err := w.Write(rec); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

// rightPadOnce appends a single pad id, restoring the length lost by the
// teacher-forcing shift.
func rightPadOnce(seq []int) []int {
	out := make([]int, len(seq)+1)
	copy(out, seq)
	return out
}

func pruneCheckpoints(dir string, keep int) error {
	if keep <= 0 {
		return nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}

	var epochs []int
	for _, e := range entries {
		if !e.IsDir() || !strings.HasPrefix(e.Name(), "epoch_") {
			continue
		}
		n, err := strconv.Atoi(strings.TrimPrefix(e.Name(), "epoch_"))
		if err != nil {
			continue
		}
		epochs = append(epochs, n)
	}
	sort.Ints(epochs)

	for len(epochs) > keep {
		victim := filepath.Join(dir, fmt.Sprintf("epoch_%d", epochs[0]))
		if err := os.RemoveAll(victim); err != nil {
			return err
		}
		epochs = epochs[1:]
	}
	return nil
}

func (t *Trainer) logger() *slog.Logger {
	if t.Log != nil {
		return t.Log
	}
	return slog.Default()
}
