package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/wetdog/cumbiaGEN/generator"
	"github.com/wetdog/cumbiaGEN/melody"
	"github.com/wetdog/cumbiaGEN/training"
	"github.com/wetdog/cumbiaGEN/transformer"
)

// Seed melodies sampled after every training run, one output file per seed.
var trainingSeeds = [][]string{
	{"r-0.5", "G3-0.5", "C4-0.5", "D4-0.5", "E4-0.5"},
	{"r-0.5", "C4-0.5", "E4-0.5", "G4-0.5", "F4-1.0"},
	{"r-1.0", "A4-1.0", "E4-1.0", "A4-1.0", "E4-1.0"},
	{"r-2.0", "r-1.0", "D4-0.5", "F4-0.5", "E4-0.5", "D4-0.5"},
	{"r-2.0", "r-1.0", "D4-0.5", "D4-1.0", "F4-1.0", "A4-1.0"},
	{"r-1.0", "A4-1.0", "E4-1.0", "A4-1.0", "r-0.5"},
}

var defaultGenerateSeed = []string{"C4-1.0", "D4-1.0", "E4-1.0", "C4-1.0"}

const sampledMelodyLength = 25

func NewCLI() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "cumbiagen",
		Short:         "Train and sample a melody generation model",
		SilenceUsage:  true,
		SilenceErrors: true,
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Print(cmd.UsageString())
		},
	}

	rootCmd.AddCommand(newTrainCmd(), newGenerateCmd())
	return rootCmd
}

func newTrainCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "train",
		Short: "Train the model on a melody dataset",
		RunE:  runTrain,
	}
	cmd.Flags().String("data-path", "", "Path to the preprocessed dataset (JSON)")
	cmd.Flags().String("output-path", "melodies", "Directory for melodies sampled after training")
	cmd.Flags().String("checkpoint-dir", "models", "Directory for per-epoch checkpoints")
	cmd.Flags().Int("batch-size", 32, "Training batch size")
	cmd.Flags().Int("epochs", 32, "Number of training epochs")
	cmd.Flags().Int("positions", 100, "Size of the positional encoding tables")
	cmd.Flags().Float64("temperature", 0.8, "Sampling temperature for post-training melodies")
	cmd.Flags().Int("keep-last", 3, "Epoch checkpoints to retain (0 keeps all)")
	cmd.Flags().String("resume", "", "Checkpoint directory to resume training from")
	cobra.CheckErr(cmd.MarkFlagRequired("data-path"))
	return cmd
}

func runTrain(cmd *cobra.Command, _ []string) error {
	dataPath, _ := cmd.Flags().GetString("data-path")
	outputPath, _ := cmd.Flags().GetString("output-path")
	checkpointDir, _ := cmd.Flags().GetString("checkpoint-dir")
	batchSize, _ := cmd.Flags().GetInt("batch-size")
	epochs, _ := cmd.Flags().GetInt("epochs")
	positions, _ := cmd.Flags().GetInt("positions")
	temperature, _ := cmd.Flags().GetFloat64("temperature")
	keepLast, _ := cmd.Flags().GetInt("keep-last")
	resume, _ := cmd.Flags().GetString("resume")

	pre := melody.NewPreprocessor(dataPath, batchSize)
	if err := pre.Load(); err != nil {
		return err
	}
	batches, err := pre.CreateTrainingBatches()
	if err != nil {
		return err
	}
	tok := pre.Tokenizer()
	slog.Info("dataset loaded", "batches", len(batches), "vocab_size", tok.VocabSize())

	var model *transformer.Transformer
	if resume != "" {
		var vocab []string
		model, vocab, err = transformer.Load(resume)
		if err != nil {
			return err
		}
		if len(vocab) != tok.VocabSize() {
			return fmt.Errorf("resume checkpoint vocabulary size %d does not match dataset size %d",
				len(vocab), tok.VocabSize())
		}
		slog.Info("resumed from checkpoint", "dir", resume, "step", model.Step)
	} else {
		cfg := transformer.DefaultConfig()
		cfg.InputVocabSize = tok.VocabSize()
		cfg.TargetVocabSize = tok.VocabSize()
		cfg.MaxPositionsEncoder = positions
		cfg.MaxPositionsDecoder = positions
		model, err = transformer.New(cfg, nil)
		if err != nil {
			return err
		}
	}

	trainer := &training.Trainer{
		Model:         model,
		Epochs:        epochs,
		CheckpointDir: checkpointDir,
		KeepLast:      keepLast,
		Vocab:         tok.Vocab(),
	}
	losses, err := trainer.Train(batches)
	if err != nil {
		return err
	}

	if err := training.WriteLossCurve(filepath.Join(checkpointDir, "training_curve.csv"), losses); err != nil {
		slog.Warn("loss curve not written", "error", err)
	}
	if err := model.Save(filepath.Join(checkpointDir, "final"), tok.Vocab()); err != nil {
		slog.Warn("final checkpoint failed", "error", err)
	}

	return sampleMelodies(model, tok, trainingSeeds, outputPath, temperature)
}

func newGenerateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Sample melodies from a trained checkpoint",
		RunE:  runGenerate,
	}
	cmd.Flags().String("checkpoint", "", "Checkpoint directory to load")
	cmd.Flags().String("output-path", "melodies", "Directory for generated melodies")
	cmd.Flags().Float64("temperature", 0.8, "Sampling temperature")
	cmd.Flags().Int("max-length", sampledMelodyLength, "Maximum melody length in events")
	cmd.Flags().Int("num-melodies", 10, "Number of melodies to generate")
	cmd.Flags().String("seed", strings.Join(defaultGenerateSeed, ","), "Comma-separated seed events")
	cobra.CheckErr(cmd.MarkFlagRequired("checkpoint"))
	return cmd
}

func runGenerate(cmd *cobra.Command, _ []string) error {
	checkpoint, _ := cmd.Flags().GetString("checkpoint")
	outputPath, _ := cmd.Flags().GetString("output-path")
	temperature, _ := cmd.Flags().GetFloat64("temperature")
	maxLength, _ := cmd.Flags().GetInt("max-length")
	numMelodies, _ := cmd.Flags().GetInt("num-melodies")
	seedFlag, _ := cmd.Flags().GetString("seed")

	model, vocab, err := transformer.Load(checkpoint)
	if err != nil {
		return err
	}
	tok := melody.FromVocab(vocab)

	var seed []string
	for _, ev := range strings.Split(seedFlag, ",") {
		if ev = strings.TrimSpace(ev); ev != "" {
			seed = append(seed, ev)
		}
	}

	gen, err := generator.New(model, tok, temperature, maxLength, nil)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(outputPath, 0o755); err != nil {
		return err
	}
	for i := 0; i < numMelodies; i++ {
		mel, err := gen.Generate(seed)
		if err != nil {
			return err
		}
		slog.Info("generated melody", "index", i, "melody", mel)
		path := filepath.Join(outputPath, fmt.Sprintf("melody_%d.txt", i))
		if err := os.WriteFile(path, []byte(mel), 0o644); err != nil {
			return err
		}
	}
	return nil
}

// sampleMelodies writes one melody per seed, skipping seeds with events the
// dataset never contained.
func sampleMelodies(model *transformer.Transformer, tok *melody.Tokenizer, seeds [][]string, outputPath string, temperature float64) error {
	gen, err := generator.New(model, tok, temperature, sampledMelodyLength, nil)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(outputPath, 0o755); err != nil {
		return err
	}
	for i, seed := range seeds {
		mel, err := gen.Generate(seed)
		if err != nil {
			slog.Warn("seed skipped", "index", i, "error", err)
			continue
		}
		slog.Info("generated melody", "index", i, "melody", mel)
		path := filepath.Join(outputPath, fmt.Sprintf("melody_%d.txt", i))
		if err := os.WriteFile(path, []byte(mel), 0o644); err != nil {
			return err
		}
	}
	return nil
}
