package transformer

import "fmt"

// Config holds the architecture and optimizer settings for a Transformer.
// Source and target vocabularies may differ in size, though melodies use a
// shared vocabulary so they are typically equal.
type Config struct {
	NumLayers       int
	DModel          int
	NumHeads        int
	DFeedForward    int
	InputVocabSize  int
	TargetVocabSize int

	// Positional-encoding table sizes; inputs longer than these are rejected.
	MaxPositionsEncoder int
	MaxPositionsDecoder int

	DropoutRate float64

	// Adam settings.
	LearningRate float64
	AdamBeta1    float64
	AdamBeta2    float64
	AdamEps      float64
	GradClip     float64 // <=0 disables
	WeightDecay  float64 // applied to weight matrices only, 0 disables
}

// DefaultConfig mirrors the melody model used by the training driver.
// Vocabulary sizes must still be filled in from the tokenizer.
func DefaultConfig() Config {
	return Config{
		NumLayers:           2,
		DModel:              64,
		NumHeads:            2,
		DFeedForward:        128,
		MaxPositionsEncoder: 100,
		MaxPositionsDecoder: 100,
		DropoutRate:         0.1,

		LearningRate: 0.001,
		AdamBeta1:    0.9,
		AdamBeta2:    0.999,
		AdamEps:      1e-8,
		GradClip:     1.0,
	}
}

func (c Config) Validate() error {
	if c.NumLayers < 1 {
		return fmt.Errorf("config: NumLayers must be >= 1, got %d", c.NumLayers)
	}
	if c.DModel < 1 || c.NumHeads < 1 {
		return fmt.Errorf("config: DModel and NumHeads must be >= 1")
	}
	if c.DModel%c.NumHeads != 0 {
		return fmt.Errorf("config: DModel %d not divisible by NumHeads %d", c.DModel, c.NumHeads)
	}
	if c.DFeedForward < 1 {
		return fmt.Errorf("config: DFeedForward must be >= 1, got %d", c.DFeedForward)
	}
	// Vocabulary id 0 is the padding token, so a usable vocabulary needs
	// at least one more entry.
	if c.InputVocabSize < 2 || c.TargetVocabSize < 2 {
		return fmt.Errorf("config: vocabulary sizes must be >= 2, got input=%d target=%d",
			c.InputVocabSize, c.TargetVocabSize)
	}
	if c.MaxPositionsEncoder < 1 || c.MaxPositionsDecoder < 1 {
		return fmt.Errorf("config: positional table sizes must be >= 1")
	}
	if c.DropoutRate < 0 || c.DropoutRate >= 1 {
		return fmt.Errorf("config: DropoutRate must be in [0, 1), got %g", c.DropoutRate)
	}
	if c.LearningRate <= 0 {
		return fmt.Errorf("config: LearningRate must be > 0, got %g", c.LearningRate)
	}
	return nil
}
