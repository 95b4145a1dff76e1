package melody

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// Batch is one training batch of already-padded id sequences. Inputs and
// Targets hold the same melodies; the trainer derives the shifted decoder
// sequences itself.
type Batch struct {
	Inputs  [][]int
	Targets [][]int
}

// Preprocessor loads a melody dataset and turns it into training batches.
// The dataset is a JSON array of melody strings, each a comma-separated
// list of "pitch-duration" events, e.g. "C4-1.0, D4-0.5".
type Preprocessor struct {
	Path      string
	BatchSize int

	melodies [][]string
	tok      *Tokenizer
}

func NewPreprocessor(path string, batchSize int) *Preprocessor {
	return &Preprocessor{Path: path, BatchSize: batchSize}
}

// Load reads the dataset and builds the vocabulary. It must be called
// before Tokenizer or CreateTrainingBatches.
func (p *Preprocessor) Load() error {
	if p.BatchSize <= 0 {
		return fmt.Errorf("melody: batch size must be positive, got %d", p.BatchSize)
	}
	raw, err := os.ReadFile(p.Path)
	if err != nil {
		return fmt.Errorf("read dataset: %w", err)
	}
	var entries []string
	if err := json.Unmarshal(raw, &entries); err != nil {
		return fmt.Errorf("parse dataset %s: %w", p.Path, err)
	}
	if len(entries) == 0 {
		return fmt.Errorf("melody: dataset %s is empty", p.Path)
	}

	p.melodies = p.melodies[:0]
	for i, entry := range entries {
		events := splitEvents(entry)
		if len(events) == 0 {
			return fmt.Errorf("melody: dataset entry %d is empty", i)
		}
		p.melodies = append(p.melodies, events)
	}
	p.tok = NewTokenizer(p.melodies)
	return nil
}

// Tokenizer returns the vocabulary built by Load.
func (p *Preprocessor) Tokenizer() *Tokenizer {
	return p.tok
}

// NumTokensWithPadding is the model vocabulary size, counting the pad id.
func (p *Preprocessor) NumTokensWithPadding() int {
	return p.tok.VocabSize()
}

// MaxMelodyLength reports the longest melody in the dataset, in events.
func (p *Preprocessor) MaxMelodyLength() int {
	max := 0
	for _, mel := range p.melodies {
		if len(mel) > max {
			max = len(mel)
		}
	}
	return max
}

// CreateTrainingBatches encodes every melody and groups them into batches
// of at most BatchSize sequences. Sequences are right-padded with the pad
// id to the longest melody in their own batch; inputs and targets are
// independent copies of the same ids.
func (p *Preprocessor) CreateTrainingBatches() ([]Batch, error) {
	if p.tok == nil {
		return nil, fmt.Errorf("melody: dataset not loaded")
	}

	encoded := make([][]int, len(p.melodies))
	for i, mel := range p.melodies {
		ids, err := p.tok.Encode(mel)
		if err != nil {
			return nil, err
		}
		encoded[i] = ids
	}

	var batches []Batch
	for start := 0; start < len(encoded); start += p.BatchSize {
		end := start + p.BatchSize
		if end > len(encoded) {
			end = len(encoded)
		}
		chunk := encoded[start:end]

		width := 0
		for _, seq := range chunk {
			if len(seq) > width {
				width = len(seq)
			}
		}

		b := Batch{
			Inputs:  make([][]int, len(chunk)),
			Targets: make([][]int, len(chunk)),
		}
		for i, seq := range chunk {
			padded := make([]int, width)
			copy(padded, seq)
			b.Inputs[i] = padded
			b.Targets[i] = append([]int(nil), padded...)
		}
		batches = append(batches, b)
	}
	return batches, nil
}

func splitEvents(entry string) []string {
	var events []string
	for _, part := range strings.Split(entry, ",") {
		if ev := strings.TrimSpace(part); ev != "" {
			events = append(events, ev)
		}
	}
	return events
}
