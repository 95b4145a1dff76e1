package generator

import (
	"fmt"
	"math/rand"
	"strings"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/wetdog/cumbiaGEN/melody"
	"github.com/wetdog/cumbiaGEN/transformer"
	"github.com/wetdog/cumbiaGEN/utils"
)

// Generator samples melodies from a trained model, one event at a time.
type Generator struct {
	Model       *transformer.Transformer
	Tok         *melody.Tokenizer
	Temperature float64
	MaxLength   int

	rng *rand.Rand
}

// New validates that the model and tokenizer agree on the vocabulary. A
// nil rng falls back to a time-seeded source; pass a fixed seed for
// reproducible melodies.
func New(model *transformer.Transformer, tok *melody.Tokenizer, temperature float64, maxLength int, rng *rand.Rand) (*Generator, error) {
	if temperature <= 0 {
		return nil, fmt.Errorf("generator: temperature must be positive, got %g", temperature)
	}
	if maxLength <= 0 {
		return nil, fmt.Errorf("generator: max length must be positive, got %d", maxLength)
	}
	if model.Cfg.TargetVocabSize != tok.VocabSize() {
		return nil, fmt.Errorf("generator: model vocabulary size %d does not match tokenizer size %d",
			model.Cfg.TargetVocabSize, tok.VocabSize())
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Generator{
		Model:       model,
		Tok:         tok,
		Temperature: temperature,
		MaxLength:   maxLength,
		rng:         rng,
	}, nil
}

// Generate extends the start sequence until it reaches MaxLength events or
// the model emits the end token. The start sequence feeds both the encoder
// and the growing decoder context. The result is the whole melody, seed
// included, as space-separated events.
func (g *Generator) Generate(start []string) (string, error) {
	if len(start) == 0 {
		return "", fmt.Errorf("generator: start sequence is empty")
	}
	encIDs, err := g.Tok.Encode(start)
	if err != nil {
		return "", err
	}
	endID, hasEnd := g.Tok.EndID()

	out := append([]int(nil), encIDs...)
	for len(out) < g.MaxLength && len(out) < g.Model.Cfg.MaxPositionsDecoder {
		logits, err := g.Model.Forward(encIDs, out, false)
		if err != nil {
			return "", err
		}
		next := g.sampleLast(logits)
		if hasEnd && next == endID {
			break
		}
		out = append(out, next)
	}
	return strings.Join(g.Tok.Decode(out), " "), nil
}

// sampleLast draws from the temperature-scaled distribution of the final
// decoder position.
func (g *Generator) sampleLast(logits *mat.Dense) int {
	vocab, t := logits.Dims()
	col := mat.NewDense(vocab, 1, nil)
	for i := 0; i < vocab; i++ {
		col.Set(i, 0, logits.At(i, t-1)/g.Temperature)
	}
	return utils.SampleCategorical(utils.ColVectorSoftmax(col), g.rng)
}
