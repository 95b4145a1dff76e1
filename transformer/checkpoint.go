package transformer

import (
	"encoding/gob"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"

	"gonum.org/v1/gonum/mat"
)

// tensorData is the gob-friendly form of one parameter: its weights and
// both Adam moment estimates, so a restored model resumes training exactly
// where it left off.
type tensorData struct {
	R, C int
	W    []float64
	M    []float64
	V    []float64
}

type modelData struct {
	Cfg     Config
	Step    int
	Vocab   []string
	Tensors []tensorData
}

const checkpointFile = "model.gob"

// Save writes the model and its vocabulary under dir, creating it if
// needed. Tensors are stored in Params() order, which is fixed by the
// architecture in Cfg.
func (m *Transformer) Save(dir string, vocab []string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create checkpoint dir: %w", err)
	}

	params := m.Params()
	data := modelData{
		Cfg:     m.Cfg,
		Step:    m.Step,
		Vocab:   vocab,
		Tensors: make([]tensorData, len(params)),
	}
	for i, p := range params {
		r, c := p.W.Dims()
		data.Tensors[i] = tensorData{
			R: r, C: c,
			W: append([]float64(nil), p.W.RawMatrix().Data...),
			M: append([]float64(nil), p.M.RawMatrix().Data...),
			V: append([]float64(nil), p.V.RawMatrix().Data...),
		}
	}

	f, err := os.Create(filepath.Join(dir, checkpointFile))
	if err != nil {
		return fmt.Errorf("create checkpoint file: %w", err)
	}
	defer f.Close()

	if err := gob.NewEncoder(f).Encode(&data); err != nil {
		return fmt.Errorf("encode checkpoint: %w", err)
	}
	return nil
}

// Load restores a model and its vocabulary from a directory written by
// Save. A missing directory or file is reported as a not-found error.
func Load(dir string) (*Transformer, []string, error) {
	f, err := os.Open(filepath.Join(dir, checkpointFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, fmt.Errorf("checkpoint not found in %q: %w", dir, err)
		}
		return nil, nil, fmt.Errorf("open checkpoint: %w", err)
	}
	defer f.Close()

	var data modelData
	if err := gob.NewDecoder(f).Decode(&data); err != nil {
		return nil, nil, fmt.Errorf("decode checkpoint: %w", err)
	}

	m, err := New(data.Cfg, rand.New(rand.NewSource(0)))
	if err != nil {
		return nil, nil, fmt.Errorf("rebuild model from checkpoint config: %w", err)
	}
	m.Step = data.Step

	params := m.Params()
	if len(params) != len(data.Tensors) {
		return nil, nil, fmt.Errorf("checkpoint holds %d tensors, model expects %d",
			len(data.Tensors), len(params))
	}
	for i, p := range params {
		r, c := p.W.Dims()
		td := data.Tensors[i]
		if td.R != r || td.C != c {
			return nil, nil, fmt.Errorf("checkpoint tensor %d is %dx%d, model expects %dx%d",
				i, td.R, td.C, r, c)
		}
		p.W = mat.NewDense(r, c, td.W)
		p.M = mat.NewDense(r, c, td.M)
		p.V = mat.NewDense(r, c, td.V)
	}
	return m, data.Vocab, nil
}
