package transformer

import (
	"fmt"
	"math/rand"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/wetdog/cumbiaGEN/optimizations"
	"github.com/wetdog/cumbiaGEN/utils"
)

// Transformer is an encoder-decoder attention model over token sequences.
// Given an encoder input and a (shifted) decoder input it produces logits
// over the target vocabulary at every decoder position.
//
// Parameters are owned exclusively by the model; training mutates them
// through Backward/Update, generation treats them as read-only.
type Transformer struct {
	Cfg Config

	EncEmbed *Embedding
	DecEmbed *Embedding
	PosEnc   *mat.Dense // fixed sinusoidal table, (dModel x maxPositions)

	EncLayers []*EncoderLayer
	DecLayers []*DecoderLayer

	ProjW *Param // (targetVocab x dModel)
	ProjB *Param // (targetVocab x 1)

	// Step counts applied Adam updates; it drives bias correction.
	Step int

	rng     *rand.Rand
	encDrop *Dropout
	decDrop *Dropout

	// backward-pass cache
	lastDecOut *mat.Dense
	causal     map[int]*mat.Dense
}

// New builds a Transformer with randomly initialized parameters. A nil rng
// falls back to a time-seeded source; tests pass a fixed seed.
func New(cfg Config, rng *rand.Rand) (*Transformer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	maxPos := cfg.MaxPositionsEncoder
	if cfg.MaxPositionsDecoder > maxPos {
		maxPos = cfg.MaxPositionsDecoder
	}

	m := &Transformer{
		Cfg:      cfg,
		EncEmbed: newEmbedding(rng, cfg.DModel, cfg.InputVocabSize),
		DecEmbed: newEmbedding(rng, cfg.DModel, cfg.TargetVocabSize),
		PosEnc:   SinCosPositionalEncoding(maxPos, cfg.DModel),
		ProjW:    randParam(rng, cfg.TargetVocabSize, cfg.DModel, cfg.DModel, true),
		ProjB:    newParam(cfg.TargetVocabSize, 1, nil, false),
		rng:      rng,
		encDrop:  newDropout(cfg.DropoutRate, rng),
		decDrop:  newDropout(cfg.DropoutRate, rng),
		causal:   make(map[int]*mat.Dense),
	}
	for i := 0; i < cfg.NumLayers; i++ {
		m.EncLayers = append(m.EncLayers, newEncoderLayer(rng, cfg))
		m.DecLayers = append(m.DecLayers, newDecoderLayer(rng, cfg))
	}
	return m, nil
}

// Forward runs the full encoder-decoder pass and returns logits of shape
// (targetVocab x len(decIDs)). Dropout is active only when training is set;
// with training false the pass is deterministic.
func (m *Transformer) Forward(encIDs, decIDs []int, training bool) (*mat.Dense, error) {
	if len(encIDs) == 0 || len(decIDs) == 0 {
		return nil, fmt.Errorf("transformer: empty input sequence")
	}
	if len(encIDs) > m.Cfg.MaxPositionsEncoder {
		return nil, fmt.Errorf("transformer: encoder input length %d exceeds positional table size %d",
			len(encIDs), m.Cfg.MaxPositionsEncoder)
	}
	if len(decIDs) > m.Cfg.MaxPositionsDecoder {
		return nil, fmt.Errorf("transformer: decoder input length %d exceeds positional table size %d",
			len(decIDs), m.Cfg.MaxPositionsDecoder)
	}

	// Encoder stack.
	encX, err := m.EncEmbed.Forward(encIDs)
	if err != nil {
		return nil, err
	}
	encX = m.encDrop.Forward(addPositions(encX, m.PosEnc), training)
	encMask := keyPaddingMask(len(encIDs), encIDs)
	memory := encX
	for _, l := range m.EncLayers {
		memory = l.Forward(memory, encMask, training)
	}

	// Decoder stack with look-ahead and padding masks.
	decX, err := m.DecEmbed.Forward(decIDs)
	if err != nil {
		return nil, err
	}
	decX = m.decDrop.Forward(addPositions(decX, m.PosEnc), training)
	selfMask := combineMasks(m.causalMask(len(decIDs)), keyPaddingMask(len(decIDs), decIDs))
	crossMask := keyPaddingMask(len(decIDs), encIDs)
	y := decX
	for _, l := range m.DecLayers {
		y = l.Forward(y, memory, selfMask, crossMask, training)
	}
	m.lastDecOut = y

	logits := utils.ToDense(utils.Dot(m.ProjW.W, y))
	return utils.AddBias(logits, m.ProjB.W), nil
}

// Backward propagates a logits gradient from the last Forward call through
// the whole network, accumulating parameter gradients. It must follow a
// Forward with the same inputs; Update consumes the accumulated gradients.
func (m *Transformer) Backward(dLogits *mat.Dense) {
	m.ProjW.addGrad(utils.Dot(dLogits, m.lastDecOut.T()))
	vr, vt := dLogits.Dims()
	for i := 0; i < vr; i++ {
		s := 0.0
		for t := 0; t < vt; t++ {
			s += dLogits.At(i, t)
		}
		m.ProjB.G.Set(i, 0, m.ProjB.G.At(i, 0)+s)
	}

	dy := utils.ToDense(utils.Dot(m.ProjW.W.T(), dLogits))

	var dMemTotal *mat.Dense
	for i := len(m.DecLayers) - 1; i >= 0; i-- {
		var dMem *mat.Dense
		dy, dMem = m.DecLayers[i].Backward(dy)
		if dMemTotal == nil {
			dMemTotal = dMem
		} else {
			dMemTotal.Add(dMemTotal, dMem)
		}
	}
	m.DecEmbed.Backward(m.decDrop.Backward(dy))

	dEnc := dMemTotal
	for i := len(m.EncLayers) - 1; i >= 0; i-- {
		dEnc = m.EncLayers[i].Backward(dEnc)
	}
	m.EncEmbed.Backward(m.encDrop.Backward(dEnc))
}

// ZeroGrads clears all accumulated gradients; call it at the start of every
// batch.
func (m *Transformer) ZeroGrads() {
	for _, p := range m.Params() {
		p.zeroGrad()
	}
}

// Update applies one Adam step to every parameter from the accumulated
// gradients, with optional global gradient clipping, then clears them.
func (m *Transformer) Update() {
	params := m.Params()
	if m.Cfg.GradClip > 0 {
		grads := make([]*mat.Dense, len(params))
		for i, p := range params {
			grads[i] = p.G
		}
		optimizations.ClipGrads(m.Cfg.GradClip, grads...)
	}
	m.Step++
	for _, p := range params {
		p.update(m.Step, m.Cfg)
		p.zeroGrad()
	}
}

// Params returns every trainable parameter of the model.
func (m *Transformer) Params() []*Param {
	out := m.EncEmbed.params()
	out = append(out, m.DecEmbed.params()...)
	for _, l := range m.EncLayers {
		out = append(out, l.params()...)
	}
	for _, l := range m.DecLayers {
		out = append(out, l.params()...)
	}
	return append(out, m.ProjW, m.ProjB)
}

// GradsFinite reports whether every accumulated gradient is finite; the
// trainer refuses to apply or checkpoint non-finite state.
func (m *Transformer) GradsFinite() bool {
	for _, p := range m.Params() {
		if !utils.IsFinite(p.G) {
			return false
		}
	}
	return true
}

func (m *Transformer) causalMask(t int) *mat.Dense {
	if cached, ok := m.causal[t]; ok {
		return cached
	}
	mk := causalMask(t)
	m.causal[t] = mk
	return mk
}
