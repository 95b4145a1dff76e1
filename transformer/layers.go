package transformer

import (
	"math/rand"

	"gonum.org/v1/gonum/mat"

	"github.com/wetdog/cumbiaGEN/utils"
)

// EncoderLayer is one encoder block: self-attention then feed-forward,
// each wrapped as LayerNorm(x + Dropout(sublayer(x))).
type EncoderLayer struct {
	SelfAttn *Attention
	Ff       *MLP
	Norm1    *LayerNorm
	Norm2    *LayerNorm
	Drop1    *Dropout
	Drop2    *Dropout
}

func newEncoderLayer(rng *rand.Rand, cfg Config) *EncoderLayer {
	return &EncoderLayer{
		SelfAttn: newAttention(rng, cfg.DModel, cfg.NumHeads),
		Ff:       newMLP(rng, cfg.DModel, cfg.DFeedForward),
		Norm1:    newLayerNorm(cfg.DModel),
		Norm2:    newLayerNorm(cfg.DModel),
		Drop1:    newDropout(cfg.DropoutRate, rng),
		Drop2:    newDropout(cfg.DropoutRate, rng),
	}
}

func (l *EncoderLayer) Forward(x *mat.Dense, mask *mat.Dense, training bool) *mat.Dense {
	attnOut := l.Drop1.Forward(l.SelfAttn.Forward(x, x, mask), training)
	y1 := l.Norm1.Forward(utils.ToDense(utils.Add(x, attnOut)))
	ffOut := l.Drop2.Forward(l.Ff.Forward(y1), training)
	return l.Norm2.Forward(utils.ToDense(utils.Add(y1, ffOut)))
}

func (l *EncoderLayer) Backward(dOut *mat.Dense) *mat.Dense {
	dRes2 := l.Norm2.Backward(dOut)
	dFf := l.Ff.Backward(l.Drop2.Backward(dRes2))
	dY1 := utils.ToDense(utils.Add(dRes2, dFf))

	dRes1 := l.Norm1.Backward(dY1)
	dq, dkv := l.SelfAttn.Backward(l.Drop1.Backward(dRes1))
	dx := utils.ToDense(utils.Add(dRes1, utils.Add(dq, dkv)))
	return dx
}

func (l *EncoderLayer) params() []*Param {
	out := l.SelfAttn.params()
	out = append(out, l.Ff.params()...)
	out = append(out, l.Norm1.params()...)
	out = append(out, l.Norm2.params()...)
	return out
}

// DecoderLayer is one decoder block: causal self-attention, cross-attention
// over the encoder output, then feed-forward, each with the same
// residual/norm/dropout wrapping.
type DecoderLayer struct {
	SelfAttn  *Attention
	CrossAttn *Attention
	Ff        *MLP
	Norm1     *LayerNorm
	Norm2     *LayerNorm
	Norm3     *LayerNorm
	Drop1     *Dropout
	Drop2     *Dropout
	Drop3     *Dropout
}

func newDecoderLayer(rng *rand.Rand, cfg Config) *DecoderLayer {
	return &DecoderLayer{
		SelfAttn:  newAttention(rng, cfg.DModel, cfg.NumHeads),
		CrossAttn: newAttention(rng, cfg.DModel, cfg.NumHeads),
		Ff:        newMLP(rng, cfg.DModel, cfg.DFeedForward),
		Norm1:     newLayerNorm(cfg.DModel),
		Norm2:     newLayerNorm(cfg.DModel),
		Norm3:     newLayerNorm(cfg.DModel),
		Drop1:     newDropout(cfg.DropoutRate, rng),
		Drop2:     newDropout(cfg.DropoutRate, rng),
		Drop3:     newDropout(cfg.DropoutRate, rng),
	}
}

// Forward runs the block. selfMask combines the look-ahead mask with the
// decoder padding mask; crossMask hides padded encoder positions from the
// cross-attention.
func (l *DecoderLayer) Forward(x, memory *mat.Dense, selfMask, crossMask *mat.Dense, training bool) *mat.Dense {
	attnOut := l.Drop1.Forward(l.SelfAttn.Forward(x, x, selfMask), training)
	y1 := l.Norm1.Forward(utils.ToDense(utils.Add(x, attnOut)))

	crossOut := l.Drop2.Forward(l.CrossAttn.Forward(y1, memory, crossMask), training)
	y2 := l.Norm2.Forward(utils.ToDense(utils.Add(y1, crossOut)))

	ffOut := l.Drop3.Forward(l.Ff.Forward(y2), training)
	return l.Norm3.Forward(utils.ToDense(utils.Add(y2, ffOut)))
}

// Backward returns the gradients with respect to the block input and to the
// encoder output consumed by cross-attention.
func (l *DecoderLayer) Backward(dOut *mat.Dense) (dx, dMemory *mat.Dense) {
	dRes3 := l.Norm3.Backward(dOut)
	dFf := l.Ff.Backward(l.Drop3.Backward(dRes3))
	dY2 := utils.ToDense(utils.Add(dRes3, dFf))

	dRes2 := l.Norm2.Backward(dY2)
	dCrossQ, dMem := l.CrossAttn.Backward(l.Drop2.Backward(dRes2))
	dY1 := utils.ToDense(utils.Add(dRes2, dCrossQ))

	dRes1 := l.Norm1.Backward(dY1)
	dq, dkv := l.SelfAttn.Backward(l.Drop1.Backward(dRes1))
	dx = utils.ToDense(utils.Add(dRes1, utils.Add(dq, dkv)))
	return dx, dMem
}

func (l *DecoderLayer) params() []*Param {
	out := l.SelfAttn.params()
	out = append(out, l.CrossAttn.params()...)
	out = append(out, l.Ff.params()...)
	out = append(out, l.Norm1.params()...)
	out = append(out, l.Norm2.params()...)
	out = append(out, l.Norm3.params()...)
	return out
}
