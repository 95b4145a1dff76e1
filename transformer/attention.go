package transformer

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"

	"github.com/wetdog/cumbiaGEN/utils"
)

// Attention is multi-head scaled dot-product attention. Queries come from
// xq and keys/values from xkv, so the same type serves both self-attention
// (xq == xkv) and decoder cross-attention over the encoder output.
type Attention struct {
	H      int
	DModel int
	DHead  int

	Wquery  []*Param // per head, (dHead x dModel)
	Wkey    []*Param
	Wvalue  []*Param
	Woutput *Param // (dModel x dModel)

	// cache for backprop
	xq, xkv *mat.Dense
	q, k, v []*mat.Dense
	a       []*mat.Dense
	oCat    *mat.Dense
}

func newAttention(rng *rand.Rand, dModel, nHeads int) *Attention {
	if dModel%nHeads != 0 {
		panic("attention: dModel must be divisible by nHeads")
	}
	dHead := dModel / nHeads
	attn := &Attention{
		H:      nHeads,
		DModel: dModel,
		DHead:  dHead,
		Wquery: make([]*Param, nHeads),
		Wkey:   make([]*Param, nHeads),
		Wvalue: make([]*Param, nHeads),
		q:      make([]*mat.Dense, nHeads),
		k:      make([]*mat.Dense, nHeads),
		v:      make([]*mat.Dense, nHeads),
		a:      make([]*mat.Dense, nHeads),
	}
	for h := 0; h < nHeads; h++ {
		attn.Wquery[h] = randParam(rng, dHead, dModel, dModel, true)
		attn.Wkey[h] = randParam(rng, dHead, dModel, dModel, true)
		attn.Wvalue[h] = randParam(rng, dHead, dModel, dModel, true)
	}
	attn.Woutput = randParam(rng, dModel, dModel, dModel, true)
	return attn
}

// Forward computes masked multi-head attention. xq is (dModel x Tq), xkv is
// (dModel x Tk); mask, when non-nil, is an additive (Tq x Tk) matrix applied
// to the scores before the softmax. Returns (dModel x Tq).
func (attn *Attention) Forward(xq, xkv, mask *mat.Dense) *mat.Dense {
	attn.xq = xq
	attn.xkv = xkv
	_, tq := xq.Dims()
	rescale := 1.0 / math.Sqrt(float64(attn.DHead))

	headsCat := mat.NewDense(attn.DModel, tq, nil)
	for h := 0; h < attn.H; h++ {
		q := utils.ToDense(utils.Dot(attn.Wquery[h].W, xq))  // (dHead x Tq)
		k := utils.ToDense(utils.Dot(attn.Wkey[h].W, xkv))   // (dHead x Tk)
		v := utils.ToDense(utils.Dot(attn.Wvalue[h].W, xkv)) // (dHead x Tk)

		s := utils.ToDense(utils.Scale(rescale, utils.Dot(q.T(), k))) // (Tq x Tk)
		a := utils.RowSoftmaxMasked(s, mask)
		o := utils.ToDense(utils.Dot(v, a.T())) // (dHead x Tq)

		attn.q[h], attn.k[h], attn.v[h], attn.a[h] = q, k, v, a

		base := h * attn.DHead
		dst := headsCat.Slice(base, base+attn.DHead, 0, tq).(*mat.Dense)
		dst.Copy(o)
	}
	attn.oCat = headsCat
	return utils.ToDense(utils.Dot(attn.Woutput.W, headsCat))
}

// Backward accumulates weight gradients and returns the gradients with
// respect to the query input and the key/value input. For self-attention
// the caller adds the two.
func (attn *Attention) Backward(dy *mat.Dense) (dxq, dxkv *mat.Dense) {
	_, tq := attn.xq.Dims()
	_, tk := attn.xkv.Dims()
	rescale := 1.0 / math.Sqrt(float64(attn.DHead))

	attn.Woutput.addGrad(utils.Dot(dy, attn.oCat.T()))
	dOcat := utils.ToDense(utils.Dot(attn.Woutput.W.T(), dy))

	dxq = mat.NewDense(attn.DModel, tq, nil)
	dxkv = mat.NewDense(attn.DModel, tk, nil)

	for h := 0; h < attn.H; h++ {
		base := h * attn.DHead
		dO := dOcat.Slice(base, base+attn.DHead, 0, tq).(*mat.Dense)

		// O = V A^T
		dV := utils.ToDense(utils.Dot(dO, attn.a[h]))       // (dHead x Tk)
		dAT := utils.ToDense(utils.Dot(attn.v[h].T(), dO))  // (Tk x Tq)
		dS := utils.SoftmaxBackward(dAT.T(), attn.a[h])     // (Tq x Tk)

		// S = Q^T K / sqrt(dHead)
		dQ := utils.ToDense(utils.Scale(rescale, utils.Dot(attn.k[h], dS.T()))) // (dHead x Tq)
		dK := utils.ToDense(utils.Scale(rescale, utils.Dot(attn.q[h], dS)))     // (dHead x Tk)

		attn.Wquery[h].addGrad(utils.Dot(dQ, attn.xq.T()))
		attn.Wkey[h].addGrad(utils.Dot(dK, attn.xkv.T()))
		attn.Wvalue[h].addGrad(utils.Dot(dV, attn.xkv.T()))

		dxq.Add(dxq, utils.ToDense(utils.Dot(attn.Wquery[h].W.T(), dQ)))
		dxkv.Add(dxkv, utils.ToDense(utils.Dot(attn.Wkey[h].W.T(), dK)))
		dxkv.Add(dxkv, utils.ToDense(utils.Dot(attn.Wvalue[h].W.T(), dV)))
	}
	return dxq, dxkv
}

func (attn *Attention) params() []*Param {
	out := make([]*Param, 0, 3*attn.H+1)
	for h := 0; h < attn.H; h++ {
		out = append(out, attn.Wquery[h], attn.Wkey[h], attn.Wvalue[h])
	}
	return append(out, attn.Woutput)
}
