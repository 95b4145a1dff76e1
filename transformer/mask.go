package transformer

import "gonum.org/v1/gonum/mat"

// maskedOut is added to attention scores at disallowed positions before
// the softmax; exp underflows it to exactly zero.
const maskedOut = -1e9

// causalMask returns a (T x T) additive look-ahead mask: position i may
// only attend to positions <= i.
func causalMask(t int) *mat.Dense {
	m := mat.NewDense(t, t, nil)
	for i := 0; i < t; i++ {
		for j := i + 1; j < t; j++ {
			m.Set(i, j, maskedOut)
		}
	}
	return m
}

// keyPaddingMask returns a (tq x len(keyIDs)) additive mask hiding every
// key position that holds the padding token.
func keyPaddingMask(tq int, keyIDs []int) *mat.Dense {
	m := mat.NewDense(tq, len(keyIDs), nil)
	for j, id := range keyIDs {
		if id != 0 {
			continue
		}
		for i := 0; i < tq; i++ {
			m.Set(i, j, maskedOut)
		}
	}
	return m
}

// combineMasks sums additive masks, tolerating nil operands.
func combineMasks(a, b *mat.Dense) *mat.Dense {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	r, c := a.Dims()
	out := mat.NewDense(r, c, nil)
	out.Add(a, b)
	return out
}
