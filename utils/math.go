package utils

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

// Matrix helpers shared by the model, loss and generator.

func Dot(m, n mat.Matrix) mat.Matrix {
	r, _ := m.Dims()
	_, c := n.Dims()
	o := mat.NewDense(r, c, nil)
	o.Product(m, n)
	return o
}

func Apply(fn func(i, j int, v float64) float64, m mat.Matrix) mat.Matrix {
	r, c := m.Dims()
	o := mat.NewDense(r, c, nil)
	o.Apply(fn, m)
	return o
}

func Scale(s float64, m mat.Matrix) mat.Matrix {
	r, c := m.Dims()
	o := mat.NewDense(r, c, nil)
	o.Scale(s, m)
	return o
}

func Multiply(m, n mat.Matrix) mat.Matrix {
	r, c := m.Dims()
	o := mat.NewDense(r, c, nil)
	o.MulElem(m, n)
	return o
}

func Add(m, n mat.Matrix) mat.Matrix {
	r, c := m.Dims()
	o := mat.NewDense(r, c, nil)
	o.Add(m, n)
	return o
}

func ToDense(m mat.Matrix) *mat.Dense {
	if d, ok := m.(*mat.Dense); ok {
		return d
	}
	return mat.DenseCopyOf(m)
}

func ZerosLike(a *mat.Dense) *mat.Dense {
	r, c := a.Dims()
	return mat.NewDense(r, c, nil)
}

// RandomArray returns size values drawn uniformly from
// [-1/sqrt(v), 1/sqrt(v)] using the supplied source.
func RandomArray(rng *rand.Rand, size int, v float64) []float64 {
	min := -1.0 / math.Sqrt(v+1e-12)
	max := 1.0 / math.Sqrt(v+1e-12)
	out := make([]float64, size)
	for i := 0; i < size; i++ {
		out[i] = min + (max-min)*rng.Float64()
	}
	return out
}

// AddBias adds a (r x 1) bias column to every column of a (r x T) matrix.
func AddBias(m, bias *mat.Dense) *mat.Dense {
	r, c := m.Dims()
	out := mat.NewDense(r, c, nil)
	for j := 0; j < c; j++ {
		for i := 0; i < r; i++ {
			out.Set(i, j, m.At(i, j)+bias.At(i, 0))
		}
	}
	return out
}

func MatrixNorm(m *mat.Dense) float64 {
	r, c := m.Dims()
	s := 0.0
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			v := m.At(i, j)
			s += v * v
		}
	}
	return math.Sqrt(s)
}

// IsFinite reports whether every entry of m is a finite number.
func IsFinite(m *mat.Dense) bool {
	r, c := m.Dims()
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			v := m.At(i, j)
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return false
			}
		}
	}
	return true
}

// ---------- Softmax variants ----------

// RowSoftmax applies softmax independently to each row across columns.
func RowSoftmax(m mat.Matrix) *mat.Dense {
	r, c := m.Dims()
	out := mat.NewDense(r, c, nil)
	for i := 0; i < r; i++ {
		row := make([]float64, c)
		for j := 0; j < c; j++ {
			row[j] = m.At(i, j)
		}
		// numerical stability
		mx := row[0]
		for _, v := range row {
			if v > mx {
				mx = v
			}
		}
		sum := 0.0
		for j := 0; j < c; j++ {
			row[j] = math.Exp(row[j] - mx)
			sum += row[j]
		}
		for j := 0; j < c; j++ {
			out.Set(i, j, row[j]/sum)
		}
	}
	return out
}

// RowSoftmaxMasked adds an additive mask (0 at allowed positions, a large
// negative constant at disallowed ones) to the scores before the row softmax.
func RowSoftmaxMasked(s, mask *mat.Dense) *mat.Dense {
	if mask == nil {
		return RowSoftmax(s)
	}
	sr, sc := s.Dims()
	mr, mc := mask.Dims()
	if sr != mr || sc != mc {
		panic("RowSoftmaxMasked: mask shape mismatch")
	}
	return RowSoftmax(Add(s, mask))
}

// ColVectorSoftmax applies softmax across the single column of a (r x 1) vector.
func ColVectorSoftmax(v *mat.Dense) *mat.Dense {
	r, c := v.Dims()
	if c != 1 {
		panic("ColVectorSoftmax expects a (r x 1) column vector")
	}
	out := mat.NewDense(r, 1, nil)
	mx := v.At(0, 0)
	for i := 1; i < r; i++ {
		if v.At(i, 0) > mx {
			mx = v.At(i, 0)
		}
	}
	sum := 0.0
	for i := 0; i < r; i++ {
		e := math.Exp(v.At(i, 0) - mx)
		out.Set(i, 0, e)
		sum += e
	}
	for i := 0; i < r; i++ {
		out.Set(i, 0, out.At(i, 0)/sum)
	}
	return out
}

// SoftmaxBackward computes the gradient through a row-wise softmax:
// given dL/dA and A = softmax_row(S), returns dL/dS.
func SoftmaxBackward(dA mat.Matrix, a *mat.Dense) *mat.Dense {
	r, c := a.Dims()
	dS := mat.NewDense(r, c, nil)
	for i := 0; i < r; i++ {
		// Jacobian-vector product per row
		for j := 0; j < c; j++ {
			grad := 0.0
			for k := 0; k < c; k++ {
				if j == k {
					grad += a.At(i, j) * (1.0 - a.At(i, k)) * dA.At(i, k)
				} else {
					grad += -a.At(i, j) * a.At(i, k) * dA.At(i, k)
				}
			}
			dS.Set(i, j, grad)
		}
	}
	return dS
}

// ---------- Sampling ----------

// SampleCategorical draws an index from a (r x 1) probability column using
// the supplied source. The column is renormalized before the draw, so it
// may sum to slightly less than one.
func SampleCategorical(probs *mat.Dense, rng *rand.Rand) int {
	r, c := probs.Dims()
	if c != 1 {
		panic("SampleCategorical expects a (r x 1) column vector")
	}
	sum := 0.0
	for i := 0; i < r; i++ {
		sum += probs.At(i, 0)
	}
	rnd := rng.Float64() * sum
	cum := 0.0
	for i := 0; i < r; i++ {
		cum += probs.At(i, 0)
		if rnd < cum {
			return i
		}
	}
	return r - 1 // fallback
}
