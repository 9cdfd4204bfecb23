// Package means provides the deterministic baseline functions subtracted from
// observations before GP fitting. A mean function maps an input to a vector
// of one value per output dimension; the surrogate models the residuals.
package means

// Model is the read-only view of the owning surrogate handed to a mean
// function at call time. Mean functions must not retain it.
type Model interface {
	DimIn() int
	DimOut() int
	NbSamples() int
}

// Mean is a deterministic baseline m(x) producing one value per output
// dimension.
type Mean interface {
	// Eval returns the mean vector at x. model may be nil when no surrogate
	// exists yet.
	Eval(x []float64, model Model) []float64

	// DimOut returns the output dimension of the mean.
	DimOut() int
}

// Zero is the null mean: every component is 0.
type Zero struct {
	dimOut int
}

// NewZero returns a zero mean with the given output dimension.
func NewZero(dimOut int) *Zero {
	return &Zero{dimOut: dimOut}
}

func (m *Zero) Eval(x []float64, _ Model) []float64 {
	return make([]float64, m.dimOut)
}

func (m *Zero) DimOut() int { return m.dimOut }

// Constant is a mean whose every component equals a fixed value.
type Constant struct {
	dimOut int
	value  float64
}

// NewConstant returns a constant mean.
func NewConstant(dimOut int, value float64) *Constant {
	return &Constant{dimOut: dimOut, value: value}
}

func (m *Constant) Eval(x []float64, _ Model) []float64 {
	v := make([]float64, m.dimOut)
	for i := range v {
		v[i] = m.value
	}
	return v
}

func (m *Constant) DimOut() int { return m.dimOut }
