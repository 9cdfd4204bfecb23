package gp

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/copyleftdev/BOREAL/internal/optimization"
)

// jitterLadder holds the diagonal boosts tried in order when a factorization
// fails. The first attempt runs without jitter.
var jitterLadder = []float64{0, 1e-10, 1e-8, 1e-6, 1e-4}

// cholFactor is a lower-triangular Cholesky factor stored row-packed: row i
// occupies data[i*(i+1)/2 : i*(i+1)/2+i+1]. The packed layout makes the
// rank-one extension an append and keeps leading-block solves trivial, which
// gonum's opaque mat.Cholesky cannot offer.
type cholFactor struct {
	n    int
	data []float64
}

func newCholFactor() *cholFactor {
	return &cholFactor{}
}

func (c *cholFactor) rowStart(i int) int { return i * (i + 1) / 2 }

func (c *cholFactor) at(i, j int) float64 {
	return c.data[c.rowStart(i)+j]
}

// factorize computes the factor of K + jitter·I, walking the jitter ladder
// until one level succeeds. On failure the factor is left empty and
// ErrNonPositiveDefinite is returned.
func (c *cholFactor) factorize(K *mat.SymDense) error {
	n, _ := K.Dims()
	need := n * (n + 1) / 2
	if cap(c.data) < need {
		c.data = make([]float64, need)
	}
	c.data = c.data[:need]

	for _, jitter := range jitterLadder {
		if c.tryFactorize(K, n, jitter) {
			c.n = n
			return nil
		}
	}
	c.n = 0
	c.data = c.data[:0]
	return optimization.WrapError(optimization.ErrNonPositiveDefinite,
		"cholesky factorization failed after jitter ladder")
}

func (c *cholFactor) tryFactorize(K *mat.SymDense, n int, jitter float64) bool {
	for i := 0; i < n; i++ {
		ri := c.rowStart(i)
		for j := 0; j <= i; j++ {
			sum := K.At(i, j)
			if i == j {
				sum += jitter
			}
			rj := c.rowStart(j)
			for k := 0; k < j; k++ {
				sum -= c.data[ri+k] * c.data[rj+k]
			}
			if i == j {
				if sum <= 0 {
					return false
				}
				c.data[ri+j] = math.Sqrt(sum)
			} else {
				c.data[ri+j] = sum / c.data[rj+j]
			}
		}
	}
	return true
}

// extend appends one row/column [row; diag] to the factored matrix in O(n²):
// solve L·ℓ = row, then λ = sqrt(diag − ‖ℓ‖²). Fails with
// ErrIncrementalUpdateFailed when λ² is not positive; the factor is left
// unchanged in that case.
func (c *cholFactor) extend(row []float64, diag float64) error {
	n := c.n
	ell := c.forwardSolve(row)
	lambda2 := diag
	for _, v := range ell {
		lambda2 -= v * v
	}
	if lambda2 <= 0 {
		return optimization.WrapError(optimization.ErrIncrementalUpdateFailed,
			"rank-one extension produced a non-positive pivot")
	}
	c.data = append(c.data, ell...)
	c.data = append(c.data, math.Sqrt(lambda2))
	c.n = n + 1
	return nil
}

// forwardSolve returns v with L v = b over the leading len(b) block.
func (c *cholFactor) forwardSolve(b []float64) []float64 {
	m := len(b)
	v := make([]float64, m)
	for i := 0; i < m; i++ {
		sum := b[i]
		ri := c.rowStart(i)
		for j := 0; j < i; j++ {
			sum -= c.data[ri+j] * v[j]
		}
		v[i] = sum / c.data[ri+i]
	}
	return v
}

// backSolve returns v with Lᵀ v = b over the leading len(b) block.
func (c *cholFactor) backSolve(b []float64) []float64 {
	m := len(b)
	v := make([]float64, m)
	for i := m - 1; i >= 0; i-- {
		sum := b[i]
		for j := i + 1; j < m; j++ {
			sum -= c.data[c.rowStart(j)+i] * v[j]
		}
		v[i] = sum / c.data[c.rowStart(i)+i]
	}
	return v
}

// solveLeading returns (L_m L_mᵀ)⁻¹ b for the leading m×m block, i.e. the
// solve against the sub-matrix covering the first m inputs. The leading block
// of a Cholesky factor is the factor of the leading block of K, so this is
// exact, not an approximation.
func (c *cholFactor) solveLeading(b []float64) []float64 {
	return c.backSolve(c.forwardSolve(b))
}

// logDiagSum returns Σ log Lᵢᵢ, half the log-determinant of K.
func (c *cholFactor) logDiagSum() float64 {
	sum := 0.0
	for i := 0; i < c.n; i++ {
		sum += math.Log(c.data[c.rowStart(i)+i])
	}
	return sum
}

// reconstruct returns L·Lᵀ, used by tests to verify the factorization.
func (c *cholFactor) reconstruct() *mat.SymDense {
	K := mat.NewSymDense(c.n, nil)
	for i := 0; i < c.n; i++ {
		for j := i; j < c.n; j++ {
			sum := 0.0
			for k := 0; k <= i && k <= j; k++ {
				sum += c.at(i, k) * c.at(j, k)
			}
			K.SetSym(i, j, sum)
		}
	}
	return K
}

func (c *cholFactor) size() int { return c.n }
