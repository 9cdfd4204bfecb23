package gp

import (
	"sync"

	"gonum.org/v1/gonum/mat"
)

// MatrixPool recycles Gram-matrix scratch space. Hyperparameter optimization
// rebuilds an n×n kernel matrix for every candidate θ, from parallel restart
// trials, so the pool is both reuse-heavy and shared across goroutines.
type MatrixPool struct {
	mu  sync.Mutex
	sym []*mat.SymDense
}

// NewMatrixPool creates an empty MatrixPool.
func NewMatrixPool() *MatrixPool {
	return &MatrixPool{sym: make([]*mat.SymDense, 0, 8)}
}

// GetSymDense returns an n×n symmetric matrix, reusing a pooled one of the
// same order when available. Contents are unspecified; callers overwrite
// every element.
func (p *MatrixPool) GetSymDense(n int) *mat.SymDense {
	p.mu.Lock()
	for i := len(p.sym) - 1; i >= 0; i-- {
		m := p.sym[i]
		if r, _ := m.Dims(); r == n {
			p.sym = append(p.sym[:i], p.sym[i+1:]...)
			p.mu.Unlock()
			return m
		}
	}
	p.mu.Unlock()
	return mat.NewSymDense(n, nil)
}

// PutSymDense returns a symmetric matrix to the pool.
func (p *MatrixPool) PutSymDense(m *mat.SymDense) {
	if m == nil {
		return
	}
	p.mu.Lock()
	p.sym = append(p.sym, m)
	p.mu.Unlock()
}
