// Package benchmarks provides standard test objectives over the unit box.
// Every objective is expressed for maximization (classic minimization
// benchmarks are negated), with inputs rescaled internally from [0,1]^d to
// the benchmark's native domain.
package benchmarks

import (
	"math"
	"sort"

	"github.com/copyleftdev/BOREAL/internal/optimization"
)

// Sphere is the negated sphere function, maximum 0 at the box center.
func Sphere(dim int) optimization.Objective {
	return optimization.ObjectiveFunc{
		In:  dim,
		Out: 1,
		F: func(x []float64) ([]float64, error) {
			sum := 0.0
			for _, v := range x {
				d := v - 0.5
				sum += d * d
			}
			return []float64{-sum}, nil
		},
	}
}

// Branin is the negated Branin-Hoo function on [0,1]², rescaled from its
// native domain x1 ∈ [-5,10], x2 ∈ [0,15]. The three global maxima have
// value ≈ -0.397887.
func Branin() optimization.Objective {
	const (
		a = 1.0
		b = 5.1 / (4 * math.Pi * math.Pi)
		c = 5 / math.Pi
		r = 6.0
		s = 10.0
		t = 1 / (8 * math.Pi)
	)
	return optimization.ObjectiveFunc{
		In:  2,
		Out: 1,
		F: func(x []float64) ([]float64, error) {
			x1 := -5 + 15*x[0]
			x2 := 15 * x[1]
			v := a*math.Pow(x2-b*x1*x1+c*x1-r, 2) + s*(1-t)*math.Cos(x1) + s
			return []float64{-v}, nil
		},
	}
}

// BraninOptimum is the value of the Branin objective at its maxima.
const BraninOptimum = -0.39788735772973816

// Hartmann6 is the negated six-dimensional Hartmann function on [0,1]⁶,
// maximum ≈ 3.32237.
func Hartmann6() optimization.Objective {
	alpha := [4]float64{1.0, 1.2, 3.0, 3.2}
	A := [4][6]float64{
		{10, 3, 17, 3.5, 1.7, 8},
		{0.05, 10, 17, 0.1, 8, 14},
		{3, 3.5, 1.7, 10, 17, 8},
		{17, 8, 0.05, 10, 0.1, 14},
	}
	P := [4][6]float64{
		{0.1312, 0.1696, 0.5569, 0.0124, 0.8283, 0.5886},
		{0.2329, 0.4135, 0.8307, 0.3736, 0.1004, 0.9991},
		{0.2348, 0.1451, 0.3522, 0.2883, 0.3047, 0.6650},
		{0.4047, 0.8828, 0.8732, 0.5743, 0.1091, 0.0381},
	}
	return optimization.ObjectiveFunc{
		In:  6,
		Out: 1,
		F: func(x []float64) ([]float64, error) {
			sum := 0.0
			for i := 0; i < 4; i++ {
				inner := 0.0
				for j := 0; j < 6; j++ {
					d := x[j] - P[i][j]
					inner += A[i][j] * d * d
				}
				sum += alpha[i] * math.Exp(-inner)
			}
			return []float64{sum}, nil
		},
	}
}

// Rastrigin is the negated Rastrigin function rescaled to [0,1]^dim,
// maximum 0 at the box center.
func Rastrigin(dim int) optimization.Objective {
	return optimization.ObjectiveFunc{
		In:  dim,
		Out: 1,
		F: func(x []float64) ([]float64, error) {
			sum := 10.0 * float64(dim)
			for _, v := range x {
				z := -5.12 + 10.24*v
				sum += z*z - 10*math.Cos(2*math.Pi*z)
			}
			return []float64{-sum}, nil
		},
	}
}

type builder func(dim int) optimization.Objective

var registry = map[string]builder{
	"sphere":    func(dim int) optimization.Objective { return Sphere(defaultDim(dim, 2)) },
	"branin":    func(int) optimization.Objective { return Branin() },
	"hartmann6": func(int) optimization.Objective { return Hartmann6() },
	"rastrigin": func(dim int) optimization.Objective { return Rastrigin(defaultDim(dim, 2)) },
}

func defaultDim(dim, fallback int) int {
	if dim < 1 {
		return fallback
	}
	return dim
}

// Lookup resolves a benchmark objective by name. dim is honored by the
// dimension-generic benchmarks and ignored by the fixed-dimension ones.
func Lookup(name string, dim int) (optimization.Objective, bool) {
	b, ok := registry[name]
	if !ok {
		return nil, false
	}
	return b(dim), true
}

// Names lists the registered benchmarks in sorted order.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
