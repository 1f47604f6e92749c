package heom

import (
	"log"
	"math"

	"github.com/pkg/errors"

	"heom/mat"
	"heom/ode"
)

// SteadyState solves M·x = 0 with the block-0 trace pinned to one, by
// replacing the first matrix row with the trace functional and solving
// against the unit vector e0 directly. A singular system is a reported
// error, typically a sign of a hierarchy without a unique stationary state.
func (m *Liouvillian) SteadyState(options ...Options) (*ADOs, error) {
	opt := mergeOptions(options)

	size := m.N * m.supDim()
	a := mat.Zeros(size, size)
	a.Data = make([]mat.Entry, 0, m.Data.NumNonZero()+m.Dim)
	for i := 0; i < m.Dim; i++ {
		a.Data = append(a.Data, mat.Entry{V: 1, Row: 0, Col: i * (m.Dim + 1)})
	}
	for _, e := range m.Data.Data {
		if e.Row == 0 {
			continue
		}
		a.Data = append(a.Data, e)
	}
	a.Compress()

	b := make([]complex128, size)
	b[0] = 1
	if opt.verbose {
		log.Printf("solving steady state, %d unknowns", size)
	}
	x, err := mat.Solve(a, b)
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	return newADOs(x, m.Dim, m.N, m.Parity), nil
}

var errSteady = errors.New("steady")

// SteadyStateODE finds the stationary state by integrating from the given
// initial state over geometrically growing time spans until the residual
// ‖M·y‖∞ drops below atol + rtol·‖y‖∞. The time budget running out before
// convergence is a reported error.
func (m *Liouvillian) SteadyStateODE(a *ADOs, options ...Options) (*ADOs, error) {
	opt := mergeOptions(options)
	if len(a.Data) != m.N*m.supDim() {
		return nil, errors.Errorf("state length %d, matrix size %d", len(a.Data), m.N*m.supDim())
	}

	csr := mat.NewCSR(m.Data)
	rhs := func(t float64, y, dydt []complex128) {
		csr.MatVec(dydt, y)
	}

	// 0, 1, 2, 4, ..., 2^40.
	ts := make([]float64, 0, 42)
	ts = append(ts, 0)
	for k := 0; k <= 40; k++ {
		ts = append(ts, math.Pow(2, float64(k)))
	}

	y0 := make([]complex128, len(a.Data))
	copy(y0, a.Data)
	residual := make([]complex128, len(y0))
	var out []complex128
	err := ode.Integrate(rhs, y0, ts, func(i int, t float64, y []complex128) error {
		csr.MatVec(residual, y)
		var rnorm, ynorm float64
		for j := range y {
			if v := cmplxAbs(residual[j]); v > rnorm {
				rnorm = v
			}
			if v := cmplxAbs(y[j]); v > ynorm {
				ynorm = v
			}
		}
		if opt.verbose {
			log.Printf("t=%g, residual %g", t, rnorm)
		}
		if rnorm <= opt.atol+opt.rtol*ynorm {
			out = make([]complex128, len(y))
			copy(out, y)
			return errSteady
		}
		return nil
	}, ode.NewOptions().RTol(opt.rtol).ATol(opt.atol))
	if err == nil {
		return nil, errors.Errorf("no convergence after t=%g", ts[len(ts)-1])
	}
	if errors.Cause(err) != errSteady {
		return nil, errors.Wrap(err, "")
	}
	return newADOs(out, m.Dim, m.N, m.Parity), nil
}

func cmplxAbs(v complex128) float64 {
	return math.Hypot(real(v), imag(v))
}
