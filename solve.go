package heom

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/pkg/errors"

	"heom/mat"
	"heom/ode"
	"heom/util"
)

// Options configures the solvers.
type Options struct {
	rtol      float64
	atol      float64
	threshold float64
	sparseTol float64
	verbose   bool
	saveFile  string
	progress  func(done, total int)
	drive     func(t float64) *mat.COO
}

func NewOptions() Options {
	return Options{
		rtol:      1e-6,
		atol:      1e-8,
		threshold: 1e-6,
		sparseTol: 1e-14,
	}
}

// RTol sets the relative tolerance of the adaptive integrator.
func (o Options) RTol(rtol float64) Options {
	o.rtol = rtol
	return o
}

// ATol sets the absolute tolerance of the adaptive integrator.
func (o Options) ATol(atol float64) Options {
	o.atol = atol
	return o
}

// Threshold sets the series truncation threshold of the matrix exponential.
func (o Options) Threshold(threshold float64) Options {
	o.threshold = threshold
	return o
}

// SparseTol sets the magnitude below which matrix exponential entries are
// dropped after every multiply.
func (o Options) SparseTol(tol float64) Options {
	o.sparseTol = tol
	return o
}

// Verbose enables throttled progress logging.
func (o Options) Verbose(v bool) Options {
	o.verbose = v
	return o
}

// SaveFile names a file to write the retained ADOs snapshots to after the
// solve completes. The file must not already exist.
func (o Options) SaveFile(path string) Options {
	o.saveFile = path
	return o
}

// Progress installs a callback invoked after each completed step.
// Results never depend on whether it is set.
func (o Options) Progress(f func(done, total int)) Options {
	o.progress = f
	return o
}

// Drive adds a time-dependent Hamiltonian term H'(t) to the system during
// Evolve. The returned matrix must be dim×dim.
func (o Options) Drive(f func(t float64) *mat.COO) Options {
	o.drive = f
	return o
}

// Solution is the immutable result of a solve.
type Solution struct {
	// Btier and Ftier are the hierarchy tier cutoffs.
	Btier int
	Ftier int
	// Times holds the sampled time points.
	Times []float64
	// States holds the retained ADOs snapshots. When observables were
	// requested only the final state is kept; otherwise every time point's.
	States []*ADOs
	// Expect[i][j] is the i-th observable at Times[j]. Empty without
	// observables.
	Expect [][]complex128
	// Method is the solver that produced the solution.
	Method string
}

func mergeOptions(options []Options) Options {
	if len(options) > 0 {
		return options[0]
	}
	return NewOptions()
}

// checkSaveFile fails fast when the output target already exists,
// before any computation starts.
func checkSaveFile(path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); err == nil {
		return errors.Errorf("file exists %s", path)
	} else if !os.IsNotExist(err) {
		return errors.Wrap(err, "")
	}
	return nil
}

// Propagate evolves the hierarchy with the fixed-step propagator exp(M·dt),
// computed once and applied steps times. Expectation values are recorded at
// every step including t = 0.
func (m *Liouvillian) Propagate(a *ADOs, dt float64, steps int, obs []Observable, options ...Options) (*Solution, error) {
	opt := mergeOptions(options)
	if err := checkSaveFile(opt.saveFile); err != nil {
		return nil, err
	}
	if steps < 0 {
		return nil, errors.Errorf("negative steps %d", steps)
	}
	if len(a.Data) != m.N*m.supDim() {
		return nil, errors.Errorf("state length %d, matrix size %d", len(a.Data), m.N*m.supDim())
	}

	if opt.verbose {
		log.Printf("computing exp(M*dt), %d nonzeros", m.Data.NumNonZero())
	}
	prop := mat.NewCSR(mat.Expm(m.Data, complex(dt, 0), opt.threshold, opt.sparseTol))

	sol := &Solution{
		Btier:  m.Boson.Tier(),
		Ftier:  m.Fermion.Tier(),
		Times:  make([]float64, 0, steps+1),
		Expect: make([][]complex128, len(obs)),
		Method: "propagator",
	}
	for i := range sol.Expect {
		sol.Expect[i] = make([]complex128, 0, steps+1)
	}

	cur := a.Clone()
	next := make([]complex128, len(cur.Data))
	throttler := util.NewSkipThrottler(10 * time.Second)
	for step := 0; step <= steps; step++ {
		if step > 0 {
			prop.MatVec(next, cur.Data)
			cur.Data, next = next, cur.Data
		}
		sol.Times = append(sol.Times, float64(step)*dt)
		for i, o := range obs {
			sol.Expect[i] = append(sol.Expect[i], Expect(o, cur))
		}
		if len(obs) == 0 {
			sol.States = append(sol.States, cur.Clone())
		}

		if opt.verbose && throttler.Ok() {
			log.Printf("propagated %d/%d steps", step, steps)
		}
		if opt.progress != nil {
			opt.progress(step, steps)
		}
	}
	if len(obs) > 0 {
		sol.States = append(sol.States, cur)
	}

	if opt.saveFile != "" {
		if err := WriteADOs(opt.saveFile, sol.States); err != nil {
			return nil, errors.Wrap(err, "")
		}
	}
	return sol, nil
}

// Evolve integrates dρ/dt = M·ρ adaptively over the given time points.
// Expectation values and snapshots are taken exactly at the requested times,
// never at internal substeps.
func (m *Liouvillian) Evolve(a *ADOs, ts []float64, obs []Observable, options ...Options) (*Solution, error) {
	opt := mergeOptions(options)
	if err := checkSaveFile(opt.saveFile); err != nil {
		return nil, err
	}
	if len(ts) == 0 {
		return nil, errors.Errorf("empty time points")
	}
	if len(a.Data) != m.N*m.supDim() {
		return nil, errors.Errorf("state length %d, matrix size %d", len(a.Data), m.N*m.supDim())
	}

	if opt.drive != nil {
		if d := opt.drive(ts[0]); d.Rows() != m.Dim || d.Cols() != m.Dim {
			return nil, errors.Errorf("drive %dx%d, system dim %d", d.Rows(), d.Cols(), m.Dim)
		}
	}
	csr := mat.NewCSR(m.Data)
	rhs := m.rhsFunc(csr, opt.drive)

	sol := &Solution{
		Btier:  m.Boson.Tier(),
		Ftier:  m.Fermion.Tier(),
		Times:  make([]float64, 0, len(ts)),
		Expect: make([][]complex128, len(obs)),
		Method: "ode",
	}
	for i := range sol.Expect {
		sol.Expect[i] = make([]complex128, 0, len(ts))
	}

	throttler := util.NewSkipThrottler(10 * time.Second)
	y0 := make([]complex128, len(a.Data))
	copy(y0, a.Data)
	err := ode.Integrate(rhs, y0, ts, func(i int, t float64, y []complex128) error {
		at := newADOs(y, a.dim, a.n, a.parity)
		sol.Times = append(sol.Times, t)
		for j, o := range obs {
			sol.Expect[j] = append(sol.Expect[j], Expect(o, at))
		}
		if len(obs) == 0 || i == len(ts)-1 {
			sol.States = append(sol.States, at.Clone())
		}

		if opt.verbose && throttler.Ok() {
			log.Printf("evolved %d/%d time points, t=%f", i+1, len(ts), t)
		}
		if opt.progress != nil {
			opt.progress(i+1, len(ts))
		}
		return nil
	}, ode.NewOptions().RTol(opt.rtol).ATol(opt.atol))
	if err != nil {
		return nil, errors.Wrap(err, "")
	}

	if opt.saveFile != "" {
		if err := WriteADOs(opt.saveFile, sol.States); err != nil {
			return nil, errors.Wrap(err, "")
		}
	}
	return sol, nil
}

// rhsFunc returns the hierarchy right hand side, with the optional drive
// term -i[H'(t), ·] applied blockwise on top of the fixed generator. The
// commutator is scattered directly from the drive's entries so that no
// superoperator is built inside the integration loop.
func (m *Liouvillian) rhsFunc(csr *mat.CSR, drive func(t float64) *mat.COO) ode.Func {
	if drive == nil {
		return func(t float64, y, dydt []complex128) {
			csr.MatVec(dydt, y)
		}
	}
	dim, supDim := m.Dim, m.supDim()
	return func(t float64, y, dydt []complex128) {
		csr.MatVec(dydt, y)
		d := drive(t)
		if d.Rows() != dim || d.Cols() != dim {
			panic(fmt.Sprintf("drive (%d %d), system dim %d", d.Rows(), d.Cols(), dim))
		}
		for node := 0; node < m.N; node++ {
			off := node * supDim
			for _, e := range d.Data {
				v := -1i * e.V
				for c := 0; c < dim; c++ {
					// (H'ρ)[Row][c] and -(ρH')[r][Col].
					dydt[off+e.Row*dim+c] += v * y[off+e.Col*dim+c]
					dydt[off+c*dim+e.Col] -= v * y[off+c*dim+e.Row]
				}
			}
		}
	}
}
