// Package ode integrates ordinary differential equations over complex state
// vectors with the adaptive Dormand-Prince 5(4) Runge-Kutta method.
//
// References:
//   - A family of embedded Runge-Kutta formulae, J. R. Dormand and P. J. Prince.
//   - Solving Ordinary Differential Equations I, Hairer, Norsett, Wanner, Section II.4.
package ode

import (
	"math"
	"math/cmplx"

	"github.com/pkg/errors"
)

// Func evaluates the right hand side dy/dt at (t, y) into dydt.
// It must not retain y or dydt.
type Func func(t float64, y, dydt []complex128)

// Options are the integrator tolerances and step limits.
type Options struct {
	rtol     float64
	atol     float64
	initStep float64
	maxSteps int
}

// NewOptions returns the default integration options.
func NewOptions() Options {
	opt := Options{}
	opt.rtol = 1e-6
	opt.atol = 1e-8
	opt.initStep = 0
	opt.maxSteps = 10_000_000
	return opt
}

// RTol sets the relative tolerance.
func (opt Options) RTol(v float64) Options {
	opt.rtol = v
	return opt
}

// ATol sets the absolute tolerance.
func (opt Options) ATol(v float64) Options {
	opt.atol = v
	return opt
}

// InitStep sets the initial step size. Zero picks a heuristic.
func (opt Options) InitStep(v float64) Options {
	opt.initStep = v
	return opt
}

// MaxSteps sets the internal step budget. Exceeding it is a reported error,
// never a silent truncation.
func (opt Options) MaxSteps(v int) Options {
	opt.maxSteps = v
	return opt
}

// Dormand-Prince 5(4) Butcher tableau.
var (
	dpC = [7]float64{0, 1. / 5, 3. / 10, 4. / 5, 8. / 9, 1, 1}
	dpA = [7][6]float64{
		{},
		{1. / 5},
		{3. / 40, 9. / 40},
		{44. / 45, -56. / 15, 32. / 9},
		{19372. / 6561, -25360. / 2187, 64448. / 6561, -212. / 729},
		{9017. / 3168, -355. / 33, 46732. / 5247, 49. / 176, -5103. / 18656},
		{35. / 384, 0, 500. / 1113, 125. / 192, -2187. / 6784, 11. / 84},
	}
	// 5th order solution weights.
	dpB = [7]float64{35. / 384, 0, 500. / 1113, 125. / 192, -2187. / 6784, 11. / 84, 0}
	// Difference between the 5th and embedded 4th order weights.
	dpE = [7]float64{
		35./384 - 5179./57600,
		0,
		500./1113 - 7571./16695,
		125./192 - 393./640,
		-2187./6784 + 92097./339200,
		11./84 - 187./2100,
		-1. / 40,
	}
)

// Integrate advances y0 through the strictly increasing time points ts,
// invoking each exactly at every requested point (including ts[0]) with the
// state at that time. Internal adaptive substeps are invisible to each; the
// step size is clamped so that output times are hit exactly. The y slice
// passed to each is reused between calls and must not be retained.
// A non-nil error from each aborts the integration.
// On successful return, y0 holds the state at ts[len(ts)-1].
func Integrate(f Func, y0 []complex128, ts []float64, each func(i int, t float64, y []complex128) error, options ...Options) error {
	opt := NewOptions()
	if len(options) > 0 {
		opt = options[0]
	}
	if len(ts) == 0 {
		return nil
	}

	n := len(y0)
	y := make([]complex128, n)
	copy(y, y0)
	ynew := make([]complex128, n)
	var ks [7][]complex128
	for i := range ks {
		ks[i] = make([]complex128, n)
	}

	t := ts[0]
	if err := each(0, t, y); err != nil {
		return errors.Wrap(err, "")
	}

	h := opt.initStep
	if h == 0 {
		h = (ts[len(ts)-1] - ts[0]) / 1e3
		if h == 0 {
			h = 1e-6
		}
	}

	steps := 0
	for ti := 1; ti < len(ts); ti++ {
		tEnd := ts[ti]
		for t < tEnd {
			steps++
			if steps > opt.maxSteps {
				return errors.Errorf("step budget exceeded: %d steps, t=%g of %g", opt.maxSteps, t, tEnd)
			}
			hs := math.Min(h, tEnd-t)

			// Stage evaluations.
			f(t, y, ks[0])
			for s := 1; s < 7; s++ {
				for i := 0; i < n; i++ {
					v := y[i]
					for j := 0; j < s; j++ {
						if dpA[s][j] != 0 {
							v += complex(hs*dpA[s][j], 0) * ks[j][i]
						}
					}
					ynew[i] = v
				}
				f(t+dpC[s]*hs, ynew, ks[s])
			}

			// 5th order solution and embedded error estimate.
			var errNorm float64
			for i := 0; i < n; i++ {
				v := y[i]
				var e complex128
				for s := 0; s < 7; s++ {
					if dpB[s] != 0 {
						v += complex(hs*dpB[s], 0) * ks[s][i]
					}
					if dpE[s] != 0 {
						e += complex(hs*dpE[s], 0) * ks[s][i]
					}
				}
				ynew[i] = v
				scale := opt.atol + opt.rtol*math.Max(cmplx.Abs(y[i]), cmplx.Abs(v))
				d := cmplx.Abs(e) / scale
				errNorm += d * d
			}
			errNorm = math.Sqrt(errNorm / float64(n))

			if errNorm <= 1 {
				t += hs
				y, ynew = ynew, y
			}

			// Standard step size controller with safety factor 0.9.
			factor := 5.0
			if errNorm > 0 {
				factor = 0.9 * math.Pow(errNorm, -1./5)
			}
			factor = math.Min(5, math.Max(0.2, factor))
			h = hs * factor
		}

		if err := each(ti, t, y); err != nil {
			return errors.Wrap(err, "")
		}
	}
	copy(y0, y)
	return nil
}
