// Command run simulates a spin-boson model: a two-level system coupled to a
// bosonic bath whose correlation function is given as a precomputed list of
// exponential-decay terms. It writes the population dynamics to a CSV file
// and prints the steady state.
package main

import (
	"encoding/csv"
	"flag"
	"fmt"
	"log"
	"math"
	"os"
	"path/filepath"
	"strconv"

	"github.com/pkg/errors"

	"heom"
	"heom/bath"
	"heom/mat"
)

const (
	fnameDynamics = "dynamics.csv"
)

var (
	runDir = flag.String("d", filepath.Join("runs", "spinboson"), "run directory")
	tier   = flag.Int("tier", 5, "hierarchy tier cutoff")
	tMax   = flag.Float64("tmax", 20, "evolution time")
	points = flag.Int("points", 200, "number of output time points")
)

// drudeExponents is a precomputed exponential decomposition of a
// Drude-Lorentz correlation function, coupling strength lambda, cutoff
// gamma, inverse temperature beta, with nMatsubara Matsubara terms.
func drudeExponents(lambda, gamma, beta float64, nMatsubara int) []bath.Exponent {
	exps := []bath.Exponent{
		{
			Kind:  bath.BosonRealImag,
			Coeff: complex(lambda*gamma/math.Tan(beta*gamma/2), -lambda*gamma),
			Rate:  complex(gamma, 0),
		},
	}
	for k := 1; k <= nMatsubara; k++ {
		nu := 2 * math.Pi * float64(k) / beta
		exps = append(exps, bath.Exponent{
			Kind:  bath.BosonReal,
			Coeff: complex(4*lambda*gamma/beta*nu/(nu*nu-gamma*gamma), 0),
			Rate:  complex(nu, 0),
		})
	}
	return exps
}

func writeDynamics(dir string, sol *heom.Solution) error {
	f, err := os.Create(filepath.Join(dir, fnameDynamics))
	if err != nil {
		return errors.Wrap(err, "")
	}
	w := csv.NewWriter(f)

	if err1 := w.Write([]string{"t", "sz", "sx"}); err1 != nil && err == nil {
		err = errors.Wrap(err1, "")
	}
	for j, t := range sol.Times {
		row := []string{
			strconv.FormatFloat(t, 'f', -1, 64),
			strconv.FormatFloat(real(sol.Expect[0][j]), 'f', -1, 64),
			strconv.FormatFloat(real(sol.Expect[1][j]), 'f', -1, 64),
		}
		if err1 := w.Write(row); err1 != nil && err == nil {
			err = errors.Wrap(err1, "")
			break
		}
	}

	w.Flush()
	if err1 := w.Error(); err1 != nil && err == nil {
		err = errors.Wrap(err1, "")
	}
	if err1 := f.Close(); err1 != nil && err == nil {
		err = errors.Wrap(err1, "")
	}
	return err
}

func main() {
	flag.Parse()
	log.SetFlags(log.Lmicroseconds | log.Llongfile | log.LstdFlags)

	if err := mainWithErr(); err != nil {
		log.Fatalf("%+v", err)
	}
}

func mainWithErr() error {
	if err := os.MkdirAll(*runDir, os.ModePerm); err != nil {
		return errors.Wrap(err, "")
	}

	// Tunneling sigma_x system, sigma_z bath coupling.
	h := mat.M([][]complex128{
		{0, 0.5},
		{0.5, 0},
	})
	q := mat.M([][]complex128{
		{1, 0},
		{0, -1},
	})
	b, err := bath.NewBoson(q, drudeExponents(0.1, 0.5, 1, 3))
	if err != nil {
		return errors.Wrap(err, "")
	}

	m, err := heom.NewBoson(h, *tier, []*bath.Boson{b}, heom.NewOptions().Verbose(true))
	if err != nil {
		return errors.Wrap(err, "")
	}
	log.Printf("hierarchy: %d nodes, matrix %dx%d, %d nonzeros", m.N, m.Data.Rows(), m.Data.Cols(), m.Data.NumNonZero())

	a, err := m.NewADOs([][]complex128{
		{1, 0},
		{0, 0},
	})
	if err != nil {
		return errors.Wrap(err, "")
	}

	obs := []heom.Observable{
		heom.NewObservable(mat.M([][]complex128{{1, 0}, {0, -1}})),
		heom.NewObservable(mat.M([][]complex128{{0, 1}, {1, 0}})),
	}
	ts := make([]float64, *points+1)
	for i := range ts {
		ts[i] = float64(i) * *tMax / float64(*points)
	}
	sol, err := m.Evolve(a, ts, obs, heom.NewOptions().Verbose(true))
	if err != nil {
		return errors.Wrap(err, "")
	}
	if err := writeDynamics(*runDir, sol); err != nil {
		return errors.Wrap(err, "")
	}

	ss, err := m.SteadyState()
	if err != nil {
		return errors.Wrap(err, "")
	}
	rho := ss.Rho()
	fmt.Printf("steady state populations: %f, %f\n", real(rho[0][0]), real(rho[1][1]))
	return nil
}
