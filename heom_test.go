package heom

import (
	"fmt"
	"log"
	"math"
	"math/cmplx"
	"os"
	"testing"

	"heom/bath"
	"heom/mat"
)

func sigmaZ() *mat.COO {
	return mat.M([][]complex128{
		{1, 0},
		{0, -1},
	})
}

func sigmaX() *mat.COO {
	return mat.M([][]complex128{
		{0, 1},
		{1, 0},
	})
}

func sigmaMinus() *mat.COO {
	return mat.M([][]complex128{
		{0, 1},
		{0, 0},
	})
}

func bosonExponents(n int) []bath.Exponent {
	exps := make([]bath.Exponent, 0, n)
	for k := 0; k < n; k++ {
		exps = append(exps, bath.Exponent{
			Kind:  bath.BosonReal,
			Coeff: complex(0.1+0.05*float64(k), 0),
			Rate:  complex(0.5+0.25*float64(k), 0),
		})
	}
	return exps
}

// fermionExponents returns pairs of absorption and emission terms.
func fermionExponents(pairs int) []bath.Exponent {
	exps := make([]bath.Exponent, 0, 2*pairs)
	for k := 0; k < pairs; k++ {
		ca := complex(0.1+0.02*float64(k), 0.01)
		ce := complex(0.2+0.03*float64(k), -0.01)
		rate := complex(0.5+0.25*float64(k), 0.1)
		exps = append(exps,
			bath.Exponent{Kind: bath.FermionAbsorb, Coeff: ca, CoeffConj: ce, Rate: rate},
			bath.Exponent{Kind: bath.FermionEmit, Coeff: ce, CoeffConj: ca, Rate: rate},
		)
	}
	return exps
}

func TestNewBosonShape(t *testing.T) {
	t.Parallel()
	tests := []struct {
		numExponents int
		tier         int
		n            int
	}{
		// C(6+3, 3) = 84 hierarchy nodes.
		{numExponents: 6, tier: 3, n: 84},
		{numExponents: 4, tier: 2, n: 15},
		{numExponents: 1, tier: 1, n: 2},
	}
	for _, test := range tests {
		test := test
		t.Run(fmt.Sprintf("%d_%d", test.numExponents, test.tier), func(t *testing.T) {
			t.Parallel()
			b, err := bath.NewBoson(sigmaX(), bosonExponents(test.numExponents))
			if err != nil {
				t.Fatalf("%+v", err)
			}
			m, err := NewBoson(sigmaZ(), test.tier, []*bath.Boson{b})
			if err != nil {
				t.Fatalf("%+v", err)
			}
			if m.N != test.n {
				t.Fatalf("%d, expected %d", m.N, test.n)
			}
			size := test.n * 4
			if m.Data.Rows() != size || m.Data.Cols() != size {
				t.Fatalf("(%d %d), expected %d", m.Data.Rows(), m.Data.Cols(), size)
			}
		})
	}
}

func TestNewFermionShape(t *testing.T) {
	t.Parallel()
	// 1 + 12 + 66 + 220 = 299 hierarchy nodes.
	b, err := bath.NewFermion(sigmaMinus(), fermionExponents(6))
	if err != nil {
		t.Fatalf("%+v", err)
	}
	m, err := NewFermion(sigmaZ(), 3, []*bath.Fermion{b}, Even)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	if m.N != 299 {
		t.Fatalf("%d, expected %d", m.N, 299)
	}
	if m.Data.Rows() != 1196 {
		t.Fatalf("%d, expected %d", m.Data.Rows(), 1196)
	}
}

func TestNewBosonFermionShape(t *testing.T) {
	t.Parallel()
	bb, err := bath.NewBoson(sigmaX(), bosonExponents(4))
	if err != nil {
		t.Fatalf("%+v", err)
	}
	fb, err := bath.NewFermion(sigmaMinus(), fermionExponents(4))
	if err != nil {
		t.Fatalf("%+v", err)
	}
	m, err := NewBosonFermion(sigmaZ(), 2, 2, []*bath.Boson{bb}, []*bath.Fermion{fb}, Even)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	// 15 bosonic times 37 fermionic nodes.
	if m.Boson.Len() != 15 || m.Fermion.Len() != 37 {
		t.Fatalf("(%d %d), expected (15 37)", m.Boson.Len(), m.Fermion.Len())
	}
	if m.N != 555 {
		t.Fatalf("%d, expected %d", m.N, 555)
	}
	if m.Data.Rows() != 2220 {
		t.Fatalf("%d, expected %d", m.Data.Rows(), 2220)
	}
}

// TestNonzeros pins the exact matrix of the smallest nontrivial hierarchy:
// one real exponent at tier 1. The two diagonal blocks carry the system
// Liouvillian (2 nonzeros) and additionally the damping rate (4 diagonal
// entries), and each of the two coupling blocks has the 8 entries of
// spre(Q) and spost(Q).
func TestNonzeros(t *testing.T) {
	t.Parallel()
	b, err := bath.NewBoson(sigmaX(), []bath.Exponent{
		{Kind: bath.BosonReal, Coeff: 0.5, Rate: 0.6},
	})
	if err != nil {
		t.Fatalf("%+v", err)
	}
	m, err := NewBoson(sigmaZ(), 1, []*bath.Boson{b})
	if err != nil {
		t.Fatalf("%+v", err)
	}
	if m.Data.NumNonZero() != 22 {
		t.Fatalf("%d, expected %d", m.Data.NumNonZero(), 22)
	}

	// The dissipator adds (0,3) and (3,3) to the first diagonal block and
	// only (0,3) to the second, whose (3,3) already holds the damping rate.
	if err := m.AddDissipator(sigmaMinus()); err != nil {
		t.Fatalf("%+v", err)
	}
	if m.Data.NumNonZero() != 25 {
		t.Fatalf("%d, expected %d", m.Data.NumNonZero(), 25)
	}
	if m.Data.Rows() != 8 || m.Data.Cols() != 8 {
		t.Fatalf("(%d %d), expected 8", m.Data.Rows(), m.Data.Cols())
	}
}

func TestBuildDeterminism(t *testing.T) {
	t.Parallel()
	build := func() *Liouvillian {
		b, err := bath.NewBoson(sigmaX(), bosonExponents(3))
		if err != nil {
			t.Fatalf("%+v", err)
		}
		m, err := NewBoson(sigmaZ(), 2, []*bath.Boson{b})
		if err != nil {
			t.Fatalf("%+v", err)
		}
		return m
	}
	a, b := build(), build()
	if !a.Data.Equal(b.Data) {
		t.Fatalf("build is not deterministic")
	}
}

func TestFermionParity(t *testing.T) {
	t.Parallel()
	b, err := bath.NewFermion(sigmaMinus(), fermionExponents(2))
	if err != nil {
		t.Fatalf("%+v", err)
	}
	even, err := NewFermion(sigmaZ(), 2, []*bath.Fermion{b}, Even)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	odd, err := NewFermion(sigmaZ(), 2, []*bath.Fermion{b}, Odd)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	if even.Data.Rows() != odd.Data.Rows() {
		t.Fatalf("%d, expected %d", odd.Data.Rows(), even.Data.Rows())
	}
	if even.Data.NumNonZero() != odd.Data.NumNonZero() {
		t.Fatalf("%d, expected %d", odd.Data.NumNonZero(), even.Data.NumNonZero())
	}
	// Parity flips coupling signs.
	if even.Data.Equal(odd.Data) {
		t.Fatalf("expected different couplings")
	}
}

func TestNewErrors(t *testing.T) {
	t.Parallel()
	rect := mat.Zeros(2, 3)
	b, err := bath.NewBoson(sigmaX(), bosonExponents(1))
	if err != nil {
		t.Fatalf("%+v", err)
	}
	if _, err := NewBoson(rect, 1, []*bath.Boson{b}); err == nil {
		t.Fatalf("expected error")
	}
	if _, err := NewBoson(mat.Identity(3), 1, []*bath.Boson{b}); err == nil {
		t.Fatalf("expected error")
	}
	if _, err := NewBoson(sigmaZ(), -1, []*bath.Boson{b}); err == nil {
		t.Fatalf("expected error")
	}

	m, err := NewBoson(sigmaZ(), 1, []*bath.Boson{b})
	if err != nil {
		t.Fatalf("%+v", err)
	}
	if err := m.AddDissipator(mat.Identity(3)); err == nil {
		t.Fatalf("expected error")
	}
}

func TestADOs(t *testing.T) {
	t.Parallel()
	b, err := bath.NewBoson(sigmaX(), bosonExponents(2))
	if err != nil {
		t.Fatalf("%+v", err)
	}
	m, err := NewBoson(sigmaZ(), 2, []*bath.Boson{b})
	if err != nil {
		t.Fatalf("%+v", err)
	}

	rho := [][]complex128{
		{0.75, 0.1 - 0.2i},
		{0.1 + 0.2i, 0.25},
	}
	a, err := m.NewADOs(rho)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	if a.Dim() != 2 || a.N() != m.N || a.Parity() != Even {
		t.Fatalf("(%d %d %s)", a.Dim(), a.N(), a.Parity())
	}

	got := a.Rho()
	for r := range rho {
		for c := range rho[r] {
			if got[r][c] != rho[r][c] {
				t.Fatalf("%v, expected %v", got, rho)
			}
		}
	}

	blocks := 0
	a.All()(func(i int, block [][]complex128) bool {
		if i > 0 {
			for r := range block {
				for c := range block[r] {
					if block[r][c] != 0 {
						t.Fatalf("block %d not zero", i)
					}
				}
			}
		}
		blocks++
		return true
	})
	if blocks != m.N {
		t.Fatalf("%d, expected %d", blocks, m.N)
	}

	if _, err := m.NewADOs([][]complex128{{1}}); err == nil {
		t.Fatalf("expected error")
	}
}

func TestExpect(t *testing.T) {
	t.Parallel()
	b, err := bath.NewBoson(sigmaX(), bosonExponents(2))
	if err != nil {
		t.Fatalf("%+v", err)
	}
	m, err := NewBoson(sigmaZ(), 2, []*bath.Boson{b})
	if err != nil {
		t.Fatalf("%+v", err)
	}
	a, err := m.NewADOs([][]complex128{
		{0.5, 0.5},
		{0.5, 0.5},
	})
	if err != nil {
		t.Fatalf("%+v", err)
	}
	for i := range a.Data {
		a.Data[i] = complex(float64(i%5)-2, float64(i%3))
	}

	ops := []*mat.COO{sigmaZ(), sigmaX(), sigmaMinus()}
	size := m.Data.Rows()
	for _, op := range ops {
		plain := Expect(NewObservable(op), a)

		// Lift spre(op) to the full hierarchy, acting only on block 0.
		lifted := mat.Zeros(size, size)
		for _, e := range spre(op).Data {
			lifted.Append(e.Row, e.Col, e.V)
		}
		lifted.Compress()
		super := Expect(NewSuperObservable(lifted, m.Dim), a)

		if plain != super {
			t.Fatalf("%v, expected %v", super, plain)
		}
	}
}

// decayModel is a hierarchy whose bath coefficients vanish, with a Lindblad
// amplitude damping dissipator added. Block 0 then evolves exactly by
// dp1/dt = -p1, so analytic results are available.
func decayModel(t *testing.T) *Liouvillian {
	b, err := bath.NewBoson(sigmaX(), []bath.Exponent{
		{Kind: bath.BosonReal, Coeff: 0, Rate: 1},
	})
	if err != nil {
		t.Fatalf("%+v", err)
	}
	m, err := NewBoson(sigmaZ(), 2, []*bath.Boson{b})
	if err != nil {
		t.Fatalf("%+v", err)
	}
	if err := m.AddDissipator(sigmaMinus()); err != nil {
		t.Fatalf("%+v", err)
	}
	return m
}

func TestPropagateDecay(t *testing.T) {
	t.Parallel()
	m := decayModel(t)
	a, err := m.NewADOs([][]complex128{
		{0, 0},
		{0, 1},
	})
	if err != nil {
		t.Fatalf("%+v", err)
	}

	const dt, steps = 0.05, 40
	sol, err := m.Propagate(a, dt, steps, []Observable{NewObservable(sigmaZ())}, NewOptions().Threshold(1e-12))
	if err != nil {
		t.Fatalf("%+v", err)
	}
	if len(sol.Times) != steps+1 || len(sol.Expect[0]) != steps+1 {
		t.Fatalf("%d, expected %d", len(sol.Times), steps+1)
	}
	// Only the final state is kept when observables are requested.
	if len(sol.States) != 1 {
		t.Fatalf("%d, expected 1", len(sol.States))
	}
	if sol.Method != "propagator" {
		t.Fatalf("%s", sol.Method)
	}

	for j, tj := range sol.Times {
		want := 1 - 2*math.Exp(-tj)
		if got := real(sol.Expect[0][j]); math.Abs(got-want) > 1e-6 {
			t.Fatalf("t=%f: %f, expected %f", tj, got, want)
		}
	}
}

func TestEvolveDecay(t *testing.T) {
	t.Parallel()
	m := decayModel(t)
	a, err := m.NewADOs([][]complex128{
		{0, 0},
		{0, 1},
	})
	if err != nil {
		t.Fatalf("%+v", err)
	}

	ts := make([]float64, 21)
	for i := range ts {
		ts[i] = float64(i) * 0.1
	}
	sol, err := m.Evolve(a, ts, []Observable{NewObservable(sigmaZ())}, NewOptions().RTol(1e-9).ATol(1e-12))
	if err != nil {
		t.Fatalf("%+v", err)
	}
	if sol.Method != "ode" {
		t.Fatalf("%s", sol.Method)
	}
	for j, tj := range sol.Times {
		want := 1 - 2*math.Exp(-tj)
		if got := real(sol.Expect[0][j]); math.Abs(got-want) > 1e-6 {
			t.Fatalf("t=%f: %f, expected %f", tj, got, want)
		}
	}
}

func TestPropagateEvolveAgree(t *testing.T) {
	t.Parallel()
	b, err := bath.NewBoson(sigmaZ(), bosonExponents(2))
	if err != nil {
		t.Fatalf("%+v", err)
	}
	m, err := NewBoson(sigmaX(), 2, []*bath.Boson{b})
	if err != nil {
		t.Fatalf("%+v", err)
	}
	a, err := m.NewADOs([][]complex128{
		{1, 0},
		{0, 0},
	})
	if err != nil {
		t.Fatalf("%+v", err)
	}

	obs := []Observable{NewObservable(sigmaZ())}
	const dt, steps = 0.1, 20
	psol, err := m.Propagate(a, dt, steps, obs, NewOptions().Threshold(1e-12))
	if err != nil {
		t.Fatalf("%+v", err)
	}
	ts := make([]float64, steps+1)
	for i := range ts {
		ts[i] = float64(i) * dt
	}
	esol, err := m.Evolve(a, ts, obs, NewOptions().RTol(1e-10).ATol(1e-12))
	if err != nil {
		t.Fatalf("%+v", err)
	}

	for j := range ts {
		d := cmplx.Abs(psol.Expect[0][j] - esol.Expect[0][j])
		if d > 1e-6 {
			t.Fatalf("t=%f: %v, expected %v", ts[j], psol.Expect[0][j], esol.Expect[0][j])
		}
	}
}

func TestTracePreservation(t *testing.T) {
	t.Parallel()
	b, err := bath.NewBoson(sigmaZ(), bosonExponents(2))
	if err != nil {
		t.Fatalf("%+v", err)
	}
	m, err := NewBoson(sigmaX(), 2, []*bath.Boson{b})
	if err != nil {
		t.Fatalf("%+v", err)
	}
	a, err := m.NewADOs([][]complex128{
		{0.7, 0.2},
		{0.2, 0.3},
	})
	if err != nil {
		t.Fatalf("%+v", err)
	}

	sol, err := m.Propagate(a, 0.1, 10, nil, NewOptions().Threshold(1e-12))
	if err != nil {
		t.Fatalf("%+v", err)
	}
	// All snapshots are kept when no observables are requested.
	if len(sol.States) != 11 {
		t.Fatalf("%d, expected 11", len(sol.States))
	}
	for j, s := range sol.States {
		rho := s.Rho()
		tr := rho[0][0] + rho[1][1]
		if cmplx.Abs(tr-1) > 1e-9 {
			t.Fatalf("t=%f: trace %v, expected 1", sol.Times[j], tr)
		}
	}
}

func TestSteadyState(t *testing.T) {
	t.Parallel()
	m := decayModel(t)
	ss, err := m.SteadyState()
	if err != nil {
		t.Fatalf("%+v", err)
	}
	rho := ss.Rho()
	if cmplx.Abs(rho[0][0]-1) > 1e-9 || cmplx.Abs(rho[1][1]) > 1e-9 {
		t.Fatalf("%v, expected diag(1, 0)", rho)
	}

	// The stationary state annihilates the generator.
	csrData := mat.NewCSR(m.Data)
	residual := make([]complex128, len(ss.Data))
	csrData.MatVec(residual, ss.Data)
	for i, v := range residual {
		if cmplx.Abs(v) > 1e-9 {
			t.Fatalf("residual[%d] = %v", i, v)
		}
	}
}

func TestSteadyStateODE(t *testing.T) {
	t.Parallel()
	m := decayModel(t)
	a, err := m.NewADOs([][]complex128{
		{0, 0},
		{0, 1},
	})
	if err != nil {
		t.Fatalf("%+v", err)
	}
	ss, err := m.SteadyStateODE(a, NewOptions().RTol(1e-8).ATol(1e-10))
	if err != nil {
		t.Fatalf("%+v", err)
	}
	rho := ss.Rho()
	if cmplx.Abs(rho[0][0]-1) > 1e-5 || cmplx.Abs(rho[1][1]) > 1e-5 {
		t.Fatalf("%v, expected diag(1, 0)", rho)
	}
}

func TestAddTerminator(t *testing.T) {
	t.Parallel()
	b, err := bath.NewBoson(sigmaX(), bosonExponents(2))
	if err != nil {
		t.Fatalf("%+v", err)
	}
	m, err := NewBoson(sigmaZ(), 2, []*bath.Boson{b})
	if err != nil {
		t.Fatalf("%+v", err)
	}
	before := m.Data.Clone()

	tm, err := m.AddTerminator(0.3, b)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	// The receiver is unchanged.
	if !m.Data.Equal(before) {
		t.Fatalf("receiver mutated")
	}
	if tm.Data.Rows() != m.Data.Rows() {
		t.Fatalf("%d, expected %d", tm.Data.Rows(), m.Data.Rows())
	}
	if tm.Data.Equal(m.Data) {
		t.Fatalf("expected terminator entries")
	}
}

// TestExpectDimMismatch pins that an observable built for the wrong system
// dimension fails instead of silently contracting auxiliary-block entries
// as if they were block 0.
func TestExpectDimMismatch(t *testing.T) {
	t.Parallel()
	b, err := bath.NewBoson(sigmaX(), bosonExponents(2))
	if err != nil {
		t.Fatalf("%+v", err)
	}
	m, err := NewBoson(sigmaZ(), 1, []*bath.Boson{b})
	if err != nil {
		t.Fatalf("%+v", err)
	}
	a, err := m.NewADOs([][]complex128{
		{1, 0},
		{0, 0},
	})
	if err != nil {
		t.Fatalf("%+v", err)
	}
	for i := range a.Data {
		a.Data[i] = complex(float64(i), 0)
	}

	tests := []struct {
		name string
		o    Observable
	}{
		{name: "plain3x3", o: NewObservable(mat.Identity(3))},
		{name: "plain1x1", o: NewObservable(mat.Identity(1))},
		{name: "superShort", o: NewSuperObservable(mat.Identity(4), 2)},
	}
	for _, test := range tests {
		test := test
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()
			defer func() {
				if recover() == nil {
					t.Fatalf("expected panic")
				}
			}()
			Expect(test.o, a)
		})
	}

	// Matching observables still pass both paths.
	if got := Expect(NewObservable(mat.Identity(2)), a); got != 3 {
		t.Fatalf("%v, expected %v", got, 3)
	}
	size := m.Data.Rows()
	lifted := mat.Zeros(size, size)
	for _, e := range spre(mat.Identity(2)).Data {
		lifted.Append(e.Row, e.Col, e.V)
	}
	lifted.Compress()
	if got := Expect(NewSuperObservable(lifted, m.Dim), a); got != 3 {
		t.Fatalf("%v, expected %v", got, 3)
	}
}

func TestADOsAtOutOfRange(t *testing.T) {
	t.Parallel()
	b, err := bath.NewBoson(sigmaX(), bosonExponents(2))
	if err != nil {
		t.Fatalf("%+v", err)
	}
	m, err := NewBoson(sigmaZ(), 1, []*bath.Boson{b})
	if err != nil {
		t.Fatalf("%+v", err)
	}
	a, err := m.NewADOs([][]complex128{
		{1, 0},
		{0, 0},
	})
	if err != nil {
		t.Fatalf("%+v", err)
	}

	for _, i := range []int{-1, m.N, m.N + 7} {
		i := i
		t.Run(fmt.Sprintf("%d", i), func(t *testing.T) {
			t.Parallel()
			defer func() {
				if recover() == nil {
					t.Fatalf("expected panic")
				}
			}()
			a.At(i)
		})
	}
}

func TestPropagateNegativeSteps(t *testing.T) {
	t.Parallel()
	m := decayModel(t)
	a, err := m.NewADOs([][]complex128{
		{1, 0},
		{0, 0},
	})
	if err != nil {
		t.Fatalf("%+v", err)
	}
	if _, err := m.Propagate(a, 0.1, -1, nil); err == nil {
		t.Fatalf("expected error")
	}
}

// TestEvolveDrive uses a zero system Hamiltonian and vanishing bath
// coefficients so that the drive alone rotates block 0:
// <sigma_z>(t) = cos(t) under H'(t) = sigma_x/2.
func TestEvolveDrive(t *testing.T) {
	t.Parallel()
	b, err := bath.NewBoson(sigmaX(), []bath.Exponent{
		{Kind: bath.BosonReal, Coeff: 0, Rate: 1},
	})
	if err != nil {
		t.Fatalf("%+v", err)
	}
	m, err := NewBoson(mat.Zeros(2, 2), 1, []*bath.Boson{b})
	if err != nil {
		t.Fatalf("%+v", err)
	}
	a, err := m.NewADOs([][]complex128{
		{1, 0},
		{0, 0},
	})
	if err != nil {
		t.Fatalf("%+v", err)
	}

	halfX := sigmaX()
	halfX.Scale(0.5)
	drive := func(t float64) *mat.COO { return halfX }

	ts := make([]float64, 13)
	for i := range ts {
		ts[i] = float64(i) * 0.25
	}
	sol, err := m.Evolve(a, ts, []Observable{NewObservable(sigmaZ())},
		NewOptions().RTol(1e-9).ATol(1e-12).Drive(drive))
	if err != nil {
		t.Fatalf("%+v", err)
	}
	for j, tj := range sol.Times {
		want := math.Cos(tj)
		if got := real(sol.Expect[0][j]); math.Abs(got-want) > 1e-6 {
			t.Fatalf("t=%f: %f, expected %f", tj, got, want)
		}
	}

	// A drive of the wrong dimension is rejected before integrating.
	bad := func(t float64) *mat.COO { return mat.Identity(3) }
	if _, err := m.Evolve(a, ts, nil, NewOptions().Drive(bad)); err == nil {
		t.Fatalf("expected error")
	}
}

func TestMain(m *testing.M) {
	log.SetFlags(log.Lmicroseconds | log.Llongfile | log.LstdFlags)
	os.Exit(m.Run())
}
