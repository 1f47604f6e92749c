// Package bath defines the exponential decomposition of bath correlation
// functions consumed by the hierarchy builder.
//
// A bath is described by its correlation function expanded as a finite sum
// of exponentials, C(t) = sum_k Coeff_k * exp(-Rate_k * t). The fitting
// procedure that produces such expansions (Matsubara, Pade) is outside this
// package; callers supply the terms directly.
package bath

import (
	"fmt"

	"github.com/pkg/errors"

	"heom/mat"
)

// Kind tags the part of the correlation function an exponent belongs to.
type Kind int

const (
	// BosonReal is an exponent of the real part of a bosonic correlation
	// function. Coeff may still be complex when the decay rate is.
	BosonReal Kind = iota
	// BosonImag is an exponent of the imaginary part of a bosonic
	// correlation function. Coeff carries the factor i already.
	BosonImag
	// BosonRealImag is a combined exponent whose real and imaginary parts
	// share one decay rate.
	BosonRealImag
	// FermionAbsorb is a fermionic absorption (+) exponent.
	FermionAbsorb
	// FermionEmit is a fermionic emission (-) exponent.
	FermionEmit
)

func (k Kind) String() string {
	switch k {
	case BosonReal:
		return "bosonReal"
	case BosonImag:
		return "bosonImag"
	case BosonRealImag:
		return "bosonRealImag"
	case FermionAbsorb:
		return "fermionAbsorb"
	case FermionEmit:
		return "fermionEmit"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Fermionic reports whether k is a fermionic exponent kind.
func (k Kind) Fermionic() bool {
	return k == FermionAbsorb || k == FermionEmit
}

// Exponent is one exponential-decay term of a bath correlation function.
// Exponents are immutable; the hierarchy references them by (bath, term)
// position and never copies them.
type Exponent struct {
	Kind  Kind
	Coeff complex128
	// CoeffConj is the coefficient of the paired opposite-kind exponent.
	// Only fermionic exponents use it; its conjugate enters the right
	// multiplication side of the lower coupling.
	CoeffConj complex128
	Rate      complex128
}

// Boson is a bosonic bath: a system coupling operator and its exponents.
type Boson struct {
	Op        *mat.COO
	Exponents []Exponent
}

// NewBoson validates and builds a bosonic bath.
func NewBoson(op *mat.COO, exponents []Exponent) (*Boson, error) {
	if op.Rows() != op.Cols() {
		return nil, errors.Errorf("coupling operator not square: %dx%d", op.Rows(), op.Cols())
	}
	for i, e := range exponents {
		if e.Kind.Fermionic() {
			return nil, errors.Errorf("exponent %d: %s in bosonic bath", i, e.Kind)
		}
	}
	return &Boson{Op: op, Exponents: exponents}, nil
}

// Fermion is a fermionic bath. Exponents alternate between absorption and
// emission terms in whatever order the decomposition produced, each carrying
// the coefficient of its opposite-kind partner in CoeffConj.
type Fermion struct {
	Op        *mat.COO
	Exponents []Exponent
}

// NewFermion validates and builds a fermionic bath.
func NewFermion(op *mat.COO, exponents []Exponent) (*Fermion, error) {
	if op.Rows() != op.Cols() {
		return nil, errors.Errorf("coupling operator not square: %dx%d", op.Rows(), op.Cols())
	}
	for i, e := range exponents {
		if !e.Kind.Fermionic() {
			return nil, errors.Errorf("exponent %d: %s in fermionic bath", i, e.Kind)
		}
	}
	return &Fermion{Op: op, Exponents: exponents}, nil
}
