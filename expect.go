package heom

import (
	"fmt"

	"heom/mat"
)

// Observable is an expectation-value functional over a hierarchy state,
// either a plain system operator traced against the reduced density matrix,
// or a hierarchy-aware superoperator pre-contracted with the block-0 trace.
// The two kinds are resolved at construction; Expect runs both through the
// same contraction kernel, so for a plain operator op,
// Expect(NewObservable(op), a) and
// Expect(NewSuperObservable(lifted spre(op), dim), a) agree exactly.
type Observable struct {
	fun []complex128
	// dim is the system dimension of a plain operator; super observables
	// carry dim 0 and are checked against the full state length instead.
	dim  int
	full bool
}

// NewObservable builds the functional Tr(op · ρ₀).
func NewObservable(op *mat.COO) Observable {
	if op.Rows() != op.Cols() {
		panic(fmt.Sprintf("not square (%d %d)", op.Rows(), op.Cols()))
	}
	dim := op.Rows()
	fun := make([]complex128, dim*dim)
	for _, e := range op.Data {
		// Tr(op·ρ) = Σ op[r,c]·ρ[c,r], and vec(ρ)[c*dim+r] = ρ[c][r].
		fun[e.Col*dim+e.Row] += e.V
	}
	return Observable{fun: fun, dim: dim}
}

// NewSuperObservable builds the functional Tr((S·a)₀) for a superoperator S
// acting on the full hierarchy vector, pre-contracting the block-0 trace
// against S once.
func NewSuperObservable(sup *mat.COO, dim int) Observable {
	fun := make([]complex128, sup.Cols())
	supDim := dim * dim
	for _, e := range sup.Data {
		if e.Row < supDim && e.Row%(dim+1) == 0 {
			fun[e.Col] += e.V
		}
	}
	return Observable{fun: fun, full: true}
}

// Expect contracts the observable against the hierarchy state.
// A plain observable must match the state's system dimension and a super
// observable the full hierarchy length.
func Expect(o Observable, a *ADOs) complex128 {
	if o.full {
		if len(o.fun) != len(a.Data) {
			panic(fmt.Sprintf("observable length %d, state length %d", len(o.fun), len(a.Data)))
		}
	} else if o.dim != a.dim {
		panic(fmt.Sprintf("observable dim %d, state dim %d", o.dim, a.dim))
	}
	var s complex128
	for i, f := range o.fun {
		if f != 0 {
			s += f * a.Data[i]
		}
	}
	return s
}
