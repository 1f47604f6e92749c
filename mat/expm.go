package mat

import (
	"fmt"
	"math"
	"math/cmplx"
)

// Expm returns exp(t*a) computed by scaling and squaring of a truncated
// Taylor series.
//
// The series is truncated once the infinity norm of the next term falls
// below threshold. After every matrix product, entries with magnitude below
// tol are dropped to bound fill-in.
//
// References:
//   - Nineteen dubious ways to compute the exponential of a matrix,
//     twenty-five years later, Cleve Moler and Charles Van Loan.
func Expm(a *COO, t complex128, threshold, tol float64) *COO {
	if a.rows != a.cols {
		panic(fmt.Sprintf("not square (%d %d)", a.rows, a.cols))
	}

	b := NewCSR(a)
	b.scale(t)

	// Scale so that the norm is at most 1, square back afterwards.
	var squarings int
	if norm := b.normInf(); norm > 1 {
		squarings = int(math.Ceil(math.Log2(norm)))
		b.scale(complex(math.Exp2(-float64(squarings)), 0))
	}

	// exp(b) = I + b + b^2/2! + ...
	const maxTerms = 64
	sum := csrIdentity(b.rows).add(b, tol)
	term := b
	for k := 2; k <= maxTerms; k++ {
		term = term.mulDrop(b, tol)
		term.scale(complex(1/float64(k), 0))
		if term.normInf() < threshold {
			break
		}
		sum = sum.add(term, tol)
	}

	for i := 0; i < squarings; i++ {
		sum = sum.mulDrop(sum, tol)
	}
	return sum.COO()
}

func abs(v complex128) float64 {
	return cmplx.Abs(v)
}

func absSquared(v complex128) float64 {
	return real(v)*real(v) + imag(v)*imag(v)
}
