package mat

import (
	"fmt"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// Solve solves the linear system a @ x = b by direct LU factorization.
//
// The complex system is embedded as the real system
// [[Re(a), -Im(a)], [Im(a), Re(a)]] @ [Re(x), Im(x)] = [Re(b), Im(b)].
// A singular or severely ill-conditioned system is a reported error.
func Solve(a *COO, b []complex128) ([]complex128, error) {
	if a.rows != a.cols {
		panic(fmt.Sprintf("not square (%d %d)", a.rows, a.cols))
	}
	if len(b) != a.rows {
		panic(fmt.Sprintf("%d %d", len(b), a.rows))
	}

	n := a.rows
	dense := mat.NewDense(2*n, 2*n, nil)
	for _, e := range a.Data {
		re, im := real(e.V), imag(e.V)
		dense.Set(e.Row, e.Col, re)
		dense.Set(e.Row, n+e.Col, -im)
		dense.Set(n+e.Row, e.Col, im)
		dense.Set(n+e.Row, n+e.Col, re)
	}
	rhs := mat.NewVecDense(2*n, nil)
	for i, v := range b {
		rhs.SetVec(i, real(v))
		rhs.SetVec(n+i, imag(v))
	}

	var lu mat.LU
	lu.Factorize(dense)
	var sol mat.VecDense
	if err := lu.SolveVecTo(&sol, false, rhs); err != nil {
		return nil, errors.Wrap(err, fmt.Sprintf("%d", n))
	}

	x := make([]complex128, n)
	for i := range x {
		x[i] = complex(sol.AtVec(i), sol.AtVec(n+i))
	}
	return x, nil
}
