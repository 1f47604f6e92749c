package heom

import (
	"fmt"

	"github.com/pkg/errors"
)

// ADOs is the vectorized state of the whole hierarchy: N contiguous blocks
// of dim² entries, block i holding the row-major vectorization of the i-th
// auxiliary density operator. Block 0 is the physical reduced density
// matrix. Data is solver state and mutable; the metadata never changes
// after construction.
type ADOs struct {
	Data []complex128

	dim    int
	n      int
	parity Parity
}

// NewADOs creates a hierarchy state from the Liouvillian's dictionaries with
// block 0 set to the given reduced density matrix and all auxiliary blocks
// zero.
func (m *Liouvillian) NewADOs(rho [][]complex128) (*ADOs, error) {
	if len(rho) != m.Dim {
		return nil, errors.Errorf("density matrix has %d rows, system dim %d", len(rho), m.Dim)
	}
	a := &ADOs{
		Data:   make([]complex128, m.N*m.supDim()),
		dim:    m.Dim,
		n:      m.N,
		parity: m.Parity,
	}
	for r, row := range rho {
		if len(row) != m.Dim {
			return nil, errors.Errorf("density matrix row %d has %d columns, system dim %d", r, len(row), m.Dim)
		}
		copy(a.Data[r*m.Dim:], row)
	}
	return a, nil
}

func newADOs(data []complex128, dim, n int, parity Parity) *ADOs {
	if len(data) != n*dim*dim {
		panic(fmt.Sprintf("%d %d %d", len(data), n, dim))
	}
	return &ADOs{Data: data, dim: dim, n: n, parity: parity}
}

func (a *ADOs) Dim() int       { return a.dim }
func (a *ADOs) N() int         { return a.n }
func (a *ADOs) Parity() Parity { return a.parity }

// At returns the i-th auxiliary density operator as a dense dim×dim matrix.
func (a *ADOs) At(i int) [][]complex128 {
	if i < 0 || i >= a.n {
		panic(fmt.Sprintf("index %d out of range [0, %d)", i, a.n))
	}
	block := a.Data[i*a.dim*a.dim:]
	rho := make([][]complex128, a.dim)
	for r := range rho {
		rho[r] = make([]complex128, a.dim)
		copy(rho[r], block[r*a.dim:])
	}
	return rho
}

// Rho returns the physical reduced density matrix, block 0.
func (a *ADOs) Rho() [][]complex128 {
	return a.At(0)
}

// All iterates over the N blocks in index order. The sequence is lazy and
// restartable.
func (a *ADOs) All() func(yield func(int, [][]complex128) bool) {
	return func(yield func(int, [][]complex128) bool) {
		for i := 0; i < a.n; i++ {
			if !yield(i, a.At(i)) {
				return
			}
		}
	}
}

// Clone returns a deep copy of a.
func (a *ADOs) Clone() *ADOs {
	data := make([]complex128, len(a.Data))
	copy(data, a.Data)
	return &ADOs{Data: data, dim: a.dim, n: a.n, parity: a.parity}
}
