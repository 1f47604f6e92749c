// Package heom builds and solves the hierarchical equations of motion (HEOM)
// for open quantum systems coupled to bosonic and fermionic environments.
//
// The hierarchy state is a vector of auxiliary density operators (ADOs)
// indexed by the dictionaries of package hierarchy. Density matrices are
// vectorized row-major, vec(ρ)[r*dim+c] = ρ[r][c], so that
// vec(AρB) = (A ⊗ Bᵀ) vec(ρ).
//
// References:
//   - Time evolution of a quantum system in contact with a nearly
//     Gaussian-Markoffian noise bath, Yoshitaka Tanimura and Ryogo Kubo.
//   - Exact dynamics of dissipative electronic systems and quantum
//     transport: Hierarchical equations of motion approach,
//     Jinshuang Jin, Xiao Zheng, and YiJing Yan.
package heom

import (
	"fmt"

	"github.com/pkg/errors"

	"heom/bath"
	"heom/hierarchy"
	"heom/mat"
)

// Parity labels whether a superoperator acts on an even or odd operator in
// the fermion-number sense. It changes the anticommutation signs of the
// fermionic couplings; bosonic hierarchies are always even.
type Parity int

const (
	Even Parity = iota
	Odd
)

func (p Parity) String() string {
	switch p {
	case Even:
		return "even"
	case Odd:
		return "odd"
	default:
		return fmt.Sprintf("parity(%d)", int(p))
	}
}

// Liouvillian is the generator of the full hierarchy, one sparse matrix of
// shape (N*dim²) × (N*dim²). Data may be mutated in place by AddDissipator;
// all other fields are fixed at construction.
type Liouvillian struct {
	Data *mat.COO
	// Dim is the system Hilbert space dimension.
	Dim int
	// N is the total number of auxiliary density operators.
	N      int
	Parity Parity
	// Boson and Fermion are the tier dictionaries of the two species.
	// An absent species has the trivial single-tier dictionary.
	Boson   *hierarchy.Dict
	Fermion *hierarchy.Dict

	// lsys is the vectorized system Liouvillian -i[H, ·], the dim²×dim²
	// body of every diagonal block.
	lsys   *mat.COO
	bslots []bosonSlot
	fslots []fermionSlot
}

// NewBoson builds the hierarchy generator for bosonic baths.
func NewBoson(h *mat.COO, tier int, baths []*bath.Boson, options ...Options) (*Liouvillian, error) {
	return NewBosonFermion(h, tier, 0, baths, nil, Even, options...)
}

// NewFermion builds the hierarchy generator for fermionic baths.
func NewFermion(h *mat.COO, tier int, baths []*bath.Fermion, parity Parity, options ...Options) (*Liouvillian, error) {
	return NewBosonFermion(h, 0, tier, nil, baths, parity, options...)
}

// NewBosonFermion builds the hierarchy generator for a mixed system. The
// tier cutoffs apply to each species independently, and the combined index
// is boson-index-major: idx = bosonIdx*Nf + fermionIdx.
func NewBosonFermion(h *mat.COO, btier, ftier int, bosons []*bath.Boson, fermions []*bath.Fermion, parity Parity, options ...Options) (*Liouvillian, error) {
	opt := NewOptions()
	if len(options) > 0 {
		opt = options[0]
	}

	if h.Rows() != h.Cols() {
		return nil, errors.Errorf("hamiltonian not square: %dx%d", h.Rows(), h.Cols())
	}
	dim := h.Rows()
	if dim < 1 {
		return nil, errors.Errorf("empty hamiltonian")
	}

	bcounts := make([]int, 0, len(bosons))
	for i, b := range bosons {
		if b.Op.Rows() != dim {
			return nil, errors.Errorf("boson bath %d: operator %dx%d, system dim %d", i, b.Op.Rows(), b.Op.Cols(), dim)
		}
		bcounts = append(bcounts, len(b.Exponents))
	}
	fcounts := make([]int, 0, len(fermions))
	for i, f := range fermions {
		if f.Op.Rows() != dim {
			return nil, errors.Errorf("fermion bath %d: operator %dx%d, system dim %d", i, f.Op.Rows(), f.Op.Cols(), dim)
		}
		fcounts = append(fcounts, len(f.Exponents))
	}

	bdict, err := hierarchy.NewBoson(bcounts, btier)
	if err != nil {
		return nil, errors.Wrap(err, "boson")
	}
	fdict, err := hierarchy.NewFermion(fcounts, ftier)
	if err != nil {
		return nil, errors.Wrap(err, "fermion")
	}

	m := &Liouvillian{
		Dim:     dim,
		N:       bdict.Len() * fdict.Len(),
		Parity:  parity,
		Boson:   bdict,
		Fermion: fdict,
	}
	m.lsys = liouvillian(h)
	m.bslots = bosonSlots(bdict, bosons)
	m.fslots = fermionSlots(fdict, fermions)
	if err := m.build(opt); err != nil {
		return nil, errors.Wrap(err, "")
	}
	return m, nil
}

func (m *Liouvillian) supDim() int { return m.Dim * m.Dim }

// AddDissipator adds Lindblad dissipators with the given jump operators to
// every diagonal block, in place. The matrix shape never changes; the
// nonzero count can only grow or stay.
func (m *Liouvillian) AddDissipator(jumpOps ...*mat.COO) error {
	supDim := m.supDim()
	d := mat.Zeros(supDim, supDim)
	for i, j := range jumpOps {
		if j.Rows() != m.Dim || j.Cols() != m.Dim {
			return errors.Errorf("jump operator %d: %dx%d, system dim %d", i, j.Rows(), j.Cols(), m.Dim)
		}
		d.Add(1, lindblad(j))
	}

	for node := 0; node < m.N; node++ {
		off := node * supDim
		for _, e := range d.Data {
			m.Data.Append(off+e.Row, off+e.Col, e.V)
		}
	}
	m.Data.Compress()
	return nil
}

// AddTerminator returns a copy of m with the Markovian closure term
// -delta*[Q,[Q,·]] added to every diagonal block, approximating the
// truncated hierarchy tail of the given bath. The receiver is unchanged.
func (m *Liouvillian) AddTerminator(delta complex128, b *bath.Boson) (*Liouvillian, error) {
	if b.Op.Rows() != m.Dim || b.Op.Cols() != m.Dim {
		return nil, errors.Errorf("bath operator %dx%d, system dim %d", b.Op.Rows(), b.Op.Cols(), m.Dim)
	}

	comm := spre(b.Op)
	comm.Add(-1, spost(b.Op))
	term := mat.Mul(comm, comm)
	term.Scale(-delta)

	t := &Liouvillian{
		Data:    m.Data.Clone(),
		Dim:     m.Dim,
		N:       m.N,
		Parity:  m.Parity,
		Boson:   m.Boson,
		Fermion: m.Fermion,
		lsys:    m.lsys,
		bslots:  m.bslots,
		fslots:  m.fslots,
	}
	supDim := m.supDim()
	for node := 0; node < m.N; node++ {
		off := node * supDim
		for _, e := range term.Data {
			t.Data.Append(off+e.Row, off+e.Col, e.V)
		}
	}
	t.Data.Compress()
	return t, nil
}

// spre returns the left multiplication superoperator A ⊗ I.
func spre(a *mat.COO) *mat.COO {
	s := a.Clone()
	s.Kron(mat.Identity(a.Rows()))
	return s
}

// spost returns the right multiplication superoperator I ⊗ Aᵀ.
func spost(a *mat.COO) *mat.COO {
	s := mat.Identity(a.Rows())
	s.Kron(a.T())
	return s
}

// liouvillian returns -i[H, ·] as a superoperator.
func liouvillian(h *mat.COO) *mat.COO {
	l := spre(h)
	l.Add(-1, spost(h))
	l.Scale(-1i)
	return l
}

// lindblad returns the vectorized dissipator superoperator
// D[J]ρ = JρJ† - (1/2){J†J, ρ}.
func lindblad(j *mat.COO) *mat.COO {
	d := j.Clone()
	d.Kron(j.Conj())

	jdj := mat.Mul(j.Dagger(), j)
	d.Add(-0.5, spre(jdj))
	d.Add(-0.5, spost(jdj))
	return d
}
