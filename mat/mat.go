// Package mat implements sparse complex matrices.
package mat

import (
	"cmp"
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// Entry is a nonzero value at a (row, col) position.
type Entry struct {
	V   complex128
	Row int
	Col int
}

// COO is a sparse matrix in coordinate format.
// Data is kept sorted in row-major order with duplicates merged and exact
// zeros dropped, except between Append calls and the following Compress.
type COO struct {
	rows int
	cols int
	Data []Entry

	m map[[2]int]complex128
}

// M creates a COO matrix from a dense representation.
func M(dense [][]complex128) *COO {
	m := &COO{rows: len(dense), cols: len(dense[0]), Data: make([]Entry, 0), m: make(map[[2]int]complex128)}
	for i, row := range dense {
		for j, v := range row {
			if v == 0 {
				continue
			}
			m.Data = append(m.Data, Entry{V: v, Row: i, Col: j})
		}
	}
	return m
}

// Zeros creates an empty matrix of the given shape.
func Zeros(rows, cols int) *COO {
	m := M([][]complex128{{0}})
	m.Zeros(rows, cols)
	return m
}

// Identity creates an identity matrix.
func Identity(rows int) *COO {
	m := Zeros(rows, rows)
	for i := 0; i < rows; i++ {
		m.Data = append(m.Data, Entry{V: 1, Row: i, Col: i})
	}
	return m
}

func (m *COO) Rows() int { return m.rows }
func (m *COO) Cols() int { return m.cols }

// NumNonZero returns the number of stored nonzeros.
func (m *COO) NumNonZero() int { return len(m.Data) }

// Zeros resets m to an empty matrix of the given shape.
func (m *COO) Zeros(rows, cols int) {
	m.rows, m.cols = rows, cols
	m.Data = m.Data[:0]
}

// Append adds v at (row, col) without maintaining order.
// Call Compress once after a batch of appends.
func (m *COO) Append(row, col int, v complex128) {
	if row < 0 || row >= m.rows || col < 0 || col >= m.cols {
		panic(fmt.Sprintf("(%d %d) out of (%d %d)", row, col, m.rows, m.cols))
	}
	m.Data = append(m.Data, Entry{V: v, Row: row, Col: col})
}

// Compress restores row-major order, merges duplicates and drops zeros.
func (m *COO) Compress() {
	slices.SortFunc(m.Data, rowMajor)
	merged := m.Data[:0]
	for _, e := range m.Data {
		if n := len(merged); n > 0 && merged[n-1].Row == e.Row && merged[n-1].Col == e.Col {
			merged[n-1].V += e.V
			continue
		}
		merged = append(merged, e)
	}
	m.Data = slices.DeleteFunc(merged, func(e Entry) bool {
		return e.V == 0
	})
}

// Clone returns a deep copy of m.
func (m *COO) Clone() *COO {
	c := &COO{rows: m.rows, cols: m.cols, Data: make([]Entry, len(m.Data)), m: make(map[[2]int]complex128)}
	copy(c.Data, m.Data)
	return c
}

func (a *COO) Equal(b *COO) bool {
	if a.rows != b.rows {
		return false
	}
	if a.cols != b.cols {
		return false
	}
	if len(a.Data) != len(b.Data) {
		return false
	}
	for i, av := range a.Data {
		bv := b.Data[i]
		if av != bv {
			return false
		}
	}
	return true
}

// Slice returns the submatrix within the given bounds.
// Negative bounds count from the end as in numpy.
func (m *COO) Slice(yBoundN, xBoundN [2]int) *COO {
	yBound, xBound := yBoundN, xBoundN
	for i := 0; i < 2; i++ {
		if yBound[i] < 0 {
			yBound[i] += m.rows
		}
		if xBound[i] < 0 {
			xBound[i] += m.cols
		}
	}

	s := &COO{rows: yBound[1] - yBound[0], cols: xBound[1] - xBound[0], Data: make([]Entry, 0)}
	for _, v := range m.Data {
		if v.Row < yBound[0] {
			continue
		}
		if v.Row >= yBound[1] {
			break
		}
		if v.Col < xBound[0] || v.Col >= xBound[1] {
			continue
		}
		s.Data = append(s.Data, Entry{V: v.V, Row: v.Row - yBound[0], Col: v.Col - xBound[0]})
	}
	return s
}

// Add computes a = a + c*b.
// b must match a's shape; entries not present in a are inserted.
func (a *COO) Add(c complex128, b *COO) {
	if !(b.rows == a.rows && b.cols == a.cols) {
		panic(fmt.Sprintf("wrong dimensions (%d %d) (%d %d)", a.rows, a.cols, b.rows, b.cols))
	}
	if a.m == nil {
		a.m = make(map[[2]int]complex128)
	}
	clear(a.m)
	for _, v := range b.Data {
		a.m[[2]int{v.Row, v.Col}] = v.V
	}

	for i, av := range a.Data {
		yx := [2]int{av.Row, av.Col}
		bv, ok := a.m[yx]
		if !ok {
			continue
		}
		delete(a.m, yx)
		a.Data[i].V = av.V + c*bv
	}

	for yx, bv := range a.m {
		a.Data = append(a.Data, Entry{V: c * bv, Row: yx[0], Col: yx[1]})
	}
	a.Data = slices.DeleteFunc(a.Data, func(v Entry) bool {
		return v.V == 0
	})
	slices.SortFunc(a.Data, rowMajor)
	clear(a.m)
}

// Scale multiplies every entry by c.
func (a *COO) Scale(c complex128) {
	if c == 0 {
		a.Data = a.Data[:0]
		return
	}
	for i := range a.Data {
		a.Data[i].V *= c
	}
}

// Kron computes the Kronecker product a = a ⊗ b in place.
func (a *COO) Kron(b *COO) {
	rows := a.rows * b.rows
	cols := a.cols * b.cols
	a.rows, a.cols = rows, cols

	prevElemNum := len(a.Data)
	for i := prevElemNum - 1; i >= 0; i-- {
		av := a.Data[i]
		a.Data[i].V = 0
		for _, bv := range b.Data {
			ky := av.Row*b.rows + bv.Row
			kx := av.Col*b.cols + bv.Col
			a.Data = append(a.Data, Entry{V: av.V * bv.V, Row: ky, Col: kx})
		}
	}

	a.Data = slices.DeleteFunc(a.Data, func(v Entry) bool {
		return v.V == 0
	})
	slices.SortFunc(a.Data, rowMajor)
}

// T returns the transpose as a new matrix.
func (m *COO) T() *COO {
	t := &COO{rows: m.cols, cols: m.rows, Data: make([]Entry, 0, len(m.Data))}
	for _, v := range m.Data {
		t.Data = append(t.Data, Entry{V: v.V, Row: v.Col, Col: v.Row})
	}
	slices.SortFunc(t.Data, rowMajor)
	return t
}

// Conj returns the elementwise complex conjugate as a new matrix.
func (m *COO) Conj() *COO {
	c := m.Clone()
	for i := range c.Data {
		v := c.Data[i].V
		c.Data[i].V = complex(real(v), -imag(v))
	}
	return c
}

// Dagger returns the conjugate transpose as a new matrix.
func (m *COO) Dagger() *COO {
	return m.T().Conj()
}

// Mul returns the matrix product a @ b.
func Mul(a, b *COO) *COO {
	if a.cols != b.rows {
		panic(fmt.Sprintf("wrong dimensions (%d %d) (%d %d)", a.rows, a.cols, b.rows, b.cols))
	}
	return NewCSR(a).Mul(NewCSR(b)).COO()
}

// Trace returns the sum of diagonal entries.
func (m *COO) Trace() complex128 {
	var tr complex128
	for _, v := range m.Data {
		if v.Row == v.Col {
			tr += v.V
		}
	}
	return tr
}

// Dense returns the dense representation of m.
func (m *COO) Dense() [][]complex128 {
	dense := make([][]complex128, m.rows)
	for i := range dense {
		dense[i] = make([]complex128, m.cols)
	}

	for _, v := range m.Data {
		dense[v.Row][v.Col] = v.V
	}

	return dense
}

func (m *COO) String() string {
	if m.m == nil {
		m.m = make(map[[2]int]complex128)
	}
	clear(m.m)
	for _, v := range m.Data {
		m.m[[2]int{v.Row, v.Col}] = v.V
	}

	lines := []string{}
	for i := 0; i < m.rows; i++ {
		cs := []string{}
		for j := 0; j < m.cols; j++ {
			v := m.m[[2]int{i, j}]
			switch {
			case imag(v) == 0:
				cs = append(cs, format(real(v)))
			case real(v) == 0:
				cs = append(cs, format(imag(v))+"i")
			default:
				cs = append(cs, format(real(v))+"+"+format(imag(v))+"i")
			}
		}
		l := strings.Join(cs, "\t")
		lines = append(lines, l)
	}

	clear(m.m)
	return strings.Join(lines, "\n")
}

// CSR is a sparse matrix in compressed sparse row format, used for products.
type CSR struct {
	rows   int
	cols   int
	rowPtr []int
	colIdx []int
	vals   []complex128
}

// NewCSR converts a compressed COO matrix to CSR.
func NewCSR(a *COO) *CSR {
	m := &CSR{
		rows:   a.rows,
		cols:   a.cols,
		rowPtr: make([]int, a.rows+1),
		colIdx: make([]int, 0, len(a.Data)),
		vals:   make([]complex128, 0, len(a.Data)),
	}
	row := 0
	for _, e := range a.Data {
		for row < e.Row {
			row++
			m.rowPtr[row] = len(m.vals)
		}
		m.colIdx = append(m.colIdx, e.Col)
		m.vals = append(m.vals, e.V)
	}
	for row < a.rows {
		row++
		m.rowPtr[row] = len(m.vals)
	}
	return m
}

func (m *CSR) Rows() int { return m.rows }
func (m *CSR) Cols() int { return m.cols }

// NumNonZero returns the number of stored nonzeros.
func (m *CSR) NumNonZero() int { return len(m.vals) }

// COO converts back to coordinate format.
func (m *CSR) COO() *COO {
	a := Zeros(m.rows, m.cols)
	for i := 0; i < m.rows; i++ {
		for p := m.rowPtr[i]; p < m.rowPtr[i+1]; p++ {
			if m.vals[p] == 0 {
				continue
			}
			a.Data = append(a.Data, Entry{V: m.vals[p], Row: i, Col: m.colIdx[p]})
		}
	}
	return a
}

// MatVec computes dst = m @ x.
func (m *CSR) MatVec(dst, x []complex128) {
	if len(x) != m.cols || len(dst) != m.rows {
		panic(fmt.Sprintf("%d %d (%d %d)", len(dst), len(x), m.rows, m.cols))
	}
	for i := 0; i < m.rows; i++ {
		var s complex128
		for p := m.rowPtr[i]; p < m.rowPtr[i+1]; p++ {
			s += m.vals[p] * x[m.colIdx[p]]
		}
		dst[i] = s
	}
}

// Mul returns the matrix product m @ b.
func (m *CSR) Mul(b *CSR) *CSR {
	return m.mulDrop(b, 0)
}

// mulDrop multiplies, dropping result entries with magnitude below tol.
// Gustavson's algorithm with a dense workspace row.
func (m *CSR) mulDrop(b *CSR, tol float64) *CSR {
	if m.cols != b.rows {
		panic(fmt.Sprintf("wrong dimensions (%d %d) (%d %d)", m.rows, m.cols, b.rows, b.cols))
	}
	c := &CSR{rows: m.rows, cols: b.cols, rowPtr: make([]int, m.rows+1)}
	work := make([]complex128, b.cols)
	marked := make([]int, 0, b.cols)
	for i := 0; i < m.rows; i++ {
		marked = marked[:0]
		for p := m.rowPtr[i]; p < m.rowPtr[i+1]; p++ {
			k, av := m.colIdx[p], m.vals[p]
			for q := b.rowPtr[k]; q < b.rowPtr[k+1]; q++ {
				j := b.colIdx[q]
				if work[j] == 0 {
					marked = append(marked, j)
				}
				work[j] += av * b.vals[q]
			}
		}
		slices.Sort(marked)
		for _, j := range marked {
			v := work[j]
			work[j] = 0
			if v == 0 || absSquared(v) <= tol*tol {
				continue
			}
			c.colIdx = append(c.colIdx, j)
			c.vals = append(c.vals, v)
		}
		c.rowPtr[i+1] = len(c.vals)
	}
	return c
}

// add computes m + b entrywise, dropping magnitudes below tol.
func (m *CSR) add(b *CSR, tol float64) *CSR {
	if m.rows != b.rows || m.cols != b.cols {
		panic(fmt.Sprintf("wrong dimensions (%d %d) (%d %d)", m.rows, m.cols, b.rows, b.cols))
	}
	c := &CSR{rows: m.rows, cols: m.cols, rowPtr: make([]int, m.rows+1)}
	for i := 0; i < m.rows; i++ {
		p, q := m.rowPtr[i], b.rowPtr[i]
		for p < m.rowPtr[i+1] || q < b.rowPtr[i+1] {
			var j int
			var v complex128
			switch {
			case q >= b.rowPtr[i+1] || (p < m.rowPtr[i+1] && m.colIdx[p] < b.colIdx[q]):
				j, v = m.colIdx[p], m.vals[p]
				p++
			case p >= m.rowPtr[i+1] || b.colIdx[q] < m.colIdx[p]:
				j, v = b.colIdx[q], b.vals[q]
				q++
			default:
				j, v = m.colIdx[p], m.vals[p]+b.vals[q]
				p++
				q++
			}
			if v == 0 || absSquared(v) <= tol*tol {
				continue
			}
			c.colIdx = append(c.colIdx, j)
			c.vals = append(c.vals, v)
		}
		c.rowPtr[i+1] = len(c.vals)
	}
	return c
}

// scale multiplies every entry by v in place.
func (m *CSR) scale(v complex128) {
	for i := range m.vals {
		m.vals[i] *= v
	}
}

// normInf returns the maximum absolute row sum.
func (m *CSR) normInf() float64 {
	var max float64
	for i := 0; i < m.rows; i++ {
		var s float64
		for p := m.rowPtr[i]; p < m.rowPtr[i+1]; p++ {
			s += abs(m.vals[p])
		}
		if s > max {
			max = s
		}
	}
	return max
}

func csrIdentity(n int) *CSR {
	m := &CSR{rows: n, cols: n, rowPtr: make([]int, n+1), colIdx: make([]int, n), vals: make([]complex128, n)}
	for i := 0; i < n; i++ {
		m.rowPtr[i+1] = i + 1
		m.colIdx[i] = i
		m.vals[i] = 1
	}
	return m
}

func rowMajor(a, b Entry) int {
	if c := cmp.Compare(a.Row, b.Row); c != 0 {
		return c
	}
	return cmp.Compare(a.Col, b.Col)
}

func format(v float64) string {
	// If v is 0 or -0, return "0" immediately to avoid returning "-0".
	if v == 0 {
		return " 0"
	}

	s := strconv.FormatFloat(v, 'g', -1, 64)

	// Add a space before non-negative numbers to align with other negative numbers in the same column.
	if v >= 0 {
		s = " " + s
	}

	return s
}
