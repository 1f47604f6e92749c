// Package hierarchy enumerates and indexes the auxiliary density operators
// of the hierarchical equations of motion.
//
// Each auxiliary density operator is labelled by a tier vector holding one
// non-negative occupation number per bath exponent slot. The dictionary is a
// bijection between tier vectors and the dense indices [0, Len()), grouped
// level by level in order of increasing tier so that index 0 is always the
// physical reduced density operator.
package hierarchy

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Nvec is a tier vector: one occupation number per bath exponent slot.
type Nvec []int

// Level returns the tier level, the sum of all occupation numbers.
func (n Nvec) Level() int {
	sum := 0
	for _, v := range n {
		sum += v
	}
	return sum
}

func (n Nvec) String() string {
	ss := make([]string, 0, len(n))
	for _, v := range n {
		ss = append(ss, strconv.Itoa(v))
	}
	return "(" + strings.Join(ss, ",") + ")"
}

func key(n Nvec) string {
	var b strings.Builder
	b.Grow(2 * len(n))
	for _, v := range n {
		b.WriteString(strconv.Itoa(v))
		b.WriteByte(',')
	}
	return b.String()
}

// Slot points at the bath exponent term backing one tier-vector position.
type Slot struct {
	Bath int
	Term int
}

// Dict is the bidirectional tier-vector dictionary of one particle species.
type Dict struct {
	tier      int
	fermionic bool
	slots     []Slot
	nvecs     []Nvec
	index     map[string]int
	levels    [][]int
}

// NewBoson builds the bosonic dictionary: all tier vectors whose entries sum
// to at most tier. counts holds the number of exponent terms per bath; an
// empty counts list yields the trivial ground-level-only hierarchy.
func NewBoson(counts []int, tier int) (*Dict, error) {
	return newDict(counts, tier, false)
}

// NewFermion builds the fermionic dictionary. Occupations are restricted to
// {0, 1} since fermionic exponent operators anticommute and cannot repeat.
func NewFermion(counts []int, tier int) (*Dict, error) {
	return newDict(counts, tier, true)
}

func newDict(counts []int, tier int, fermionic bool) (*Dict, error) {
	if tier < 0 {
		return nil, errors.Errorf("negative tier %d", tier)
	}
	slots := make([]Slot, 0)
	for b, c := range counts {
		if c < 0 {
			return nil, errors.Errorf("bath %d: negative term count %d", b, c)
		}
		for t := 0; t < c; t++ {
			slots = append(slots, Slot{Bath: b, Term: t})
		}
	}

	d := &Dict{
		tier:      tier,
		fermionic: fermionic,
		slots:     slots,
		index:     make(map[string]int),
		levels:    make([][]int, tier+1),
	}
	maxOcc := tier
	if fermionic {
		maxOcc = 1
	}
	buf := make(Nvec, len(slots))
	for level := 0; level <= tier; level++ {
		d.compose(buf, 0, level, maxOcc, level)
	}
	return d, nil
}

// compose emits, in lexicographic order, every filling of buf[pos:] that
// sums to rem with each entry at most maxOcc.
func (d *Dict) compose(buf Nvec, pos, rem, maxOcc, level int) {
	if pos == len(buf) {
		if rem != 0 {
			return
		}
		n := make(Nvec, len(buf))
		copy(n, buf)
		idx := len(d.nvecs)
		d.nvecs = append(d.nvecs, n)
		d.index[key(n)] = idx
		d.levels[level] = append(d.levels[level], idx)
		return
	}
	// Not enough capacity left.
	if rem > maxOcc*(len(buf)-pos) {
		return
	}
	for v := 0; v <= min(rem, maxOcc); v++ {
		buf[pos] = v
		d.compose(buf, pos+1, rem-v, maxOcc, level)
	}
	buf[pos] = 0
}

// Len returns the number of tier vectors.
func (d *Dict) Len() int { return len(d.nvecs) }

// Tier returns the cutoff level.
func (d *Dict) Tier() int { return d.tier }

// Fermionic reports the particle species.
func (d *Dict) Fermionic() bool { return d.fermionic }

// NumSlots returns the number of exponent slots.
func (d *Dict) NumSlots() int { return len(d.slots) }

// Slots returns the slot → (bath, term) pointer list.
func (d *Dict) Slots() []Slot { return d.slots }

// Nvec returns the tier vector at index i.
func (d *Dict) Nvec(i int) Nvec {
	if i < 0 || i >= len(d.nvecs) {
		panic(fmt.Sprintf("index %d out of range [0, %d)", i, len(d.nvecs)))
	}
	return d.nvecs[i]
}

// Index returns the dense index of tier vector n.
func (d *Dict) Index(n Nvec) (int, bool) {
	i, ok := d.index[key(n)]
	return i, ok
}

// LevelIndices returns the indices of all tier vectors at the given level.
func (d *Dict) LevelIndices(level int) []int {
	if level < 0 || level >= len(d.levels) {
		panic(fmt.Sprintf("level %d out of range [0, %d)", level, len(d.levels)))
	}
	return d.levels[level]
}
