package heom

import (
	"log"
	"runtime"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"heom/bath"
	"heom/hierarchy"
	"heom/mat"
	"heom/util"
)

// bosonSlot holds the precomputed superoperators of one bosonic exponent.
type bosonSlot struct {
	rate complex128
	// lower is -i*(η*spre(Q) - conj(η)*spost(Q)); the coupling into the
	// decremented tier is n_k times this.
	lower *mat.COO
	// raise is -i*(spre(Q) - spost(Q)), independent of the coefficient.
	raise *mat.COO
}

func bosonSlots(d *hierarchy.Dict, baths []*bath.Boson) []bosonSlot {
	slots := make([]bosonSlot, 0, d.NumSlots())
	for _, s := range d.Slots() {
		b := baths[s.Bath]
		e := b.Exponents[s.Term]

		lowPre := spre(b.Op)
		lowPre.Scale(e.Coeff)
		lowPost := spost(b.Op)
		lowPost.Scale(complex(real(e.Coeff), -imag(e.Coeff)))
		lowPre.Add(-1, lowPost)
		lowPre.Scale(-1i)

		raise := spre(b.Op)
		raise.Add(-1, spost(b.Op))
		raise.Scale(-1i)

		slots = append(slots, bosonSlot{rate: e.Rate, lower: lowPre, raise: raise})
	}
	return slots
}

// fermionSlot holds the precomputed superoperators of one fermionic
// exponent. The node-dependent signs s1 = ±1 (tier parity) and s2 = ±1
// (occupied slots before the changed position) select among the variants:
// lower couplings use s2*(η*spre(Qσ) - s1*conj(η_pair)*spost(Qσ)) and raise
// couplings s2*(spre(Qσ') + s1*spost(Qσ')), both times -i. Absorption
// exponents lower with Q† and raise with Q; emission the other way around.
type fermionSlot struct {
	rate complex128
	// lowerPlus is the s1 = -1 lower variant, lowerMinus the s1 = +1 one.
	lowerPlus  *mat.COO
	lowerMinus *mat.COO
	raisePlus  *mat.COO
	raiseMinus *mat.COO
}

func fermionSlots(d *hierarchy.Dict, baths []*bath.Fermion) []fermionSlot {
	slots := make([]fermionSlot, 0, d.NumSlots())
	for _, s := range d.Slots() {
		b := baths[s.Bath]
		e := b.Exponents[s.Term]

		qLow, qRaise := b.Op, b.Op.Dagger()
		if e.Kind == bath.FermionAbsorb {
			qLow, qRaise = qRaise, qLow
		}

		pre := spre(qLow)
		pre.Scale(e.Coeff)
		post := spost(qLow)
		post.Scale(complex(real(e.CoeffConj), -imag(e.CoeffConj)))

		lowerMinus := pre.Clone()
		lowerMinus.Add(-1, post)
		lowerMinus.Scale(-1i)
		lowerPlus := pre.Clone()
		lowerPlus.Add(1, post)
		lowerPlus.Scale(-1i)

		rsPre, rsPost := spre(qRaise), spost(qRaise)
		raisePlus := rsPre.Clone()
		raisePlus.Add(1, rsPost)
		raisePlus.Scale(-1i)
		raiseMinus := rsPre.Clone()
		raiseMinus.Add(-1, rsPost)
		raiseMinus.Scale(-1i)

		slots = append(slots, fermionSlot{
			rate:       e.Rate,
			lowerPlus:  lowerPlus,
			lowerMinus: lowerMinus,
			raisePlus:  raisePlus,
			raiseMinus: raiseMinus,
		})
	}
	return slots
}

// build assembles the full hierarchy generator. Each node's blocks are
// independent, so nodes are partitioned across workers that fill
// pre-partitioned entry buffers merged once at the end.
func (m *Liouvillian) build(opt Options) error {
	supDim := m.supDim()
	size := m.N * supDim

	workers := runtime.GOMAXPROCS(0)
	if workers > m.N {
		workers = m.N
	}
	bufs := make([][]mat.Entry, workers)

	var done atomic.Int64
	throttler := util.NewSkipThrottler(10 * time.Second)

	g := errgroup.Group{}
	for w := 0; w < workers; w++ {
		w := w
		g.Go(func() error {
			buf := make([]mat.Entry, 0)
			bscratch := make(hierarchy.Nvec, m.Boson.NumSlots())
			fscratch := make(hierarchy.Nvec, m.Fermion.NumSlots())
			for node := w; node < m.N; node += workers {
				buf = m.nodeEntries(buf, node, bscratch, fscratch)

				n := done.Add(1)
				if opt.verbose && throttler.Ok() {
					log.Printf("assembled %d/%d hierarchy nodes", n, m.N)
				}
			}
			bufs[w] = buf
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	data := mat.Zeros(size, size)
	total := 0
	for _, buf := range bufs {
		total += len(buf)
	}
	data.Data = make([]mat.Entry, 0, total)
	for _, buf := range bufs {
		data.Data = append(data.Data, buf...)
	}
	data.Compress()
	m.Data = data
	return nil
}

// nodeEntries appends the entries of one node's row of blocks to buf.
func (m *Liouvillian) nodeEntries(buf []mat.Entry, node int, bscratch, fscratch hierarchy.Nvec) []mat.Entry {
	supDim := m.supDim()
	nf := m.Fermion.Len()
	bi, fi := node/nf, node%nf
	bn, fn := m.Boson.Nvec(bi), m.Fermion.Nvec(fi)
	off := node * supDim

	// Diagonal block: system Liouvillian minus the damping rate.
	for _, e := range m.lsys.Data {
		buf = append(buf, mat.Entry{V: e.V, Row: off + e.Row, Col: off + e.Col})
	}
	var damping complex128
	for k, s := range m.bslots {
		damping += complex(float64(bn[k]), 0) * s.rate
	}
	for k, s := range m.fslots {
		damping += complex(float64(fn[k]), 0) * s.rate
	}
	if damping != 0 {
		for d := 0; d < supDim; d++ {
			buf = append(buf, mat.Entry{V: -damping, Row: off + d, Col: off + d})
		}
	}

	// Bosonic couplings, fermionic index held fixed.
	copy(bscratch, bn)
	for k, s := range m.bslots {
		if bn[k] > 0 {
			bscratch[k] = bn[k] - 1
			if j, ok := m.Boson.Index(bscratch); ok {
				colOff := (j*nf + fi) * supDim
				nk := complex(float64(bn[k]), 0)
				for _, e := range s.lower.Data {
					buf = append(buf, mat.Entry{V: nk * e.V, Row: off + e.Row, Col: colOff + e.Col})
				}
			}
			bscratch[k] = bn[k]
		}
		if bn.Level() < m.Boson.Tier() {
			bscratch[k] = bn[k] + 1
			if j, ok := m.Boson.Index(bscratch); ok {
				colOff := (j*nf + fi) * supDim
				for _, e := range s.raise.Data {
					buf = append(buf, mat.Entry{V: e.V, Row: off + e.Row, Col: colOff + e.Col})
				}
			}
			bscratch[k] = bn[k]
		}
	}

	// Fermionic couplings, bosonic index held fixed. s1 flips with the
	// superoperator parity; s2 tracks the occupied slots before position k.
	level := fn.Level()
	s1 := 1
	if (level+1)%2 == 1 {
		s1 = -1
	}
	if m.Parity == Odd {
		s1 = -s1
	}
	occBefore := 0
	copy(fscratch, fn)
	for k, s := range m.fslots {
		s2 := complex128(1)
		if occBefore%2 == 1 {
			s2 = -1
		}
		if fn[k] == 1 {
			fscratch[k] = 0
			if j, ok := m.Fermion.Index(fscratch); ok {
				colOff := (bi*nf + j) * supDim
				lower := s.lowerMinus
				if s1 == -1 {
					lower = s.lowerPlus
				}
				for _, e := range lower.Data {
					buf = append(buf, mat.Entry{V: s2 * e.V, Row: off + e.Row, Col: colOff + e.Col})
				}
			}
			fscratch[k] = 1
		} else if level < m.Fermion.Tier() {
			fscratch[k] = 1
			if j, ok := m.Fermion.Index(fscratch); ok {
				colOff := (bi*nf + j) * supDim
				raise := s.raisePlus
				if s1 == -1 {
					raise = s.raiseMinus
				}
				for _, e := range raise.Data {
					buf = append(buf, mat.Entry{V: s2 * e.V, Row: off + e.Row, Col: colOff + e.Col})
				}
			}
			fscratch[k] = 0
		}
		occBefore += fn[k]
	}

	return buf
}
