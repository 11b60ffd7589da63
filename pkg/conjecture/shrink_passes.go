package conjecture

import (
	"bytes"
	"sort"
)

// shrinkPass proposes candidates derived from the current best. It returns
// true as soon as one is accepted so the driver can restart it.
type shrinkPass struct {
	name string
	run  func(sh *shrinker) bool
}

func shrinkPasses() []shrinkPass {
	return []shrinkPass{
		{"delete_spans", deleteSpans},
		{"simplest_choice", simplestChoice},
		{"minimize_draws", minimizeDraws},
		{"delete_chunks", deleteChunks},
		{"zero_spans", zeroSpans},
		{"minimize_duplicates", minimizeDuplicates},
		{"sort_siblings", sortSiblings},
		{"redistribute", redistribute},
		{"zero_chunks", zeroChunks},
		{"minimize_bytes", minimizeBytes},
	}
}

// deleteSpans removes whole structural blocks, discarded and longer ones
// first.
func deleteSpans(sh *shrinker) bool {
	buf := sh.best.Buffer.data
	spans := closedSpans(sh.best.spans, len(buf))

	sort.SliceStable(spans, func(i, j int) bool {
		if spans[i].Discarded != spans[j].Discarded {
			return spans[i].Discarded
		}

		return spans[i].Len() > spans[j].Len()
	})

	for _, sp := range spans {
		if sh.consider(without(buf, sp.Start, sp.End)) {
			return true
		}

		if sh.done() {
			return false
		}
	}

	return false
}

// deleteChunks removes contiguous runs of bytes, back to front.
func deleteChunks(sh *shrinker) bool {
	buf := sh.best.Buffer.data

	for _, k := range []int{8, 4, 3, 2, 1} {
		for i := len(buf) - k; i >= 0; i-- {
			if sh.consider(without(buf, i, i+k)) {
				return true
			}

			if sh.done() {
				return false
			}
		}
	}

	return false
}

// zeroSpans replaces the bytes of a block with zeros.
func zeroSpans(sh *shrinker) bool {
	buf := sh.best.Buffer.data

	for _, sp := range closedSpans(sh.best.spans, len(buf)) {
		if isZero(buf[sp.Start:sp.End]) {
			continue
		}

		if sh.consider(zeroed(buf, sp.Start, sp.End)) {
			return true
		}

		if sh.done() {
			return false
		}
	}

	return false
}

// zeroChunks zeroes sliding windows of 8, 4 and 2 bytes.
func zeroChunks(sh *shrinker) bool {
	buf := sh.best.Buffer.data

	for _, k := range []int{8, 4, 2} {
		for i := 0; i+k <= len(buf); i++ {
			if isZero(buf[i : i+k]) {
				continue
			}

			if sh.consider(zeroed(buf, i, i+k)) {
				return true
			}

			if sh.done() {
				return false
			}
		}
	}

	return false
}

// simplestChoice moves discriminants towards the first alternative.
func simplestChoice(sh *shrinker) bool {
	buf := sh.best.Buffer.data

	for _, d := range sh.best.draws {
		if d.Kind != DrawChoice || d.Value == 0 || d.Offset+d.Width > len(buf) {
			continue
		}

		limit := min(d.Value, 8)
		for v := uint64(0); v < limit; v++ {
			if sh.consider(withValue(buf, []int{d.Offset}, d.Width, v)) {
				return true
			}

			if sh.done() {
				return false
			}
		}
	}

	return false
}

// minimizeDraws binary searches each integer draw towards zero.
func minimizeDraws(sh *shrinker) bool {
	for _, d := range sh.best.draws {
		if d.Kind == DrawRaw {
			continue
		}

		if minimizeRegions(sh, []int{d.Offset}, d.Width) {
			return true
		}

		if sh.done() {
			return false
		}
	}

	return false
}

// minimizeDuplicates lowers draws sharing identical bytes together, so
// properties relying on equal values still fail while both shrink.
func minimizeDuplicates(sh *shrinker) bool {
	buf := sh.best.Buffer.data

	type group struct {
		width   int
		offsets []int
	}

	groups := map[string]*group{}

	var order []string

	for _, d := range sh.best.draws {
		if d.Kind == DrawRaw || d.Offset+d.Width > len(buf) {
			continue
		}

		region := buf[d.Offset : d.Offset+d.Width]
		if isZero(region) {
			continue
		}

		k := string(rune('0'+d.Width)) + string(region)

		g, ok := groups[k]
		if !ok {
			g = &group{width: d.Width}
			groups[k] = g
			order = append(order, k)
		}

		if n := len(g.offsets); n == 0 || g.offsets[n-1]+d.Width <= d.Offset {
			g.offsets = append(g.offsets, d.Offset)
		}
	}

	for _, k := range order {
		g := groups[k]
		if len(g.offsets) < 2 {
			continue
		}

		if minimizeRegions(sh, g.offsets, g.width) {
			return true
		}

		if sh.done() {
			return false
		}
	}

	return false
}

// sortSiblings swaps adjacent sibling blocks with the same label when the
// later one is lexicographically smaller.
func sortSiblings(sh *shrinker) bool {
	buf := sh.best.Buffer.data
	spans := closedSpans(sh.best.spans, len(buf))

	type siblingKey struct {
		parent int
		label  string
	}

	last := map[siblingKey]Span{}

	for _, sp := range spans {
		k := siblingKey{parent: sp.Parent, label: sp.Label}

		prev, ok := last[k]
		last[k] = sp

		if !ok || prev.End > sp.Start {
			continue
		}

		a := buf[prev.Start:prev.End]
		b := buf[sp.Start:sp.End]

		if bytes.Compare(b, a) >= 0 {
			continue
		}

		cand := make([]byte, 0, len(buf))
		cand = append(cand, buf[:prev.Start]...)
		cand = append(cand, b...)
		cand = append(cand, buf[prev.End:sp.Start]...)
		cand = append(cand, a...)
		cand = append(cand, buf[sp.End:]...)

		if sh.consider(cand) {
			return true
		}

		if sh.done() {
			return false
		}
	}

	return false
}

// redistribute moves magnitude from an integer draw into the one after it,
// which keeps sums intact while making the buffer lexicographically smaller.
func redistribute(sh *shrinker) bool {
	buf := sh.best.Buffer.data
	draws := sh.best.draws

	for i := 0; i+1 < len(draws); i++ {
		a, b := draws[i], draws[i+1]
		if a.Kind != DrawInteger || b.Kind != DrawInteger || b.Offset+b.Width > len(buf) {
			continue
		}

		av := decodeBE(buf[a.Offset : a.Offset+a.Width])
		bv := decodeBE(buf[b.Offset : b.Offset+b.Width])

		if av == 0 {
			continue
		}

		for _, delta := range []uint64{av, av / 2, 1} {
			if delta == 0 || bv+delta < bv || bv+delta > maxForWidth(b.Width) {
				continue
			}

			cand := withValue(buf, []int{a.Offset}, a.Width, av-delta)
			putBE(cand[b.Offset:b.Offset+b.Width], bv+delta)

			if sh.consider(cand) {
				return true
			}

			if sh.done() {
				return false
			}
		}
	}

	return false
}

// minimizeBytes lowers individual bytes, covering raw draws.
func minimizeBytes(sh *shrinker) bool {
	for i := 0; i < sh.best.Buffer.Len(); i++ {
		if sh.best.Buffer.data[i] == 0 {
			continue
		}

		if minimizeRegions(sh, []int{i}, 1) {
			return true
		}

		if sh.done() {
			return false
		}
	}

	return false
}

// minimizeRegions lowers the big-endian value shared by all regions of width
// bytes at offsets: first straight to zero, then by binary search between
// zero and the current value.
func minimizeRegions(sh *shrinker, offsets []int, width int) bool {
	buf := sh.best.Buffer.data
	if !regionsInBounds(buf, offsets, width) {
		return false
	}

	hi := decodeBE(buf[offsets[0] : offsets[0]+width])
	if hi == 0 || !regionsHold(buf, offsets, width, hi) {
		return false
	}

	if sh.consider(withValue(buf, offsets, width, 0)) {
		return true
	}

	improved := false
	lo := uint64(0)

	for lo+1 < hi && !sh.done() {
		cur := sh.best.Buffer.data
		if !regionsHold(cur, offsets, width, hi) {
			break
		}

		mid := lo + (hi-lo)/2
		if sh.consider(withValue(cur, offsets, width, mid)) {
			hi = mid
			improved = true
		} else {
			lo = mid
		}
	}

	return improved
}

func closedSpans(spans []Span, size int) []Span {
	out := make([]Span, 0, len(spans))

	for _, sp := range spans {
		if sp.End > sp.Start && sp.End <= size {
			out = append(out, sp)
		}
	}

	return out
}

func regionsInBounds(buf []byte, offsets []int, width int) bool {
	for _, off := range offsets {
		if off < 0 || off+width > len(buf) {
			return false
		}
	}

	return true
}

func regionsHold(buf []byte, offsets []int, width int, v uint64) bool {
	if !regionsInBounds(buf, offsets, width) {
		return false
	}

	for _, off := range offsets {
		if decodeBE(buf[off:off+width]) != v {
			return false
		}
	}

	return true
}

func without(buf []byte, start, end int) []byte {
	out := make([]byte, 0, len(buf)-(end-start))
	out = append(out, buf[:start]...)

	return append(out, buf[end:]...)
}

func zeroed(buf []byte, start, end int) []byte {
	out := append([]byte(nil), buf...)
	clear(out[start:end])

	return out
}

func withValue(buf []byte, offsets []int, width int, v uint64) []byte {
	out := append([]byte(nil), buf...)
	for _, off := range offsets {
		putBE(out[off:off+width], v)
	}

	return out
}

func isZero(b []byte) bool {
	for _, c := range b {
		if c != 0 {
			return false
		}
	}

	return true
}

func decodeBE(b []byte) uint64 {
	var v uint64
	for _, c := range b {
		v = v<<8 | uint64(c)
	}

	return v
}

func putBE(b []byte, v uint64) {
	for i := len(b) - 1; i >= 0; i-- {
		b[i] = byte(v)
		v >>= 8
	}
}

func maxForWidth(width int) uint64 {
	if width >= 8 {
		return ^uint64(0)
	}

	return uint64(1)<<(8*width) - 1
}
