package gesture

// History holds the two most recent filtered values of net g, scroll position
// and scroll delta. Nothing older is retained.
//
// Push coalesces: when the incoming net g equals the stored newest value
// exactly, the slots are overwritten in place instead of shifted. A fast
// polling loop can sample the same force twice; without coalescing the
// duplicate would push the pre-impact rest value out of the window and the
// isolated-spike tap pattern could never match.
type History struct {
	netG [2]float64
	pos  [2]float64
	diff [2]float64
}

// Push records one sample's filtered values. Index 0 is the older slot,
// index 1 the newer.
func (h *History) Push(netG, pos, diff float64) {
	if netG == h.netG[1] {
		h.pos[1] = pos
		h.diff[1] = diff
		return
	}
	h.netG[0], h.netG[1] = h.netG[1], netG
	h.pos[0], h.pos[1] = h.pos[1], pos
	h.diff[0], h.diff[1] = h.diff[1], diff
}

// NetG returns the filtered net g at slot i (0 = older, 1 = newer).
func (h *History) NetG(i int) float64 { return h.netG[i] }

// Pos returns the filtered scroll position at slot i.
func (h *History) Pos(i int) float64 { return h.pos[i] }

// Diff returns the filtered scroll delta at slot i.
func (h *History) Diff(i int) float64 { return h.diff[i] }

// Reset clears both slots.
func (h *History) Reset() {
	*h = History{}
}
