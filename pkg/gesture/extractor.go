package gesture

import (
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/teslashibe/go-ringwave/pkg/protocol"
)

// Classification bands on net g-force and the scroll detection thresholds.
// These were tuned against the STK8321 at its ±4 g range and are deliberately
// compile-time constants.
const (
	// RestBandG is the upper edge of the rest band: below it a sample is
	// treated as gentle rotation.
	RestBandG = 0.50
	// ImpactBandG is the lower edge of the impact band: above it a sample is
	// treated as a knock against the ring.
	ImpactBandG = 1.25
	// ExtremeG is the single-sample force that counts as a tap on its own.
	ExtremeG = 3.0

	// ScrollRateRadPerS is the angular rate a rotation must exceed to emit a
	// scroll event.
	ScrollRateRadPerS = 5.0
	// ScrollFloorRad is the absolute floor on the per-sample scroll
	// threshold, so slow polling cannot make tiny wobbles scroll.
	ScrollFloorRad = 0.4

	// SessionGap is the inter-sample gap after which the stream is treated
	// as a new interaction and the history is reinitialised.
	SessionGap = 2000 * time.Millisecond
)

// Mode selects the classification rules for a sample. The controller state
// decides the mode: free scrolling uses the three-band discriminator,
// verification treats every sample as rest and accumulates absolute position.
type Mode int

const (
	// ModeUserInput applies the rest/ambiguous/impact bands and the
	// tap/scroll predicates.
	ModeUserInput Mode = iota
	// ModeVerify treats every sample as rest and accumulates the wrap-aware
	// delta into the absolute position.
	ModeVerify
)

// Window holds everything derived from one sample: the raw reading, the
// filtered features, and the gesture predicates. It is rebuilt per sample.
type Window struct {
	Sample     protocol.Sample
	ReceivedAt time.Time
	DeltaMs    float64
	Session    uuid.UUID
	SampleNum  int

	RawNetG      float64
	RawScrollPos float64

	FilteredScrollPos  float64
	FilteredScrollDiff float64
	FilteredNetG       float64

	// AbsPos is the unwrapped absolute position after this sample.
	AbsPos float64

	IsTap        bool
	IsScrollUp   bool
	IsScrollDown bool
}

// Extractor computes per-sample features over a serial stream of readings.
// It owns the two-slot history, the session identity, and the unwrapped
// absolute position. Not safe for concurrent use; the controller drives it
// from a single goroutine.
type Extractor struct {
	hist      History
	session   uuid.UUID
	sampleNum int
	absPos    float64
	lastAt    time.Time
	haveLast  bool
}

// NewExtractor returns an extractor with a fresh session identity.
func NewExtractor() *Extractor {
	return &Extractor{session: uuid.New()}
}

// Session returns the identity of the current interaction window.
func (e *Extractor) Session() uuid.UUID { return e.session }

// AbsPos returns the current unwrapped absolute position.
func (e *Extractor) AbsPos() float64 { return e.absPos }

// Reset starts a new interaction window: fresh session identity, empty
// history, sample numbering from zero. The absolute position is kept; it is
// only meaningful relative to a verification start anyway.
func (e *Extractor) Reset() {
	e.session = uuid.New()
	e.sampleNum = 0
	e.haveLast = false
	e.hist.Reset()
}

// Process ingests one sample and returns the derived window.
func (e *Extractor) Process(s protocol.Sample, now time.Time, mode Mode) Window {
	if e.haveLast && now.Sub(e.lastAt) > SessionGap {
		e.Reset()
	}

	w := Window{
		Sample:     s,
		ReceivedAt: now,
		Session:    e.session,
		SampleNum:  e.sampleNum,
	}
	if e.haveLast {
		w.DeltaMs = float64(now.Sub(e.lastAt)) / float64(time.Millisecond)
	}

	x, y, z := float64(s.X), float64(s.Y), float64(s.Z)
	mag := math.Sqrt(x*x+y*y+z*z) / protocol.CountsPerG
	w.RawNetG = math.Abs(mag - 1)
	w.RawScrollPos = math.Atan2(y, x)

	prevPos := e.hist.Pos(1)

	switch {
	case mode == ModeVerify:
		w.FilteredScrollPos = w.RawScrollPos
		if e.sampleNum > 0 {
			w.FilteredScrollDiff = WrapDelta(w.RawScrollPos, prevPos)
		}
		w.FilteredNetG = 0
		e.absPos += w.FilteredScrollDiff

	case e.sampleNum < 2:
		// Too little history for the band rules: track position, but clip
		// forces below the rest band so a settling-in wobble cannot read as
		// an impact later.
		w.FilteredScrollPos = w.RawScrollPos
		if e.sampleNum > 0 {
			w.FilteredScrollDiff = WrapDelta(w.RawScrollPos, prevPos)
		}
		if w.RawNetG >= RestBandG {
			w.FilteredNetG = w.RawNetG
		}
		e.absPos = w.RawScrollPos

	case w.RawNetG < RestBandG:
		w.FilteredScrollPos = w.RawScrollPos
		w.FilteredScrollDiff = WrapDelta(w.RawScrollPos, prevPos)
		w.FilteredNetG = 0
		e.absPos = w.RawScrollPos

	case w.RawNetG > ImpactBandG:
		w.FilteredScrollPos = prevPos
		w.FilteredScrollDiff = 0
		w.FilteredNetG = w.RawNetG

	default:
		// Ambiguous band: hold position, emit nothing.
		w.FilteredScrollPos = prevPos
		w.FilteredScrollDiff = 0
		w.FilteredNetG = 0
	}

	w.AbsPos = e.absPos

	switch {
	case mode == ModeUserInput && e.sampleNum >= 2:
		w.IsTap = e.hist.NetG(1) > ExtremeG ||
			(e.hist.NetG(0) == 0 && e.hist.NetG(1) > ImpactBandG && w.FilteredNetG == 0)
		if !w.IsTap {
			thr := scrollThreshold(w.DeltaMs)
			w.IsScrollUp = w.FilteredScrollDiff > thr
			w.IsScrollDown = w.FilteredScrollDiff < -thr
		}
	case mode == ModeVerify && e.sampleNum >= 1:
		thr := scrollThreshold(w.DeltaMs)
		w.IsScrollUp = w.FilteredScrollDiff > thr && w.FilteredNetG == 0
	}

	e.hist.Push(w.FilteredNetG, w.FilteredScrollPos, w.FilteredScrollDiff)
	e.sampleNum++
	e.lastAt = now
	e.haveLast = true
	return w
}

// scrollThreshold is the per-sample angular threshold: the rate threshold
// scaled by the sample interval, floored at ScrollFloorRad.
func scrollThreshold(deltaMs float64) float64 {
	return math.Max(ScrollRateRadPerS*deltaMs/1000, ScrollFloorRad)
}
