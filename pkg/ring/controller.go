package ring

import (
	"math"
	"sync"
	"time"

	"github.com/teslashibe/go-ringwave/internal/log"
	"github.com/teslashibe/go-ringwave/pkg/gesture"
	"github.com/teslashibe/go-ringwave/pkg/protocol"
)

// Verification timing. The window starts at IntentInitial and stretches by
// IntentExtra for every quarter-revolution milestone reached.
const (
	IntentInitial = 2000 * time.Millisecond
	IntentExtra   = 500 * time.Millisecond

	// CancelThresholdRad is how far below the verification start position
	// the absolute position must drop to cancel the episode.
	CancelThresholdRad = math.Pi / 4

	quarterRad = math.Pi / 2
	fullTurn   = 2 * math.Pi
)

// Stats is a snapshot of the controller's diagnostic counters.
type Stats struct {
	State          string  `json:"state"`
	Session        string  `json:"session"`
	AbsPos         float64 `json:"abs_pos"`
	FramesRouted   uint64  `json:"frames_routed"`
	FramesDropped  uint64  `json:"frames_dropped"`
	SamplesDecoded uint64  `json:"samples_decoded"`
	EventsEmitted  uint64  `json:"events_emitted"`
	WavesIgnored   uint64  `json:"waves_ignored"`
	WriteErrors    uint64  `json:"write_errors"`
}

// Controller is the gesture state machine. One instance owns all gesture
// state; frames flow through it serially. The transport delivers inbound
// frames via OnFrame and lifecycle changes via OnScanning/OnConnecting/
// OnConnected/OnDisconnected. A mutex serialises those entry points, but no
// blocking work happens under it: classification, transition and event
// dispatch are one synchronous step per frame, and command writes are
// fire-and-forget through the Link.
type Controller struct {
	mu sync.Mutex

	link        Link
	now         func() time.Time
	stateSink   StateSink
	controlSink ControlSink
	rawSink     RawSink

	// selectToUserInput switches the post-confirm state of a selection
	// episode from Idle (default) to UserInput, for hosts that chain
	// selections without re-waking.
	selectToUserInput bool

	state State
	ext   *gesture.Extractor

	verifyStartPos  float64
	verifyStartTime time.Time
	verifyQuarters  int

	polling bool

	framesRouted   uint64
	framesDropped  uint64
	samplesDecoded uint64
	eventsEmitted  uint64
	wavesIgnored   uint64
	writeErrors    uint64
}

// Option configures a Controller.
type Option func(*Controller)

// WithClock replaces the time source. Tests drive verification timeouts with
// a fake clock.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

// WithStateSink registers the state-change callback.
func WithStateSink(s StateSink) Option {
	return func(c *Controller) { c.stateSink = s }
}

// WithControlSink registers the control-event callback.
func WithControlSink(s ControlSink) Option {
	return func(c *Controller) { c.controlSink = s }
}

// WithRawSink registers the optional raw-sample diagnostics callback.
func WithRawSink(s RawSink) Option {
	return func(c *Controller) { c.rawSink = s }
}

// WithSelectConfirmToUserInput makes a confirmed selection return to
// UserInput instead of Idle.
func WithSelectConfirmToUserInput() Option {
	return func(c *Controller) { c.selectToUserInput = true }
}

// New creates a controller in the Disconnected state. Attach a transport
// with AttachLink before connecting.
func New(opts ...Option) *Controller {
	c := &Controller{
		now:   time.Now,
		state: Disconnected,
		ext:   gesture.NewExtractor(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// AttachLink sets the transport commands are written to.
func (c *Controller) AttachLink(l Link) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.link = l
}

// SetStateSink replaces the state-change callback. Useful when the sink
// needs the controller to exist first (the dashboard does).
func (c *Controller) SetStateSink(s StateSink) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stateSink = s
}

// SetControlSink replaces the control-event callback.
func (c *Controller) SetControlSink(s ControlSink) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.controlSink = s
}

// SetRawSink replaces the raw-sample diagnostics callback.
func (c *Controller) SetRawSink(s RawSink) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rawSink = s
}

// State returns the current controller state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Stats returns a snapshot of the diagnostic counters.
func (c *Controller) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		State:          c.state.String(),
		Session:        c.ext.Session().String(),
		AbsPos:         c.ext.AbsPos(),
		FramesRouted:   c.framesRouted,
		FramesDropped:  c.framesDropped,
		SamplesDecoded: c.samplesDecoded,
		EventsEmitted:  c.eventsEmitted,
		WavesIgnored:   c.wavesIgnored,
		WriteErrors:    c.writeErrors,
	}
}

// OnScanning marks the start of device discovery.
func (c *Controller) OnScanning() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.setState(Scanning)
}

// OnConnecting marks the start of a connection attempt.
func (c *Controller) OnConnecting() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.setState(Connecting)
}

// OnConnected marks a fully established link: services discovered and
// notifications subscribed. The controller arms wave detection and settles
// in Idle.
func (c *Controller) OnConnected() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.setState(Connected)
	c.enterIdle()
}

// OnDisconnected drops the controller back to Disconnected. Raw polling
// stops; no sample can produce an event until the next OnConnected.
func (c *Controller) OnDisconnected() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.polling = false
	c.setState(Disconnected)
}

// OnFrame routes one inbound notification. Malformed frames and unknown
// opcodes are logged and dropped without touching gesture state.
func (c *Controller) OnFrame(data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	kind, err := protocol.Classify(data)
	if err != nil {
		c.framesDropped++
		log.Debug("ring: dropping frame", "len", len(data), "err", err)
		return
	}
	c.framesRouted++

	switch kind {
	case protocol.KindSample:
		sample, err := protocol.DecodeSample(data)
		if err != nil {
			c.framesDropped++
			return
		}
		c.handleSample(sample)
	case protocol.KindWaveDetected:
		c.handleWave()
	case protocol.KindWaveAck:
		log.Debug("ring: wave command acknowledged")
	default:
		c.framesDropped++
		log.Debug("ring: unknown opcode", "op0", data[0], "op1", data[1])
	}
}

// handleWave starts a wakeup verification episode. A wave outside Idle is a
// protocol-state error: logged, counted, ignored.
func (c *Controller) handleWave() {
	if c.state != Idle {
		c.wavesIgnored++
		log.Warn("ring: wave detected outside idle", "state", c.state.String())
		return
	}
	c.beginVerification()
	c.emit(ProvisionalWakeupIntent)
	c.issue(protocol.CmdDisableWave)
	c.startPolling()
	c.setState(VerifyWakeup)
}

// handleSample runs one sample through the extractor and the state machine.
// Delivery order per sample: raw diagnostics, then control events, then the
// state-change callback.
func (c *Controller) handleSample(s protocol.Sample) {
	switch c.state {
	case UserInput, VerifyWakeup, VerifySelect:
	default:
		// A straggling poll response after leaving the polling states.
		log.Debug("ring: sample outside polling state", "state", c.state.String())
		return
	}
	c.samplesDecoded++

	mode := gesture.ModeVerify
	if c.state == UserInput {
		mode = gesture.ModeUserInput
	}
	w := c.ext.Process(s, c.now(), mode)

	if c.rawSink != nil {
		c.rawSink.OnRawSample(RawSample{
			Session:            w.Session,
			RawX:               s.X,
			RawY:               s.Y,
			RawZ:               s.Z,
			RawScrollPos:       w.RawScrollPos,
			FilteredScrollPos:  w.FilteredScrollPos,
			FilteredScrollDiff: w.FilteredScrollDiff,
			RawNetG:            w.RawNetG,
			FilteredNetG:       w.FilteredNetG,
			IsTap:              w.IsTap,
			DeltaMs:            w.DeltaMs,
		})
	}

	switch c.state {
	case UserInput:
		c.stepUserInput(w)
	case VerifyWakeup, VerifySelect:
		c.stepVerification(w)
	}

	// One outstanding request: the next poll is only enqueued once the
	// previous response has been consumed.
	if c.polling {
		c.issue(protocol.CmdGetRawData)
	}
}

func (c *Controller) stepUserInput(w gesture.Window) {
	switch {
	case w.IsTap:
		c.beginVerification()
		c.emit(ProvisionalSelectionIntent)
		c.setState(VerifySelect)
	case w.IsScrollUp:
		c.emit(ScrollUp)
	case w.IsScrollDown:
		c.emit(ScrollDown)
	}
}

// stepVerification advances a verification episode by one sample. Exactly
// one of confirm, cancel or timeout terminates the episode.
func (c *Controller) stepVerification(w gesture.Window) {
	progress := c.ext.AbsPos() - c.verifyStartPos

	if w.IsScrollUp && progress >= fullTurn {
		if c.state == VerifyWakeup {
			c.emit(ConfirmWakeupIntent)
			c.setState(UserInput)
		} else {
			c.emit(ConfirmSelectionIntent)
			c.confirmSelectTarget()
		}
		return
	}

	if w.IsScrollUp {
		for c.verifyQuarters < 3 && progress >= float64(c.verifyQuarters+1)*quarterRad {
			c.verifyQuarters++
			c.emit(quarterEvent(c.verifyQuarters))
			c.verifyStartTime = c.verifyStartTime.Add(IntentExtra)
		}
	}

	if progress < -CancelThresholdRad {
		c.emit(CancelIntent)
		c.abortVerification()
		return
	}

	if c.now().Sub(c.verifyStartTime) > IntentInitial {
		c.emit(Timeout)
		c.abortVerification()
	}
}

func quarterEvent(q int) ControlEvent {
	switch q {
	case 1:
		return VerifyIntent25
	case 2:
		return VerifyIntent50
	default:
		return VerifyIntent75
	}
}

// beginVerification latches the episode's start position and deadline.
func (c *Controller) beginVerification() {
	c.verifyStartPos = c.ext.AbsPos()
	c.verifyStartTime = c.now()
	c.verifyQuarters = 0
}

// abortVerification routes a cancelled or timed-out episode back to where it
// came from: wakeup episodes fall back to Idle, selection episodes resume
// UserInput with polling still live.
func (c *Controller) abortVerification() {
	if c.state == VerifyWakeup {
		c.enterIdle()
	} else {
		c.setState(UserInput)
	}
}

func (c *Controller) confirmSelectTarget() {
	if c.selectToUserInput {
		c.setState(UserInput)
		return
	}
	c.enterIdle()
}

// enterIdle stops polling, re-arms on-ring wave detection, and settles the
// state machine in Idle.
func (c *Controller) enterIdle() {
	c.polling = false
	c.issue(protocol.CmdEnableWave)
	c.issue(protocol.CmdAwaitWave)
	c.setState(Idle)
}

// startPolling begins the self-driving raw-data request loop with a single
// kick-off request.
func (c *Controller) startPolling() {
	c.polling = true
	c.issue(protocol.CmdGetRawData)
}

// emit delivers a control event to the host.
func (c *Controller) emit(ev ControlEvent) {
	c.eventsEmitted++
	if c.controlSink != nil {
		c.controlSink.OnControlEvent(ev)
	}
}

// setState records the new state and notifies the state sink.
func (c *Controller) setState(s State) {
	if c.state == s {
		return
	}
	c.state = s
	if c.stateSink != nil {
		c.stateSink.OnStateChange(s)
	}
}

// issue builds and writes one command frame. A failed write is logged and
// counted but never alters the state machine.
func (c *Controller) issue(cmd protocol.Command) {
	if c.link == nil {
		return
	}
	if err := c.link.WriteCommand(cmd.Build()); err != nil {
		c.writeErrors++
		log.Warn("ring: command write failed", "err", err)
	}
}
