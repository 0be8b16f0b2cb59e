package ring

import (
	"math"
	"sync"
	"testing"
	"time"

	"github.com/teslashibe/go-ringwave/pkg/protocol"
)

var t0 = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

// recorder captures every callback in arrival order.
type recorder struct {
	mu     sync.Mutex
	states []State
	events []ControlEvent
	raws   []RawSample
	order  []string
}

func (r *recorder) OnStateChange(s State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, s)
	r.order = append(r.order, "state:"+s.String())
}

func (r *recorder) OnControlEvent(ev ControlEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	r.order = append(r.order, "control:"+ev.String())
}

func (r *recorder) OnRawSample(s RawSample) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.raws = append(r.raws, s)
	r.order = append(r.order, "raw")
}

func (r *recorder) eventList() []ControlEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]ControlEvent, len(r.events))
	copy(out, r.events)
	return out
}

func (r *recorder) lastState() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.states) == 0 {
		return Disconnected
	}
	return r.states[len(r.states)-1]
}

func newTestController(opts ...Option) (*Controller, *MemoryLink, *recorder, *ReplayClock) {
	link := &MemoryLink{}
	rec := &recorder{}
	clock := NewReplayClock(t0)
	all := append([]Option{
		WithClock(clock.Now),
		WithStateSink(rec),
		WithControlSink(rec),
		WithRawSink(rec),
	}, opts...)
	ctrl := New(all...)
	ctrl.AttachLink(link)
	return ctrl, link, rec, clock
}

// accelFrame encodes a reading in the XY plane at the given angle and net g.
func accelFrame(angle, netG float64) []byte {
	r := (1 + netG) * protocol.CountsPerG
	f := protocol.EncodeSample(protocol.Sample{
		X: int16(math.Round(r * math.Cos(angle))),
		Y: int16(math.Round(r * math.Sin(angle))),
	})
	return f[:]
}

func waveFrame() []byte {
	f := protocol.WaveDetectedFrame()
	return f[:]
}

func commandOps(link *MemoryLink) [][2]byte {
	frames := link.Commands()
	out := make([][2]byte, len(frames))
	for i, f := range frames {
		out[i] = [2]byte{f[0], f[1]}
	}
	return out
}

func countOp(link *MemoryLink, cmd protocol.Command) int {
	n := 0
	for _, op := range commandOps(link) {
		if op[0] == cmd[0] && op[1] == cmd[1] {
			n++
		}
	}
	return n
}

func wantEvents(t *testing.T, got, want []ControlEvent) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("events = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("event %d = %v, want %v (full: %v)", i, got[i], want[i], got)
		}
	}
}

// rotate feeds samples stepping the angle from start by step, spaced apart.
func rotate(ctrl *Controller, clock *ReplayClock, start, step float64, n int, spacing time.Duration) {
	for i := 0; i < n; i++ {
		ctrl.OnFrame(accelFrame(start+step*float64(i), 0))
		clock.Advance(spacing)
	}
}

func TestConnectSettlesInIdle(t *testing.T) {
	ctrl, link, rec, _ := newTestController()
	ctrl.OnScanning()
	ctrl.OnConnecting()
	ctrl.OnConnected()

	wantStates := []State{Scanning, Connecting, Connected, Idle}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.states) != len(wantStates) {
		t.Fatalf("states = %v, want %v", rec.states, wantStates)
	}
	for i, s := range wantStates {
		if rec.states[i] != s {
			t.Fatalf("state %d = %v, want %v", i, rec.states[i], s)
		}
	}

	// Idle entry arms wave detection on the ring.
	if countOp(link, protocol.CmdEnableWave) != 1 || countOp(link, protocol.CmdAwaitWave) != 1 {
		t.Errorf("idle entry commands = %v", commandOps(link))
	}
}

// A wave followed by a full revolution confirms the wakeup: quarter progress
// events along the way, then the confirmation, landing in UserInput.
func TestWakeConfirmation(t *testing.T) {
	ctrl, link, rec, clock := newTestController()
	ctrl.OnConnected()

	ctrl.OnFrame(waveFrame())
	if ctrl.State() != VerifyWakeup {
		t.Fatalf("state after wave = %v, want VerifyWakeup", ctrl.State())
	}
	if countOp(link, protocol.CmdDisableWave) != 1 {
		t.Error("wave detection not disabled on verification entry")
	}
	if countOp(link, protocol.CmdGetRawData) != 1 {
		t.Error("raw polling not kicked off")
	}

	rotate(ctrl, clock, 0, 0.6, 12, 30*time.Millisecond)

	wantEvents(t, rec.eventList(), []ControlEvent{
		ProvisionalWakeupIntent,
		VerifyIntent25, VerifyIntent50, VerifyIntent75,
		ConfirmWakeupIntent,
	})
	if ctrl.State() != UserInput {
		t.Errorf("final state = %v, want UserInput", ctrl.State())
	}
}

// A wave with no follow-up rotation times out back to Idle and re-arms wave
// detection.
func TestWakeTimeout(t *testing.T) {
	ctrl, link, rec, clock := newTestController()
	ctrl.OnConnected()
	ctrl.OnFrame(waveFrame())

	for i := 0; i < 15; i++ {
		clock.Advance(150 * time.Millisecond)
		ctrl.OnFrame(accelFrame(0.4, 0))
	}

	wantEvents(t, rec.eventList(), []ControlEvent{ProvisionalWakeupIntent, Timeout})
	if ctrl.State() != Idle {
		t.Errorf("final state = %v, want Idle", ctrl.State())
	}
	if countOp(link, protocol.CmdEnableWave) != 2 {
		t.Error("wave detection not re-armed after timeout")
	}
}

// Reverse rotation past the cancel threshold abandons the wakeup.
func TestWakeCancel(t *testing.T) {
	ctrl, _, rec, clock := newTestController()
	ctrl.OnConnected()
	ctrl.OnFrame(waveFrame())

	rotate(ctrl, clock, 0, -0.3, 5, 30*time.Millisecond)

	wantEvents(t, rec.eventList(), []ControlEvent{ProvisionalWakeupIntent, CancelIntent})
	if ctrl.State() != Idle {
		t.Errorf("final state = %v, want Idle", ctrl.State())
	}
}

// confirmWake drives a fresh controller into UserInput.
func confirmWake(t *testing.T, ctrl *Controller, clock *ReplayClock) {
	t.Helper()
	ctrl.OnConnected()
	ctrl.OnFrame(waveFrame())
	rotate(ctrl, clock, 0, 0.6, 12, 30*time.Millisecond)
	if ctrl.State() != UserInput {
		t.Fatalf("setup: state = %v, want UserInput", ctrl.State())
	}
}

func TestScrollEventsInUserInput(t *testing.T) {
	ctrl, _, rec, clock := newTestController()
	confirmWake(t, ctrl, clock)
	before := len(rec.eventList())

	// Continue rotating forward fast enough to scroll.
	rotate(ctrl, clock, 6.6+0.6, 0.6, 3, 30*time.Millisecond)
	events := rec.eventList()[before:]
	for _, ev := range events {
		if ev != ScrollUp {
			t.Fatalf("unexpected event %v", ev)
		}
	}
	if len(events) == 0 {
		t.Fatal("no scroll events emitted")
	}

	// And backwards.
	before = len(rec.eventList())
	rotate(ctrl, clock, 6.6+0.6*3, -0.6, 3, 30*time.Millisecond)
	sawDown := false
	for _, ev := range rec.eventList()[before:] {
		if ev == ScrollDown {
			sawDown = true
		}
	}
	if !sawDown {
		t.Error("no scroll-down emitted for reverse rotation")
	}
}

// A rest-impact-rest spike in UserInput opens a selection verification.
func TestTapOpensVerifySelect(t *testing.T) {
	ctrl, _, rec, clock := newTestController()
	confirmWake(t, ctrl, clock)
	before := len(rec.eventList())

	angle := 6.6 // wherever the wake rotation stopped
	for i := 0; i < 3; i++ {
		ctrl.OnFrame(accelFrame(angle, 0))
		clock.Advance(50 * time.Millisecond)
	}
	ctrl.OnFrame(accelFrame(angle, 1.6))
	clock.Advance(50 * time.Millisecond)
	ctrl.OnFrame(accelFrame(angle, 0))

	wantEvents(t, rec.eventList()[before:], []ControlEvent{ProvisionalSelectionIntent})
	if ctrl.State() != VerifySelect {
		t.Errorf("state = %v, want VerifySelect", ctrl.State())
	}
}

// tapIntoVerifySelect drives the controller to VerifySelect and returns the
// resting angle.
func tapIntoVerifySelect(t *testing.T, ctrl *Controller, clock *ReplayClock) float64 {
	t.Helper()
	confirmWake(t, ctrl, clock)
	angle := 6.6
	for i := 0; i < 3; i++ {
		ctrl.OnFrame(accelFrame(angle, 0))
		clock.Advance(50 * time.Millisecond)
	}
	ctrl.OnFrame(accelFrame(angle, 1.6))
	clock.Advance(50 * time.Millisecond)
	ctrl.OnFrame(accelFrame(angle, 0))
	clock.Advance(50 * time.Millisecond)
	if ctrl.State() != VerifySelect {
		t.Fatalf("setup: state = %v, want VerifySelect", ctrl.State())
	}
	return angle
}

// A full revolution confirms the selection and drops back to Idle, re-arming
// wave detection.
func TestSelectConfirmReturnsToIdle(t *testing.T) {
	ctrl, link, rec, clock := newTestController()
	angle := tapIntoVerifySelect(t, ctrl, clock)
	before := len(rec.eventList())

	rotate(ctrl, clock, angle+0.6, 0.6, 12, 30*time.Millisecond)

	wantEvents(t, rec.eventList()[before:], []ControlEvent{
		VerifyIntent25, VerifyIntent50, VerifyIntent75, ConfirmSelectionIntent,
	})
	if ctrl.State() != Idle {
		t.Errorf("final state = %v, want Idle", ctrl.State())
	}
	if countOp(link, protocol.CmdEnableWave) != 2 {
		t.Error("wave detection not re-armed after confirmed selection")
	}
}

func TestSelectConfirmPolicyUserInput(t *testing.T) {
	ctrl, _, _, clock := newTestController(WithSelectConfirmToUserInput())
	angle := tapIntoVerifySelect(t, ctrl, clock)
	rotate(ctrl, clock, angle+0.6, 0.6, 12, 30*time.Millisecond)
	if ctrl.State() != UserInput {
		t.Errorf("final state = %v, want UserInput under host policy", ctrl.State())
	}
}

// Cancelling a selection returns to UserInput with polling still live.
func TestSelectCancelResumesUserInput(t *testing.T) {
	ctrl, link, rec, clock := newTestController()
	angle := tapIntoVerifySelect(t, ctrl, clock)
	before := len(rec.eventList())

	rotate(ctrl, clock, angle-0.3, -0.3, 5, 30*time.Millisecond)

	events := rec.eventList()[before:]
	if len(events) == 0 || events[len(events)-1] != CancelIntent {
		t.Fatalf("events = %v, want trailing CancelIntent", events)
	}
	if ctrl.State() != UserInput {
		t.Errorf("state = %v, want UserInput", ctrl.State())
	}

	// Polling keeps driving itself: another sample triggers another request.
	polls := countOp(link, protocol.CmdGetRawData)
	ctrl.OnFrame(accelFrame(angle, 0))
	if countOp(link, protocol.CmdGetRawData) != polls+1 {
		t.Error("polling stopped after selection cancel")
	}
}

func TestSelectTimeoutResumesUserInput(t *testing.T) {
	ctrl, _, rec, clock := newTestController()
	angle := tapIntoVerifySelect(t, ctrl, clock)
	before := len(rec.eventList())

	for i := 0; i < 15; i++ {
		clock.Advance(150 * time.Millisecond)
		ctrl.OnFrame(accelFrame(angle, 0))
	}

	wantEvents(t, rec.eventList()[before:], []ControlEvent{Timeout})
	if ctrl.State() != UserInput {
		t.Errorf("state = %v, want UserInput", ctrl.State())
	}
}

// Exactly one terminal event per verification episode, even when cancel and
// timeout conditions hold on the same sample.
func TestSingleTerminalEvent(t *testing.T) {
	ctrl, _, rec, clock := newTestController()
	ctrl.OnConnected()
	ctrl.OnFrame(waveFrame())

	// Sit just under the timeout, then rotate backwards past the cancel
	// threshold on a sample that is also past the deadline.
	clock.Advance(1900 * time.Millisecond)
	ctrl.OnFrame(accelFrame(0, 0))
	clock.Advance(200 * time.Millisecond)
	ctrl.OnFrame(accelFrame(-1.0, 0))

	terminal := 0
	for _, ev := range rec.eventList() {
		switch ev {
		case CancelIntent, Timeout, ConfirmWakeupIntent, ConfirmSelectionIntent:
			terminal++
		}
	}
	if terminal != 1 {
		t.Errorf("terminal events = %d, want exactly 1 (%v)", terminal, rec.eventList())
	}
}

// Quarter progress stretches the deadline: a rotation that would time out
// under the initial window survives when milestones keep landing.
func TestQuarterProgressExtendsDeadline(t *testing.T) {
	ctrl, _, rec, clock := newTestController()
	ctrl.OnConnected()
	ctrl.OnFrame(waveFrame())

	// Burst to the first quarter, stall past what the initial window alone
	// would allow, then finish. The milestone's extra 500 ms is what keeps
	// the episode alive.
	rotate(ctrl, clock, 0, 0.6, 4, 30*time.Millisecond) // progress 1.8, VerifyIntent25
	for i := 0; i < 12; i++ {                           // hold still for 1.8 s
		ctrl.OnFrame(accelFrame(1.8, 0))
		clock.Advance(150 * time.Millisecond)
	}
	rotate(ctrl, clock, 2.4, 0.6, 9, 30*time.Millisecond) // cross 2π past t=2 s

	events := rec.eventList()
	if len(events) == 0 || events[len(events)-1] != ConfirmWakeupIntent {
		t.Errorf("events = %v, want trailing ConfirmWakeupIntent", events)
	}
	for _, ev := range events {
		if ev == Timeout {
			t.Errorf("episode timed out despite milestone extensions: %v", events)
		}
	}
}

func TestWaveOutsideIdleIgnored(t *testing.T) {
	ctrl, _, rec, clock := newTestController()
	confirmWake(t, ctrl, clock)
	before := len(rec.eventList())

	ctrl.OnFrame(waveFrame())
	if got := len(rec.eventList()) - before; got != 0 {
		t.Errorf("wave outside idle produced %d events", got)
	}
	if ctrl.State() != UserInput {
		t.Errorf("state = %v, want UserInput", ctrl.State())
	}
	if ctrl.Stats().WavesIgnored != 1 {
		t.Errorf("WavesIgnored = %d, want 1", ctrl.Stats().WavesIgnored)
	}
}

// Malformed frames never reach a callback.
func TestBadFramesDropped(t *testing.T) {
	ctrl, _, rec, clock := newTestController()
	confirmWake(t, ctrl, clock)
	before := func() int {
		rec.mu.Lock()
		defer rec.mu.Unlock()
		return len(rec.order)
	}()

	for _, n := range []int{0, 1, 8, 15, 17, 64} {
		ctrl.OnFrame(make([]byte, n))
	}
	ctrl.OnFrame([]byte{0x7F, 0x01, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0x80})

	rec.mu.Lock()
	after := len(rec.order)
	rec.mu.Unlock()
	if after != before {
		t.Errorf("bad frames produced %d callbacks", after-before)
	}
}

// After a disconnect no sample can produce anything until reconnected.
func TestDisconnectSilencesSamples(t *testing.T) {
	ctrl, _, rec, clock := newTestController()
	confirmWake(t, ctrl, clock)

	ctrl.OnDisconnected()
	if rec.lastState() != Disconnected {
		t.Fatalf("state = %v, want Disconnected", rec.lastState())
	}

	before := len(rec.eventList())
	rawsBefore := len(rec.raws)
	rotate(ctrl, clock, 0, 0.6, 12, 30*time.Millisecond)
	ctrl.OnFrame(waveFrame())

	if len(rec.eventList()) != before {
		t.Error("events emitted while disconnected")
	}
	if len(rec.raws) != rawsBefore {
		t.Error("raw samples delivered while disconnected")
	}
}

// Per sample: raw diagnostics, then control events, then the state change.
func TestCallbackOrdering(t *testing.T) {
	ctrl, _, rec, clock := newTestController()
	tapIntoVerifySelect(t, ctrl, clock)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	for i, entry := range rec.order {
		if entry == "control:"+ProvisionalSelectionIntent.String() {
			if i == 0 || rec.order[i-1] != "raw" {
				t.Errorf("expected raw callback before control event, got %v", rec.order[i-1])
			}
			if i+1 >= len(rec.order) || rec.order[i+1] != "state:"+VerifySelect.String() {
				t.Errorf("expected state change after control event")
			}
			return
		}
	}
	t.Fatal("provisional selection event not found in order log")
}

// One poll request per consumed sample while polling is active.
func TestPollingBackpressure(t *testing.T) {
	ctrl, link, _, clock := newTestController()
	ctrl.OnConnected()
	ctrl.OnFrame(waveFrame())

	kickoff := countOp(link, protocol.CmdGetRawData)
	if kickoff != 1 {
		t.Fatalf("kickoff polls = %d, want 1", kickoff)
	}

	const n = 7
	rotate(ctrl, clock, 0, 0.1, n, 30*time.Millisecond)
	if got := countOp(link, protocol.CmdGetRawData); got != kickoff+n {
		t.Errorf("polls after %d samples = %d, want %d", n, got, kickoff+n)
	}
}

// Every command ever written carries a valid additive checksum.
func TestCommandChecksums(t *testing.T) {
	ctrl, link, _, clock := newTestController()
	angle := tapIntoVerifySelect(t, ctrl, clock)
	rotate(ctrl, clock, angle+0.6, 0.6, 12, 30*time.Millisecond)

	frames := link.Commands()
	if len(frames) == 0 {
		t.Fatal("no commands recorded")
	}
	for i, f := range frames {
		if f[protocol.FrameSize-1] != protocol.Checksum(f[:]) {
			t.Errorf("command %d checksum = %#x, want %#x", i, f[15], protocol.Checksum(f[:]))
		}
	}
}

// A write failure is counted but leaves the state machine on course.
func TestWriteFailureDoesNotDerail(t *testing.T) {
	ctrl, link, _, clock := newTestController()
	link.Err = errWrite
	ctrl.OnConnected()
	ctrl.OnFrame(waveFrame())
	rotate(ctrl, clock, 0, 0.6, 12, 30*time.Millisecond)

	if ctrl.State() != UserInput {
		t.Errorf("state = %v, want UserInput despite write failures", ctrl.State())
	}
	if ctrl.Stats().WriteErrors == 0 {
		t.Error("write errors not counted")
	}
}

var errWrite = &writeError{}

type writeError struct{}

func (*writeError) Error() string { return "characteristic write failed" }
