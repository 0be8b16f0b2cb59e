package ring

import (
	"sync"
	"time"

	"github.com/teslashibe/go-ringwave/pkg/protocol"
)

// Offline replay support: a recorded notification stream can be pushed back
// through a controller without any radio, with the capture timestamps
// standing in for the wall clock. Tests use the same pieces.

// RecordedFrame is one captured notification and its arrival time.
type RecordedFrame struct {
	At   time.Time
	Data []byte
}

// ReplayClock is a manually advanced time source. Pass its Now method to
// WithClock.
type ReplayClock struct {
	mu sync.Mutex
	t  time.Time
}

// NewReplayClock starts a clock at the given instant.
func NewReplayClock(start time.Time) *ReplayClock {
	return &ReplayClock{t: start}
}

// Now returns the clock's current instant.
func (rc *ReplayClock) Now() time.Time {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return rc.t
}

// Set moves the clock to t.
func (rc *ReplayClock) Set(t time.Time) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.t = t
}

// Advance moves the clock forward by d and returns the new instant.
func (rc *ReplayClock) Advance(d time.Duration) time.Time {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.t = rc.t.Add(d)
	return rc.t
}

// MemoryLink is an in-memory Link recording every command written to it.
// It stands in for the BLE transport during replay and in tests.
type MemoryLink struct {
	mu     sync.Mutex
	frames [][protocol.FrameSize]byte
	// Err, when set, is returned by every write.
	Err error
}

// WriteCommand records the frame.
func (l *MemoryLink) WriteCommand(frame [protocol.FrameSize]byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.Err != nil {
		return l.Err
	}
	l.frames = append(l.frames, frame)
	return nil
}

// Commands returns a copy of the recorded command frames.
func (l *MemoryLink) Commands() [][protocol.FrameSize]byte {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([][protocol.FrameSize]byte, len(l.frames))
	copy(out, l.frames)
	return out
}

// Replay pushes a recorded stream through the controller in order, setting
// the clock to each frame's capture time first. The controller must have
// been built with WithClock(clock.Now).
func Replay(ctrl *Controller, clock *ReplayClock, frames []RecordedFrame) {
	for _, f := range frames {
		clock.Set(f.At)
		ctrl.OnFrame(f.Data)
	}
}
