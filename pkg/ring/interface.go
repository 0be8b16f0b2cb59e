package ring

import (
	"github.com/google/uuid"

	"github.com/teslashibe/go-ringwave/pkg/protocol"
)

// The controller talks to the outside world through small, focused
// interfaces: one for the transport it writes commands to, and one per
// callback channel to the host. Consumers implement only what they need.
// Sinks are invoked on the controller's dispatch path and must not call
// back into the controller or block.

// Link writes command frames to the ring. Implemented by the BLE transport;
// tests and offline replay use in-memory stand-ins.
type Link interface {
	WriteCommand(frame [protocol.FrameSize]byte) error
}

// StateSink receives controller state changes.
type StateSink interface {
	OnStateChange(s State)
}

// ControlSink receives control events. For a sample that triggers both an
// event and a state change, the control event is delivered first.
type ControlSink interface {
	OnControlEvent(ev ControlEvent)
}

// RawSink receives per-sample diagnostics. Optional; most hosts leave it nil.
type RawSink interface {
	OnRawSample(s RawSample)
}

// RawSample is the diagnostic view of one processed sample.
type RawSample struct {
	Session uuid.UUID `json:"session"`

	RawX int16 `json:"raw_x"`
	RawY int16 `json:"raw_y"`
	RawZ int16 `json:"raw_z"`

	RawScrollPos       float64 `json:"raw_scroll_pos"`
	FilteredScrollPos  float64 `json:"filtered_scroll_pos"`
	FilteredScrollDiff float64 `json:"filtered_scroll_diff"`
	RawNetG            float64 `json:"raw_net_g"`
	FilteredNetG       float64 `json:"filtered_net_g"`

	IsTap   bool    `json:"is_tap"`
	DeltaMs float64 `json:"delta_ms"`
}

// MultiStateSink fans state changes out to several sinks in order.
func MultiStateSink(sinks ...StateSink) StateSink {
	return StateSinkFunc(func(s State) {
		for _, sink := range sinks {
			sink.OnStateChange(s)
		}
	})
}

// MultiControlSink fans control events out to several sinks in order.
func MultiControlSink(sinks ...ControlSink) ControlSink {
	return ControlSinkFunc(func(ev ControlEvent) {
		for _, sink := range sinks {
			sink.OnControlEvent(ev)
		}
	})
}

// StateSinkFunc adapts a function to the StateSink interface.
type StateSinkFunc func(s State)

func (f StateSinkFunc) OnStateChange(s State) { f(s) }

// ControlSinkFunc adapts a function to the ControlSink interface.
type ControlSinkFunc func(ev ControlEvent)

func (f ControlSinkFunc) OnControlEvent(ev ControlEvent) { f(ev) }

// RawSinkFunc adapts a function to the RawSink interface.
type RawSinkFunc func(s RawSample)

func (f RawSinkFunc) OnRawSample(s RawSample) { f(s) }
