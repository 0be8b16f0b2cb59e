// Package sink provides ready-made event-sink adapters for a ring
// controller: a console sink for interactive use and an MQTT publisher for
// feeding events into home-automation or logging pipelines.
package sink

import (
	"github.com/teslashibe/go-ringwave/internal/log"
	"github.com/teslashibe/go-ringwave/pkg/ring"
)

// Console logs state changes and control events through the structured
// logger. It satisfies ring.StateSink and ring.ControlSink.
type Console struct{}

// OnStateChange implements ring.StateSink.
func (Console) OnStateChange(s ring.State) {
	log.Info("ring state", "state", s.String())
}

// OnControlEvent implements ring.ControlSink.
func (Console) OnControlEvent(ev ring.ControlEvent) {
	log.Info("ring event", "event", ev.String())
}
