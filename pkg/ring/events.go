// Package ring implements the gesture controller for the smart ring: an
// eight-state machine that consumes decoded accelerometer frames and the
// on-ring wave-gesture signal, and emits scroll and selection intents to the
// host through typed sinks.
package ring

// State is the controller state. The connection states (Scanning, Connecting,
// Connected) are transitional; the controller is long-lived and has no
// terminal state.
type State int

const (
	Disconnected State = iota
	Scanning
	Connecting
	Connected
	// Idle: connected, wave detection armed on-ring, no raw polling.
	Idle
	// VerifyWakeup: a wave was detected; waiting for a full confirmation
	// revolution before accepting input.
	VerifyWakeup
	// UserInput: confirmed awake; scroll and tap gestures are live.
	UserInput
	// VerifySelect: a tap was detected; waiting for a full confirmation
	// revolution before committing the selection.
	VerifySelect
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Scanning:
		return "scanning"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Idle:
		return "idle"
	case VerifyWakeup:
		return "verify-wakeup"
	case UserInput:
		return "user-input"
	case VerifySelect:
		return "verify-select"
	default:
		return "invalid"
	}
}

// ControlEvent is a user intent or verification milestone emitted by the
// controller.
type ControlEvent int

const (
	ScrollUp ControlEvent = iota
	ScrollDown
	// ProvisionalWakeupIntent starts a wakeup verification episode.
	ProvisionalWakeupIntent
	// ProvisionalSelectionIntent starts a selection verification episode.
	ProvisionalSelectionIntent
	// VerifyIntent25/50/75 report quarter-revolution progress through a
	// verification episode. Each extends the episode's timeout.
	VerifyIntent25
	VerifyIntent50
	VerifyIntent75
	ConfirmWakeupIntent
	ConfirmSelectionIntent
	// CancelIntent: the user backed out by reverse rotation.
	CancelIntent
	// Timeout: the verification window expired without a full revolution.
	Timeout
)

func (e ControlEvent) String() string {
	switch e {
	case ScrollUp:
		return "scroll-up"
	case ScrollDown:
		return "scroll-down"
	case ProvisionalWakeupIntent:
		return "provisional-wakeup"
	case ProvisionalSelectionIntent:
		return "provisional-selection"
	case VerifyIntent25:
		return "verify-25"
	case VerifyIntent50:
		return "verify-50"
	case VerifyIntent75:
		return "verify-75"
	case ConfirmWakeupIntent:
		return "confirm-wakeup"
	case ConfirmSelectionIntent:
		return "confirm-selection"
	case CancelIntent:
		return "cancel"
	case Timeout:
		return "timeout"
	default:
		return "invalid"
	}
}
