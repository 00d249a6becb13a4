package session

// State is the connection and power state of the session.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnectedOn
	StateConnectedOff
)

// String returns a human-readable name for the state.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnectedOn:
		return "connected_on"
	case StateConnectedOff:
		return "connected_off"
	default:
		return "unknown"
	}
}

// Connected reports whether a device is connected, powered or not.
func (s State) Connected() bool {
	return s == StateConnectedOn || s == StateConnectedOff
}

// Event is something that may move the state machine.
type Event int

const (
	EventConnectStarted Event = iota
	EventConnectSucceeded
	EventConnectFailed
	EventHostEdited
	EventTurnOff
	EventTurnOn
	EventApplyPad
)

// String returns a human-readable name for the event.
func (e Event) String() string {
	switch e {
	case EventConnectStarted:
		return "connect_started"
	case EventConnectSucceeded:
		return "connect_succeeded"
	case EventConnectFailed:
		return "connect_failed"
	case EventHostEdited:
		return "host_edited"
	case EventTurnOff:
		return "turn_off"
	case EventTurnOn:
		return "turn_on"
	case EventApplyPad:
		return "apply_pad"
	default:
		return "unknown"
	}
}

// Next returns the state after e happens in s. Events that do not apply to s
// leave it unchanged.
func Next(s State, e Event) State {
	switch e {
	case EventConnectStarted:
		return StateConnecting
	case EventConnectSucceeded:
		// A fresh connection assumes the device is on.
		return StateConnectedOn
	case EventConnectFailed, EventHostEdited:
		return StateDisconnected
	}

	if !s.Connected() {
		return s
	}

	switch e {
	case EventTurnOff:
		return StateConnectedOff
	case EventTurnOn, EventApplyPad:
		return StateConnectedOn
	}
	return s
}
