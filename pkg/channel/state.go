package channel

import "time"

// State is the connection state of the event channel.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateReconnecting State = "reconnecting"
)

// States lists every state, for gauges and status output.
var States = []State{StateDisconnected, StateConnecting, StateConnected, StateReconnecting}

func (s State) String() string {
	return string(s)
}

// StateChange is emitted on every transition.
type StateChange struct {
	From   State
	To     State
	Reason string
	At     time.Time
}
