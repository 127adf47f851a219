package domain

type ConnectionState string

const (
	ConnIdle         ConnectionState = "idle"
	ConnConnecting   ConnectionState = "connecting"
	ConnOpen         ConnectionState = "open"
	ConnReconnecting ConnectionState = "reconnecting"
	ConnClosed       ConnectionState = "closed"
)

// connTransitions encodes the legal connection state machine. An explicit
// disconnect to closed is additionally allowed from every state.
var connTransitions = map[ConnectionState][]ConnectionState{
	ConnIdle:         {ConnConnecting},
	ConnConnecting:   {ConnOpen, ConnReconnecting, ConnClosed},
	ConnOpen:         {ConnReconnecting, ConnClosed},
	ConnReconnecting: {ConnConnecting, ConnClosed},
	ConnClosed:       {ConnConnecting},
}

func (s ConnectionState) CanTransitionTo(next ConnectionState) bool {
	if next == ConnClosed {
		return true
	}
	for _, allowed := range connTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// ConnectionStatus pairs the state with the task the connection is bound
// to. Exactly one connection may be open per coordinator; binding a new
// task implies closing the previous connection first.
type ConnectionStatus struct {
	State  ConnectionState
	TaskID TaskID
}
