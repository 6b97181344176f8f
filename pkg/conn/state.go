package conn

// State is the lifecycle state of the (single) device connection. At
// most one connection instance is in a non-Disconnected state at a
// time.
type State int32

const (
	// Disconnected means no usable socket exists.
	Disconnected State = iota

	// TcpConnecting means a transport-level connect is in progress.
	TcpConnecting

	// AwaitingHandshake means the socket is up but version negotiation
	// has not completed; only the handshake call may be transmitted.
	AwaitingHandshake

	// Ready means the handshake succeeded and calls flow freely.
	Ready
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case TcpConnecting:
		return "tcp-connecting"
	case AwaitingHandshake:
		return "awaiting-handshake"
	case Ready:
		return "ready"
	default:
		return "unknown"
	}
}

// Status is the operator-facing condition of the client.
type Status int

const (
	// StatusDisconnected means no connection and no fatal condition.
	StatusDisconnected Status = iota

	// StatusConnecting covers dialing and version negotiation.
	StatusConnecting

	// StatusOk means the connection is ready for traffic.
	StatusOk

	// StatusConnectionFailure means the handshake itself failed; the
	// connection is unusable until a fresh handshake succeeds.
	StatusConnectionFailure
)

func (s Status) String() string {
	switch s {
	case StatusDisconnected:
		return "Disconnected"
	case StatusConnecting:
		return "Connecting"
	case StatusOk:
		return "Ok"
	case StatusConnectionFailure:
		return "ConnectionFailure"
	default:
		return "Unknown"
	}
}
