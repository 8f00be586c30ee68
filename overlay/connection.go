package overlay

import "time"

// ConnectionType classifies a connection for eviction purposes (spec.md
// §3). PASSIVE connections are inbound and never promoted; ACTIVE
// connections are outbound connections we initiated; AUTH_REQUEST marks a
// connection currently finishing an inbound handshake and is never a
// candidate for eviction.
type ConnectionType int

const (
	// Inbound is a raw inbound connection before any role is assigned.
	Inbound ConnectionType = iota
	// Outbound is a raw outbound connection before any role is assigned.
	Outbound
	// Passive is an inbound connection not promoted to a higher eviction class.
	Passive
	// Active is an outbound connection initiated by this node.
	Active
	// AuthRequest marks a connection currently completing an inbound handshake.
	AuthRequest
)

// String implements fmt.Stringer for log-friendly output.
func (t ConnectionType) String() string {
	switch t {
	case Inbound:
		return "INBOUND"
	case Outbound:
		return "OUTBOUND"
	case Passive:
		return "PASSIVE"
	case Active:
		return "ACTIVE"
	case AuthRequest:
		return "AUTH_REQUEST"
	default:
		return "UNKNOWN"
	}
}

// Connection is owned by the transport and only borrowed by the core
// (spec.md §5 "Shared resources"). The core holds a non-owning reference:
// it may request a shutdown but never frees the connection itself.
type Connection interface {
	// UID uniquely identifies this connection for the lifetime of the process.
	UID() string

	// PeerAddress returns the bound peer address, if the connection has been
	// authenticated (or pre-bound by a handshake in progress).
	PeerAddress() (Address, bool)

	// IsAuthenticated reports whether the transport considers this
	// connection authenticated.
	IsAuthenticated() bool

	// LastActivity returns the timestamp of the connection's last observed
	// activity, used by the capacity manager's oldest-first eviction.
	LastActivity() time.Time

	// Type returns the connection's current classification.
	Type() ConnectionType

	// SetType reclassifies the connection (e.g. PASSIVE/ACTIVE/AUTH_REQUEST).
	SetType(ConnectionType)

	// SetAuthenticated binds addr to this connection and marks it
	// authenticated at the transport level.
	SetAuthenticated(addr Address)

	// Shutdown asks the transport to tear the connection down. onComplete,
	// if non-nil, is invoked once the shutdown has completed; it is never
	// invoked synchronously.
	Shutdown(onComplete func())
}
