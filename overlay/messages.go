package overlay

// Message is the marker interface satisfied by every wire message the core
// exchanges (spec.md §6). Encoding is explicitly out of scope (spec.md §1
// Non-goals): these are plain Go structs with no wire-format tags: a real
// transport is responsible for framing and serializing them.
type Message interface {
	messageKind() string
}

// AuthenticationRequest is the initial handshake message, carrying the
// sender's own address so the responder can bind it to the connection.
type AuthenticationRequest struct {
	Address Address
	Nonce   [32]byte
}

func (AuthenticationRequest) messageKind() string { return "AuthenticationRequest" }

// AuthenticationResponse completes the handshake, echoing the requester's
// nonce and carrying a fresh responder nonce so both directions of the
// exchange are bound to this connection.
type AuthenticationResponse struct {
	Address       Address
	Nonce         [32]byte
	EchoedNonce   [32]byte
	Authenticated bool
}

func (AuthenticationResponse) messageKind() string { return "AuthenticationResponse" }

// PingMessage probes liveness; the receiver must reply with PongMessage
// carrying the same nonce.
type PingMessage struct {
	Nonce int64
}

func (PingMessage) messageKind() string { return "Ping" }

// PongMessage answers a PingMessage. A nonce mismatch is a protocol
// violation (spec.md §4.5).
type PongMessage struct {
	Nonce int64
}

func (PongMessage) messageKind() string { return "Pong" }

// GetPeersRequest exchanges gossip: the sender's own address plus every
// address it currently knows about.
type GetPeersRequest struct {
	Address       Address
	PeerAddresses []Address
}

func (GetPeersRequest) messageKind() string { return "GetPeersRequest" }

// GetPeersResponse answers a GetPeersRequest with the responder's known
// addresses.
type GetPeersResponse struct {
	PeerAddresses []Address
}

func (GetPeersResponse) messageKind() string { return "GetPeersResponse" }

// DataBroadcastMessage is an opaque application payload fanned out to the
// authenticated peer set (spec.md §4.7). The core never interprets Payload.
type DataBroadcastMessage struct {
	Payload []byte
}

func (DataBroadcastMessage) messageKind() string { return "DataBroadcastMessage" }
