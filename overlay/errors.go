package overlay

import "errors"

// Sentinel errors, grounded on go-sdk/auth's errors.go pattern: a flat var
// block of plain errors.New values, tested with errors.Is.
var (
	// ErrAlreadyAuthenticated is returned when a caller asks to authenticate
	// a peer address already present in the authenticated set.
	ErrAlreadyAuthenticated = errors.New("overlay: peer already authenticated")

	// ErrHandshakeInFlight is returned when a new handshake is requested
	// for an address that already has one outstanding.
	ErrHandshakeInFlight = errors.New("overlay: handshake already in flight for address")

	// ErrNonceMismatch is returned when a handshake response echoes a nonce
	// that does not match the one the requester sent.
	ErrNonceMismatch = errors.New("overlay: echoed nonce does not match request")

	// ErrUnknownConnection is returned when a message or disconnect event
	// references a connection the peer table has no record of.
	ErrUnknownConnection = errors.New("overlay: unknown connection")

	// ErrShutdown is returned by Core.Broadcast and
	// Core.AuthenticateToDirectMessagePeer once Shutdown has been called.
	ErrShutdown = errors.New("overlay: core is shut down")
)
