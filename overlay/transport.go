package overlay

import (
	"context"
	"time"
)

// SendResult is the outcome of a send, delivered back on the core's
// executor (spec.md §9: "a first-class async task returning a result
// variant"). Conn is non-nil on success.
type SendResult struct {
	Conn Connection
	Err  error
}

// SendFuture is the handle returned by Transport.Send.
type SendFuture struct {
	resultCh chan SendResult
}

// NewSendFuture returns a fresh SendFuture plus the resolver function a
// Transport implementation calls exactly once to complete it. Exported so
// Transport implementations outside this package can produce futures the
// core understands.
func NewSendFuture() (*SendFuture, func(SendResult)) {
	f := &SendFuture{resultCh: make(chan SendResult, 1)}
	resolved := make(chan struct{})
	resolve := func(r SendResult) {
		select {
		case <-resolved:
			return
		default:
			close(resolved)
			f.resultCh <- r
		}
	}
	return f, resolve
}

// listenOn posts cb to exec once the future resolves. The wait happens on a
// throwaway goroutine; cb itself only ever runs on exec, so it may safely
// touch core state.
func (f *SendFuture) listenOn(post func(func()), cb func(SendResult)) {
	go func() {
		r := <-f.resultCh
		post(func() { cb(r) })
	}()
}

// ConnectResult is the outcome of a dial attempt.
type ConnectResult struct {
	Conn Connection
	Err  error
}

// ConnectFuture is the handle returned by Transport.Dial.
type ConnectFuture struct {
	resultCh chan ConnectResult
}

// NewConnectFuture returns a fresh ConnectFuture plus its resolver.
func NewConnectFuture() (*ConnectFuture, func(ConnectResult)) {
	f := &ConnectFuture{resultCh: make(chan ConnectResult, 1)}
	resolved := make(chan struct{})
	resolve := func(r ConnectResult) {
		select {
		case <-resolved:
			return
		default:
			close(resolved)
			f.resultCh <- r
		}
	}
	return f, resolve
}

func (f *ConnectFuture) listenOn(post func(func()), cb func(ConnectResult)) {
	go func() {
		r := <-f.resultCh
		post(func() { cb(r) })
	}()
}

// SendTarget is either a known Connection or an Address the transport must
// resolve to one; transports that can route by address alone may ignore the
// Connection case.
type SendTarget struct {
	Conn    Connection
	Address Address
}

// Transport is the lower-level collaborator the core consumes (spec.md
// §6). It owns connections, socket I/O, message framing and any
// cryptographic session establishment; the core only ever sees the
// surface below.
type Transport interface {
	// Dial establishes a raw, pre-authentication connection to addr. The
	// core's bootstrap controller calls this for whichever candidate it
	// selects; the handshake engine takes over once the future resolves.
	Dial(ctx context.Context, addr Address) *ConnectFuture

	// Send transmits message to target. The returned future resolves with
	// the connection used (or an error) once the transport knows the
	// outcome.
	Send(ctx context.Context, target SendTarget, message Message) *SendFuture

	// AllConnections returns a snapshot of every connection the transport
	// currently holds open.
	AllConnections() []Connection

	// LocalAddress returns this node's own address, or false if the
	// transport has not yet established one.
	LocalAddress() (Address, bool)

	// SetListener registers the core as the transport's single event
	// listener. Called exactly once, during Facade construction.
	SetListener(Listener)
}

// Listener receives transport events. Every method is invoked from
// transport goroutines and must do nothing but post work onto the core's
// executor; the no-op hooks below document spec.md §9's "unsatisfied
// hooks... preserve them as explicit no-ops" guidance for extension points
// the core does not currently act on.
type Listener interface {
	// OnConnection fires when a new raw connection is established, before
	// authentication. The core does not act on this today; it is an
	// explicit extension point (spec.md §9).
	OnConnection(Connection)

	// OnPeerAddressAuthenticated fires when the transport itself (not the
	// core's handshake engine) learns a peer's authenticated address. The
	// core does not act on this today; it is an explicit extension point
	// (spec.md §9).
	OnPeerAddressAuthenticated(Address, Connection)

	// OnDisconnect fires when a connection closes for any reason.
	OnDisconnect(reason error, conn Connection)

	// OnError fires on transport-level errors unrelated to any one
	// connection. The core does not act on this today; it is an explicit
	// extension point (spec.md §9).
	OnError(error)

	// OnMessage fires when a message arrives on conn.
	OnMessage(message Message, conn Connection)
}

// Scheduler is the consumed delayed-execution collaborator (spec.md §6):
// both methods place their task on the core's single logical executor
// rather than running it on the timer's own goroutine. internal/executor's
// Scheduler satisfies this directly.
type Scheduler interface {
	RunAfterDelay(d time.Duration, task func()) (cancel func())
	RunAfterRandomDelay(min, max time.Duration, task func()) (cancel func())
}
