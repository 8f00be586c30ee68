package overlay

import (
	"context"
	"errors"
)

var errFakeDialUnsupported = errors.New("fakeTransport: dial not supported")

// fakeTransport records every Send call and resolves each future before
// Send returns. Callbacks still run on listenOn's goroutine, so a test that
// checks a callback's effect polls for it. Dial always fails since no test in
// this package needs it; facade-level dial behavior is exercised via the
// loopback package instead.
type fakeTransport struct {
	sent []sentMessage

	sendErr error
}

type sentMessage struct {
	target  SendTarget
	message Message
}

func (f *fakeTransport) Dial(ctx context.Context, addr Address) *ConnectFuture {
	future, resolve := NewConnectFuture()
	resolve(ConnectResult{Err: errFakeDialUnsupported})
	return future
}

func (f *fakeTransport) Send(ctx context.Context, target SendTarget, message Message) *SendFuture {
	f.sent = append(f.sent, sentMessage{target: target, message: message})
	future, resolve := NewSendFuture()
	if f.sendErr != nil {
		resolve(SendResult{Err: f.sendErr})
	} else {
		resolve(SendResult{Conn: target.Conn})
	}
	return future
}

func (f *fakeTransport) AllConnections() []Connection { return nil }

func (f *fakeTransport) LocalAddress() (Address, bool) { return Address{}, false }

func (f *fakeTransport) SetListener(Listener) {}

func immediatePost(task func()) { task() }
