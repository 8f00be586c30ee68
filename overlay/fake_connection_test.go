package overlay

import (
	"time"

	"github.com/google/uuid"
)

// fakeConnection is a minimal in-memory Connection used across this
// package's tests; it never touches a real transport.
type fakeConnection struct {
	uid           string
	peerAddr      Address
	authenticated bool
	lastActivity  time.Time
	connType      ConnectionType
	shutdownCalls int
}

func newFakeConnection() *fakeConnection {
	return &fakeConnection{uid: uuid.NewString(), lastActivity: time.Now()}
}

func (c *fakeConnection) UID() string { return c.uid }

func (c *fakeConnection) PeerAddress() (Address, bool) {
	if c.peerAddr.IsZero() {
		return Address{}, false
	}
	return c.peerAddr, true
}

func (c *fakeConnection) IsAuthenticated() bool { return c.authenticated }

func (c *fakeConnection) LastActivity() time.Time { return c.lastActivity }

func (c *fakeConnection) Type() ConnectionType { return c.connType }

func (c *fakeConnection) SetType(t ConnectionType) { c.connType = t }

func (c *fakeConnection) SetAuthenticated(addr Address) {
	c.peerAddr = addr
	c.authenticated = true
}

func (c *fakeConnection) Shutdown(onComplete func()) {
	c.shutdownCalls++
	if onComplete != nil {
		onComplete()
	}
}
