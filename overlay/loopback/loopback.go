// Package loopback provides an in-memory overlay.Transport used by the demo
// command and by overlay's own tests: every "connection" is a pair of linked
// in-memory conn values between two Network-registered nodes, and a send
// calls the far node's listener directly. It exists purely to
// exercise overlay.Core end to end without a real socket transport, which
// spec.md's Non-goals place out of scope for the core itself.
package loopback

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/foxtrade/overlaynet/overlay"
)

// Network is a shared registry of loopback nodes, standing in for whatever
// rendezvous mechanism a real transport would use to resolve an address to
// a dialable peer.
type Network struct {
	mu    sync.Mutex
	nodes map[string]*Node
}

// NewNetwork constructs an empty Network.
func NewNetwork() *Network {
	return &Network{nodes: make(map[string]*Node)}
}

// NewNode registers and returns a new Node at addr.
func (n *Network) NewNode(addr string) *Node {
	node := &Node{
		net:   n,
		addr:  overlay.NewAddress(addr),
		conns: make(map[string]*conn),
	}
	n.mu.Lock()
	n.nodes[addr] = node
	n.mu.Unlock()
	return node
}

func (n *Network) lookup(addr string) (*Node, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	node, ok := n.nodes[addr]
	return node, ok
}

// Node implements overlay.Transport over the in-memory Network.
type Node struct {
	net      *Network
	addr     overlay.Address
	listener overlay.Listener

	mu    sync.Mutex
	conns map[string]*conn
}

// SetListener implements overlay.Transport.
func (node *Node) SetListener(l overlay.Listener) { node.listener = l }

// LocalAddress implements overlay.Transport.
func (node *Node) LocalAddress() (overlay.Address, bool) { return node.addr, true }

// AllConnections implements overlay.Transport.
func (node *Node) AllConnections() []overlay.Connection {
	node.mu.Lock()
	defer node.mu.Unlock()
	out := make([]overlay.Connection, 0, len(node.conns))
	for _, c := range node.conns {
		out = append(out, c)
	}
	return out
}

// Dial implements overlay.Transport by synthesizing a connected pair of
// conns, one owned by this node and one by the remote, and notifying the
// remote's listener of the new inbound connection.
func (node *Node) Dial(ctx context.Context, addr overlay.Address) *overlay.ConnectFuture {
	future, resolve := overlay.NewConnectFuture()
	go func() {
		remote, ok := node.net.lookup(addr.Full())
		if !ok {
			resolve(overlay.ConnectResult{Err: errAddrNotFound(addr)})
			return
		}
		localConn, remoteConn := newConnPair(node.addr, remote.addr)
		localConn.setType(overlay.Outbound)
		remoteConn.setType(overlay.Inbound)

		node.addConn(localConn)
		remote.addConn(remoteConn)

		localConn.owner = node
		remoteConn.owner = remote
		localConn.peer = remote
		remoteConn.peer = node
		localConn.counterpart = remoteConn
		remoteConn.counterpart = localConn

		if remote.listener != nil {
			remote.listener.OnConnection(remoteConn)
		}
		resolve(overlay.ConnectResult{Conn: localConn})
	}()
	return future
}

// Send implements overlay.Transport by delivering message directly to the
// peer node's listener, simulating network transit with a small delay.
func (node *Node) Send(ctx context.Context, target overlay.SendTarget, message overlay.Message) *overlay.SendFuture {
	future, resolve := overlay.NewSendFuture()
	c, ok := target.Conn.(*conn)
	if !ok {
		node.mu.Lock()
		for _, existing := range node.conns {
			if a, ok2 := existing.PeerAddress(); ok2 && a.Full() == target.Address.Full() {
				c = existing
				ok = true
				break
			}
		}
		node.mu.Unlock()
	}
	if !ok || c == nil {
		resolve(overlay.SendResult{Err: errAddrNotFound(target.Address)})
		return future
	}
	go func() {
		time.Sleep(time.Millisecond)
		c.touch()
		if c.peer != nil && c.peer.listener != nil && c.counterpart != nil {
			c.counterpart.touch()
			c.peer.listener.OnMessage(message, c.counterpart)
		}
		resolve(overlay.SendResult{Conn: c})
	}()
	return future
}

func (node *Node) addConn(c *conn) {
	node.mu.Lock()
	defer node.mu.Unlock()
	node.conns[c.uid] = c
}

func (node *Node) removeConn(uid string) {
	node.mu.Lock()
	defer node.mu.Unlock()
	delete(node.conns, uid)
}

func errAddrNotFound(addr overlay.Address) error {
	return &addrNotFoundError{addr: addr}
}

type addrNotFoundError struct{ addr overlay.Address }

func (e *addrNotFoundError) Error() string {
	return "loopback: no node registered at " + e.addr.Full()
}

// conn implements overlay.Connection over a loopback pairing.
type conn struct {
	uid         string
	self        overlay.Address
	owner       *Node // the Node whose AllConnections/removeConn this conn is tracked under
	peer        *Node // the Node on the far end, whose listener receives sends to this conn
	counterpart *conn // this connection's object as seen from the far end

	mu            sync.Mutex
	peerAddr      overlay.Address
	authenticated bool
	lastActivity  time.Time
	connType      overlay.ConnectionType
}

func newConnPair(a, b overlay.Address) (*conn, *conn) {
	now := time.Now()
	return &conn{uid: uuid.NewString(), self: a, lastActivity: now},
		&conn{uid: uuid.NewString(), self: b, lastActivity: now}
}

func (c *conn) setType(t overlay.ConnectionType) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connType = t
}

func (c *conn) touch() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastActivity = time.Now()
}

// UID implements overlay.Connection.
func (c *conn) UID() string { return c.uid }

// PeerAddress implements overlay.Connection.
func (c *conn) PeerAddress() (overlay.Address, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.peerAddr.IsZero() {
		return overlay.Address{}, false
	}
	return c.peerAddr, true
}

// IsAuthenticated implements overlay.Connection.
func (c *conn) IsAuthenticated() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.authenticated
}

// LastActivity implements overlay.Connection.
func (c *conn) LastActivity() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastActivity
}

// Type implements overlay.Connection.
func (c *conn) Type() overlay.ConnectionType {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connType
}

// SetType implements overlay.Connection.
func (c *conn) SetType(t overlay.ConnectionType) { c.setType(t) }

// SetAuthenticated implements overlay.Connection.
func (c *conn) SetAuthenticated(addr overlay.Address) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.peerAddr = addr
	c.authenticated = true
}

// Shutdown implements overlay.Connection, tearing down both sides of the
// pairing: each half is removed from its own owning Node and that Node's
// listener is notified, matching a real transport closing the whole
// connection rather than just one end's view of it.
func (c *conn) Shutdown(onComplete func()) {
	go func() {
		if c.owner != nil {
			c.owner.removeConn(c.uid)
			if c.owner.listener != nil {
				c.owner.listener.OnDisconnect(nil, c)
			}
		}
		if c.counterpart != nil && c.counterpart.owner != nil {
			c.counterpart.owner.removeConn(c.counterpart.uid)
			if c.counterpart.owner.listener != nil {
				c.counterpart.owner.listener.OnDisconnect(nil, c.counterpart)
			}
		}
		if onComplete != nil {
			onComplete()
		}
	}()
}
