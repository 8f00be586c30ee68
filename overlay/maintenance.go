package overlay

import (
	"context"
	"log/slog"
	"time"
)

// MaintenanceLoop owns the two node-wide, self-rearming randomized timers
// spec.md §4.4 defines: a ping timer (5-10 min) that also triggers a
// capacity check, and a get-peers gossip timer (1-2 min). Each firing walks
// every authenticated peer and sends to it after a small per-peer jitter, so
// a large peer set doesn't burst all its sends in the same instant.
type MaintenanceLoop struct {
	log       *slog.Logger
	peers     *PeerTable
	transport Transport
	scheduler Scheduler
	capacity  func()
	evict     func(addr Address, conn Connection, reason string)
	cfg       Config

	postFn func(func())

	pingNonces map[string]int64 // address -> nonce of the most recently sent ping

	pingCancel     func()
	getPeersCancel func()
}

// SetPost wires postFn to the core's executor Post method.
func (m *MaintenanceLoop) SetPost(post func(func())) { m.postFn = post }

func (m *MaintenanceLoop) post(task func()) {
	if m.postFn != nil {
		m.postFn(task)
		return
	}
	task()
}

// NewMaintenanceLoop constructs a MaintenanceLoop. capacityCheck is invoked
// at the top of every ping tick (spec.md §4.3: "triggered... by the
// maintenance timer"); evict tears a peer down on send failure or protocol
// violation.
func NewMaintenanceLoop(log *slog.Logger, peers *PeerTable, transport Transport, scheduler Scheduler, cfg Config, capacityCheck func(), evict func(Address, Connection, string)) *MaintenanceLoop {
	return &MaintenanceLoop{
		log:        log.With("component", "maintenance"),
		peers:      peers,
		transport:  transport,
		scheduler:  scheduler,
		capacity:   capacityCheck,
		evict:      evict,
		cfg:        cfg,
		pingNonces: make(map[string]int64),
	}
}

// Start arms both node-wide timers. Called once, from Core.Start.
func (m *MaintenanceLoop) Start() {
	m.armPing()
	m.armGetPeers()
}

func (m *MaintenanceLoop) armPing() {
	m.pingCancel = m.scheduler.RunAfterRandomDelay(m.cfg.PingIntervalMin, m.cfg.PingIntervalMax, m.firePing)
}

func (m *MaintenanceLoop) armGetPeers() {
	m.getPeersCancel = m.scheduler.RunAfterRandomDelay(m.cfg.GetPeersIntervalMin, m.cfg.GetPeersIntervalMax, m.fireGetPeers)
}

// firePing runs a capacity check, then pings every authenticated peer whose
// connection has been idle longer than Config.PingAfterInactivity, each
// after an independent 1-10ms jitter (spec.md §4.4).
func (m *MaintenanceLoop) firePing() {
	if m.capacity != nil {
		m.capacity()
	}
	now := time.Now()
	for _, conn := range m.peers.AllAuthenticated() {
		addr, ok := conn.PeerAddress()
		if !ok {
			continue
		}
		if now.Sub(conn.LastActivity()) < m.cfg.PingAfterInactivity {
			continue
		}
		m.scheduler.RunAfterRandomDelay(time.Millisecond, 10*time.Millisecond, func() {
			m.sendPing(addr)
		})
	}
	m.armPing()
}

func (m *MaintenanceLoop) sendPing(addr Address) {
	conn, ok := m.peers.AuthenticatedConnection(addr)
	if !ok {
		return
	}
	nonce := time.Now().UnixNano()
	m.pingNonces[addr.Full()] = nonce
	future := m.transport.Send(context.Background(), SendTarget{Conn: conn, Address: addr}, PingMessage{Nonce: nonce})
	future.listenOn(m.post, func(res SendResult) {
		if res.Err == nil {
			return
		}
		m.log.Debug("ping send failed, evicting peer", "address", addr, "error", res.Err)
		if m.evict != nil {
			m.evict(addr, conn, "ping_send_failed")
		}
	})
}

// fireGetPeers gossips this node's known addresses to every authenticated
// peer, each after an independent 5-10ms jitter (spec.md §4.4).
func (m *MaintenanceLoop) fireGetPeers() {
	own, _ := m.transport.LocalAddress()
	known := m.knownAddresses()
	for _, conn := range m.peers.AllAuthenticated() {
		addr, ok := conn.PeerAddress()
		if !ok {
			continue
		}
		req := GetPeersRequest{Address: own, PeerAddresses: known}
		m.scheduler.RunAfterRandomDelay(5*time.Millisecond, 10*time.Millisecond, func() {
			m.sendGetPeers(addr, req)
		})
	}
	m.armGetPeers()
}

func (m *MaintenanceLoop) sendGetPeers(addr Address, req GetPeersRequest) {
	conn, ok := m.peers.AuthenticatedConnection(addr)
	if !ok {
		return
	}
	future := m.transport.Send(context.Background(), SendTarget{Conn: conn, Address: addr}, req)
	future.listenOn(m.post, func(res SendResult) {
		if res.Err == nil {
			return
		}
		m.log.Debug("get-peers send failed, evicting peer", "address", addr, "error", res.Err)
		if m.evict != nil {
			m.evict(addr, conn, "get_peers_send_failed")
		}
	})
}

// knownAddresses is the union of the reported set and every authenticated
// peer's address, as spec.md §4.4 defines a GetPeersRequest's payload.
func (m *MaintenanceLoop) knownAddresses() []Address {
	reported := m.peers.AllReported()
	authenticated := m.peers.AllAuthenticatedAddresses()
	out := make([]Address, 0, len(reported)+len(authenticated))
	out = append(out, reported...)
	out = append(out, authenticated...)
	return out
}

// StopAll cancels both node-wide timers, used on shutdown (spec.md §9 Open
// Question, resolved: both timer families are cancelled on shutdown rather
// than left to fire against a torn-down core).
func (m *MaintenanceLoop) StopAll() {
	if m.pingCancel != nil {
		m.pingCancel()
	}
	if m.getPeersCancel != nil {
		m.getPeersCancel()
	}
}

// HandlePong validates that pong echoes the nonce of the most recent ping
// sent to addr; a mismatch is a protocol violation and evicts the peer
// (spec.md §4.5).
func (m *MaintenanceLoop) HandlePong(addr Address, pong PongMessage) {
	conn, ok := m.peers.AuthenticatedConnection(addr)
	if !ok {
		return
	}
	want, ok := m.pingNonces[addr.Full()]
	if !ok {
		return
	}
	if pong.Nonce != want {
		m.log.Warn("pong nonce mismatch, evicting peer", "address", addr)
		if m.evict != nil {
			m.evict(addr, conn, "pong_nonce_mismatch")
		}
		return
	}
	delete(m.pingNonces, addr.Full())
}
