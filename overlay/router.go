package overlay

import (
	"context"
	"log/slog"
)

// Router dispatches inbound messages to the right component by kind
// (spec.md §4.5) and implements the reported-peer merge/purge rule
// (spec.md §4.6): GetPeersResponse/Request gossip is merged into the
// reported set, capped at Config.MaxReportedPeers by purging uniformly
// random entries, and a single incoming burst larger than
// Config.MisbehaviorThreshold is treated as misbehavior instead of merged.
type Router struct {
	log        *slog.Logger
	peers      *PeerTable
	handshake  *HandshakeEngine
	maintainer *MaintenanceLoop
	transport  Transport
	cfg        Config
	metrics    *Metrics

	postFn func(func())
}

// SetPost wires postFn to the core's executor Post method.
func (r *Router) SetPost(post func(func())) { r.postFn = post }

func (r *Router) post(task func()) {
	if r.postFn != nil {
		r.postFn(task)
		return
	}
	task()
}

// NewRouter constructs a Router over the engine/loop it dispatches to.
func NewRouter(log *slog.Logger, peers *PeerTable, handshake *HandshakeEngine, maintainer *MaintenanceLoop, transport Transport, cfg Config, metrics *Metrics) *Router {
	return &Router{
		log:        log.With("component", "router"),
		peers:      peers,
		handshake:  handshake,
		maintainer: maintainer,
		transport:  transport,
		cfg:        cfg,
		metrics:    metrics,
	}
}

// Dispatch routes an inbound message from conn. Must only ever be called
// on the core's executor.
func (r *Router) Dispatch(ctx context.Context, msg Message, conn Connection) {
	switch m := msg.(type) {
	case AuthenticationRequest:
		r.handshake.RespondToAuthenticationRequest(ctx, m, conn)
	case AuthenticationResponse:
		if err := r.handshake.HandleAuthenticationResponse(m, conn); err != nil {
			r.log.Debug("authentication response rejected", "error", err)
		}
	case PingMessage:
		r.handlePing(ctx, m, conn)
	case PongMessage:
		r.handlePong(m, conn)
	case GetPeersRequest:
		r.handleGetPeersRequest(ctx, m, conn)
	case GetPeersResponse:
		r.mergeReported(m.PeerAddresses, conn)
	default:
		r.log.Warn("unroutable message kind", "kind", msg.messageKind())
	}
}

func (r *Router) handlePing(ctx context.Context, ping PingMessage, conn Connection) {
	addr, ok := conn.PeerAddress()
	if !ok {
		return
	}
	future := r.transport.Send(ctx, SendTarget{Conn: conn, Address: addr}, PongMessage{Nonce: ping.Nonce})
	future.listenOn(r.post, func(res SendResult) {
		if res.Err != nil {
			r.log.Debug("pong send failed", "address", addr, "error", res.Err)
		}
	})
}

func (r *Router) handlePong(pong PongMessage, conn Connection) {
	addr, ok := conn.PeerAddress()
	if !ok {
		return
	}
	r.maintainer.HandlePong(addr, pong)
}

// handleGetPeersRequest merges the sender's address and its gossip list
// into the reported set, then replies with this node's own known addresses
// (spec.md §4.5); a reply-send failure evicts the requester.
func (r *Router) handleGetPeersRequest(ctx context.Context, req GetPeersRequest, conn Connection) {
	if !req.Address.IsZero() {
		r.mergeReported([]Address{req.Address}, conn)
	}
	r.mergeReported(req.PeerAddresses, conn)

	addr, ok := conn.PeerAddress()
	if !ok {
		return
	}
	resp := GetPeersResponse{PeerAddresses: r.knownAddresses()}
	future := r.transport.Send(ctx, SendTarget{Conn: conn, Address: addr}, resp)
	future.listenOn(r.post, func(res SendResult) {
		if res.Err != nil {
			r.log.Debug("get-peers response send failed, evicting peer", "address", addr, "error", res.Err)
			if _, ok := r.peers.RemoveAuthenticated(addr); ok {
				conn.Shutdown(nil)
			}
		}
	})
}

// knownAddresses is the union of the reported set and every authenticated
// peer's address, as spec.md §4.4/§4.5 define a GetPeersResponse's payload.
func (r *Router) knownAddresses() []Address {
	reported := r.peers.AllReported()
	authenticated := r.peers.AllAuthenticatedAddresses()
	out := make([]Address, 0, len(reported)+len(authenticated))
	out = append(out, reported...)
	out = append(out, authenticated...)
	return out
}

// mergeReported applies spec.md §4.6's merge/purge rule to a batch of
// gossiped addresses: a single burst larger than MisbehaviorThreshold is
// treated as misbehavior and shuts conn down instead of being merged.
func (r *Router) mergeReported(addrs []Address, conn Connection) {
	if len(addrs) == 0 {
		return
	}
	if len(addrs) > r.cfg.MisbehaviorThreshold {
		r.metrics.RecordMisbehavior()
		r.log.Warn("reported-peer burst exceeds misbehavior threshold, evicting sender", "incoming", len(addrs))
		if addr, ok := conn.PeerAddress(); ok {
			r.peers.RemoveAuthenticated(addr)
		}
		conn.Shutdown(nil)
		return
	}
	for _, a := range addrs {
		if a.IsZero() {
			continue
		}
		r.peers.AddReported(a)
	}
	if over := r.peers.ReportedCount() - r.cfg.MaxReportedPeers; over > 0 {
		r.peers.PurgeRandomReported(over)
	}
}
