package overlay

import (
	"context"
	"crypto/rand"
	"log/slog"
)

// HandshakeEngine implements the single-shot, two-entry-point
// authentication exchange (spec.md §4.1): requestAuthentication drives the
// outbound side, respondToAuthenticationRequest drives the inbound side.
// It is structurally grounded on go-sdk/auth's Peer (a struct owning the
// transport, a nonce-keyed session map, and two verbs for the two roles)
// but trades Peer's wallet-signature binding for a plain random nonce,
// since spec.md's Non-goals explicitly exclude transport-level
// cryptographic authentication — only the core's bookkeeping protocol is
// in scope here.
type HandshakeEngine struct {
	log       *slog.Logger
	peers     *PeerTable
	transport Transport
	scheduler Scheduler
	cfg       Config
	metrics   *Metrics

	// postFn places a callback on the core's executor; set by Facade to
	// the executor's Post method so SendFuture callbacks never run on a
	// transport goroutine.
	postFn func(func())

	onAuthenticated func(Address, Connection)
	onFailed        func(Address)
}

// SetPost wires postFn after construction, since Facade builds the
// executor and the HandshakeEngine in the same step.
func (h *HandshakeEngine) SetPost(post func(func())) { h.postFn = post }

// NewHandshakeEngine constructs a HandshakeEngine. onAuthenticated is
// invoked (on the executor) whenever a handshake completes in either role.
// onFailed is invoked whenever an outbound (requester-role) handshake this
// node initiated fails — send failure, timeout, nonce mismatch, or
// rejection — so a caller driving a retry cascade (the bootstrap
// controller) can immediately try another candidate.
func NewHandshakeEngine(log *slog.Logger, peers *PeerTable, transport Transport, scheduler Scheduler, cfg Config, metrics *Metrics, onAuthenticated func(Address, Connection), onFailed func(Address)) *HandshakeEngine {
	return &HandshakeEngine{
		log:             log.With("component", "handshake"),
		peers:           peers,
		transport:       transport,
		scheduler:       scheduler,
		cfg:             cfg,
		metrics:         metrics,
		onAuthenticated: onAuthenticated,
		onFailed:        onFailed,
	}
}

func newNonce() [32]byte {
	var n [32]byte
	_, _ = rand.Read(n[:])
	return n
}

// RequestAuthentication drives the outbound half of the handshake: send an
// AuthenticationRequest over conn and record addr as in-flight with this
// node playing the requester role. If addr already has an in-flight
// handshake playing the responder role, that is the simultaneous-connect
// race spec.md §4.1 calls out; it is resolved by suppressing this request
// and letting the existing responder-role exchange finish.
func (h *HandshakeEngine) RequestAuthentication(ctx context.Context, addr Address, conn Connection) error {
	if h.peers.IsAuthenticated(addr) {
		return ErrAlreadyAuthenticated
	}
	if existing, ok := h.peers.InFlightHandshake(addr); ok {
		if existing.role == roleResponder {
			h.log.Debug("suppressing outbound handshake, inbound already in flight", "address", addr)
			return nil
		}
		return ErrHandshakeInFlight
	}

	nonce := newNonce()
	h.peers.BeginHandshake(addr, conn, nonce, roleRequester)

	cancel := h.scheduler.RunAfterDelay(h.cfg.HandshakeTimeout, func() {
		h.timeoutHandshake(addr)
	})

	own, _ := h.transport.LocalAddress()
	req := AuthenticationRequest{Address: own, Nonce: nonce}
	future := h.transport.Send(ctx, SendTarget{Conn: conn, Address: addr}, req)
	future.listenOn(h.post, func(res SendResult) {
		if res.Err != nil {
			cancel()
			h.peers.AbandonHandshake(addr)
			h.metrics.RecordHandshake("requester", "send_failed")
			h.log.Warn("failed to send authentication request", "address", addr, "error", res.Err)
			if h.onFailed != nil {
				h.onFailed(addr)
			}
		}
	})
	return nil
}

// post lets HandshakeEngine satisfy the SendFuture callback contract
// without depending on internal/executor directly; Facade wires the real
// Post function in via SetPost.
func (h *HandshakeEngine) post(task func()) {
	if h.postFn != nil {
		h.postFn(task)
		return
	}
	task()
}

// RespondToAuthenticationRequest drives the inbound half: a peer sent us an
// AuthenticationRequest on conn. If we already have an in-flight
// requester-role handshake for the same address (we dialed them at the
// same moment they dialed us), this node's responder role wins and the
// outbound attempt is abandoned — spec.md §4.1's race suppression,
// resolved by a fixed tie-break rather than a coin flip, so both peers
// converge on the same outcome deterministically only when exactly one
// side observes both attempts; the common case (each side sees only its
// own attempt) still suppresses symmetrically because each side abandons
// its own requester entry in favor of the inbound responder role.
func (h *HandshakeEngine) RespondToAuthenticationRequest(ctx context.Context, req AuthenticationRequest, conn Connection) {
	addr := req.Address

	if h.peers.IsAuthenticated(addr) {
		h.log.Debug("authentication request from already-authenticated peer", "address", addr)
		return
	}
	if existing, ok := h.peers.InFlightHandshake(addr); ok && existing.role == roleRequester {
		h.peers.AbandonHandshake(addr)
	}

	conn.SetType(AuthRequest)

	responseNonce := newNonce()
	h.peers.BeginHandshake(addr, conn, responseNonce, roleResponder)

	own, _ := h.transport.LocalAddress()
	resp := AuthenticationResponse{
		Address:       own,
		Nonce:         responseNonce,
		EchoedNonce:   req.Nonce,
		Authenticated: true,
	}
	future := h.transport.Send(ctx, SendTarget{Conn: conn, Address: addr}, resp)
	future.listenOn(h.post, func(res SendResult) {
		if res.Err != nil {
			h.peers.AbandonHandshake(addr)
			h.metrics.RecordHandshake("responder", "send_failed")
			h.log.Warn("failed to send authentication response", "address", addr, "error", res.Err)
			return
		}
		conn.SetType(Passive)
		h.peers.CompleteHandshake(addr, conn)
		h.metrics.RecordHandshake("responder", "success")
		if h.onAuthenticated != nil {
			h.onAuthenticated(addr, conn)
		}
	})
}

// HandleAuthenticationResponse completes the requester side once the
// response arrives. A nonce mismatch means the response does not belong to
// the handshake we started and the attempt is abandoned rather than
// authenticated.
func (h *HandshakeEngine) HandleAuthenticationResponse(resp AuthenticationResponse, conn Connection) error {
	addr := resp.Address
	existing, ok := h.peers.InFlightHandshake(addr)
	if !ok || existing.role != roleRequester {
		return ErrUnknownConnection
	}
	if existing.nonce != resp.EchoedNonce {
		h.peers.AbandonHandshake(addr)
		h.metrics.RecordHandshake("requester", "nonce_mismatch")
		if h.onFailed != nil {
			h.onFailed(addr)
		}
		return ErrNonceMismatch
	}
	if !resp.Authenticated {
		h.peers.AbandonHandshake(addr)
		h.metrics.RecordHandshake("requester", "rejected")
		if h.onFailed != nil {
			h.onFailed(addr)
		}
		return nil
	}
	conn.SetType(Active)
	h.peers.CompleteHandshake(addr, conn)
	h.metrics.RecordHandshake("requester", "success")
	if h.onAuthenticated != nil {
		h.onAuthenticated(addr, conn)
	}
	return nil
}

func (h *HandshakeEngine) timeoutHandshake(addr Address) {
	if existing, ok := h.peers.InFlightHandshake(addr); ok {
		h.peers.AbandonHandshake(addr)
		h.metrics.RecordHandshake("requester", "timeout")
		h.log.Debug("handshake timed out", "address", addr)
		if existing.role == roleRequester && h.onFailed != nil {
			h.onFailed(addr)
		}
	}
}
