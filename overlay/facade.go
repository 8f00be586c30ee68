package overlay

import (
	"context"
	"log/slog"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/foxtrade/overlaynet/internal/executor"
)

// Core is the facade spec.md §4.8 describes: the single entry point an
// application wires a Transport into. It owns the executor every other
// component's mutations run on, and exposes the handful of operations
// callers need: New/Start/Shutdown/Broadcast/
// AuthenticateToDirectMessagePeer/RemoveOwnSeedAddress. Grounded on
// gebunden-src/app.go's App struct (ctx/cancel/logger plus a handful of
// owned services, with Start/Shutdown lifecycle methods).
type Core struct {
	log *slog.Logger
	cfg Config

	exec      *executor.Executor
	scheduler *executor.Scheduler
	transport Transport

	peers      *PeerTable
	handshake  *HandshakeEngine
	bootstrap  *BootstrapController
	capacity   *CapacityManager
	maintainer *MaintenanceLoop
	router     *Router
	broadcast  *Broadcaster
	metrics    *Metrics

	runWg     sync.WaitGroup
	startOnce sync.Once
	stopOnce  sync.Once
}

// Options configures a new Core.
type Options struct {
	Config     Config
	Seeds      []Address
	Logger     *slog.Logger
	Registerer prometheus.Registerer
}

// New constructs a Core wired to transport but does not yet start it; call
// Start to begin accepting transport events and running the bootstrap and
// maintenance loops.
func New(transport Transport, opts Options) *Core {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	log = log.With("component", "overlay")

	exec := executor.New()
	scheduler := executor.NewScheduler(exec)
	metrics := NewMetrics(opts.Registerer)
	peers := NewPeerTable(log)

	c := &Core{
		log:       log,
		cfg:       opts.Config,
		exec:      exec,
		scheduler: scheduler,
		transport: transport,
		peers:     peers,
		metrics:   metrics,
	}

	c.handshake = NewHandshakeEngine(log, peers, transport, scheduler, opts.Config, metrics, c.onAuthenticated, c.onHandshakeFailed)
	c.handshake.SetPost(exec.Post)

	c.capacity = NewCapacityManager(log, peers, opts.Config)
	c.maintainer = NewMaintenanceLoop(log, peers, transport, scheduler, opts.Config, c.runCapacityCheck, c.evictPeer)
	c.maintainer.SetPost(exec.Post)

	c.router = NewRouter(log, peers, c.handshake, c.maintainer, transport, opts.Config, metrics)
	c.router.SetPost(exec.Post)

	c.broadcast = NewBroadcaster(log, peers, transport, c.capacity, metrics)
	c.broadcast.SetPost(exec.Post)

	c.bootstrap = NewBootstrapController(log, peers, opts.Config, opts.Seeds, c.connectCandidate, c.scheduleBootstrapRetry)

	transport.SetListener(c)
	return c
}

// Start begins running the core's executor loop and kicks off the first
// bootstrap attempt.
func (c *Core) Start(ctx context.Context) {
	c.startOnce.Do(func() {
		c.runWg.Add(1)
		go func() {
			defer c.runWg.Done()
			c.exec.Run()
		}()
		if addr, ok := c.transport.LocalAddress(); ok {
			c.bootstrap.SetOwnAddress(addr)
		}
		c.exec.Post(func() {
			c.maintainer.Start()
			c.bootstrap.Attempt()
		})
	})
}

// Shutdown cancels the maintenance timers and stops the executor; any
// other delayed task that fires afterwards is dropped, since Post on a
// stopped executor is a no-op. It blocks until the executor goroutine has
// exited.
func (c *Core) Shutdown() {
	c.stopOnce.Do(func() {
		c.exec.Post(func() { c.maintainer.StopAll() })
		c.exec.Stop()
		c.runWg.Wait()
	})
}

// Broadcast fans payload out to every authenticated peer (spec.md §4.7).
// Returns ErrShutdown if the core has already been shut down.
func (c *Core) Broadcast(ctx context.Context, payload []byte) error {
	if c.exec.Stopped() {
		return ErrShutdown
	}
	c.exec.Post(func() { c.broadcast.Broadcast(ctx, payload, "") })
	return nil
}

// AuthenticateToDirectMessagePeer dials addr and drives the outbound
// handshake, used when an application wants a direct authenticated channel
// to a specific peer rather than waiting for bootstrap/gossip to reach it
// (spec.md §4.8). Returns ErrShutdown if the core has already been shut
// down.
func (c *Core) AuthenticateToDirectMessagePeer(ctx context.Context, addr Address) error {
	if c.exec.Stopped() {
		return ErrShutdown
	}
	c.exec.Post(func() {
		future := c.transport.Dial(ctx, addr)
		future.listenOn(c.exec.Post, func(res ConnectResult) {
			if res.Err != nil {
				c.log.Debug("direct dial failed", "address", addr, "error", res.Err)
				return
			}
			if err := c.handshake.RequestAuthentication(ctx, addr, res.Conn); err != nil {
				c.log.Debug("direct authentication request rejected", "address", addr, "error", err)
			}
		})
	})
	return nil
}

// RemoveOwnSeedAddress drops addr from the bootstrap seed list (spec.md
// §4.8), used once a node learns one of its configured seeds is itself.
func (c *Core) RemoveOwnSeedAddress(addr Address) {
	c.bootstrap.RemoveOwnSeedAddress(addr)
}

// AuthenticatedAddresses returns every authenticated peer's address as a
// string, satisfying debughttp.Inspector.
func (c *Core) AuthenticatedAddresses() []string {
	addrs := c.peers.AllAuthenticatedAddresses()
	out := make([]string, len(addrs))
	for i, a := range addrs {
		out[i] = a.Full()
	}
	return out
}

// ReportedAddresses returns every reported peer's address as a string,
// satisfying debughttp.Inspector.
func (c *Core) ReportedAddresses() []string {
	addrs := c.peers.AllReported()
	out := make([]string, len(addrs))
	for i, a := range addrs {
		out[i] = a.Full()
	}
	return out
}

// AuthenticatedCount satisfies debughttp.Inspector.
func (c *Core) AuthenticatedCount() int { return c.peers.AuthenticatedCount() }

// ReportedCount satisfies debughttp.Inspector.
func (c *Core) ReportedCount() int { return c.peers.ReportedCount() }

// MetricsHandler returns the http.Handler serving this core's Prometheus
// metrics (SPEC_FULL.md §4.10/§4.11), for mounting at /metrics by an
// embedding process's debughttp.Handler.
func (c *Core) MetricsHandler() http.Handler { return c.metrics.Handler() }

func (c *Core) onAuthenticated(addr Address, conn Connection) {
	c.metrics.SetGauges(c.peers.AuthenticatedCount(), c.peers.ReportedCount(), len(c.peers.inFlight))
	c.runCapacityCheck()
	// spec.md §4.2 (2)/(5): a success below the low-prio cap continues the
	// bootstrap cascade rather than waiting for the back-off timer.
	c.bootstrap.Attempt()
}

// onHandshakeFailed continues the bootstrap cascade immediately after an
// outbound handshake fails (send failure, timeout, nonce mismatch, or
// rejection), instead of relying solely on the 1-2 minute back-off retry
// (spec.md §4.2 (2)/(5)). Attempt is a no-op once the low-prio cap is
// reached, so this is safe to call unconditionally even for a handshake
// that was not part of a bootstrap cascade (e.g. a direct dial).
func (c *Core) onHandshakeFailed(addr Address) {
	c.bootstrap.Attempt()
}

// evictPeer removes addr's authenticated binding and shuts its connection
// down, used by the maintenance loop on ping/get-peers send failure or a
// pong nonce mismatch (spec.md §4.5/§4.4).
func (c *Core) evictPeer(addr Address, conn Connection, reason string) {
	if _, ok := c.peers.RemoveAuthenticated(addr); ok {
		c.log.Debug("evicting peer", "address", addr, "reason", reason)
		c.metrics.SetGauges(c.peers.AuthenticatedCount(), c.peers.ReportedCount(), len(c.peers.inFlight))
		conn.Shutdown(nil)
	}
}

// runCapacityCheck performs a single capacity-check pass (spec.md §4.3):
// at most one eviction per call. After every eviction a follow-up check is
// scheduled 100-500ms later to drain any remaining excess, rather than
// draining it synchronously in one burst.
func (c *Core) runCapacityCheck() {
	evicted, tier, ok := c.capacity.Check()
	if !ok {
		return
	}
	c.metrics.RecordEviction(tier)
	evicted.Shutdown(nil)
	c.metrics.SetGauges(c.peers.AuthenticatedCount(), c.peers.ReportedCount(), len(c.peers.inFlight))
	c.scheduler.RunAfterRandomDelay(c.cfg.CapacityRecheckMin, c.cfg.CapacityRecheckMax, func() {
		c.runCapacityCheck()
	})
}

func (c *Core) connectCandidate(addr Address) {
	cid := uuid.NewString()
	c.log.Debug("bootstrap dialing candidate", "address", addr, "connection_id", cid)
	future := c.transport.Dial(context.Background(), addr)
	future.listenOn(c.exec.Post, func(res ConnectResult) {
		if res.Err != nil {
			c.log.Debug("bootstrap dial failed", "address", addr, "error", res.Err)
			// spec.md §4.2 (2): a failed candidate is retried immediately
			// with another pick rather than waiting for the back-off timer.
			c.bootstrap.Attempt()
			return
		}
		if err := c.handshake.RequestAuthentication(context.Background(), addr, res.Conn); err != nil {
			c.log.Debug("bootstrap authentication request rejected", "address", addr, "error", err)
			c.bootstrap.Attempt()
		}
	})
}

func (c *Core) scheduleBootstrapRetry() {
	c.scheduler.RunAfterRandomDelay(c.cfg.BootstrapRetryMin, c.cfg.BootstrapRetryMax, func() {
		c.bootstrap.Attempt()
	})
}

// Listener implementation: every method posts onto the executor and
// returns immediately, since transport callbacks run on transport
// goroutines (spec.md §5).

// OnConnection is an explicit no-op extension point (spec.md §9): the core
// does not currently act on raw pre-authentication connections.
func (c *Core) OnConnection(conn Connection) {}

// OnPeerAddressAuthenticated is an explicit no-op extension point (spec.md
// §9): the core's own handshake engine is the sole authority on
// authentication today.
func (c *Core) OnPeerAddressAuthenticated(addr Address, conn Connection) {}

// OnError is an explicit no-op extension point (spec.md §9): transport-wide
// errors not tied to any one connection have no core-level handler yet.
func (c *Core) OnError(err error) {}

// OnDisconnect removes conn's authenticated binding from the peer table. If
// conn was not authenticated but carries a peer address, the in-flight
// handshake for that address is abandoned; a connection with no peer
// address leaves the in-flight set untouched.
func (c *Core) OnDisconnect(reason error, conn Connection) {
	c.exec.Post(func() {
		if addr, ok := c.peers.RemoveAuthenticatedByConnection(conn); ok {
			c.log.Debug("peer disconnected", "address", addr, "reason", reason)
			return
		}
		if addr, ok := conn.PeerAddress(); ok {
			c.peers.AbandonHandshake(addr)
		}
	})
}

// OnMessage dispatches an inbound message through the router.
func (c *Core) OnMessage(message Message, conn Connection) {
	c.exec.Post(func() {
		c.router.Dispatch(context.Background(), message, conn)
	})
}
