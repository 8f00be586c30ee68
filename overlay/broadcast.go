package overlay

import (
	"context"
	"log/slog"
)

// Broadcaster fans a message out to every authenticated peer except an
// optional excluded sender (spec.md §4.7). Fan-out gives no ordering
// guarantee across peers, and an individual send failure evicts only that
// peer rather than aborting the whole broadcast.
type Broadcaster struct {
	log       *slog.Logger
	peers     *PeerTable
	transport Transport
	capacity  *CapacityManager
	metrics   *Metrics

	postFn func(func())
}

// NewBroadcaster constructs a Broadcaster.
func NewBroadcaster(log *slog.Logger, peers *PeerTable, transport Transport, capacity *CapacityManager, metrics *Metrics) *Broadcaster {
	return &Broadcaster{
		log:       log.With("component", "broadcast"),
		peers:     peers,
		transport: transport,
		capacity:  capacity,
		metrics:   metrics,
	}
}

// SetPost wires postFn to the core's executor Post method.
func (b *Broadcaster) SetPost(post func(func())) { b.postFn = post }

func (b *Broadcaster) post(task func()) {
	if b.postFn != nil {
		b.postFn(task)
		return
	}
	task()
}

// Broadcast sends payload to every authenticated peer except excludeUID (a
// connection UID, not an address; pass "" to exclude none). It does not
// block on delivery: each send's failure is handled asynchronously by
// evicting that peer.
func (b *Broadcaster) Broadcast(ctx context.Context, payload []byte, excludeUID string) {
	msg := DataBroadcastMessage{Payload: payload}
	for _, conn := range b.peers.AllAuthenticated() {
		if conn.UID() == excludeUID {
			continue
		}
		addr, ok := conn.PeerAddress()
		if !ok {
			continue
		}
		future := b.transport.Send(ctx, SendTarget{Conn: conn, Address: addr}, msg)
		future.listenOn(b.post, func(res SendResult) {
			if res.Err == nil {
				return
			}
			b.log.Warn("broadcast send failed, evicting peer", "address", addr, "error", res.Err)
			if _, ok := b.peers.RemoveAuthenticated(addr); ok {
				conn.Shutdown(nil)
			}
		})
	}
}
