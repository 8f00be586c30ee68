package overlay

import (
	"log/slog"
	"sort"

	slices "github.com/go-softwarelab/common/pkg/slices"
)

// CapacityManager enforces the tiered eviction cascade spec.md §4.3
// defines. A capacity check is triggered after every successful
// authentication and by the maintenance ping timer; each trigger performs
// at most one eviction, escalating which connection types are eligible as
// the authenticated count climbs past each ceiling:
//
//   - count > MaxConnectionsLow (8): PASSIVE connections only.
//   - count > MaxConnectionsNormal (12), no PASSIVE eligible: PASSIVE or ACTIVE.
//   - count > MaxConnectionsHigh (16), still none: any authenticated connection.
//
// AUTH_REQUEST connections are never eligible at any tier, since they are
// still finalizing an inbound handshake. Among eligible candidates the
// oldest by LastActivity is chosen.
type CapacityManager struct {
	log   *slog.Logger
	peers *PeerTable
	cfg   Config
}

// NewCapacityManager constructs a CapacityManager.
func NewCapacityManager(log *slog.Logger, peers *PeerTable, cfg Config) *CapacityManager {
	return &CapacityManager{log: log.With("component", "capacity"), peers: peers, cfg: cfg}
}

// HasRoom reports whether a capacity check would find nothing to evict:
// either the authenticated count is within every ceiling, or no connection
// is eligible at the tier the count reaches.
func (c *CapacityManager) HasRoom() bool {
	_, _, ok := c.EvictionCandidate()
	return !ok
}

func byType(conns []Connection, types ...ConnectionType) []Connection {
	return slices.Filter(conns, func(conn Connection) bool {
		for _, t := range types {
			if conn.Type() == t {
				return true
			}
		}
		return false
	})
}

func oldest(conns []Connection) (Connection, bool) {
	if len(conns) == 0 {
		return nil, false
	}
	sort.Slice(conns, func(i, j int) bool {
		return conns[i].LastActivity().Before(conns[j].LastActivity())
	})
	return conns[0], true
}

// EvictionCandidate runs the tiered cascade once and returns the single
// connection it would evict plus the tier that selected it ("low", "normal"
// or "high"), or false if the authenticated set is within every ceiling or
// no eligible connection exists at the tier it escalated to.
func (c *CapacityManager) EvictionCandidate() (Connection, string, bool) {
	all := c.peers.AllAuthenticated()
	count := len(all)

	if count > c.cfg.MaxConnectionsLow {
		if candidate, ok := oldest(byType(all, Passive)); ok {
			return candidate, "low", true
		}
	}
	if count > c.cfg.MaxConnectionsNormal {
		if candidate, ok := oldest(byType(all, Passive, Active)); ok {
			return candidate, "normal", true
		}
	}
	if count > c.cfg.MaxConnectionsHigh {
		eligible := slices.Filter(all, func(conn Connection) bool {
			return conn.Type() != AuthRequest
		})
		if candidate, ok := oldest(eligible); ok {
			return candidate, "high", true
		}
	}
	return nil, "", false
}

// Check performs a single capacity-check pass: if an eviction candidate
// exists, it is unbound from the peer table and returned (with the tier
// that selected it) so the caller can shut it down, record metrics, and
// schedule a follow-up Check 100-500ms later to drain any remaining excess
// (spec.md §4.3) — eviction happens one connection at a time rather than as
// a synchronous burst.
func (c *CapacityManager) Check() (Connection, string, bool) {
	candidate, tier, ok := c.EvictionCandidate()
	if !ok {
		return nil, "", false
	}
	if addr, ok := candidate.PeerAddress(); ok {
		c.peers.RemoveAuthenticated(addr)
	}
	return candidate, tier, true
}
