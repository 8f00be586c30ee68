package overlay

import (
	"log/slog"
	"math/rand/v2"
	"time"
)

// handshakeRole records which side of an in-flight handshake this node
// plays, needed to resolve simultaneous-connect races (spec.md §4.1).
type handshakeRole int

const (
	roleRequester handshakeRole = iota
	roleResponder
)

// inFlightHandshake is the peer table's bookkeeping entry for a handshake
// that has not yet resolved.
type inFlightHandshake struct {
	conn  Connection
	nonce [32]byte
	role  handshakeRole
	start time.Time
}

// PeerTable holds the three disjoint sets spec.md §3 defines: authenticated
// peers, reported (gossiped-but-not-connected) peers, and in-flight
// handshakes. It is owned by, and only ever mutated from, the core's
// executor goroutine (spec.md §5) — grounded on teranode's PeerRegistry in
// shape (a single struct fronting the node's full peer knowledge) but
// traded its sync.RWMutex for single-goroutine-only access, since every
// caller here already runs on the executor.
type PeerTable struct {
	log *slog.Logger

	authenticated map[string]Connection         // full address -> connection
	reported      map[string]time.Time          // full address -> first-reported time
	inFlight      map[string]*inFlightHandshake  // full address -> handshake state
	reportedOrder []string                       // addresses currently in reported, for O(1)-ish random purge

	generation uint64
}

// NewPeerTable constructs an empty PeerTable.
func NewPeerTable(log *slog.Logger) *PeerTable {
	return &PeerTable{
		log:           log.With("component", "peertable"),
		authenticated: make(map[string]Connection),
		reported:      make(map[string]time.Time),
		inFlight:      make(map[string]*inFlightHandshake),
	}
}

// Generation returns a counter bumped on every mutation, letting callers
// detect whether the table changed across a yield point.
func (t *PeerTable) Generation() uint64 { return t.generation }

func (t *PeerTable) bump() { t.generation++ }

// IsAuthenticated reports whether addr is in the authenticated set.
func (t *PeerTable) IsAuthenticated(addr Address) bool {
	_, ok := t.authenticated[addr.Full()]
	return ok
}

// HasInFlightHandshake reports whether addr has an outstanding handshake.
func (t *PeerTable) HasInFlightHandshake(addr Address) bool {
	_, ok := t.inFlight[addr.Full()]
	return ok
}

// AuthenticatedConnection returns the connection bound to addr, if authenticated.
func (t *PeerTable) AuthenticatedConnection(addr Address) (Connection, bool) {
	c, ok := t.authenticated[addr.Full()]
	return c, ok
}

// AuthenticatedCount returns the number of authenticated peers.
func (t *PeerTable) AuthenticatedCount() int { return len(t.authenticated) }

// AllAuthenticated returns every authenticated connection. The returned
// slice is a fresh copy safe for the caller to range over while the table
// continues to mutate.
func (t *PeerTable) AllAuthenticated() []Connection {
	out := make([]Connection, 0, len(t.authenticated))
	for _, c := range t.authenticated {
		out = append(out, c)
	}
	return out
}

// AllAuthenticatedAddresses returns the address of every authenticated peer.
func (t *PeerTable) AllAuthenticatedAddresses() []Address {
	out := make([]Address, 0, len(t.authenticated))
	for _, c := range t.authenticated {
		if a, ok := c.PeerAddress(); ok {
			out = append(out, a)
		}
	}
	return out
}

// BeginHandshake records a new in-flight handshake. Invariant (spec.md §3):
// an address may not be simultaneously authenticated and in-flight, and may
// not have two in-flight handshakes; callers must check IsAuthenticated and
// HasInFlightHandshake first, or handle race suppression explicitly
// (handshake.go does both).
func (t *PeerTable) BeginHandshake(addr Address, conn Connection, nonce [32]byte, role handshakeRole) {
	t.inFlight[addr.Full()] = &inFlightHandshake{conn: conn, nonce: nonce, role: role, start: time.Now()}
	t.bump()
}

// InFlightHandshake returns the in-flight handshake state for addr, if any.
func (t *PeerTable) InFlightHandshake(addr Address) (*inFlightHandshake, bool) {
	h, ok := t.inFlight[addr.Full()]
	return h, ok
}

// CompleteHandshake removes addr's in-flight entry and promotes it to
// authenticated, bound to conn.
func (t *PeerTable) CompleteHandshake(addr Address, conn Connection) {
	delete(t.inFlight, addr.Full())
	delete(t.reported, addr.Full())
	t.removeFromReportedOrder(addr.Full())
	conn.SetAuthenticated(addr)
	t.authenticated[addr.Full()] = conn
	t.bump()
}

// AbandonHandshake removes addr's in-flight entry without authenticating it
// (timeout, nonce mismatch, or connection loss mid-handshake).
func (t *PeerTable) AbandonHandshake(addr Address) {
	delete(t.inFlight, addr.Full())
	t.bump()
}

// RemoveAuthenticated removes addr from the authenticated set, e.g. on
// disconnect or eviction. Returns the connection that was bound, if any.
func (t *PeerTable) RemoveAuthenticated(addr Address) (Connection, bool) {
	c, ok := t.authenticated[addr.Full()]
	if ok {
		delete(t.authenticated, addr.Full())
		t.bump()
	}
	return c, ok
}

// RemoveAuthenticatedByConnection scans for and removes whichever
// authenticated entry is bound to conn, used when a disconnect event only
// carries the connection, not its address.
func (t *PeerTable) RemoveAuthenticatedByConnection(conn Connection) (Address, bool) {
	for full, c := range t.authenticated {
		if c.UID() == conn.UID() {
			delete(t.authenticated, full)
			t.bump()
			return NewAddress(full), true
		}
	}
	return Address{}, false
}

// ReportedCount returns the size of the reported-peer set.
func (t *PeerTable) ReportedCount() int { return len(t.reported) }

// AddReported records addr as gossiped-but-unconnected, unless it is
// already authenticated, in flight, or already reported. Returns true if
// it was newly added.
func (t *PeerTable) AddReported(addr Address) bool {
	full := addr.Full()
	if _, ok := t.authenticated[full]; ok {
		return false
	}
	if _, ok := t.inFlight[full]; ok {
		return false
	}
	if _, ok := t.reported[full]; ok {
		return false
	}
	t.reported[full] = time.Now()
	t.reportedOrder = append(t.reportedOrder, full)
	t.bump()
	return true
}

// AllReported returns every reported address.
func (t *PeerTable) AllReported() []Address {
	out := make([]Address, 0, len(t.reported))
	for full := range t.reported {
		out = append(out, NewAddress(full))
	}
	return out
}

// PurgeRandomReported removes n uniformly random entries from the reported
// set, used when MaxReportedPeers is exceeded (spec.md §4.6: "repeatedly
// pick and remove a uniformly random address from reported \ authenticated"
// — authenticated addresses are never in the reported set to begin with, by
// invariant, so every entry here is already eligible).
func (t *PeerTable) PurgeRandomReported(n int) {
	if n <= 0 {
		return
	}
	if n > len(t.reportedOrder) {
		n = len(t.reportedOrder)
	}
	for i := 0; i < n; i++ {
		idx := rand.IntN(len(t.reportedOrder))
		full := t.reportedOrder[idx]
		t.reportedOrder = append(t.reportedOrder[:idx], t.reportedOrder[idx+1:]...)
		delete(t.reported, full)
	}
	t.bump()
}

func (t *PeerTable) removeFromReportedOrder(full string) {
	for i, v := range t.reportedOrder {
		if v == full {
			t.reportedOrder = append(t.reportedOrder[:i], t.reportedOrder[i+1:]...)
			return
		}
	}
}

// checkInvariants validates the peer table's internal consistency: the
// authenticated, in-flight and reported sets are pairwise disjoint,
// reportedOrder matches the reported set, and no connection is bound to two
// authenticated addresses. The reported-set cap and own-address exclusion
// are not checked here. It is used by tests only; it
// is deliberately not called from production code paths, since walking
// every set on every mutation would defeat the point of the generation
// counter.
func (t *PeerTable) checkInvariants() []string {
	var violations []string

	for full := range t.authenticated {
		if _, ok := t.inFlight[full]; ok {
			violations = append(violations, "address both authenticated and in-flight: "+full)
		}
		if _, ok := t.reported[full]; ok {
			violations = append(violations, "address both authenticated and reported: "+full)
		}
	}
	for full := range t.inFlight {
		if _, ok := t.reported[full]; ok {
			violations = append(violations, "address both in-flight and reported: "+full)
		}
	}
	if len(t.reportedOrder) != len(t.reported) {
		violations = append(violations, "reportedOrder out of sync with reported set")
	}
	seen := make(map[string]bool, len(t.authenticated))
	for _, c := range t.authenticated {
		if seen[c.UID()] {
			violations = append(violations, "connection bound to more than one authenticated address: "+c.UID())
		}
		seen[c.UID()] = true
	}
	return violations
}
