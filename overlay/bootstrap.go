package overlay

import (
	"log/slog"
	"math/rand/v2"
	"sync"

	utils "github.com/ordishs/go-utils"
)

// BootstrapController drives the seven-step candidate-selection cascade
// spec.md §4.2 defines: own-address exclusion, authenticated/in-flight
// filtering of both the seed list and the reported-peer set, a
// uniform-random pick within whichever pool yields candidates, and a
// randomized back-off retry when neither pool does.
type BootstrapController struct {
	log   *slog.Logger
	peers *PeerTable
	cfg   Config

	mu         sync.Mutex
	seeds      []Address
	ownAddress Address

	connect func(Address) // dials a candidate; wired by Facade
	retry   func()        // reschedules a bootstrap attempt; wired by Facade
}

// NewBootstrapController constructs a BootstrapController over seeds.
func NewBootstrapController(log *slog.Logger, peers *PeerTable, cfg Config, seeds []Address, connect func(Address), retry func()) *BootstrapController {
	return &BootstrapController{
		log:     log.With("component", "bootstrap"),
		peers:   peers,
		cfg:     cfg,
		seeds:   append([]Address(nil), seeds...),
		connect: connect,
		retry:   retry,
	}
}

// SetOwnAddress records this node's own address so it can be excluded from
// candidate selection once known (a node never dials itself).
func (b *BootstrapController) SetOwnAddress(addr Address) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.ownAddress = addr
}

// RemoveOwnSeedAddress drops addr from the seed list, used when a node
// discovers one of its configured seeds is actually itself (spec.md §4.8).
func (b *BootstrapController) RemoveOwnSeedAddress(addr Address) {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := b.seeds[:0]
	for _, s := range b.seeds {
		if s.Full() != addr.Full() {
			out = append(out, s)
		}
	}
	b.seeds = out
}

// candidateResult tags a chosen address with which pool it came from,
// grounded on ordishs/go-utils.Pair as the tuple-return idiom the teacher's
// vendor tree uses throughout instead of a two-value (addr, ok) pair
// wrapped in a named type.
type candidateResult = utils.Pair[Address, string]

// Attempt runs one step of the cascade: (1) exclude own address from seeds,
// (2) exclude already-authenticated seeds, (3) exclude in-flight seeds, (4)
// pick uniformly among remaining seeds if any, (5) else exclude
// already-authenticated reported peers, (6) exclude in-flight reported
// peers and pick uniformly among what remains, (7) else schedule a
// back-off retry and report no candidate. Attempt is a no-op once the
// authenticated count reaches MaxConnectionsLow (spec.md §4.2's mission).
// A single call only dials one candidate; the cascade continues across
// calls driven by Facade re-invoking Attempt on every dial failure,
// handshake rejection, and successful-but-below-cap authentication
// (spec.md §4.2 (2)/(5): retry immediately on failure, keep going on
// success until the cap is reached).
func (b *BootstrapController) Attempt() {
	if b.peers.AuthenticatedCount() >= b.cfg.MaxConnectionsLow {
		return // mission accomplished (spec.md §4.2): stop once the low-prio cap is reached.
	}

	b.mu.Lock()
	seeds := append([]Address(nil), b.seeds...)
	own := b.ownAddress
	b.mu.Unlock()

	// Steps 1-3: seed pool.
	seedPool := make([]Address, 0, len(seeds))
	for _, s := range seeds {
		if !own.IsZero() && s.Full() == own.Full() {
			continue // step 1
		}
		if b.peers.IsAuthenticated(s) {
			continue // step 2
		}
		if b.peers.HasInFlightHandshake(s) {
			continue // step 3
		}
		seedPool = append(seedPool, s)
	}

	// Step 4: pick from seed pool.
	if len(seedPool) > 0 {
		result := candidateResult{First: seedPool[rand.IntN(len(seedPool))], Second: "seed"}
		b.log.Debug("bootstrap candidate chosen", "address", result.First, "source", result.Second)
		b.connect(result.First)
		return
	}

	// Steps 5-6: reported-peer pool.
	reported := b.peers.AllReported()
	reportedPool := make([]Address, 0, len(reported))
	for _, r := range reported {
		if b.peers.IsAuthenticated(r) {
			continue // step 5
		}
		if b.peers.HasInFlightHandshake(r) {
			continue // step 6a
		}
		reportedPool = append(reportedPool, r)
	}
	if len(reportedPool) > 0 {
		result := candidateResult{First: reportedPool[rand.IntN(len(reportedPool))], Second: "reported"}
		b.log.Debug("bootstrap candidate chosen", "address", result.First, "source", result.Second)
		b.connect(result.First)
		return
	}

	// Step 7: no candidate in either pool, back off and retry.
	b.log.Debug("no bootstrap candidate available, scheduling retry")
	if b.retry != nil {
		b.retry()
	}
}
