package overlay

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBootstrapPrefersSeedsOverReported(t *testing.T) {
	pt := NewPeerTable(testLogger())
	cfg := DefaultConfig()
	seed := NewAddress("seed:1")
	pt.AddReported(NewAddress("reported:1"))

	var connected Address
	bc := NewBootstrapController(testLogger(), pt, cfg, []Address{seed}, func(a Address) { connected = a }, func() {})
	bc.Attempt()

	require.Equal(t, seed.Full(), connected.Full())
}

func TestBootstrapFallsBackToReportedPeers(t *testing.T) {
	pt := NewPeerTable(testLogger())
	cfg := DefaultConfig()
	reported := NewAddress("reported:1")
	pt.AddReported(reported)

	var connected Address
	bc := NewBootstrapController(testLogger(), pt, cfg, nil, func(a Address) { connected = a }, func() {})
	bc.Attempt()

	require.Equal(t, reported.Full(), connected.Full())
}

func TestBootstrapExcludesOwnAddress(t *testing.T) {
	pt := NewPeerTable(testLogger())
	cfg := DefaultConfig()
	own := NewAddress("self:1")

	var connectCalls int
	var retryCalls int
	bc := NewBootstrapController(testLogger(), pt, cfg, []Address{own}, func(a Address) { connectCalls++ }, func() { retryCalls++ })
	bc.SetOwnAddress(own)
	bc.Attempt()

	require.Equal(t, 0, connectCalls)
	require.Equal(t, 1, retryCalls)
}

func TestBootstrapExcludesAuthenticatedAndInFlightSeeds(t *testing.T) {
	pt := NewPeerTable(testLogger())
	cfg := DefaultConfig()
	authAddr := NewAddress("auth:1")
	inFlightAddr := NewAddress("inflight:1")
	conn := newFakeConnection()
	pt.BeginHandshake(authAddr, conn, newNonce(), roleRequester)
	pt.CompleteHandshake(authAddr, conn)
	pt.BeginHandshake(inFlightAddr, newFakeConnection(), newNonce(), roleRequester)

	var retryCalls int
	bc := NewBootstrapController(testLogger(), pt, cfg, []Address{authAddr, inFlightAddr}, func(a Address) {}, func() { retryCalls++ })
	bc.Attempt()

	require.Equal(t, 1, retryCalls)
}

func TestRemoveOwnSeedAddress(t *testing.T) {
	pt := NewPeerTable(testLogger())
	cfg := DefaultConfig()
	own := NewAddress("self:1")
	other := NewAddress("other:1")

	var connected Address
	bc := NewBootstrapController(testLogger(), pt, cfg, []Address{own, other}, func(a Address) { connected = a }, func() {})
	bc.RemoveOwnSeedAddress(own)
	bc.Attempt()

	require.Equal(t, other.Full(), connected.Full())
}

func TestBootstrapRetriesWhenNoCandidates(t *testing.T) {
	pt := NewPeerTable(testLogger())
	cfg := DefaultConfig()

	var retryCalls int
	bc := NewBootstrapController(testLogger(), pt, cfg, nil, func(a Address) {}, func() { retryCalls++ })
	bc.Attempt()

	require.Equal(t, 1, retryCalls)
}
