package overlay

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestPeerTableBeginAndCompleteHandshake(t *testing.T) {
	pt := NewPeerTable(testLogger())
	addr := NewAddress("peer-1:9000")
	conn := newFakeConnection()

	require.False(t, pt.IsAuthenticated(addr))
	pt.BeginHandshake(addr, conn, newNonce(), roleRequester)
	require.True(t, pt.HasInFlightHandshake(addr))
	require.False(t, pt.IsAuthenticated(addr))

	pt.CompleteHandshake(addr, conn)
	require.False(t, pt.HasInFlightHandshake(addr))
	require.True(t, pt.IsAuthenticated(addr))

	bound, ok := pt.AuthenticatedConnection(addr)
	require.True(t, ok)
	require.Equal(t, conn.UID(), bound.UID())
	require.True(t, conn.IsAuthenticated())
	require.Empty(t, pt.checkInvariants())
}

func TestPeerTableCompleteHandshakeClearsReported(t *testing.T) {
	pt := NewPeerTable(testLogger())
	addr := NewAddress("peer-1:9000")
	conn := newFakeConnection()

	require.True(t, pt.AddReported(addr))
	require.Equal(t, 1, pt.ReportedCount())

	pt.BeginHandshake(addr, conn, newNonce(), roleResponder)
	pt.CompleteHandshake(addr, conn)

	require.Equal(t, 0, pt.ReportedCount())
	require.True(t, pt.IsAuthenticated(addr))
	require.Empty(t, pt.checkInvariants())
}

func TestPeerTableAbandonHandshake(t *testing.T) {
	pt := NewPeerTable(testLogger())
	addr := NewAddress("peer-2:9000")
	conn := newFakeConnection()

	pt.BeginHandshake(addr, conn, newNonce(), roleRequester)
	pt.AbandonHandshake(addr)

	require.False(t, pt.HasInFlightHandshake(addr))
	require.False(t, pt.IsAuthenticated(addr))
}

func TestPeerTableAddReportedRejectsKnownAddresses(t *testing.T) {
	pt := NewPeerTable(testLogger())
	authAddr := NewAddress("auth:1")
	inFlightAddr := NewAddress("inflight:1")
	conn := newFakeConnection()

	pt.BeginHandshake(authAddr, conn, newNonce(), roleRequester)
	pt.CompleteHandshake(authAddr, conn)
	require.False(t, pt.AddReported(authAddr))

	pt.BeginHandshake(inFlightAddr, newFakeConnection(), newNonce(), roleRequester)
	require.False(t, pt.AddReported(inFlightAddr))

	reportedAddr := NewAddress("reported:1")
	require.True(t, pt.AddReported(reportedAddr))
	require.False(t, pt.AddReported(reportedAddr))
}

func TestPeerTablePurgeRandomReported(t *testing.T) {
	pt := NewPeerTable(testLogger())
	for i := 0; i < 5; i++ {
		pt.AddReported(NewAddress(string(rune('a'+i)) + ":1"))
	}
	require.Equal(t, 5, pt.ReportedCount())

	pt.PurgeRandomReported(3)
	require.Equal(t, 2, pt.ReportedCount())

	remaining := pt.AllReported()
	require.Len(t, remaining, 2)
}

func TestPeerTableRemoveAuthenticatedByConnection(t *testing.T) {
	pt := NewPeerTable(testLogger())
	addr := NewAddress("peer-3:9000")
	conn := newFakeConnection()
	pt.BeginHandshake(addr, conn, newNonce(), roleRequester)
	pt.CompleteHandshake(addr, conn)

	removedAddr, ok := pt.RemoveAuthenticatedByConnection(conn)
	require.True(t, ok)
	require.Equal(t, addr.Full(), removedAddr.Full())
	require.False(t, pt.IsAuthenticated(addr))
}

func TestPeerTableInvariantsCatchDoubleBinding(t *testing.T) {
	pt := NewPeerTable(testLogger())
	conn := newFakeConnection()
	addr1 := NewAddress("a:1")
	addr2 := NewAddress("b:1")

	pt.authenticated[addr1.Full()] = conn
	pt.authenticated[addr2.Full()] = conn

	violations := pt.checkInvariants()
	require.NotEmpty(t, violations)
}
