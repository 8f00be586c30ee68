package overlay

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func authenticateFake(t *testing.T, pt *PeerTable, full string, age time.Duration, connType ConnectionType) *fakeConnection {
	t.Helper()
	addr := NewAddress(full)
	conn := newFakeConnection()
	conn.lastActivity = time.Now().Add(-age)
	conn.connType = connType
	pt.BeginHandshake(addr, conn, newNonce(), roleRequester)
	pt.CompleteHandshake(addr, conn)
	conn.connType = connType // CompleteHandshake doesn't touch Type
	return conn
}

func lowCeilingConfig() Config {
	cfg := DefaultConfig()
	cfg.MaxConnectionsLow = 2
	cfg.MaxConnectionsNormal = 4
	cfg.MaxConnectionsHigh = 6
	return cfg
}

func TestCapacityManagerHasRoom(t *testing.T) {
	pt := NewPeerTable(testLogger())
	cfg := lowCeilingConfig()
	cm := NewCapacityManager(testLogger(), pt, cfg)

	require.True(t, cm.HasRoom())
	for i := 0; i < 3; i++ {
		authenticateFake(t, pt, string(rune('a'+i))+":1", 0, Passive)
	}
	require.False(t, cm.HasRoom())
}

func TestCapacityManagerPrefersPassiveAtLowTier(t *testing.T) {
	pt := NewPeerTable(testLogger())
	cfg := lowCeilingConfig()
	cm := NewCapacityManager(testLogger(), pt, cfg)

	oldestPassive := authenticateFake(t, pt, "oldest-passive:1", 10*time.Minute, Passive)
	authenticateFake(t, pt, "active:1", 20*time.Minute, Active) // older, but ACTIVE isn't eligible yet
	authenticateFake(t, pt, "newer-passive:1", time.Minute, Passive)

	candidate, tier, ok := cm.EvictionCandidate()
	require.True(t, ok)
	require.Equal(t, "low", tier)
	require.Equal(t, oldestPassive.UID(), candidate.UID())
}

func TestCapacityManagerEscalatesToActiveAtNormalTier(t *testing.T) {
	pt := NewPeerTable(testLogger())
	cfg := lowCeilingConfig()
	cm := NewCapacityManager(testLogger(), pt, cfg)

	oldestActive := authenticateFake(t, pt, "active-1:1", 10*time.Minute, Active)
	authenticateFake(t, pt, "active-2:1", 5*time.Minute, Active)
	authenticateFake(t, pt, "active-3:1", 4*time.Minute, Active)
	authenticateFake(t, pt, "active-4:1", 3*time.Minute, Active)
	authenticateFake(t, pt, "active-5:1", 2*time.Minute, Active)
	// 5 ACTIVE connections: > MaxConnectionsLow(2) but no PASSIVE candidates,
	// > MaxConnectionsNormal(4) so PASSIVE|ACTIVE becomes eligible.

	candidate, tier, ok := cm.EvictionCandidate()
	require.True(t, ok)
	require.Equal(t, "normal", tier)
	require.Equal(t, oldestActive.UID(), candidate.UID())
}

func TestCapacityManagerNeverEvictsAuthRequest(t *testing.T) {
	pt := NewPeerTable(testLogger())
	cfg := lowCeilingConfig()
	cm := NewCapacityManager(testLogger(), pt, cfg)

	authenticateFake(t, pt, "protected:1", 30*time.Minute, AuthRequest)
	older := authenticateFake(t, pt, "older-passive:1", 10*time.Minute, Passive)
	newer := authenticateFake(t, pt, "newer:1", time.Minute, Passive)
	_ = older

	candidate, tier, ok := cm.EvictionCandidate()
	require.True(t, ok)
	require.Equal(t, "low", tier)
	require.NotEqual(t, "protected:1", mustAddr(candidate))
	require.Equal(t, older.UID(), candidate.UID())
	_ = newer
}

func mustAddr(c Connection) string {
	a, _ := c.PeerAddress()
	return a.Full()
}

func TestCapacityManagerAtHighTierStillExcludesAuthRequest(t *testing.T) {
	pt := NewPeerTable(testLogger())
	cfg := lowCeilingConfig()
	cm := NewCapacityManager(testLogger(), pt, cfg)

	// 7 AUTH_REQUEST connections: every numeric ceiling is exceeded, but
	// none are eligible until the high tier falls back to "all
	// authenticated" — and AUTH_REQUEST is still excluded even there.
	for i := 0; i < 7; i++ {
		authenticateFake(t, pt, string(rune('a'+i))+":1", time.Duration(i)*time.Minute, AuthRequest)
	}

	_, _, ok := cm.EvictionCandidate()
	require.False(t, ok)
}

func TestCapacityManagerCheckEvictsOneAtATime(t *testing.T) {
	pt := NewPeerTable(testLogger())
	cfg := lowCeilingConfig()
	cm := NewCapacityManager(testLogger(), pt, cfg)

	authenticateFake(t, pt, "a:1", 4*time.Minute, Passive)
	authenticateFake(t, pt, "b:1", 3*time.Minute, Passive)
	authenticateFake(t, pt, "c:1", 2*time.Minute, Passive)
	authenticateFake(t, pt, "d:1", 1*time.Minute, Passive)

	evicted, tier, ok := cm.Check()
	require.True(t, ok)
	require.Equal(t, "low", tier)
	require.Equal(t, 3, pt.AuthenticatedCount())
	require.False(t, cm.HasRoom()) // 3 still exceeds MaxConnectionsLow(2)

	_, ok = evicted.PeerAddress()
	require.True(t, ok)
}

func TestCapacityManagerCheckStopsWithNoEligibleCandidate(t *testing.T) {
	pt := NewPeerTable(testLogger())
	cfg := lowCeilingConfig()
	cm := NewCapacityManager(testLogger(), pt, cfg)

	for i := 0; i < 7; i++ {
		authenticateFake(t, pt, string(rune('a'+i))+":1", time.Minute, AuthRequest)
	}

	_, _, ok := cm.Check()
	require.False(t, ok)
}
