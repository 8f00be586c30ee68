package overlay_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/foxtrade/overlaynet/overlay"
	"github.com/foxtrade/overlaynet/overlay/loopback"
)

func TestCoreHandshakeAndBroadcastEndToEnd(t *testing.T) {
	net := loopback.NewNetwork()
	transportA := net.NewNode("a:1")
	transportB := net.NewNode("b:1")

	coreA := overlay.New(transportA, overlay.Options{
		Config: overlay.DefaultConfig(),
		Seeds:  []overlay.Address{overlay.NewAddress("b:1")},
	})
	coreB := overlay.New(transportB, overlay.Options{
		Config: overlay.DefaultConfig(),
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	coreA.Start(ctx)
	coreB.Start(ctx)
	defer coreA.Shutdown()
	defer coreB.Shutdown()

	require.Eventually(t, func() bool {
		return coreA.AuthenticatedCount() == 1 && coreB.AuthenticatedCount() == 1
	}, 2*time.Second, 5*time.Millisecond)

	require.Contains(t, coreA.AuthenticatedAddresses(), "b:1")
	require.Contains(t, coreB.AuthenticatedAddresses(), "a:1")
}

func TestCoreRemoveOwnSeedAddressPreventsSelfDial(t *testing.T) {
	net := loopback.NewNetwork()
	transportA := net.NewNode("solo:1")

	core := overlay.New(transportA, overlay.Options{
		Config: overlay.DefaultConfig(),
		Seeds:  []overlay.Address{overlay.NewAddress("solo:1")},
	})
	core.RemoveOwnSeedAddress(overlay.NewAddress("solo:1"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	core.Start(ctx)
	defer core.Shutdown()

	time.Sleep(50 * time.Millisecond)
	require.Equal(t, 0, core.AuthenticatedCount())
}
