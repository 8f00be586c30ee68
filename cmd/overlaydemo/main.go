// Command overlaydemo wires two in-process overlay.Core instances together
// over an in-memory loopback transport and exercises a handshake and a
// broadcast; liveness pings follow only when the maintenance ping timer
// fires (5-10 minutes with the default config). Real socket transport is explicitly out of
// scope (spec.md §1 Non-goals); this demo exists to prove the core's
// wiring end to end, grounded on core/main.go's flag/slog/signal-handling
// idiom (runHeadless's structure, minus the Wails/wallet bits that belong
// to a different domain).
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/foxtrade/overlaynet/overlay"
	"github.com/foxtrade/overlaynet/overlay/debughttp"
	"github.com/foxtrade/overlaynet/overlay/loopback"
)

func main() {
	debugAddr := flag.String("debug-addr", "127.0.0.1:8765", "address for the read-only debug HTTP surface")
	flag.Parse()

	log := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	slog.SetDefault(log)

	network := loopback.NewNetwork()
	transportA := network.NewNode("node-a:0")
	transportB := network.NewNode("node-b:0")

	coreA := overlay.New(transportA, overlay.Options{
		Config: overlay.DefaultConfig(),
		Seeds:  []overlay.Address{overlay.NewAddress("node-b:0")},
		Logger: log.With("node", "a"),
	})
	coreB := overlay.New(transportB, overlay.Options{
		Config: overlay.DefaultConfig(),
		Logger: log.With("node", "b"),
	})

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	coreA.Start(ctx)
	coreB.Start(ctx)

	debug := debughttp.New(log, *debugAddr, coreA, coreA.MetricsHandler())
	debug.Start()

	time.Sleep(500 * time.Millisecond)
	coreA.Broadcast(ctx, []byte("hello from node-a"))

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := debug.Shutdown(shutdownCtx); err != nil {
		log.Warn("debug http shutdown error", "error", err)
	}
	coreA.Shutdown()
	coreB.Shutdown()
}
