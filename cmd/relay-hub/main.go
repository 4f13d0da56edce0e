// Main package for the relay hub daemon.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sessamekesh/rts-relay-hub/pkg/connection"
	"github.com/sessamekesh/rts-relay-hub/pkg/netservice"
	"github.com/sessamekesh/rts-relay-hub/pkg/relay"
	"go.uber.org/zap"
)

func main() {
	logger := zap.Must(zap.NewProduction())
	if os.Getenv("APP_ENV") != "production" {
		logger = zap.Must(zap.NewDevelopment())
	}
	defer logger.Sync()

	//
	// Flags
	relayPort := flag.Int("relay-port", 5123, "Primary TCP port for the relay protocol")
	relayPortRangeStart := flag.Int("relay-port-range-start", 0, "First extra relay listener port (0 disables the range)")
	relayPortRangeEnd := flag.Int("relay-port-range-end", -1, "Last extra relay listener port")
	idleTimeout := flag.Duration("idle-timeout", 10*time.Second, "Disconnect connections silent for this long")

	maxPlayers := flag.Int("max-players", 10, "Player capacity per relay room")
	oneAdmin := flag.Bool("one-admin", true, "Promote the next player when a room's admin drops")

	useWebsockets := flag.Bool("websockets", true, "Set to false to disable WebSocket support")
	httpPort := flag.Int("http-port", 3000, "Port for the WebSocket endpoint and metrics")
	wsEndpoint := flag.String("ws-endpoint", "/ws", "HTTP endpoint that listens for WebSocket connections")
	flag.Parse()

	//
	// Registries + relay processor wiring
	roomRegistry := relay.NewRegistry(relay.RoomConfig{
		MaxPlayers: *maxPlayers,
		OneAdmin:   *oneAdmin,
	}, logger)
	commands := relay.NewCommandHandler()
	services := netservice.NewServiceRegistry()

	factory := func(a *connection.Agreement) netservice.Processor {
		return relay.NewConn(a, roomRegistry, commands)
	}
	serviceCfg := netservice.Config{IdleTimeout: *idleTimeout}

	relayService := netservice.New(netservice.RelayProtocol, factory, serviceCfg, services, logger)
	if err := relayService.OpenPortRange(*relayPort, *relayPortRangeStart, *relayPortRangeEnd); err != nil {
		logger.Error("Failed to open relay port", zap.Error(err))
		return
	}

	shutdownCtx, shutdownRelease := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer shutdownRelease()

	wg := sync.WaitGroup{}

	//
	// HTTP side: WebSocket relay endpoint + Prometheus metrics
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	if *useWebsockets {
		mux.Handle(*wsEndpoint, netservice.NewWebsocketHandler(factory, serviceCfg, logger))
	}
	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", *httpPort),
		Handler: mux,
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		logger.Info("HTTP server listening", zap.Int("port", *httpPort))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server stopped", zap.Error(err))
		}
	}()

	<-shutdownCtx.Done()
	logger.Info("Shutting down")

	closeCtx, closeRelease := context.WithTimeout(context.Background(), 5*time.Second)
	defer closeRelease()
	if err := httpServer.Shutdown(closeCtx); err != nil {
		logger.Warn("HTTP shutdown incomplete", zap.Error(err))
	}
	services.StopAll()
	roomRegistry.CloseAll()

	wg.Wait()
}
