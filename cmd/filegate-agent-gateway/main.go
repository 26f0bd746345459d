package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/filegate/filegate/core/agentgw"
	"github.com/filegate/filegate/core/infra/buildinfo"
	"github.com/filegate/filegate/core/infra/bus"
	"github.com/filegate/filegate/core/infra/config"
)

func main() {
	log.Println("filegate agent gateway starting...")
	buildinfo.Log("filegate-agent-gateway")

	cfg := config.Load()

	natsBus, err := bus.NewNatsBus(cfg.NatsURL)
	if err != nil {
		log.Fatalf("failed to connect to NATS: %v", err)
	}
	defer natsBus.Close()

	gw := agentgw.New(cfg.AgentGatewayAddr, natsBus)
	go func() {
		if err := gw.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("agent gateway server error: %v", err)
		}
	}()

	log.Println("agent gateway running. waiting for signals...")
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Println("agent gateway shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := gw.Shutdown(ctx); err != nil {
		log.Printf("gateway shutdown error: %v", err)
	}
}
