package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/filegate/filegate/core/gate"
	"github.com/filegate/filegate/core/hostbridge"
	"github.com/filegate/filegate/core/infra/buildinfo"
	"github.com/filegate/filegate/core/infra/bus"
	"github.com/filegate/filegate/core/infra/config"
	"github.com/filegate/filegate/core/infra/memory"
	infraMetrics "github.com/filegate/filegate/core/infra/metrics"
)

func main() {
	log.Println("filegate core starting...")
	buildinfo.Log("filegate-core")

	cfg := config.Load()

	metrics := infraMetrics.NewProm("filegate_core")
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", infraMetrics.Handler())
		srv := &http.Server{
			Addr:         cfg.MetricsAddr,
			Handler:      mux,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 5 * time.Second,
			IdleTimeout:  60 * time.Second,
		}
		log.Printf("core metrics on %s/metrics", cfg.MetricsAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("metrics server error: %v", err)
		}
	}()

	store, err := memory.NewSessionStore(cfg.RedisURL, cfg.SessionTTL)
	if err != nil {
		log.Fatalf("failed to connect to Redis for session store: %v", err)
	}
	defer store.Close()

	natsBus, err := bus.NewNatsBus(cfg.NatsURL)
	if err != nil {
		log.Fatalf("failed to connect to NATS: %v", err)
	}
	defer natsBus.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	policy := config.NewPolicyWatcher(cfg.PolicyPath)
	defer policy.Close()
	go policy.Run(ctx)
	log.Printf("policy source: %s", policy)

	host := hostbridge.NewHostClient(natsBus)
	notifier := hostbridge.NewUINotifier(natsBus)
	alerter := hostbridge.NewAlertPublisher(natsBus, policy)

	engine := gate.NewEngine(store, host, notifier, alerter, policy, metrics)
	if err := engine.Start(natsBus); err != nil {
		log.Fatalf("failed to start decision engine: %v", err)
	}

	log.Println("core running. waiting for signals...")
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Println("core shutting down")
	cancel()
}
