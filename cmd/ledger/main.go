package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/example/giftshop/pkg/approval"
	"github.com/example/giftshop/pkg/bootstrap"
	"github.com/example/giftshop/pkg/config"
	"github.com/example/giftshop/pkg/discovery"
	"github.com/example/giftshop/pkg/events"
	giftgrpc "github.com/example/giftshop/pkg/grpc"
	"github.com/example/giftshop/pkg/logger"
	"github.com/example/giftshop/pkg/wallet"
	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to the config file")
	flag.Parse()

	// Load config
	cfg, err := config.Load(*configPath)
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	// Setup logger
	log, err := logger.New(cfg.Log)
	if err != nil {
		panic(fmt.Sprintf("Failed to create logger: %v", err))
	}
	defer log.Sync()

	log.Info("Starting ledger service",
		zap.String("name", cfg.Server.Name),
		zap.Int("port", cfg.GRPC.Port))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	infra, err := bootstrap.Open(ctx, cfg, log)
	if err != nil {
		log.Fatal("Failed to open stores", zap.Error(err))
	}
	defer infra.Close(context.Background())

	ledger := wallet.NewLedger(infra.DB, cfg.Wallet, cfg.Auth, log.Named("wallet"))
	if cfg.Kafka.Enabled {
		ledger.Subscribe(events.NewWalletPublisher(infra.Publisher, log.Named("events")))
	}
	workflow := approval.NewWorkflow(infra.DB, ledger, infra.Publisher, infra.Auditor, infra.Metrics, log.Named("approval"))
	dispatcher := approval.NewDispatcher(workflow, log.Named("approval"))
	defer dispatcher.Stop()

	server := giftgrpc.NewServer(giftgrpc.NewWalletServer(ledger, dispatcher, log.Named("grpc")), log.Named("grpc"))
	addr := fmt.Sprintf("%s:%d", cfg.GRPC.Host, cfg.GRPC.Port)

	// Start server in goroutine
	serverErr := make(chan error, 1)
	go func() {
		if err := giftgrpc.Serve(server, addr, log); err != nil {
			serverErr <- err
		}
	}()

	instance := &discovery.ServiceInstance{
		Name: discovery.LedgerService,
		Host: cfg.GRPC.Host,
		Port: cfg.GRPC.Port,
	}
	var sd *discovery.ServiceDiscovery
	if cfg.Etcd.Enabled {
		sd, err = discovery.NewServiceDiscovery(&cfg.Etcd, log)
		if err != nil {
			log.Fatal("Failed to connect to etcd", zap.Error(err))
		}
		defer sd.Close()

		if err := sd.Register(ctx, instance); err != nil {
			log.Fatal("Failed to register service", zap.Error(err))
		}
	}

	// Wait for interrupt signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigCh:
		log.Info("Received shutdown signal")
	case err := <-serverErr:
		log.Error("Server error", zap.Error(err))
	}

	if sd != nil {
		if err := sd.Deregister(context.Background(), instance); err != nil {
			log.Error("Failed to deregister service", zap.Error(err))
		}
	}
	server.GracefulStop()

	log.Info("Service stopped")
}
