package main

import (
	"context"
	"flag"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/example/giftshop/gateway"
	"github.com/example/giftshop/pkg/approval"
	"github.com/example/giftshop/pkg/bootstrap"
	"github.com/example/giftshop/pkg/catalog"
	"github.com/example/giftshop/pkg/config"
	"github.com/example/giftshop/pkg/discovery"
	"github.com/example/giftshop/pkg/events"
	"github.com/example/giftshop/pkg/imaging"
	"github.com/example/giftshop/pkg/logger"
	"github.com/example/giftshop/pkg/notify"
	"github.com/example/giftshop/pkg/ordering"
	"github.com/example/giftshop/pkg/repository"
	"github.com/example/giftshop/pkg/session"
	"github.com/example/giftshop/pkg/wallet"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
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

	log.Info("Starting API Gateway",
		zap.Int("port", cfg.Gateway.Port),
		zap.String("host", cfg.Gateway.Host))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Fatal("Gateway error", zap.Error(err))
	}
	log.Info("Gateway stopped")
}

func run(ctx context.Context, cfg *config.Config, log *zap.Logger) error {
	infra, err := bootstrap.Open(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer infra.Close(context.Background())

	key, err := bootstrap.SessionKey(cfg.Session, log)
	if err != nil {
		return err
	}
	cfg.Session.Key = key
	sessions, err := session.NewManager(cfg.Session, repository.NewAccountRepository(infra.DB), log.Named("session"))
	if err != nil {
		return err
	}

	images := imaging.NewCompressor(cfg.Imaging)
	var cache catalog.ProductCache
	if infra.Redis != nil {
		cache = infra.Redis
	}
	catalogSvc := catalog.NewService(repository.NewCatalogRepository(infra.DB), cache, images, infra.Auditor, log.Named("catalog"))
	orders := ordering.NewService(repository.NewOrderRepository(infra.DB), infra.Publisher, infra.Metrics, cfg.Wallet, log.Named("ordering"))

	ledger := wallet.NewLedger(infra.DB, cfg.Wallet, cfg.Auth, log.Named("wallet"))
	workflow := approval.NewWorkflow(infra.DB, ledger, infra.Publisher, infra.Auditor, infra.Metrics, log.Named("approval"))
	dispatcher := approval.NewDispatcher(workflow, log.Named("approval"))
	defer dispatcher.Stop()

	hub := notify.NewHub(log.Named("notify"))

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		hub.Run(ctx)
		return nil
	})

	// With Kafka, every gateway hears wallet changes made anywhere,
	// including approvals served by the ledger service.
	if cfg.Kafka.Enabled {
		ledger.Subscribe(events.NewWalletPublisher(infra.Publisher, log.Named("events")))
		consumer, err := events.NewWalletConsumer(cfg.Kafka, hub, log.Named("events"))
		if err != nil {
			return err
		}
		defer consumer.Close()
		g.Go(func() error { return consumer.Start(ctx) })
	} else {
		ledger.Subscribe(hub)
	}

	gw := gateway.NewGateway(cfg, gateway.Deps{
		Catalog:  catalogSvc,
		Orders:   orders,
		Decider:  dispatcher,
		Ledger:   ledger,
		Sessions: sessions,
		Carts:    infra.CartStorage(),
		Images:   images,
		Hub:      hub,
		Metrics:  infra.Metrics,
		Auditor:  infra.Auditor,
	}, log.Named("gateway"))
	gw.SetupRoutes()

	g.Go(gw.Start)
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return gw.Shutdown(shutdownCtx)
	})

	if cfg.Etcd.Enabled {
		sd, err := discovery.NewServiceDiscovery(&cfg.Etcd, log)
		if err != nil {
			log.Warn("Failed to connect to etcd, continuing without service discovery", zap.Error(err))
		} else {
			defer sd.Close()
			if err := sd.Register(ctx, &discovery.ServiceInstance{
				Name: discovery.GatewayService,
				Host: cfg.Gateway.Host,
				Port: cfg.Gateway.Port,
			}); err != nil {
				log.Warn("Failed to register gateway", zap.Error(err))
			}
		}
	}

	log.Info("Gateway started successfully")
	return g.Wait()
}
