// Package main implements ecld, the Environmental Credit Ledger node daemon.
// It runs the ledger, the peer gossip consumer, the sentinel telemetry feed,
// the HTTP API, and an optional interactive console.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/urfave/cli/v2"

	"github.com/ecl-project/ecl/internal/api"
	"github.com/ecl-project/ecl/internal/archive"
	"github.com/ecl-project/ecl/internal/config"
	"github.com/ecl-project/ecl/internal/ledger"
	"github.com/ecl-project/ecl/internal/messaging"
	"github.com/ecl-project/ecl/internal/metrics"
	"github.com/ecl-project/ecl/internal/node"
	"github.com/ecl-project/ecl/internal/peersync"
	"github.com/ecl-project/ecl/internal/sentinel"
	"github.com/ecl-project/ecl/internal/storage"
	"github.com/ecl-project/ecl/internal/wallet"
	"github.com/ecl-project/ecl/pkg/log"
)

func main() {
	app := &cli.App{
		Name:  "ecld",
		Usage: "Environmental Credit Ledger node",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "standalone",
				Usage:   "run without Kafka, Postgres, Redis, Influx, or the sentinel feed",
				EnvVars: []string{"STANDALONE"},
			},
			&cli.StringFlag{
				Name:    "node-id",
				Usage:   "gossip identity of this node (generated when empty)",
				EnvVars: []string{"NODE_ID"},
			},
			&cli.StringFlag{
				Name:    "api-addr",
				Usage:   "HTTP API listen address",
				EnvVars: []string{"API_LISTEN_ADDR"},
			},
			&cli.StringFlag{
				Name:    "data-dir",
				Usage:   "directory for the ledger database",
				EnvVars: []string{"DATA_DIR"},
			},
			&cli.BoolFlag{
				Name:  "console",
				Usage: "run the interactive console",
				Value: true,
			},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "ecld: %v\n", err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Command line overrides
	if c.IsSet("standalone") {
		cfg.Standalone = c.Bool("standalone")
	}
	if c.IsSet("node-id") {
		cfg.NodeID = c.String("node-id")
	}
	if c.IsSet("api-addr") {
		cfg.APIListenAddr = c.String("api-addr")
	}
	if c.IsSet("data-dir") {
		cfg.DataDir = c.String("data-dir")
	}

	if cfg.NodeID == "" {
		cfg.NodeID = generateNodeID()
	}

	logger := log.New(cfg.ServiceName, cfg.Version, cfg.LogLevel, cfg.LogFormat)
	logger.Info("starting ecld",
		"version", cfg.Version,
		"node_id", cfg.NodeID,
		"standalone", cfg.Standalone,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Ledger persistence
	store, err := storage.Open(filepath.Join(cfg.DataDir, "ledger"))
	if err != nil {
		return err
	}
	defer store.Close()

	snap, err := store.LoadLedger()
	if err != nil {
		return err
	}
	var l *ledger.Ledger
	if snap != nil {
		l = ledger.FromSnapshot(snap)
		logger.Info("ledger restored",
			"height", l.Tip().Index,
			"pending", len(l.AwaitingValidation),
			"validated", len(l.AwaitingMining),
		)
	} else {
		l = ledger.New(cfg.StakeAmount)
		logger.Info("ledger bootstrapped", "stake_amount", l.StakeAmount)
	}

	// Wallet store
	var wallets wallet.Store
	if cfg.Standalone {
		wallets = wallet.NewMemoryStore()
	} else {
		redisStore, err := wallet.NewRedisStore(&wallet.RedisConfig{
			Addr:         cfg.RedisAddr,
			Password:     cfg.RedisPassword,
			DB:           cfg.RedisDB,
			PoolSize:     10,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		})
		if err != nil {
			return fmt.Errorf("failed to connect wallet store: %w", err)
		}
		defer redisStore.Close()
		wallets = redisStore
	}

	// Optional collaborators
	var (
		broadcaster peersync.Broadcaster
		bus         *messaging.KafkaBus
		archiveRepo *archive.BlockRepository
		metricsCli  *metrics.Client
	)
	if !cfg.Standalone {
		bus = messaging.NewKafkaBus(cfg.KafkaBrokers, cfg.NodeID, logger)
		defer bus.Close()
		broadcaster = bus

		archiveClient, err := archive.NewClient(&archive.Config{
			Host:         cfg.PostgresHost,
			Port:         cfg.PostgresPort,
			Database:     cfg.PostgresDatabase,
			User:         cfg.PostgresUser,
			Password:     cfg.PostgresPassword,
			SSLMode:      cfg.PostgresSSLMode,
			MaxOpenConns: 10,
			MaxIdleConns: 5,
			MaxLifetime:  time.Hour,
		})
		if err != nil {
			logger.WithError(err).Warn("block archive unavailable, continuing without it")
		} else {
			defer archiveClient.Close()
			archiveRepo = archive.NewBlockRepository(archiveClient.DB())
		}

		metricsCli, err = metrics.NewClient(&metrics.Config{
			URL:    cfg.InfluxURL,
			Token:  cfg.InfluxToken,
			Org:    cfg.InfluxOrg,
			Bucket: cfg.InfluxBucket,
		})
		if err != nil {
			logger.WithError(err).Warn("metrics unavailable, continuing without them")
			metricsCli = nil
		} else {
			defer metricsCli.Close()
		}
	}

	hub := api.NewHub(logger)

	n := node.New(node.Deps{
		NodeID:      cfg.NodeID,
		Ledger:      l,
		Wallets:     wallets,
		Store:       store,
		Broadcaster: broadcaster,
		Archive:     archiveRepo,
		Metrics:     metricsCli,
		Events:      hub,
		RewardCap:   cfg.RewardCap,
		Logger:      logger,
	})

	// Gossip consumer
	if bus != nil {
		go func() {
			if err := bus.StartConsumer(ctx, n); err != nil && ctx.Err() == nil {
				logger.WithError(err).Error("gossip consumer failed")
				cancel()
			}
		}()
	}

	// Sentinel telemetry feed
	if !cfg.Standalone && cfg.SentinelEndpoint != "" {
		listener := sentinel.NewListener(cfg.SentinelEndpoint, logger)
		go func() {
			if err := listener.Run(ctx, n); err != nil && ctx.Err() == nil {
				logger.WithError(err).Error("sentinel feed failed")
			}
		}()
	}

	// HTTP API
	server := api.NewServer(n, archiveRepo, hub, cfg.SubmitPerSecond, logger)
	go func() {
		if err := server.ListenAndServe(ctx, cfg.APIListenAddr); err != nil {
			logger.WithError(err).Error("api server failed")
			cancel()
		}
	}()

	// Shutdown on signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-sigChan:
			logger.Info("shutdown signal received")
			cancel()
		case <-ctx.Done():
		}
	}()

	if c.Bool("console") {
		console := NewConsole(n, logger)
		console.Run(ctx)
	} else {
		<-ctx.Done()
	}

	logger.Info("ecld stopped")
	return nil
}

// generateNodeID derives a short random identity for gossip
func generateNodeID() string {
	seed := fmt.Sprintf("%d|%d", time.Now().UnixNano(), os.Getpid())
	digest := chainhash.HashH([]byte(seed))
	return "node-" + digest.String()[:12]
}
