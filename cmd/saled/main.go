package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"salechain/config"
	"salechain/core"
	"salechain/core/state"
	"salechain/integrations/reporting"
	"salechain/integrations/webhooks"
	"salechain/native/common"
	"salechain/native/crowdsale"
	"salechain/observability"
	"salechain/observability/logging"
	telemetry "salechain/observability/otel"
	"salechain/rpc"
	"salechain/storage"
)

const envVar = "SALE_ENV"

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *configFile); err != nil {
		fmt.Fprintf(os.Stderr, "saled: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, configFile string) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	env := strings.TrimSpace(os.Getenv(envVar))
	if env == "" {
		env = cfg.Telemetry.Environment
	}
	logger := logging.Setup("saled", env, logging.Options{
		Level:      cfg.Logging.Level,
		File:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
	})

	shutdownTelemetry, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName: cfg.Telemetry.ServiceName,
		Environment: env,
		Network:     cfg.NetworkName,
		Endpoint:    cfg.Telemetry.Endpoint,
		Insecure:    cfg.Telemetry.Insecure,
		Headers:     cfg.Telemetry.Headers,
		Metrics:     cfg.Telemetry.Metrics,
		Traces:      cfg.Telemetry.Traces,
		SampleRatio: cfg.Telemetry.SampleRatio,
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(shutdownCtx); err != nil {
			logger.Warn("telemetry shutdown failed", slog.Any("error", err))
		}
	}()

	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	allocations, err := cfg.GenesisAllocations()
	if err != nil {
		return err
	}
	genesis := make([]core.GenesisAccount, 0, len(allocations))
	for _, alloc := range allocations {
		genesis = append(genesis, core.GenesisAccount{Address: alloc.Address, Lamports: alloc.Lamports})
	}

	pauses := common.NewPauseSet()
	pauses.Set(crowdsale.ModuleName, cfg.Pauses.Crowdsale)

	jwtSecret := lookupSecret(cfg.RPC.JWTSecretEnv)
	node, err := core.NewNode(db, core.Options{
		Rent: state.Rent{
			LamportsPerByteYear: cfg.Rent.LamportsPerByteYear,
			ExemptionYears:      cfg.Rent.ExemptionYears,
		},
		Pauses:       pauses,
		Genesis:      genesis,
		AllowAirdrop: jwtSecret != "",
		MaxAirdrop:   cfg.RPC.MaxAirdrop,
		Logger:       logger,
	})
	if err != nil {
		return fmt.Errorf("create node: %w", err)
	}
	head := node.Head()
	logger.Info("ledger opened",
		slog.String("network", cfg.NetworkName),
		slog.Uint64("slot", head.Slot),
		slog.String("state_root", head.StateRoot.Hex()),
		slog.Bool("crowdsale_paused", cfg.Pauses.Crowdsale))

	observability.WatchBus(ctx, node.Events())

	if endpoint := strings.TrimSpace(cfg.Webhooks.Endpoint); endpoint != "" {
		dispatcher, err := webhooks.NewDispatcher(endpoint, []byte(lookupSecret(cfg.Webhooks.SecretEnv)),
			webhooks.WithEventPrefixes(cfg.Webhooks.EventPrefixes...),
			webhooks.WithRetryPolicy(cfg.Webhooks.MaxAttempts, 0, 0),
			webhooks.WithLogger(logger),
		)
		if err != nil {
			return fmt.Errorf("webhooks: %w", err)
		}
		defer dispatcher.Close()
		dispatcher.Forward(ctx, node.Events())
		logger.Info("forwarding events to webhook", logging.MaskField("endpoint", endpoint))
	}

	server, err := rpc.NewServer(node, rpcConfig(cfg, jwtSecret), logger)
	if err != nil {
		return err
	}

	if dsn := reportingDSN(cfg); dsn != "" {
		store, err := reporting.Open(cfg.Reporting.Driver, dsn, logger)
		if err != nil {
			return err
		}
		defer store.Close()
		go store.Run(ctx, node.Events())
		server.SetSaleStats(store)
		logger.Info("sale reporting enabled", slog.String("driver", cfg.Reporting.Driver))
	}

	if err := server.Serve(ctx, cfg.RPCAddress); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("rpc server: %w", err)
	}
	logger.Info("shutdown complete")
	return nil
}

func openDatabase(cfg *config.Config) (storage.Database, error) {
	if cfg.Storage.Backend == config.BackendMemory {
		return storage.NewMemDB(), nil
	}
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("prepare data directory: %w", err)
	}
	db, err := storage.NewLevelDBWithOptions(filepath.Join(cfg.DataDir, "ledger"), storage.LevelDBOptions{
		CacheMB: cfg.Storage.CacheMB,
		Handles: cfg.Storage.Handles,
	})
	if err != nil {
		return nil, err
	}
	return db, nil
}

func rpcConfig(cfg *config.Config, jwtSecret string) rpc.Config {
	seconds := func(v int) time.Duration { return time.Duration(v) * time.Second }
	return rpc.Config{
		MaxBodyBytes:      cfg.RPC.MaxBodyBytes,
		RateLimitPerSec:   cfg.RPC.RateLimitPerSec,
		RateLimitBurst:    cfg.RPC.RateLimitBurst,
		TrustedProxies:    cfg.RPC.TrustedProxies,
		JWTSecret:         jwtSecret,
		JWTIssuer:         cfg.RPC.JWTIssuer,
		ReadHeaderTimeout: seconds(cfg.RPC.ReadHeaderTimeout),
		ReadTimeout:       seconds(cfg.RPC.ReadTimeout),
		WriteTimeout:      seconds(cfg.RPC.WriteTimeout),
		IdleTimeout:       seconds(cfg.RPC.IdleTimeout),
		TLSCertFile:       cfg.RPC.TLSCertFile,
		TLSKeyFile:        cfg.RPC.TLSKeyFile,
	}
}

// reportingDSN resolves relative SQLite paths under DataDir.
func reportingDSN(cfg *config.Config) string {
	dsn := strings.TrimSpace(cfg.Reporting.DSN)
	if dsn == "" || cfg.Reporting.Driver != config.ReportingSQLite {
		return dsn
	}
	if filepath.IsAbs(dsn) || strings.HasPrefix(dsn, "file:") {
		return dsn
	}
	return filepath.Join(cfg.DataDir, dsn)
}

func lookupSecret(envName string) string {
	envName = strings.TrimSpace(envName)
	if envName == "" {
		return ""
	}
	return strings.TrimSpace(os.Getenv(envName))
}
