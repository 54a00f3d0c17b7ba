package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"bookingledger/config"
	"bookingledger/core"
	"bookingledger/crypto"
	"bookingledger/observability/logging"
	"bookingledger/observability/otel"
	"bookingledger/rpc"
	"bookingledger/storage"
)

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	rpcAddr := flag.String("rpc", "", "Listen address for the JSON-RPC server (overrides config)")
	flag.Parse()

	env := strings.TrimSpace(os.Getenv("BOOKINGLEDGER_ENV"))
	logger := logging.Setup("bookingd", env)

	cfg, err := config.Load(*configFile)
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}
	if *rpcAddr != "" {
		cfg.RPCAddress = *rpcAddr
	}
	if err := cfg.Validate(); err != nil {
		logger.Error("Invalid configuration", slog.Any("error", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Telemetry.Endpoint != "" {
		shutdown, err := otel.Init(ctx, otel.Config{
			ServiceName: "bookingd",
			Environment: env,
			Endpoint:    cfg.Telemetry.Endpoint,
			Insecure:    cfg.Telemetry.Insecure,
			Metrics:     cfg.Telemetry.Metrics,
			Traces:      cfg.Telemetry.Traces,
		})
		if err != nil {
			logger.Error("Failed to initialise telemetry", slog.Any("error", err))
			os.Exit(1)
		}
		defer func() {
			if err := shutdown(context.Background()); err != nil {
				logger.Warn("Telemetry shutdown failed", slog.Any("error", err))
			}
		}()
	}

	db, err := storage.NewLevelDB(cfg.DataDir)
	if err != nil {
		panic(fmt.Sprintf("Failed to open database: %v", err))
	}
	defer db.Close()

	agentKey, err := crypto.LoadKey(cfg.AgentKeyPath)
	if err != nil {
		logger.Error("Failed to load agent key", slog.String("path", cfg.AgentKeyPath), slog.Any("error", err))
		os.Exit(1)
	}

	node, err := core.NewNode(db, agentKey)
	if err != nil {
		panic(fmt.Sprintf("Failed to create node: %v", err))
	}
	logger.Info("Booking ledger node ready",
		slog.String("network", cfg.NetworkName),
		slog.String("agent", node.AgentAddress().String()),
		slog.String("dataDir", cfg.DataDir),
	)

	server := rpc.NewServer(node, logger)
	if err := server.Start(ctx, cfg.RPCAddress); err != nil {
		logger.Error("RPC server stopped", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("Shutdown complete")
}
