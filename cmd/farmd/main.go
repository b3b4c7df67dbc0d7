package main

import (
	"flag"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"gopkg.in/natefinch/lumberjack.v2"

	"farmchain/config"
	"farmchain/native/farming"
	"farmchain/observability/logging"
	"farmchain/rpc"
	"farmchain/storage"
)

// intentLogger surfaces outbound transfer intents in the log. The intent
// record is durable, so the host integration finalizes it out of band via
// Engine.FinalizeTransfer.
type intentLogger struct {
	log *slog.Logger
}

func (t *intentLogger) Transfer(callID, token, receiver string, amount *big.Int) error {
	t.log.Info("outbound transfer requested",
		slog.String("callId", callID),
		slog.String("token", token),
		slog.String("receiver", receiver),
		slog.String("amount", amount.String()),
	)
	return nil
}

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	var logOut io.Writer
	if cfg.LogFile != "" {
		logOut = &lumberjack.Logger{
			Filename:   cfg.LogFile,
			MaxSize:    100, // megabytes
			MaxBackups: 5,
			MaxAge:     14, // days
			Compress:   true,
		}
	}
	logger := logging.Setup("farmd", cfg.Environment, logOut)

	db, err := storage.NewLevelDB(filepath.Join(cfg.DataDir, "farm"))
	if err != nil {
		panic(fmt.Sprintf("Failed to open database: %v", err))
	}
	defer db.Close()

	limits, err := cfg.Limits()
	if err != nil {
		logger.Error("Invalid limits", slog.Any("error", err))
		os.Exit(1)
	}

	state := storage.NewState(db)
	engine := farming.NewEngine(cfg.OwnerAccount, limits)
	engine.SetState(state)
	engine.SetTransferor(&intentLogger{log: logger})

	server := rpc.NewServer(engine, state, logger, cfg.OperatorToken, cfg.RateLimitPerSecond, cfg.RateLimitBurst)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Query API listening", slog.String("addr", cfg.ListenAddress))
		errCh <- server.ListenAndServe(cfg.ListenAddress)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		logger.Error("HTTP server stopped", slog.Any("error", err))
		os.Exit(1)
	case sig := <-sigCh:
		logger.Info("Shutting down", slog.String("signal", sig.String()))
	}
}
