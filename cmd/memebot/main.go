// Command memebot runs the memecoin trading loop. It loads configuration,
// validates it for the requested command, sets up signal handling and hands
// control to the application.
//
// Usage:
//
//	memebot [-config path] run|once|scan|health
//	memebot [-config path] evaluate|close <token>
//	memebot [-config path] encrypt-key [out-path] < key.hex
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/alanyoungcy/memebot/internal/app"
	"github.com/alanyoungcy/memebot/internal/config"
	"github.com/alanyoungcy/memebot/internal/crypto"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "config.toml", "path to configuration file")
	flag.Usage = usage
	flag.Parse()

	// Command output goes to stdout, logs to stderr.
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	command := strings.ToLower(flag.Arg(0))
	if command == "" {
		usage()
		return 2
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config",
			slog.String("path", *configPath),
			slog.String("error", err.Error()),
		)
		return 1
	}

	if command == "encrypt-key" {
		if err := encryptKey(cfg, flag.Arg(1), os.Stdin); err != nil {
			logger.Error("encrypt key failed", slog.String("error", err.Error()))
			return 1
		}
		return 0
	}
	cfg.Mode = command

	var level slog.Level
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	logger = slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	if len(cfg.Metadata) > 0 {
		logger = logger.With(slog.Any("metadata", cfg.Metadata))
	}
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", slog.String("error", err.Error()))
		return 1
	}
	logger.Debug("configuration loaded", slog.Any("config", config.RedactedConfig(cfg)))

	application := app.New(cfg, logger)
	defer application.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := application.Run(ctx, flag.Args()[1:]); err != nil {
		switch {
		case errors.Is(err, context.Canceled):
			logger.Info("memebot shut down gracefully")
		case errors.Is(err, app.ErrUnhealthy):
			return 1
		default:
			logger.Error("memebot exited with error", slog.String("error", err.Error()))
			fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
			return 1
		}
	}

	logger.Info("memebot stopped", slog.String("command", command))
	return 0
}

// encryptKey reads a hex private key from r and writes it encrypted with
// wallet.key_password to out, or to wallet.encrypted_key_path when out is
// empty.
func encryptKey(cfg *config.Config, out string, r io.Reader) error {
	if out == "" {
		out = cfg.Wallet.EncryptedKeyPath
	}
	if out == "" {
		return errors.New("no output path: pass one or set wallet.encrypted_key_path")
	}
	if cfg.Wallet.KeyPassword == "" {
		return errors.New("MEMEBOT_WALLET_KEY_PASSWORD is not set")
	}

	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("read key: %w", err)
	}
	key := strings.TrimSpace(line)
	if key == "" {
		return errors.New("no key on stdin")
	}
	if err := crypto.WriteEncryptedKey(out, key, cfg.Wallet.KeyPassword); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "encrypted key written to %s\n", out)
	return nil
}

func usage() {
	fmt.Fprint(flag.CommandLine.Output(), `usage: memebot [-config path] <command> [args]

commands:
  run               run the trading loop continuously with the monitor server
  once              run a single cycle and exit
  scan              print ranked candidates without trading
  evaluate <token>  run intake and risk checks on one token
  health            print {synced_block, ok}; exit 1 when unhealthy
  close <token>     sell an open position now
  encrypt-key [out] encrypt a hex private key read from stdin

flags:
`)
	flag.PrintDefaults()
}
