// Command apiserver runs the prediction HTTP API without the CLI tree.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/turtacn/ChemPredict/internal/bootstrap"
	"github.com/turtacn/ChemPredict/internal/config"
	"github.com/turtacn/ChemPredict/internal/infrastructure/monitoring/logging"
)

const defaultConfigPath = "configs/config.yaml"

var version = "dev"

func main() {
	configPath := flag.String("config", defaultConfigPath, "path to configuration file")
	port := flag.Int("port", 0, "HTTP port (overrides server.port)")
	flag.Parse()

	if err := run(*configPath, *port); err != nil {
		fmt.Fprintf(os.Stderr, "apiserver: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string, port int) error {
	cfg, err := config.LoadOrDefault(configPath)
	if err != nil {
		return err
	}
	if port > 0 {
		cfg.Server.Port = port
	}

	logger, err := bootstrap.NewLogger(cfg.Log)
	if err != nil {
		return err
	}
	logging.SetDefault(logger)
	defer logger.Sync()

	logger.Info("starting chempredict API server",
		logging.String("version", version),
		logging.String("addr", cfg.Server.Addr()),
		logging.String("backend", cfg.Model.Backend))

	if _, err := os.Stat(configPath); err == nil {
		watchLogLevel(configPath, cfg.Log.Level, logger)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	infra, err := bootstrap.Open(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer infra.Close()

	if err := infra.Serve(ctx, version); err != nil {
		return err
	}
	logger.Info("API server stopped")
	return nil
}

// watchLogLevel swaps the default logger when the file's log level changes.
// Other settings need a restart.
func watchLogLevel(path, level string, logger logging.Logger) {
	config.Watch(path, func(next *config.Config) {
		if next.Log.Level == level {
			logger.Info("configuration changed; restart to apply", logging.String("path", path))
			return
		}
		l, err := bootstrap.NewLogger(next.Log)
		if err != nil {
			logger.Warn("log level reload failed", logging.Err(err))
			return
		}
		logging.SetDefault(l)
		logger.Info("log level changed", logging.String("from", level), logging.String("to", next.Log.Level))
		level = next.Log.Level
	}, func(err error) {
		logger.Warn("ignoring invalid configuration revision", logging.Err(err))
	})
}
