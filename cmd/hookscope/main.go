// Copyright 2025-2026 Hookscope Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// included in the LICENSE file of this repository.

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hookscope/hookscope/pkg/agent"
	"github.com/hookscope/hookscope/pkg/config"
	"github.com/hookscope/hookscope/pkg/script"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	var (
		configPath  string
		logLevel    string
		showVersion bool
	)

	flag.StringVar(&configPath, "config", "", "path to configuration file")
	flag.StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	flag.BoolVar(&showVersion, "version", false, "show version and exit")
	flag.Parse()

	if showVersion {
		fmt.Printf("hookscope %s (commit: %s, built: %s)\n", version, commit, buildDate)
		os.Exit(0)
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	if logLevel != "" {
		cfg.LogLevel = logLevel
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("starting hookscope",
		zap.String("version", version),
		zap.String("commit", commit),
	)

	rt := script.New(logger)
	a, err := agent.New(cfg, rt, logger)
	if err != nil {
		logger.Fatal("failed to create agent", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := a.Start(ctx); err != nil {
		logger.Fatal("failed to start agent", zap.Error(err))
	}

	var watcher *config.Watcher
	if configPath != "" {
		watcher = config.NewWatcher(configPath, func(newCfg *config.Config) {
			if err := a.Reload(newCfg); err != nil {
				logger.Error("failed to apply reloaded config", zap.Error(err))
			}
		}, logger)
		if err := watcher.Start(ctx); err != nil {
			logger.Warn("failed to start config watcher", zap.Error(err))
		}
	}

	workloadDone := make(chan struct{})
	go func() {
		defer close(workloadDone)
		runWorkload(ctx, a, rt, logger)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	hupCh := make(chan os.Signal, 1)
	signal.Notify(hupCh, syscall.SIGHUP)

	for {
		select {
		case sig := <-sigCh:
			logger.Info("received shutdown signal", zap.String("signal", sig.String()))
			if watcher != nil {
				watcher.Stop()
			}
			cancel()
			<-workloadDone

			shutdownDone := make(chan struct{})
			go func() {
				if err := a.Stop(); err != nil {
					logger.Error("error during shutdown", zap.Error(err))
				}
				close(shutdownDone)
			}()

			select {
			case <-shutdownDone:
				logger.Info("hookscope stopped")
			case <-time.After(30 * time.Second):
				logger.Error("shutdown timed out after 30s, forcing exit")
				os.Exit(1)
			}
			return

		case <-hupCh:
			logger.Info("received SIGHUP, reloading configuration")
			newCfg, err := loadConfig(configPath)
			if err != nil {
				logger.Error("failed to reload config", zap.Error(err))
				continue
			}
			if err := a.Reload(newCfg); err != nil {
				logger.Error("failed to apply new config", zap.Error(err))
			} else {
				logger.Info("configuration reloaded successfully")
			}
		}
	}
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.Load(path)
	}

	defaults := []string{
		"configs/hookscope.yaml",
		"/etc/hookscope/hookscope.yaml",
		"/etc/hookscope.yaml",
	}
	for _, p := range defaults {
		if _, err := os.Stat(p); err == nil {
			return config.Load(p)
		}
	}

	return config.DefaultConfig(), nil
}

func newLogger(level string) (*zap.Logger, error) {
	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "info":
		zapLevel = zapcore.InfoLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	cfg := zap.Config{
		Level:            zap.NewAtomicLevelAt(zapLevel),
		Encoding:         "console",
		EncoderConfig:    zap.NewProductionEncoderConfig(),
		OutputPaths:      []string{"stderr"},
		ErrorOutputPaths: []string{"stderr"},
	}
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder

	return cfg.Build()
}
