package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/dmitrijs2005/draftkeeper/internal/buildinfo"
	"github.com/dmitrijs2005/draftkeeper/internal/client/cli"
	"github.com/dmitrijs2005/draftkeeper/internal/client/config"
	"github.com/dmitrijs2005/draftkeeper/internal/logging"
	"github.com/dmitrijs2005/draftkeeper/internal/metrics"
)

func main() {

	buildinfo.PrintBuildData(os.Stdout)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadConfig(os.Args[1:])
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger, err := logging.New(cfg.LogFormat, cfg.LogLevel, os.Stderr)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}

	var mr metrics.Reporter = metrics.NoopReporter{}
	if cfg.StatsdAddr != "" {
		dd, err := metrics.NewDataDogReporter(cfg.StatsdAddr, "draftkeeper.")
		if err != nil {
			logger.Warn(ctx, "metrics disabled", "addr", cfg.StatsdAddr, "error", err)
		} else {
			mr = dd
		}
	}

	app, err := cli.NewApp(ctx, cfg, logger, mr)
	if err != nil {
		_ = mr.Close()
		log.Fatalf("%v", err)
	}

	app.Run(ctx)

	if err := app.Close(); err != nil {
		fmt.Fprintln(os.Stderr, "shutdown:", err)
	}
}
