package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"tradewatch/internal/app"
	"tradewatch/internal/config"
	"tradewatch/internal/enrich"
	"tradewatch/internal/logging"
)

const usage = `usage: tradewatch <command>

commands:
  scan     scrape disclosure sites and store new trades
  enrich   fetch closing prices for trades not yet attempted
  sync     pull campaign contributions for tracked politicians
`

func main() {
	os.Exit(run())
}

func run() int {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		return 2
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := config.Load()
	logger := logging.New(cfg.Logging.Level)

	application, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("startup failed", "error", err)
		return 2
	}
	defer application.Close()

	switch cmd := os.Args[1]; cmd {
	case "scan":
		err = application.Scan(ctx)
	case "enrich":
		err = application.Enrich(ctx)
	case "sync":
		err = application.Sync(ctx)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", cmd, usage)
		return 2
	}

	switch {
	case err == nil:
		return 0
	case enrich.IsFatal(err):
		logger.Error("stopped: configuration error", "error", err)
		return 2
	case errors.Is(err, enrich.ErrTripped):
		logger.Error("stopped early, progress so far is saved", "error", err)
		return 1
	default:
		logger.Error("command failed", "error", err)
		return 1
	}
}
