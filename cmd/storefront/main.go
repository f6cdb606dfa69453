package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/example/ec-storefront-client/internal/config"
	"github.com/example/ec-storefront-client/internal/logging"
	"github.com/example/ec-storefront-client/internal/storage"
	"go.uber.org/zap"
)

func main() {
	envFile := flag.String("env", ".env", "optional .env file")
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() == 0 {
		usage()
		os.Exit(2)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load(*envFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogDevelopment)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer logger.Sync()

	st, err := storage.Open(ctx, cfg.Storage(), logger)
	if err != nil {
		logger.Fatal("failed to open storage", zap.Error(err))
	}
	defer st.Close()

	a, err := newApp(ctx, cfg, logger, st, os.Stdout)
	if err != nil {
		logger.Fatal("failed to start", zap.Error(err))
	}

	runErr := a.run(ctx, flag.Args())
	a.close()
	if runErr != nil {
		fmt.Fprintln(os.Stderr, "error:", runErr)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprint(os.Stderr, `usage: storefront [-env FILE] <command> [args]

commands:
  login EMAIL PASSWORD
  register EMAIL NAME PASSWORD
  logout
  whoami
  products [SEARCH]
  cart
  add PRODUCT_ID VARIANT_ID [QTY]
  update VARIANT_ID QTY
  remove VARIANT_ID
  clear
  checkout NAME LINE1 CITY STATE POSTAL_CODE COUNTRY PHONE [NOTES]
`)
}
