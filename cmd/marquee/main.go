package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/hbomb79/Marquee/internal"
	"github.com/hbomb79/Marquee/pkg/logger"
)

var log = logger.Get("Main")

func main() {
	configPath := flag.String("config", "", "path to a YAML configuration file (environment only when omitted)")
	envFile := flag.String("env-file", ".env", "path to a dotenv file loaded before the configuration")
	flag.Parse()

	config, err := internal.LoadConfig(*configPath, *envFile)
	if err != nil {
		log.Emit(logger.FATAL, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	logger.SetMinLoggingLevel(config.MinLogLevel().Level())

	marquee, err := internal.New(*config)
	if err != nil {
		log.Emit(logger.FATAL, "Failed to initialise Marquee: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := marquee.Run(ctx); err != nil {
		log.Emit(logger.FATAL, "Marquee stopped unexpectedly: %v\n", err)
		stop()
		os.Exit(1)
	}

	log.Emit(logger.STOP, "Marquee shut down\n")
}
