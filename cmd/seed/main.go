// Command seed manages the dictionary schema and bulk-loads synthetic
// translation keys.
//
// Usage:
//
//	seed migrate
//	seed load --keys 40000 --chunk 1000 --locales en,fr,es --tags web,mobile,desktop
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		log.Error().Err(err).Msg("seed failed")
		stop()
		os.Exit(1)
	}
}
