package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/jrsteele09/stratgate/internal/logx"
	"github.com/rs/zerolog/log"
)

func main() {
	logx.Configure(os.Getenv("LOG_LEVEL"), true)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		log.Debug().Err(err).Msg("genctl failed")
		os.Exit(1)
	}
}
