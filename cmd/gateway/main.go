package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/jrsteele09/stratgate/identity"
	"github.com/jrsteele09/stratgate/internal/config"
	"github.com/jrsteele09/stratgate/internal/logx"
	"github.com/jrsteele09/stratgate/server"
	"github.com/rs/zerolog/log"
)

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("Error running server")
	}
	log.Info().Msg("Server stopped")
}

func run() (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Str("panic", fmt.Sprint(r)).Bytes("stack", debug.Stack()).Msg("Recovered from panic")
			returnError = errors.New("panic recovered")
		}
	}()

	c := config.New()
	logx.Configure(c.GetLogLevel(), c.GetEnv() == "DEV")
	displayAppname(c.GetAppName())

	provider := identity.NewClient(identity.Config{
		TokenURL:     c.GetTokenURL(),
		UserInfoURL:  c.GetUserInfoURL(),
		SignupURL:    c.GetSignupURL(),
		RevokeURL:    c.GetRevokeURL(),
		ClientID:     c.GetClientID(),
		ClientSecret: c.GetClientSecret(),
	})
	handler, err := server.New(c, provider)
	if err != nil {
		return fmt.Errorf("server.New: %w", err)
	}
	defer func() {
		if err := handler.Close(); err != nil {
			log.Warn().Err(err).Msg("closing session store")
		}
	}()

	// No write timeout: relayed event streams stay open for minutes.
	srv := &http.Server{Addr: c.GetPort(), Handler: handler, ReadHeaderTimeout: 10 * time.Second}
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- listenAndServe(srv)
	}()

	select {
	case err := <-serveErr:
		return err
	case <-waitForStopSignal():
	}
	return shutdown(srv)
}

func listenAndServe(server *http.Server) error {
	log.Info().Str("addr", server.Addr).Msg("Server listening")
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server.ListenAndServe %w", err)
	}
	return nil
}

func waitForStopSignal() <-chan os.Signal {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	return stop
}

func shutdown(server *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server.Shutdown: %w", err)
	}
	return nil
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
