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
	"github.com/jrsteele09/go-auth-session/auth"
	"github.com/jrsteele09/go-auth-session/identity/keycloak"
	"github.com/jrsteele09/go-auth-session/internal/config"
	"github.com/jrsteele09/go-auth-session/server"
	"github.com/jrsteele09/go-auth-session/sessions"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(envFile)
	},
}

func run(envFile string) (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Bytes("stack", debug.Stack()).Msg("recovered from panic")
			returnError = errors.New("panic recovered")
		}
	}()

	c, err := config.New(envFile)
	if err != nil {
		return err
	}
	setupLogging(c)
	displayAppname(c.GetAppName())

	cache, sqliteStore, err := openTokenCache(c)
	if err != nil {
		return err
	}
	if sqliteStore != nil {
		defer sqliteStore.Close()
	}

	redirects := server.NewRedirects()
	client, err := keycloak.New(c,
		keycloak.WithNavigator(redirects.Navigator()),
		keycloak.WithCache(cache),
		keycloak.WithHTTPClient(&http.Client{Timeout: c.GetProviderTimeout()}),
		keycloak.WithLogger(log.With().Str("component", "keycloak").Logger()),
	)
	if err != nil {
		return err
	}

	store := sessions.NewStore()
	unsubscribe := store.Subscribe(func(s sessions.Session) {
		log.Debug().Str("status", string(s.Status())).Msg("session changed")
	})
	defer unsubscribe()

	synchronizer, err := auth.NewSynchronizer(client, store,
		auth.WithRefreshMargin(c.GetRefreshMargin()),
		auth.WithRefreshTimeout(c.GetProviderTimeout()),
		auth.WithLogger(log.With().Str("component", "auth").Logger()),
	)
	if err != nil {
		return err
	}
	defer synchronizer.Close()

	var options []server.ServerOption
	if sqliteStore != nil {
		options = append(options, server.WithTokenCache(sqliteStore))
	}
	handler, err := server.New(c, store, synchronizer, client, redirects, options...)
	if err != nil {
		return err
	}

	go initialCheck(synchronizer, c.GetProviderTimeout())

	httpServer := &http.Server{Addr: c.GetPort(), Handler: handler, ReadHeaderTimeout: 10 * time.Second}
	serveErr := make(chan error, 1)
	go func() { serveErr <- listenAndServe(httpServer) }()

	select {
	case err := <-serveErr:
		return err
	case <-waitForStopSignal():
	}
	returnError = shutdown(httpServer)
	log.Info().Msg("Server stopped")
	return returnError
}

// initialCheck restores a cached session at start so the first page load does
// not wait on the provider.
func initialCheck(synchronizer *auth.Synchronizer, timeout time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	session, err := synchronizer.CheckSession(ctx)
	switch {
	case err == nil:
		log.Info().Str("status", string(session.Status())).Msg("restored session")
	case errors.Is(err, auth.NotAuthenticatedErr):
		log.Info().Msg("no stored session, login required")
	default:
		log.Error().Err(err).Msg("initial session check failed")
	}
}

func listenAndServe(server *http.Server) error {
	log.Info().Msgf("Server listening on %s", server.Addr)
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
