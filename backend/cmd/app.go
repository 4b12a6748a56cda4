package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/showkit/scenerelay/backend/registry"
	httpServer "github.com/showkit/scenerelay/backend/server/http"
	websocketServer "github.com/showkit/scenerelay/backend/server/websocket"
	"github.com/showkit/scenerelay/backend/service"
	"github.com/showkit/scenerelay/backend/session"
	"github.com/showkit/scenerelay/backend/storage/disk"
	"github.com/spf13/pflag"
)

func main() {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	fs := pflag.NewFlagSet("main", pflag.ContinueOnError)

	listenDefault := ":3000"
	if port := os.Getenv("PORT"); port != "" {
		listenDefault = ":" + port
	}

	var (
		listenAddr = fs.StringP("listen-addr", "a", listenDefault, "listen address")
		publicURL  = fs.StringP("public-url", "u", os.Getenv("PUBLIC_URL"), "base url for absolute asset links")
		uploadsDir = fs.StringP("uploads-dir", "d", "./uploads", "uploaded model storage directory")
		logLevel   = fs.StringP("log-level", "l", "debug", "log level")
	)
	if err := fs.Parse(os.Args[1:]); err != nil {
		logger.Fatal().Err(err).Msg("failed to parse command line arguments")
	}

	lvl, err := zerolog.ParseLevel(*logLevel)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to parse loglevel")
	}
	logger = logger.Level(lvl)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, err := disk.New(*uploadsDir, &logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open uploads dir")
	}

	peers := registry.New(&logger)
	uploads := session.NewBuffer()
	coord := session.NewCoordinator(ctx, session.Config{
		Logger:  &logger,
		Peers:   peers,
		Uploads: uploads,
	})
	svc := service.NewService(service.Config{
		Registry:    peers,
		Coordinator: coord,
		Logger:      &logger,
	})
	wsHandler := websocketServer.NewHandler(websocketServer.Config{
		Logger:         &logger,
		SessionService: svc,
	})
	apiSrv := httpServer.NewServer(httpServer.Config{
		Logger:     &logger,
		Store:      store,
		Buffer:     uploads,
		Realtime:   wsHandler,
		ListenAddr: *listenAddr,
		PublicURL:  *publicURL,
	})

	var (
		wg   = &sync.WaitGroup{}
		errc = make(chan error, 1)
	)
	wg.Add(1)
	go apiSrv.Run(ctx, wg, errc)

	select {
	case err = <-errc:
		logger.Error().Err(err).Msg("unexpected server error, shutting down")
	case <-ctx.Done():
		logger.Warn().Msg("interrupted")
	}
	cancel()
	wg.Wait()
}
