// Hand-maintained in the shape wire emits for wire.go. Run `go generate`
// after changing the providers in wire.go and keep the regenerated output.

//go:generate go run -mod=mod github.com/google/wire/cmd/wire
//go:build !wireinject
// +build !wireinject

package main

import (
	"context"
)

// Injectors from wire.go:

// BuildApp wires the server components using Google Wire.
func BuildApp(ctx context.Context) (*App, func(), error) {
	configConfig, err := provideConfig()
	if err != nil {
		return nil, nil, err
	}
	logger := provideLogger(configConfig)
	hub := provideHub()
	board := provideLeaderboard()
	catalog, err := provideCatalog(configConfig, logger)
	if err != nil {
		return nil, nil, err
	}
	storage, cleanup, err := provideStorage(ctx, configConfig, logger)
	if err != nil {
		return nil, nil, err
	}
	sink := provideWebhook(configConfig, logger)
	service, cleanup2, err := provideService(configConfig, logger, catalog, storage, hub, board, sink)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	rollover := provideRollover(configConfig, logger, service)
	handler := provideHandler(service, hub, board, configConfig, logger)
	server := provideServer(configConfig, handler)
	app := &App{
		Config:   configConfig,
		Logger:   logger,
		Hub:      hub,
		Service:  service,
		Rollover: rollover,
		Handler:  handler,
		Server:   server,
	}
	return app, func() {
		cleanup2()
		cleanup()
	}, nil
}
