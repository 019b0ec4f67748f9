//go:build wireinject
// +build wireinject

package di

import (
	"momentum/pkg/config"
	"momentum/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		// Ambient
		ProvideLogger,
		ProvideMetrics,
		ProvideCache,

		// Repository
		ProvideStore,
		ProvideBuilder,

		// Infrastructure clients
		ProvideKafkaProducer,
		ProvideClickHouseArchive,
		ProvideSinks,
		ProvideStream,
		ProvideHistoricalProvider,

		// Use cases
		ProvideTickProcessor,
		ProvideTickCollector,
		ProvideRefresher,
		ProvideMarketContextEngine,
		ProvideScoringEngine,
		ProvideSnapshotUsecase,
		ProvideScoreUsecase,

		// HTTP
		ProvideHandler,

		// Application server
		ProvideApp,
	)
	return &server.App{}, nil
}
