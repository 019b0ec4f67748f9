package di

import (
	"context"
	"fmt"
	"time"

	"momentum/internal/candles"
	"momentum/internal/domain/repository"
	"momentum/internal/handler/api"
	"momentum/internal/marketctx"
	mid "momentum/internal/middleware"
	"momentum/internal/refresher"
	internalrepo "momentum/internal/repository"
	"momentum/internal/scoring"
	"momentum/internal/service/eodhd"
	"momentum/internal/usecase"
	"momentum/pkg/cache"
	pkgch "momentum/pkg/clickhouse"
	"momentum/pkg/config"
	pkgkafka "momentum/pkg/kafka"
	"momentum/pkg/logger"
	"momentum/pkg/metrics"
	"momentum/pkg/server"
)

// ProvideLogger creates the application logger.
func ProvideLogger(cfg *config.Config) (*logger.Logger, error) {
	return logger.New(&logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() repository.Metrics {
	return metrics.New()
}

// ProvideStore creates the in-memory candle repository.
func ProvideStore(cfg *config.Config) *candles.Store {
	return candles.NewStore(candles.WithCapacity(cfg.Market.HistoryCapacity))
}

// ProvideBuilder creates the tick-to-candle aggregator.
func ProvideBuilder(store *candles.Store) *candles.Builder {
	return candles.NewBuilder(store)
}

// ProvideCache creates the return cache: layered over Redis when enabled,
// in-process memory otherwise.
func ProvideCache(cfg *config.Config, log *logger.Logger) cache.Service {
	if cfg.Cache.Redis.Enabled {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		rc, err := cache.NewRedisCache(ctx,
			cache.WithRedisAddr(cfg.Cache.Redis.Host, cfg.Cache.Redis.Port),
			cache.WithRedisAuth(cfg.Cache.Redis.Password, cfg.Cache.Redis.DB),
			cache.WithRedisPrefix(cfg.Cache.Redis.Prefix),
		)
		if err == nil {
			return cache.NewLayeredCache(rc)
		}
		log.Warn("redis unavailable, using memory cache", logger.Error(err))
	}
	return cache.NewMemoryCache()
}

// ProvideKafkaProducer creates a Kafka producer, or nil when the sink is
// disabled.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	if !cfg.Sinks.Kafka.Enabled {
		return nil, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Sinks.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Sinks.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Sinks.Kafka.RequiredAcks),
		pkgkafka.WithBatchSize(cfg.Sinks.Kafka.BatchSize),
		pkgkafka.WithBatchTimeout(cfg.Sinks.Kafka.BatchTimeout),
		pkgkafka.WithAsync(cfg.Sinks.Kafka.Async),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

// ProvideClickHouseArchive creates the candle archive sink, or nil when
// disabled.
func ProvideClickHouseArchive(cfg *config.Config) (*internalrepo.ClickHouseArchive, error) {
	if !cfg.Sinks.ClickHouse.Enabled {
		return nil, nil
	}
	client, err := pkgch.NewClient(
		pkgch.WithHost(cfg.Sinks.ClickHouse.Host),
		pkgch.WithPort(cfg.Sinks.ClickHouse.Port),
		pkgch.WithDatabase(cfg.Sinks.ClickHouse.Database),
		pkgch.WithCredentials(cfg.Sinks.ClickHouse.User, cfg.Sinks.ClickHouse.Password),
		pkgch.WithTimeouts(cfg.Sinks.ClickHouse.DialTimeout, 10*time.Second, 10*time.Second),
		pkgch.WithAsyncInsert(true, false),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}

	archive := internalrepo.NewClickHouseArchive(client, cfg.Sinks.ClickHouse.Table)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := archive.Init(ctx); err != nil {
		_ = archive.Close()
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}
	return archive, nil
}

// ProvideSinks assembles the enabled candle sinks.
func ProvideSinks(producer *pkgkafka.Producer, archive *internalrepo.ClickHouseArchive, cfg *config.Config) []repository.CandleSink {
	var sinks []repository.CandleSink
	if producer != nil {
		sinks = append(sinks, internalrepo.NewKafkaCandlePublisher(producer, cfg.Sinks.Kafka.Topic))
	}
	if archive != nil {
		sinks = append(sinks, archive)
	}
	return sinks
}

// ProvideStream creates the EODHD WebSocket stream.
func ProvideStream(cfg *config.Config, log *logger.Logger) repository.MarketStream {
	return eodhd.NewStream(
		cfg.Provider.APIToken,
		cfg.Provider.WebSocketURL,
		cfg.Provider.Symbols,
		cfg.Provider.ReconnectDelay,
		cfg.Provider.PingInterval,
		log,
	)
}

// ProvideHistoricalProvider creates the EODHD REST provider.
func ProvideHistoricalProvider(cfg *config.Config) repository.HistoricalProvider {
	return eodhd.NewREST(
		cfg.Provider.BaseURL,
		cfg.Provider.APIToken,
		eodhd.WithRateLimit(cfg.Provider.RateLimitPerSec, 2*cfg.Provider.RateLimitPerSec),
	)
}

// ProvideRefresher creates the periodic history refresher.
func ProvideRefresher(store *candles.Store, provider repository.HistoricalProvider, log *logger.Logger, m repository.Metrics, cfg *config.Config) *refresher.Refresher {
	return refresher.New(store, provider, log, m, cfg.Market.RefreshInterval,
		refresher.WithLimit(cfg.Market.RefreshLimit))
}

// ProvideTickProcessor creates the tick processor use case.
func ProvideTickProcessor(builder *candles.Builder, sinks []repository.CandleSink, m repository.Metrics, log *logger.Logger) *usecase.TickProcessor {
	return usecase.NewTickProcessor(builder, sinks, m, log)
}

// ProvideTickCollector creates the tick collector use case.
func ProvideTickCollector(stream repository.MarketStream, processor *usecase.TickProcessor, m repository.Metrics, cfg *config.Config) *usecase.TickCollector {
	pipe := mid.NewTickPipeline(processor, m,
		mid.WithMaxRPS(50),
		mid.WithBufferSize(2000),
	)
	return usecase.NewTickCollector(stream, processor, m, pipe,
		usecase.WithReconnectBackoff(cfg.Provider.ReconnectDelay, cfg.Provider.MaxReconnectDelay))
}

// ProvideMarketContextEngine creates the market-regime engine.
func ProvideMarketContextEngine(store *candles.Store, provider repository.HistoricalProvider, c cache.Service, cfg *config.Config) *marketctx.Engine {
	return marketctx.New(store, provider, c, marketctx.Config{
		PrimaryRef:   cfg.Market.Context.PrimaryRef,
		SecondaryRef: cfg.Market.Context.SecondaryRef,
		ReturnBars:   cfg.Market.Context.ReturnBars,
		CacheTTL:     cfg.Market.Context.CacheTTL,
		MinBars15m:   cfg.Market.Context.MinBars15m,
	})
}

// ProvideScoringEngine creates the gated scoring engine.
func ProvideScoringEngine(store *candles.Store, cfg *config.Config) *scoring.Engine {
	return scoring.New(store, scoring.Config{
		RSRiskOffThreshold:  cfg.Market.Gates.RSRiskOffThreshold,
		NoChaseATRMultiple:  cfg.Market.Gates.NoChaseATRMultiple,
		ThinRelVolThreshold: cfg.Market.Gates.ThinRelVolThreshold,
		MaxGaps:             cfg.Market.Gates.MaxGaps,
	})
}

// ProvideSnapshotUsecase creates the snapshot use case.
func ProvideSnapshotUsecase(store *candles.Store, cfg *config.Config) *usecase.SnapshotUsecase {
	return usecase.NewSnapshotUsecase(store, cfg.Market.Freshness)
}

// ProvideScoreUsecase creates the score use case.
func ProvideScoreUsecase(store *candles.Store, snapshot *usecase.SnapshotUsecase, ctxEng *marketctx.Engine, scorer *scoring.Engine) *usecase.ScoreUsecase {
	return usecase.NewScoreUsecase(store, snapshot, ctxEng, scorer)
}

// ProvideHandler creates the market API handler.
func ProvideHandler(log *logger.Logger, snapshot *usecase.SnapshotUsecase, score *usecase.ScoreUsecase, collector *usecase.TickCollector, cfg *config.Config) *api.MarketHandler {
	return api.NewMarketHandler(log, snapshot, score, collector, cfg.Provider.DefaultTicker, cfg.Provider.Symbols)
}

// ProvideApp creates the application server.
func ProvideApp(
	cfg *config.Config,
	log *logger.Logger,
	collector *usecase.TickCollector,
	refr *refresher.Refresher,
	handler *api.MarketHandler,
) *server.App {
	app := server.New(cfg, log, collector, refr, handler)
	app.TickProc = collector.Processor()
	return app
}
