package repository

import (
	"context"
	"database/sql"
	"fmt"

	"momentum/internal/domain/models"
	"momentum/internal/domain/repository"
	pkgch "momentum/pkg/clickhouse"
	pkgkafka "momentum/pkg/kafka"
)

// KafkaCandlePublisher implements CandleSink over a Kafka topic. Closed
// candles are keyed by symbol so per-symbol ordering survives partitioning.
type KafkaCandlePublisher struct {
	producer *pkgkafka.Producer
	topic    string
}

// NewKafkaCandlePublisher creates a Kafka candle sink.
func NewKafkaCandlePublisher(producer *pkgkafka.Producer, topic string) repository.CandleSink {
	return &KafkaCandlePublisher{producer: producer, topic: topic}
}

func (p *KafkaCandlePublisher) Publish(ctx context.Context, c *models.Candle) error {
	return p.producer.Publish(ctx, p.topic, []byte(c.Symbol), map[string]interface{}{
		"symbol":   c.Symbol,
		"tf":       c.Timeframe,
		"start_ts": c.StartTS.Unix(),
		"end_ts":   c.EndTS.Unix(),
		"o":        c.Open,
		"h":        c.High,
		"l":        c.Low,
		"c":        c.Close,
		"v":        c.Volume,
	})
}

func (p *KafkaCandlePublisher) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}

// ClickHouseArchive implements CandleSink as a write-only archive table.
// The live path never reads it back; it exists for offline analysis.
type ClickHouseArchive struct {
	client *pkgch.Client
	db     *sql.DB
	table  string
}

// NewClickHouseArchive creates a ClickHouse candle archive sink.
func NewClickHouseArchive(client *pkgch.Client, table string) *ClickHouseArchive {
	return &ClickHouseArchive{client: client, db: client.DB(), table: table}
}

// Init ensures the archive table exists.
func (a *ClickHouseArchive) Init(ctx context.Context) error {
	stmt := fmt.Sprintf(`
        CREATE TABLE IF NOT EXISTS %s (
            symbol   String,
            tf       String,
            start_ts DateTime,
            end_ts   DateTime,
            open     Float64,
            high     Float64,
            low      Float64,
            close    Float64,
            volume   Float64
        ) ENGINE = MergeTree()
        ORDER BY (symbol, tf, start_ts)
    `, a.table)
	return a.client.InitSchema(ctx, []string{stmt})
}

func (a *ClickHouseArchive) Publish(ctx context.Context, c *models.Candle) error {
	q := fmt.Sprintf(
		"INSERT INTO %s (symbol, tf, start_ts, end_ts, open, high, low, close, volume) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)",
		a.table)
	_, err := a.db.ExecContext(ctx, q,
		c.Symbol,
		c.Timeframe,
		c.StartTS,
		c.EndTS,
		c.Open,
		c.High,
		c.Low,
		c.Close,
		c.Volume,
	)
	if err != nil {
		return fmt.Errorf("archive candle: %w", err)
	}
	return nil
}

// Health performs a connectivity check.
func (a *ClickHouseArchive) Health(ctx context.Context) error {
	return a.client.Health(ctx)
}

func (a *ClickHouseArchive) Close() error {
	return a.client.Close()
}
