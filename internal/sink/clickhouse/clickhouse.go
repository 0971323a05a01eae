// Package clickhouse writes verdicts and batch summaries to ClickHouse.
package clickhouse

import (
	"NetVerdict/internal/config"
	"NetVerdict/internal/factory"
	"NetVerdict/internal/model"
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"go.uber.org/zap"
)

const createVerdictsTable = `
CREATE TABLE IF NOT EXISTS flow_verdicts (
    BatchID             String,
    FlowID              String,
    Timestamp           DateTime64(3),
    SrcIP               String,
    DstIP               String,
    SrcPort             UInt16,
    DstPort             UInt16,
    Protocol            LowCardinality(String),
    FinalClassification LowCardinality(String),
    Confidence          Float64,
    IsAnomaly           Bool,
    AnomalyScore        Float64,
    RiskScore           Float64,
    RiskLevel           LowCardinality(String),
    ThreatType          String,
    SuspectedThreat     String,
    Reason              String
) ENGINE = MergeTree()
PARTITION BY toYYYYMM(Timestamp)
ORDER BY (RiskLevel, FinalClassification, Timestamp);
`

const createSummariesTable = `
CREATE TABLE IF NOT EXISTS batch_summaries (
    BatchID            String,
    Source             String,
    StartedAt          DateTime64(3),
    FinishedAt         DateTime64(3),
    Succeeded          UInt32,
    Failed             UInt32,
    AnomalyCount       UInt32,
    AnomalyRate        Float64,
    AvgRiskScore       Float64,
    AvgConfidence      Float64,
    AttackDistribution Map(String, UInt32),
    RiskDistribution   Map(String, UInt32)
) ENGINE = MergeTree()
PARTITION BY toYYYYMM(StartedAt)
ORDER BY (StartedAt, BatchID);
`

func init() {
	factory.RegisterWriter("clickhouse", func(def config.WriterDef, _ *config.Config, logger *zap.Logger) (model.Writer, error) {
		return NewWriter(def.ClickHouse, logger)
	})
}

// Writer implements model.Writer for ClickHouse.
type Writer struct {
	conn   driver.Conn
	logger *zap.Logger
}

// NewWriter connects and makes sure both tables exist.
func NewWriter(cfg config.ClickHouseConfig, logger *zap.Logger) (*Writer, error) {
	conn, err := connect(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to clickhouse: %w", err)
	}
	for _, stmt := range []string{createVerdictsTable, createSummariesTable} {
		if err := conn.Exec(context.Background(), stmt); err != nil {
			conn.Close()
			return nil, fmt.Errorf("failed to create table: %w", err)
		}
	}
	logger.Info("connected to ClickHouse and ensured tables exist", zap.String("host", cfg.Host))
	return &Writer{conn: conn, logger: logger}, nil
}

func connect(cfg config.ClickHouseConfig) (driver.Conn, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
	})
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := conn.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping clickhouse: %w", err)
	}
	return conn, nil
}

// Write inserts the flows of a batch followed by its summary.
func (w *Writer) Write(ctx context.Context, result *model.BatchResult) error {
	if len(result.Flows) > 0 {
		batch, err := w.conn.PrepareBatch(ctx, "INSERT INTO flow_verdicts")
		if err != nil {
			return fmt.Errorf("failed to prepare batch: %w", err)
		}
		for i := range result.Flows {
			if err := batch.Append(verdictRow(result, &result.Flows[i])...); err != nil {
				return fmt.Errorf("failed to append flow to batch: %w", err)
			}
		}
		if err := batch.Send(); err != nil {
			return fmt.Errorf("failed to send batch: %w", err)
		}
	}

	summary, err := w.conn.PrepareBatch(ctx, "INSERT INTO batch_summaries")
	if err != nil {
		return fmt.Errorf("failed to prepare summary batch: %w", err)
	}
	if err := summary.Append(summaryRow(result)...); err != nil {
		return fmt.Errorf("failed to append summary: %w", err)
	}
	if err := summary.Send(); err != nil {
		return fmt.Errorf("failed to send summary: %w", err)
	}

	w.logger.Info("wrote batch to ClickHouse",
		zap.String("batch_id", result.ID), zap.Int("flows", len(result.Flows)))
	return nil
}

// Close closes the connection.
func (w *Writer) Close() error {
	return w.conn.Close()
}

func verdictRow(result *model.BatchResult, f *model.EnrichedFlow) []any {
	ts := f.Record.Timestamp
	if ts.IsZero() {
		ts = result.StartedAt
	}
	return []any{
		result.ID,
		f.Record.ID,
		ts,
		f.Record.SrcIP,
		f.Record.DstIP,
		f.Record.SrcPort,
		f.Record.DstPort,
		f.Record.ProtocolName(),
		f.Verdict.FinalClassification,
		f.Verdict.Confidence,
		f.Verdict.IsAnomaly,
		f.Verdict.AnomalyScore,
		f.Verdict.RiskScore,
		string(f.Verdict.RiskLevel),
		f.Threat.ThreatType,
		f.SuspectedThreat,
		f.Verdict.Reason,
	}
}

func summaryRow(result *model.BatchResult) []any {
	s := result.Summary
	attacks := make(map[string]uint32, len(s.ByClassification))
	for k, v := range s.ByClassification {
		attacks[k] = uint32(v)
	}
	risks := make(map[string]uint32, len(s.ByRiskLevel))
	for k, v := range s.ByRiskLevel {
		risks[string(k)] = uint32(v)
	}
	return []any{
		result.ID,
		result.Source,
		result.StartedAt,
		result.FinishedAt,
		uint32(result.Succeeded()),
		uint32(result.Failed()),
		uint32(s.AnomalyCount),
		s.AnomalyRate(),
		s.AvgRiskScore(),
		s.AvgConfidence(),
		attacks,
		risks,
	}
}
