// Package natspub publishes verdicts and batch summaries to NATS.
package natspub

import (
	"NetVerdict/internal/config"
	"NetVerdict/internal/factory"
	"NetVerdict/internal/model"
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

func init() {
	factory.RegisterWriter("nats", func(def config.WriterDef, _ *config.Config, logger *zap.Logger) (model.Writer, error) {
		return NewWriter(def.NATS, logger)
	})
}

// publisher is the part of *nats.Conn the writer uses.
type publisher interface {
	Publish(subject string, data []byte) error
	FlushWithContext(ctx context.Context) error
	Drain() error
}

// Writer publishes <subject>.summary once per batch and <subject>.flows for
// every flow at or above the minimum risk level.
type Writer struct {
	conn     publisher
	subject  string
	minLevel model.RiskLevel
	logger   *zap.Logger
}

// NewWriter connects to NATS.
func NewWriter(cfg config.NATSWriterConfig, logger *zap.Logger) (*Writer, error) {
	minLevel, err := parseLevel(cfg.MinRiskLevel)
	if err != nil {
		return nil, err
	}
	nc, err := nats.Connect(cfg.URL, nats.Name("nv-verdicts"))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	logger.Info("connected to NATS", zap.String("url", cfg.URL), zap.String("subject", cfg.Subject))
	return newWriter(nc, cfg.Subject, minLevel, logger), nil
}

func newWriter(conn publisher, subject string, minLevel model.RiskLevel, logger *zap.Logger) *Writer {
	if subject == "" {
		subject = "netverdict.verdicts"
	}
	return &Writer{conn: conn, subject: subject, minLevel: minLevel, logger: logger}
}

func parseLevel(s string) (model.RiskLevel, error) {
	if s == "" {
		return model.RiskHigh, nil
	}
	lvl := model.RiskLevel(s)
	if lvl.Rank() < 0 {
		return "", fmt.Errorf("unknown risk level '%s'", s)
	}
	return lvl, nil
}

// Write publishes the batch and flushes.
func (w *Writer) Write(ctx context.Context, result *model.BatchResult) error {
	published := 0
	for i := range result.Flows {
		f := &result.Flows[i]
		if f.Verdict.RiskLevel.Rank() < w.minLevel.Rank() {
			continue
		}
		if err := w.publish(w.subject+".flows", verdictMessage(result.ID, f)); err != nil {
			return err
		}
		published++
	}
	if err := w.publish(w.subject+".summary", summaryMessage(result)); err != nil {
		return err
	}
	if err := w.conn.FlushWithContext(ctx); err != nil {
		return fmt.Errorf("failed to flush NATS connection: %w", err)
	}
	w.logger.Debug("published batch verdicts", zap.String("batch_id", result.ID), zap.Int("flows", published))
	return nil
}

func (w *Writer) publish(subject string, m map[string]any) error {
	s, err := structpb.NewStruct(m)
	if err != nil {
		return fmt.Errorf("failed to build message: %w", err)
	}
	data, err := proto.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	if err := w.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", subject, err)
	}
	return nil
}

// Close drains the connection.
func (w *Writer) Close() error {
	return w.conn.Drain()
}

func verdictMessage(batchID string, f *model.EnrichedFlow) map[string]any {
	cves := make([]any, len(f.Threat.CVERefs))
	for i, c := range f.Threat.CVERefs {
		cves[i] = c
	}
	m := map[string]any{
		"batch_id":             batchID,
		"flow_id":              f.Record.ID,
		"src_ip":               f.Record.SrcIP,
		"dst_ip":               f.Record.DstIP,
		"src_port":             float64(f.Record.SrcPort),
		"dst_port":             float64(f.Record.DstPort),
		"protocol":             f.Record.ProtocolName(),
		"final_classification": f.Verdict.FinalClassification,
		"confidence":           f.Verdict.Confidence,
		"is_anomaly":           f.Verdict.IsAnomaly,
		"anomaly_score":        f.Verdict.AnomalyScore,
		"risk_score":           f.Verdict.RiskScore,
		"risk_level":           string(f.Verdict.RiskLevel),
		"reason":               f.Verdict.Reason,
		"threat_type":          f.Threat.ThreatType,
		"cve_refs":             cves,
	}
	if f.SuspectedThreat != "" {
		m["suspected_threat"] = f.SuspectedThreat
	}
	if !f.Record.Timestamp.IsZero() {
		m["timestamp"] = f.Record.Timestamp.UTC().Format(time.RFC3339Nano)
	}
	return m
}

func summaryMessage(result *model.BatchResult) map[string]any {
	s := result.Summary
	attacks := make(map[string]any, len(s.ByClassification))
	for k, v := range s.ByClassification {
		attacks[k] = float64(v)
	}
	risks := make(map[string]any, len(s.ByRiskLevel))
	for k, v := range s.ByRiskLevel {
		risks[string(k)] = float64(v)
	}
	return map[string]any{
		"batch_id":            result.ID,
		"source":              result.Source,
		"started_at":          result.StartedAt.UTC().Format(time.RFC3339Nano),
		"finished_at":         result.FinishedAt.UTC().Format(time.RFC3339Nano),
		"succeeded":           float64(result.Succeeded()),
		"failed":              float64(result.Failed()),
		"anomaly_rate":        s.AnomalyRate(),
		"avg_risk_score":      s.AvgRiskScore(),
		"avg_confidence":      s.AvgConfidence(),
		"attack_distribution": attacks,
		"risk_distribution":   risks,
	}
}
