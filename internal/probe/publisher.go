// Package probe carries flow batches between the flow exporters and the
// engine over NATS.
package probe

import (
	"NetVerdict/internal/config"
	"NetVerdict/internal/model"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// Publisher publishes flow records to the flow subject in batches.
type Publisher struct {
	nc        *nats.Conn
	subject   string
	batchSize int
	logger    *zap.Logger
}

// NewPublisher connects to NATS.
func NewPublisher(cfg config.ProbeConfig, logger *zap.Logger) (*Publisher, error) {
	nc, err := nats.Connect(cfg.NATSURL, nats.Name("nv-probe"))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	logger.Info("connected to NATS", zap.String("url", cfg.NATSURL))
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 500
	}
	return &Publisher{nc: nc, subject: cfg.Subject, batchSize: batchSize, logger: logger}, nil
}

// Publish splits flows into batches and publishes each one. It returns the
// ids of the published batches.
func (p *Publisher) Publish(flows []model.RawFlowRecord) ([]string, error) {
	var ids []string
	for start := 0; start < len(flows); start += p.batchSize {
		end := min(start+p.batchSize, len(flows))
		batch := FlowBatch{ID: uuid.NewString(), SentAt: time.Now(), Flows: flows[start:end]}
		data, err := batch.Marshal()
		if err != nil {
			return ids, err
		}
		if err := p.nc.Publish(p.subject, data); err != nil {
			return ids, fmt.Errorf("failed to publish batch %s: %w", batch.ID, err)
		}
		ids = append(ids, batch.ID)
		p.logger.Debug("flow batch published", zap.String("batch_id", batch.ID), zap.Int("flows", end-start))
	}
	return ids, p.nc.Flush()
}

// Close drains and closes the NATS connection.
func (p *Publisher) Close() {
	if p.nc != nil {
		if err := p.nc.Drain(); err != nil {
			p.logger.Warn("NATS drain failed", zap.Error(err))
		}
		p.logger.Info("NATS connection drained and closed")
	}
}
