package probe

import (
	"NetVerdict/internal/config"
	"fmt"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// BatchHandler processes one received flow batch.
type BatchHandler func(batch FlowBatch)

// Subscriber receives flow batches from the flow subject.
type Subscriber struct {
	nc      *nats.Conn
	sub     *nats.Subscription
	subject string
	logger  *zap.Logger
}

// NewSubscriber connects to NATS.
func NewSubscriber(cfg config.ProbeConfig, logger *zap.Logger) (*Subscriber, error) {
	nc, err := nats.Connect(cfg.NATSURL, nats.Name("nv-engine"))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	logger.Info("connected to NATS", zap.String("url", cfg.NATSURL))
	return &Subscriber{nc: nc, subject: cfg.Subject, logger: logger}, nil
}

// Start subscribes and hands every decoded batch to handler. Messages are
// delivered one at a time.
func (s *Subscriber) Start(handler BatchHandler) error {
	sub, err := s.nc.Subscribe(s.subject, func(msg *nats.Msg) {
		batch, err := UnmarshalFlowBatch(msg.Data)
		if err != nil {
			s.logger.Error("dropping undecodable flow batch", zap.Error(err))
			return
		}
		handler(batch)
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", s.subject, err)
	}
	s.sub = sub
	s.logger.Info("subscribed, waiting for flow batches", zap.String("subject", s.subject))
	return nil
}

// Close unsubscribes and closes the NATS connection.
func (s *Subscriber) Close() {
	if s.sub != nil {
		_ = s.sub.Unsubscribe()
	}
	if s.nc != nil {
		s.nc.Close()
		s.logger.Info("NATS connection closed")
	}
}
