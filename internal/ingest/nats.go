// Package ingest subscribes to the sensor-reading message bus and feeds the
// detection pipeline.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/BarirNada00/AquaWatch-Ms/internal/logger"
	"github.com/BarirNada00/AquaWatch-Ms/internal/models"
	"github.com/BarirNada00/AquaWatch-Ms/internal/pipeline"
)

// Config holds the bus subscription settings.
type Config struct {
	URL           string
	Subject       string
	ReconnectWait time.Duration
	ConnectName   string
}

// Subscriber consumes readings from one NATS subject. A lost connection is
// retried forever with a fixed delay; a bad message is logged and skipped.
type Subscriber struct {
	config   Config
	pipeline *pipeline.Pipeline
	health   statusSetter
}

// statusSetter is the slice of the status aggregator the subscriber needs.
type statusSetter interface {
	SetIngressActive(active bool)
}

// NewSubscriber creates a subscriber feeding the given pipeline.
func NewSubscriber(config Config, p *pipeline.Pipeline, h statusSetter) *Subscriber {
	if config.ReconnectWait <= 0 {
		config.ReconnectWait = 5 * time.Second
	}
	return &Subscriber{config: config, pipeline: p, health: h}
}

// Run connects, subscribes, and blocks until ctx is cancelled. Transient
// connection loss is handled by the client's own reconnect; a fully closed
// connection re-enters the outer retry loop.
func (s *Subscriber) Run(ctx context.Context) {
	for {
		if err := s.consume(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Error("Bus subscription failed, retrying in %v: %v", s.config.ReconnectWait, err)
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(s.config.ReconnectWait):
		}
	}
}

func (s *Subscriber) consume(ctx context.Context) error {
	conn, err := nats.Connect(s.config.URL,
		nats.Name(s.config.ConnectName),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(s.config.ReconnectWait),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			s.health.SetIngressActive(false)
			if err != nil {
				logger.Warn("Bus connection lost: %v", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			s.health.SetIngressActive(true)
			logger.Info("Bus connection restored to %s", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", s.config.URL, err)
	}
	defer conn.Close()

	s.health.SetIngressActive(true)
	defer s.health.SetIngressActive(false)

	sub, err := conn.Subscribe(s.config.Subject, func(msg *nats.Msg) {
		n, err := s.pipeline.ProcessRaw(msg.Data)
		if err != nil {
			// One bad message must not affect the subscription.
			if errors.Is(err, models.ErrValidation) {
				logger.Warn("Rejected bus reading: %v", err)
			} else {
				logger.Error("Error processing bus reading: %v", err)
			}
			return
		}
		if n > 0 {
			logger.Debug("Bus reading produced %d anomalies", n)
		}
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", s.config.Subject, err)
	}
	logger.Info("Subscribed to subject %s at %s", s.config.Subject, s.config.URL)

	<-ctx.Done()

	// Let in-flight handler callbacks finish before returning.
	if err := sub.Drain(); err != nil {
		logger.Warn("Failed to drain subscription: %v", err)
	}
	return ctx.Err()
}
