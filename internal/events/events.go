// Package events publishes delivery status changes and publish outcomes to
// NATS so other services can follow message and post lifecycles.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/switchboardhq/switchboard/internal/delivery"
	"github.com/switchboardhq/switchboard/internal/platform"
)

// DefaultPrefix is prepended to every subject.
const DefaultPrefix = "switchboard"

// Subject suffixes.
const (
	SubjectDeliveryStatus = "delivery.status"
	SubjectPublishResult  = "publish.result"
)

// Publisher is satisfied by *nats.Conn.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// Connect dials NATS with reconnects enabled.
func Connect(url string, logger *zap.Logger) (*nats.Conn, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	nc, err := nats.Connect(url,
		nats.Name("switchboard"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("nats reconnected", zap.String("url", c.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return nc, nil
}

// PublishEvent is emitted after every publish attempt.
type PublishEvent struct {
	AccountID string          `json:"account_id"`
	Platform  platform.ID     `json:"platform"`
	Result    platform.Result `json:"result"`
	At        time.Time       `json:"at"`
}

// Bus encodes events as JSON and publishes them.
type Bus struct {
	pub    Publisher
	prefix string
}

// NewBus returns a Bus publishing under prefix, or DefaultPrefix if empty.
func NewBus(pub Publisher, prefix string) *Bus {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Bus{pub: pub, prefix: prefix}
}

// StatusChanged implements delivery.Notifier.
func (b *Bus) StatusChanged(_ context.Context, u delivery.Update) error {
	return b.publish(SubjectDeliveryStatus, u)
}

// Published reports a publish outcome.
func (b *Bus) Published(_ context.Context, e PublishEvent) error {
	return b.publish(SubjectPublishResult, e)
}

func (b *Bus) publish(suffix string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s event: %w", suffix, err)
	}
	if err := b.pub.Publish(b.prefix+"."+suffix, data); err != nil {
		return fmt.Errorf("publish %s event: %w", suffix, err)
	}
	return nil
}
