package events

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/coldmailer/coldmailer/internal/config"
	"github.com/coldmailer/coldmailer/internal/logger"
	"github.com/coldmailer/coldmailer/internal/model"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Publisher is a thin wrapper around segmentio/kafka-go Writer for the
// analytics events topic. Publishing is advisory: a broker outage must
// never block or fail a dispatch pass, so errors are logged and dropped.
type Publisher struct {
	w *kafka.Writer
}

func NewPublisher(c config.KafkaConfig) *Publisher {
	wt := c.WriteTimeout
	if wt <= 0 {
		wt = 5 * time.Second
	}

	w := &kafka.Writer{
		Addr:         kafka.TCP(c.Brokers...),
		Topic:        c.EventsTopic,
		Balancer:     &kafka.Hash{},
		WriteTimeout: wt,
		RequiredAcks: kafka.RequireOne,
		Async:        true,
		Completion: func(messages []kafka.Message, err error) {
			if err != nil {
				logger.L().Error("publish events batch", zap.Error(err), zap.Int("count", len(messages)))
			}
		},
	}

	return &Publisher{w: w}
}

// Publish emits one event, keyed by campaign so per-campaign ordering
// holds within a partition.
func (p *Publisher) Publish(ctx context.Context, ev model.SendEvent) {
	payload, err := json.Marshal(ev)
	if err != nil {
		logger.L().Error("marshal event", zap.Error(err), zap.String("type", string(ev.Type)))
		return
	}

	msg := kafka.Message{
		Key:   []byte(strconv.FormatInt(ev.CampaignID, 10)),
		Value: payload,
		Time:  ev.At,
	}
	if err := p.w.WriteMessages(ctx, msg); err != nil {
		logger.L().Error("publish event", zap.Error(err), zap.String("type", string(ev.Type)))
	}
}

func (p *Publisher) Close() error { return p.w.Close() }
