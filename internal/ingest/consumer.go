// Package ingest consumes chat activity published by other services
// (legacy clients, imports, bots) and replays it through the message
// pipeline so external sends get the same persistence, fan-out and
// reward treatment as socket sends.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	log "github.com/carousell/ct-go/pkg/logger/log_context"
	"github.com/carousell/ct-go/pkg/workerpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/segmentio/kafka-go"
	"go.uber.org/fx"

	"github.com/chathub-io/chathub/internal/chat"
	"github.com/chathub-io/chathub/internal/config"
	"github.com/chathub-io/chathub/internal/models"
	"github.com/chathub-io/chathub/pkg/util"
)

// Envelope is the wire format on the activity topic. Pattern selects
// the event kind; only message.sent is handled, everything else is
// acknowledged and dropped.
type Envelope struct {
	Pattern string       `json:"pattern"`
	Data    ActivityData `json:"data"`
}

type ActivityData struct {
	SenderID    string `json:"sender_id"`
	RecipientID string `json:"recipient_id,omitempty"`
	GroupID     string `json:"group_id,omitempty"`
	Content     string `json:"content"`
	Attachment  string `json:"attachment,omitempty"`
}

const patternMessageSent = "message.sent"

type Consumer struct {
	reader   *kafka.Reader
	pipeline *chat.Pipeline
	metrics  *prometheus.HistogramVec
	pool     workerpool.Pool
	done     chan struct{}
}

func NewConsumer(conf *config.Config, pipeline *chat.Pipeline) (*Consumer, error) {
	if !conf.Kafka.Enabled {
		return nil, nil
	}

	metrics, err := util.GetHistogramVec("ingest_messages_consumed", "status", "topic", "group")
	if err != nil {
		return nil, fmt.Errorf("get histogram vec: %w", err)
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     conf.Kafka.Brokers,
		Topic:       conf.Kafka.Topic,
		GroupID:     conf.Kafka.GroupID,
		StartOffset: kafka.LastOffset,
	})

	return &Consumer{
		reader:   reader,
		pipeline: pipeline,
		metrics:  metrics,
		pool:     workerpool.New(4),
		done:     make(chan struct{}),
	}, nil
}

func (c *Consumer) Start(ctx context.Context) error {
	log.Infof(ctx, "starting activity consumer for topic: %s", c.reader.Config().Topic)

	for ctx.Err() == nil {
		select {
		case <-c.done:
			return nil
		default:
		}

		msg, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			log.Errorw(ctx, "error reading message", "error", err)
			continue
		}

		c.pool.Run(func() {
			c.process(ctx, msg)
		})
	}
	return nil
}

func (c *Consumer) Stop(ctx context.Context) error {
	log.Infof(ctx, "stopping activity consumer")
	close(c.done)
	c.pool.Close()
	c.pool.Wait()
	return c.reader.Close()
}

func (c *Consumer) process(ctx context.Context, msg kafka.Message) {
	start := time.Now()

	err := c.handle(ctx, msg.Value)

	status := "success"
	if err != nil {
		status = "error"
		log.Errorw(ctx, "error processing activity message",
			"error", err,
			"topic", msg.Topic,
			"partition", msg.Partition,
			"offset", msg.Offset,
			"key", string(msg.Key),
		)
	}

	c.metrics.
		WithLabelValues(status, msg.Topic, c.reader.Config().GroupID).
		Observe(time.Since(start).Seconds())
}

func (c *Consumer) handle(ctx context.Context, value []byte) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("PANIC RECOVER: %+v", r)
		}
	}()

	var envelope Envelope
	if err := json.Unmarshal(value, &envelope); err != nil {
		return fmt.Errorf("unmarshal activity envelope: %w", err)
	}

	if envelope.Pattern != patternMessageSent {
		log.Debugw(ctx, "ignoring activity event", "pattern", envelope.Pattern)
		return nil
	}

	_, err = c.pipeline.Send(ctx, envelope.Data.SenderID, models.SendMessagePayload{
		RecipientID: envelope.Data.RecipientID,
		GroupID:     envelope.Data.GroupID,
		Content:     envelope.Data.Content,
		Attachment:  envelope.Data.Attachment,
	})
	return err
}

// StartConsumer runs the consumer for the process lifetime. A nil
// consumer means ingest is disabled in configuration.
func StartConsumer(lc fx.Lifecycle, sd fx.Shutdowner, consumer *Consumer) {
	if consumer == nil {
		log.Warnf(context.Background(), "activity consumer is disabled in configuration")
		return
	}

	runCtx, cancel := context.WithCancel(context.Background())
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := consumer.Start(runCtx); err != nil {
					log.Errorw(runCtx, "activity consumer stopped", "error", err)
					sd.Shutdown()
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			cancel()
			return consumer.Stop(ctx)
		},
	})
}
