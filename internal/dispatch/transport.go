// Attune - Customer Interaction Ingestion and Sentiment Analytics
// Copyright 2026 M. Reyes (attune-cx)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/attune-cx/attune

package dispatch

import (
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	wmNats "github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	natsgo "github.com/nats-io/nats.go"

	"github.com/attune-cx/attune/internal/config"
)

// Analysis job topics. Realtime and batch ride separate subjects of the
// same stream so the worker can throttle the batch lane independently.
const (
	TopicRealtime = "jobs.analysis.realtime"
	TopicBatch    = "jobs.analysis.batch"
)

func natsOptions(cfg config.NATSConfig, logger watermill.LoggerAdapter) []natsgo.Option {
	return []natsgo.Option{
		natsgo.RetryOnFailedConnect(true),
		natsgo.MaxReconnects(cfg.MaxReconnects),
		natsgo.ReconnectWait(cfg.ReconnectWait),
		natsgo.DisconnectErrHandler(func(nc *natsgo.Conn, err error) {
			if err != nil {
				logger.Error("NATS disconnected", err, nil)
			}
		}),
		natsgo.ReconnectHandler(func(nc *natsgo.Conn) {
			logger.Info("NATS reconnected", watermill.LogFields{"url": nc.ConnectedUrl()})
		}),
	}
}

// newPublisher creates the JetStream publisher for job dispatch.
// Message ID tracking is enabled so a dispatch retried by the caller after
// an ambiguous failure deduplicates on Nats-Msg-Id instead of double
// scoring.
func newPublisher(cfg config.NATSConfig, logger watermill.LoggerAdapter) (message.Publisher, error) {
	wmConfig := wmNats.PublisherConfig{
		URL:         cfg.URL,
		NatsOptions: natsOptions(cfg, logger),
		Marshaler:   &wmNats.NATSMarshaler{},
		JetStream: wmNats.JetStreamConfig{
			Disabled:      false,
			AutoProvision: false, // stream is provisioned at startup
			TrackMsgId:    true,
			PublishOptions: []natsgo.PubOpt{
				natsgo.RetryAttempts(3),
				natsgo.RetryWait(100 * time.Millisecond),
			},
		},
	}

	pub, err := wmNats.NewPublisher(wmConfig, logger)
	if err != nil {
		return nil, fmt.Errorf("creating publisher: %w", err)
	}
	return pub, nil
}

// newSubscriber creates a durable queue-group subscriber bound to the job
// stream, so multiple worker instances share the load.
func newSubscriber(cfg config.NATSConfig, durable string, logger watermill.LoggerAdapter) (message.Subscriber, error) {
	subOpts := []natsgo.SubOpt{
		natsgo.BindStream(cfg.StreamName),
		natsgo.MaxAckPending(256),
		natsgo.AckWait(30 * time.Second),
		natsgo.DeliverNew(),
	}

	wmConfig := wmNats.SubscriberConfig{
		URL:              cfg.URL,
		QueueGroupPrefix: "attune-workers",
		SubscribersCount: 1,
		AckWaitTimeout:   30 * time.Second,
		NatsOptions:      natsOptions(cfg, logger),
		Unmarshaler:      &wmNats.NATSMarshaler{},
		JetStream: wmNats.JetStreamConfig{
			Disabled:         false,
			AutoProvision:    false,
			AckAsync:         false,
			SubscribeOptions: subOpts,
			DurablePrefix:    durable,
		},
	}

	sub, err := wmNats.NewSubscriber(wmConfig, logger)
	if err != nil {
		return nil, fmt.Errorf("creating subscriber: %w", err)
	}
	return sub, nil
}
