// Attune - Customer Interaction Ingestion and Sentiment Analytics
// Copyright 2026 M. Reyes (attune-cx)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/attune-cx/attune

package coordination

import (
	"context"
	"errors"
	"fmt"
	"time"

	natsgo "github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/attune-cx/attune/internal/config"
	"github.com/attune-cx/attune/internal/logging"
)

// Conn bundles the NATS connection, its JetStream handle and, when
// configured, the embedded server behind them. Close tears the pieces
// down in dependency order.
type Conn struct {
	NC       *natsgo.Conn
	JS       jetstream.JetStream
	Embedded *EmbeddedServer
}

// Connect establishes the NATS connection used for both the job queue and
// the shared key-value stores. With EmbeddedServer enabled it boots an
// in-process server first and connects to that.
func Connect(cfg config.NATSConfig) (*Conn, error) {
	url := cfg.URL

	var embedded *EmbeddedServer
	if cfg.EmbeddedServer {
		var err error
		embedded, err = NewEmbeddedServer(cfg.StoreDir)
		if err != nil {
			return nil, fmt.Errorf("starting embedded NATS: %w", err)
		}
		url = embedded.ClientURL()
		logging.Info().Str("url", url).Msg("embedded NATS server ready")
	}

	nc, err := natsgo.Connect(url,
		natsgo.Name("attune"),
		natsgo.RetryOnFailedConnect(true),
		natsgo.MaxReconnects(cfg.MaxReconnects),
		natsgo.ReconnectWait(cfg.ReconnectWait),
		natsgo.DisconnectErrHandler(func(_ *natsgo.Conn, err error) {
			if err != nil {
				logging.Warn().Err(err).Msg("NATS disconnected")
			}
		}),
		natsgo.ReconnectHandler(func(nc *natsgo.Conn) {
			logging.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
	)
	if err != nil {
		if embedded != nil {
			_ = embedded.Shutdown(context.Background())
		}
		return nil, fmt.Errorf("connecting to NATS at %s: %w", url, err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		if embedded != nil {
			_ = embedded.Shutdown(context.Background())
		}
		return nil, fmt.Errorf("creating JetStream context: %w", err)
	}

	return &Conn{NC: nc, JS: js, Embedded: embedded}, nil
}

// EnsureStream creates the named work-queue stream if it does not exist.
// Existing streams are updated in place so subject changes roll forward.
func EnsureStream(ctx context.Context, js jetstream.JetStream, name string, subjects []string) error {
	cfg := jetstream.StreamConfig{
		Name:       name,
		Subjects:   subjects,
		Retention:  jetstream.WorkQueuePolicy,
		Storage:    jetstream.FileStorage,
		MaxAge:     24 * time.Hour,
		Replicas:   1,
		Duplicates: 2 * time.Minute,
	}

	_, err := js.CreateStream(ctx, cfg)
	if errors.Is(err, jetstream.ErrStreamNameAlreadyInUse) {
		_, err = js.UpdateStream(ctx, cfg)
	}
	if err != nil {
		return fmt.Errorf("ensure stream %s: %w", name, err)
	}

	logging.Info().Str("stream", name).Strs("subjects", subjects).Msg("JetStream stream ready")
	return nil
}

// Close drains the client connection and stops the embedded server.
func (c *Conn) Close(ctx context.Context) {
	if c.NC != nil && !c.NC.IsClosed() {
		c.NC.Close()
	}
	if c.Embedded != nil {
		if err := c.Embedded.Shutdown(ctx); err != nil {
			logging.Warn().Err(err).Msg("embedded NATS shutdown interrupted")
		}
	}
}
