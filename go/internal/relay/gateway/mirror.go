package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/facescan/go/internal/relay/protocol"
)

// UpdateMirror copies accepted state updates somewhere that outlives the relay
// process, and can seed a fresh cache from it.
type UpdateMirror interface {
	Publish(kind protocol.CollectionKind, payload json.RawMessage) error
	Restore(ctx context.Context, cache *SnapshotCache) error
	Close() error
}

// JetStreamMirrorConfig holds configuration for the JetStream mirror
type JetStreamMirrorConfig struct {
	URL           string
	StreamName    string
	SubjectPrefix string // e.g., "facescan.state"
	MaxReconnects int
	ReconnectWait time.Duration
	MaxAge        time.Duration
	Replicas      int
}

// DefaultJetStreamMirrorConfig returns default JetStream mirror configuration
func DefaultJetStreamMirrorConfig() JetStreamMirrorConfig {
	return JetStreamMirrorConfig{
		URL:           nats.DefaultURL,
		StreamName:    "FACESCAN_STATE",
		SubjectPrefix: "facescan.state",
		MaxReconnects: -1, // Infinite
		ReconnectWait: 2 * time.Second,
		MaxAge:        7 * 24 * time.Hour,
		Replicas:      1,
	}
}

// JetStreamMirror keeps the latest update of each collection in a JetStream
// stream limited to one message per subject.
type JetStreamMirror struct {
	nc     *nats.Conn
	js     jetstream.JetStream
	stream jetstream.Stream
	config JetStreamMirrorConfig
}

// NewJetStreamMirror connects to NATS and ensures the stream exists
func NewJetStreamMirror(ctx context.Context, config JetStreamMirrorConfig) (*JetStreamMirror, error) {
	opts := []nats.Option{
		nats.MaxReconnects(config.MaxReconnects),
		nats.ReconnectWait(config.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			log.Error().Err(err).Msg("NATS error")
		}),
	}

	nc, err := nats.Connect(config.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}

	m := &JetStreamMirror{nc: nc, js: js, config: config}
	if err := m.ensureStream(ctx); err != nil {
		nc.Close()
		return nil, fmt.Errorf("ensure stream: %w", err)
	}
	return m, nil
}

func (m *JetStreamMirror) ensureStream(ctx context.Context) error {
	sc := jetstream.StreamConfig{
		Name:              m.config.StreamName,
		Description:       "Last-known copy of each replicated attendance collection",
		Subjects:          []string{fmt.Sprintf("%s.>", m.config.SubjectPrefix)},
		Retention:         jetstream.LimitsPolicy,
		MaxMsgsPerSubject: 1,
		MaxAge:            m.config.MaxAge,
		Storage:           jetstream.FileStorage,
		Replicas:          m.config.Replicas,
	}

	stream, err := m.js.CreateOrUpdateStream(ctx, sc)
	if err != nil {
		return fmt.Errorf("create stream: %w", err)
	}
	m.stream = stream

	log.Info().
		Str("stream", m.config.StreamName).
		Msg("JetStream state mirror ready")
	return nil
}

func (m *JetStreamMirror) subject(kind protocol.CollectionKind) string {
	return fmt.Sprintf("%s.%s", m.config.SubjectPrefix, kind)
}

// Publish sends the update without waiting for the stream ack; the dispatcher
// must not block on NATS.
func (m *JetStreamMirror) Publish(kind protocol.CollectionKind, payload json.RawMessage) error {
	msgID := uuid.New().String()
	_, err := m.js.PublishMsgAsync(&nats.Msg{
		Subject: m.subject(kind),
		Data:    payload,
		Header: nats.Header{
			"Collection": []string{string(kind)},
		},
	},
		jetstream.WithMsgID(msgID),
		jetstream.WithExpectStream(m.config.StreamName),
	)
	if err != nil {
		return fmt.Errorf("publish to JetStream: %w", err)
	}
	return nil
}

// Restore loads the last message of each collection subject into cache
func (m *JetStreamMirror) Restore(ctx context.Context, cache *SnapshotCache) error {
	for _, kind := range protocol.Collections {
		msg, err := m.stream.GetLastMsgForSubject(ctx, m.subject(kind))
		if err != nil {
			if errors.Is(err, jetstream.ErrMsgNotFound) {
				continue
			}
			return fmt.Errorf("get last %s message: %w", kind, err)
		}

		env := protocol.NewRawStateUpdate(kind, msg.Data)
		if err := env.Validate(); err != nil {
			log.Warn().Err(err).Str("collection", string(kind)).Msg("skipping invalid mirrored state")
			continue
		}
		cache.Put(kind, msg.Data)

		log.Info().
			Str("collection", string(kind)).
			Uint64("sequence", msg.Sequence).
			Msg("restored state from JetStream")
	}
	return nil
}

// Connected reports whether the NATS connection is up
func (m *JetStreamMirror) Connected() bool {
	return m.nc != nil && m.nc.IsConnected()
}

// Close flushes pending publishes and closes the NATS connection
func (m *JetStreamMirror) Close() error {
	if m.nc == nil {
		return nil
	}
	select {
	case <-m.js.PublishAsyncComplete():
	case <-time.After(5 * time.Second):
		log.Warn().Msg("timed out waiting for pending state mirror publishes")
	}
	m.nc.Close()
	return nil
}
