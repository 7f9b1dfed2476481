package gateway

import (
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/facescan/go/internal/relay/protocol"
)

// dispatch handles one inbound frame. It only ever runs on the Start loop.
func (cm *ConnectionManager) dispatch(from *Connection, frame []byte) {
	defer func() {
		if r := recover(); r != nil {
			cm.metrics.messageDropped("panic")
			log.Error().
				Interface("panic", r).
				Str("connection_id", from.ID).
				Msg("recovered while handling client message")
		}
	}()

	env, err := protocol.Decode(frame)
	if err != nil {
		cm.metrics.messageDropped("malformed")
		log.Warn().
			Err(err).
			Str("connection_id", from.ID).
			Int("size", len(frame)).
			Msg("dropping malformed client message")
		return
	}
	cm.metrics.messageReceived(env.Kind)

	switch env.Kind {
	case protocol.KindSnapshotRequest:
		cm.handleSnapshotRequest(from, env)
	case protocol.KindStateUpdate:
		cm.handleStateUpdate(from, env)
	case protocol.KindScanReport:
		cm.handleScanReport(from, env)
	}
}

// handleSnapshotRequest records the announced role and answers subscribers
// with the last-known copy of every collection.
func (cm *ConnectionManager) handleSnapshotRequest(from *Connection, env *protocol.Envelope) {
	cm.setRole(from, env.Role)

	log.Info().
		Str("connection_id", from.ID).
		Str("role", string(env.Role)).
		Msg("client announced role")

	if env.Role != protocol.RoleSubscriber {
		return
	}

	for _, update := range cm.cache.Snapshot() {
		data, err := update.Encode()
		if err != nil {
			log.Error().Err(err).Str("collection", string(update.Type)).Msg("failed to encode snapshot")
			continue
		}
		cm.sendTo(data, func(c *Connection) bool { return c == from })
	}
}

// handleStateUpdate stores the new copy and forwards it to everyone but the sender
func (cm *ConnectionManager) handleStateUpdate(from *Connection, env *protocol.Envelope) {
	cm.cache.Put(env.Type, env.Payload)

	if cm.mirror != nil {
		if err := cm.mirror.Publish(env.Type, env.Payload); err != nil {
			log.Error().Err(err).Str("collection", string(env.Type)).Msg("failed to mirror state update")
		}
	}

	data, err := env.Encode()
	if err != nil {
		log.Error().Err(err).Str("collection", string(env.Type)).Msg("failed to encode state update")
		return
	}

	sent := cm.sendTo(data, func(c *Connection) bool { return c != from })
	cm.metrics.messageForwarded(env.Kind, sent)

	log.Debug().
		Str("connection_id", from.ID).
		Str("collection", string(env.Type)).
		Int("size", len(env.Payload)).
		Int("connections", sent).
		Msg("state update broadcasted")
}

// handleScanReport routes a kiosk scan to the publishers, which own the
// attendance log. The cache is left untouched.
func (cm *ConnectionManager) handleScanReport(from *Connection, env *protocol.Envelope) {
	data, err := env.Encode()
	if err != nil {
		log.Error().Err(err).Msg("failed to encode scan report")
		return
	}

	sent := cm.sendTo(data, func(c *Connection) bool {
		return c != from && c.Role == protocol.RolePublisher
	})
	if sent == 0 {
		cm.metrics.messageDropped("no_publisher")
		log.Warn().
			Str("connection_id", from.ID).
			Msg("no publisher connected, scan report dropped")
		return
	}
	cm.metrics.messageForwarded(env.Kind, sent)
}
