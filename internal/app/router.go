// ABOUTME: Inbound message router
// ABOUTME: Decodes envelopes, dispatches handlers, mirrors everything to the observer
package app

import (
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/ZoneSync-Audio/zonesync-go/internal/protocol"
	"github.com/ZoneSync-Audio/zonesync-go/internal/ws"
)

// WSConnectEvent is emitted when the server announces our connection
// identity.
type WSConnectEvent struct {
	ConnectionID string `json:"connectionId"`
	WSURL        string `json:"wsUrl"`
}

// ConnectionIdentity returns the announced identity pair
func (e WSConnectEvent) ConnectionIdentity() (string, string) {
	return e.ConnectionID, e.WSURL
}

// handleFrame routes one inbound frame. Malformed payloads are logged
// and dropped; they never block subsequent messages. Every decoded
// message is re-emitted to the observer, synchronously with dispatch.
func (a *App) handleFrame(frame ws.Frame) {
	if frame.Kind != ws.FrameText && frame.Kind != ws.FrameBinary {
		return
	}

	msg, err := protocol.Decode(frame.Data)
	if err != nil {
		a.log.Error("dropping invalid message", zap.Error(err))
		return
	}

	go func() {
		if err := a.dispatch(msg); err != nil {
			a.log.Error("failed to handle message",
				zap.String("type", msg.Type),
				zap.Error(err))
		}
	}()

	a.emit("ws-message", msg)
}

// dispatch applies one decoded message. Handler errors are logged by
// the caller and never propagate further.
func (a *App) dispatch(msg protocol.Message) error {
	a.log.Debug("handling message", zap.String("type", msg.Type))

	switch msg.Type {
	case protocol.TypeConnectionID:
		var payload protocol.ConnectionIDPayload
		if err := json.Unmarshal(msg.Payload, &payload); err != nil {
			return fmt.Errorf("parse %s: %w", msg.Type, err)
		}
		a.emit("ws-connect", WSConnectEvent{
			ConnectionID: payload.ConnectionID,
			WSURL:        a.WSURL(),
		})

	case protocol.TypeConnections:
		var connections []protocol.Connection
		if err := json.Unmarshal(msg.Payload, &connections); err != nil {
			return fmt.Errorf("parse %s: %w", msg.Type, err)
		}
		a.registry.ReplaceConnections(connections)
		a.updateAudioZones(a.ctx)

	case protocol.TypeSessions:
		var sessions []protocol.Session
		if err := json.Unmarshal(msg.Payload, &sessions); err != nil {
			return fmt.Errorf("parse %s: %w", msg.Type, err)
		}
		a.players.ResolvePending(sessions)
		a.registry.ReplaceSessions(sessions)
		a.updateAudioZones(a.ctx)
		a.updateConnectionOutputs(a.ctx, a.registry.SessionIDs())
		a.notifyPlaylist()

	case protocol.TypeAudioZoneWithSessions:
		var zones []protocol.Zone
		if err := json.Unmarshal(msg.Payload, &zones); err != nil {
			return fmt.Errorf("parse %s: %w", msg.Type, err)
		}
		a.registry.ReplaceZones(zones)
		a.updateAudioZones(a.ctx)

	case protocol.TypeSessionUpdated:
		var update protocol.UpdateSession
		if err := json.Unmarshal(msg.Payload, &update); err != nil {
			return fmt.Errorf("parse %s: %w", msg.Type, err)
		}
		a.handlePlaybackUpdate(a.ctx, update)

	case protocol.TypeSetSeek:
		var seek protocol.SetSeek
		if err := json.Unmarshal(msg.Payload, &seek); err != nil {
			return fmt.Errorf("parse %s: %w", msg.Type, err)
		}
		a.handlePlaybackUpdate(a.ctx, protocol.UpdateSession{
			SessionID: seek.SessionID,
			Target:    seek.Target,
			Seek:      &seek.Seek,
		})

	default:
		a.log.Debug("ignoring unrecognized message", zap.String("type", msg.Type))
	}

	return nil
}
