// ABOUTME: Reconciliation engine mapping session state onto player bindings
// ABOUTME: Also carries the outbound relay, buffer and binding sweeps
package app

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/ZoneSync-Audio/zonesync-go/internal/player"
	"github.com/ZoneSync-Audio/zonesync-go/internal/protocol"
	"github.com/ZoneSync-Audio/zonesync-go/internal/registry"
	"github.com/ZoneSync-Audio/zonesync-go/internal/ws"
)

// SendUpdateSession relays a session delta to the server. While
// connected the command is also applied locally, symmetrically to an
// inbound update, so UI state is never a frame behind; while
// disconnected it is buffered in order.
func (a *App) SendUpdateSession(update protocol.UpdateSession) {
	a.relay(outboundCommand{typ: protocol.TypeUpdateSession, payload: update})
}

// SendSetSeek relays a seek command to the server
func (a *App) SendSetSeek(seek protocol.SetSeek) {
	a.relay(outboundCommand{typ: protocol.TypeSetSeek, payload: seek})
}

// RequestConnectionID asks the server for our connection identity
func (a *App) RequestConnectionID() {
	a.relay(outboundCommand{typ: protocol.TypeGetConnectionID, payload: protocol.EmptyPayload{}})
}

func (a *App) relay(cmd outboundCommand) {
	t := a.currentTransport()
	if t == nil || !t.Connected() {
		a.log.Debug("buffering outbound command", zap.String("type", cmd.typ))
		a.bufMu.Lock()
		a.buffer = append(a.buffer, cmd)
		a.bufMu.Unlock()
		return
	}
	if err := a.send(cmd, true); err != nil {
		a.log.Error("failed to send command", zap.String("type", cmd.typ), zap.Error(err))
	}
}

// send encodes and transmits one command. When the command affects
// playback it is also applied locally, fire-and-forget. A send that
// races a disconnect falls back to the buffer rather than dropping.
func (a *App) send(cmd outboundCommand, applyLocal bool) error {
	if applyLocal {
		go func() {
			if err := a.applyLocalCommand(a.ctx, cmd); err != nil {
				a.log.Error("failed to apply local command", zap.String("type", cmd.typ), zap.Error(err))
			}
		}()
	}

	data, err := protocol.Encode(cmd.typ, cmd.payload)
	if err != nil {
		return err
	}

	t := a.currentTransport()
	if t == nil {
		a.bufMu.Lock()
		a.buffer = append(a.buffer, cmd)
		a.bufMu.Unlock()
		return nil
	}
	if err := t.Send(data); err != nil {
		if errors.Is(err, ws.ErrNotConnected) {
			a.bufMu.Lock()
			a.buffer = append(a.buffer, cmd)
			a.bufMu.Unlock()
			return nil
		}
		return err
	}
	return nil
}

// applyLocalCommand mirrors an outbound playback command onto local
// players, treating it exactly like an inbound update.
func (a *App) applyLocalCommand(ctx context.Context, cmd outboundCommand) error {
	switch payload := cmd.payload.(type) {
	case protocol.UpdateSession:
		a.handlePlaybackUpdate(ctx, payload)
	case protocol.SetSeek:
		a.handlePlaybackUpdate(ctx, protocol.UpdateSession{
			SessionID: payload.SessionID,
			Target:    payload.Target,
			Seek:      &payload.Seek,
		})
	}
	return nil
}

// flushBuffer drains commands queued while disconnected, preserving
// enqueue order.
func (a *App) flushBuffer() {
	a.bufMu.Lock()
	queued := a.buffer
	a.buffer = nil
	a.bufMu.Unlock()

	if len(queued) == 0 {
		return
	}
	a.log.Debug("flushing buffered commands", zap.Int("count", len(queued)))
	for _, cmd := range queued {
		if err := a.send(cmd, true); err != nil {
			a.log.Error("failed to flush command", zap.String("type", cmd.typ), zap.Error(err))
		}
	}
}

// handlePlaybackUpdate applies a session delta to every binding
// matching (session, target). Each player is updated independently;
// one player's failure never blocks the others.
func (a *App) handlePlaybackUpdate(ctx context.Context, update protocol.UpdateSession) {
	a.log.Debug("handling playback update",
		zap.Int64("sessionId", update.SessionID),
		zap.Any("target", update.Target))

	a.notifyPlayerState(update)

	if update.Quality != nil {
		a.players.StoreQuality(*update.Quality)
	}

	handles := a.players.Players(update.SessionID, &update.Target)
	if len(handles) == 0 {
		handles = a.materializeZoneBindings(ctx, update)
	}

	base := toPlayerUpdate(update)

	for _, h := range handles {
		playerUpdate := base
		if pb := h.Playback(); pb != nil && pb.SessionID != update.SessionID {
			playerUpdate = toPlayerUpdate(a.retargetUpdate(pb.SessionID, update))
		}
		if err := h.Update(ctx, playerUpdate); err != nil {
			a.log.Error("player update failed",
				zap.String("playerId", h.ID()),
				zap.Int64("sessionId", update.SessionID),
				zap.Any("target", update.Target),
				zap.Error(err))
		}
	}
}

// retargetUpdate re-addresses a delta at a player that is bound to a
// different session, completing the missing fields from that session's
// canonical snapshot. Deltas for the player's own session are applied
// as-is: the player already holds its live state, and the registry
// snapshot may lag behind deltas applied since the last full sync.
func (a *App) retargetUpdate(sessionID int64, update protocol.UpdateSession) protocol.UpdateSession {
	session, ok := a.registry.Session(sessionID)
	if !ok {
		return update
	}
	update.SessionID = sessionID
	if update.Position == nil {
		update.Position = session.Position
	}
	if update.Seek == nil {
		update.Seek = session.Seek
	}
	if update.Volume == nil {
		update.Volume = session.Volume
	}
	if update.Playlist == nil {
		playlist := session.Playlist
		update.Playlist = &playlist
	}
	return update
}

func toPlayerUpdate(update protocol.UpdateSession) player.Update {
	playing := update.Playing
	if playing == nil {
		if update.Play != nil && *update.Play {
			on := true
			playing = &on
		} else if update.Stop != nil && *update.Stop {
			off := false
			playing = &off
		}
	}
	u := player.Update{
		Playing:   playing,
		Position:  update.Position,
		Seek:      update.Seek,
		Volume:    update.Volume,
		Quality:   update.Quality,
		SessionID: &update.SessionID,
		Target:    &update.Target,
	}
	if update.Playlist != nil {
		tracks := update.Playlist.Tracks
		if tracks == nil {
			tracks = []protocol.Track{}
		}
		u.Tracks = tracks
	}
	return u
}

// materializeZoneBindings is the one-shot fallback for updates whose
// zone is known but has no binding for the session yet: synthesize the
// zone-with-session record, re-sweep the zone bindings, then retry
// resolution exactly once.
func (a *App) materializeZoneBindings(ctx context.Context, update protocol.UpdateSession) []*player.Handle {
	if update.Target.Type != protocol.TargetAudioZone {
		return nil
	}
	zone, ok := a.registry.Zone(update.Target.AudioZoneID)
	if !ok {
		return nil
	}

	a.log.Debug("materializing zone binding",
		zap.Int64("zoneId", zone.ID),
		zap.Int64("sessionId", update.SessionID))

	zone.SessionID = update.SessionID
	a.registry.PushZone(zone)
	a.updateAudioZones(ctx)

	return a.players.Players(update.SessionID, &update.Target)
}

// SetPlaybackQuality changes the global quality and re-applies it to
// every binding. Does not contact the server.
func (a *App) SetPlaybackQuality(ctx context.Context, quality protocol.PlaybackQuality) {
	a.log.Debug("setting playback quality", zap.String("format", quality.Format))
	a.players.SetQuality(ctx, quality)
}

// updateAudioZones binds every known zone's players against the
// registered outputs. Bind failures are logged per player.
func (a *App) updateAudioZones(ctx context.Context) {
	for _, zone := range a.registry.Zones() {
		if zone.SessionID == 0 {
			continue
		}
		target := protocol.AudioZoneTarget(zone.ID)
		for _, p := range zone.Players {
			output, ok := a.registry.Output(p.AudioOutputID)
			if !ok {
				continue
			}
			if _, err := a.players.Bind(ctx, target, zone.SessionID, output.Output, output.Output.Kind); err != nil {
				a.log.Error("failed to bind zone player",
					zap.Int64("zoneId", zone.ID),
					zap.Int64("sessionId", zone.SessionID),
					zap.String("outputId", p.AudioOutputID),
					zap.Error(err))
			}
		}
	}
}

// updateConnectionOutputs ensures every registered output on this
// connection has a binding for each known session.
func (a *App) updateConnectionOutputs(ctx context.Context, sessionIDs []int64) {
	a.stateMu.RLock()
	connectionID := a.state.connectionID
	a.stateMu.RUnlock()
	if connectionID == "" {
		return
	}

	for _, output := range a.registry.Outputs() {
		target := protocol.ConnectionOutputTarget(connectionID, output.Player.AudioOutputID)
		for _, sessionID := range sessionIDs {
			if len(a.players.Players(sessionID, &target)) > 0 {
				continue
			}
			if _, err := a.players.Bind(ctx, target, sessionID, output.Output, output.Output.Kind); err != nil {
				a.log.Error("failed to bind connection output",
					zap.String("outputId", output.Player.AudioOutputID),
					zap.Int64("sessionId", sessionID),
					zap.Error(err))
			}
		}
	}
}

// scanOutputs registers the available output devices as players and
// re-sweeps bindings.
func (a *App) scanOutputs(ctx context.Context) {
	a.stateMu.RLock()
	origin := a.state.apiURL
	connectionID := a.state.connectionID
	a.stateMu.RUnlock()
	if origin == "" || connectionID == "" {
		a.log.Debug("scan outputs: missing api url or connection id")
		return
	}
	if a.outputs == nil {
		a.log.Debug("scan outputs: no output provider")
		return
	}

	devices, err := a.outputs.Outputs(ctx)
	if err != nil {
		a.log.Error("failed to enumerate outputs", zap.Error(err))
		return
	}
	if len(devices) == 0 {
		return
	}

	regs := make([]protocol.RegisterPlayer, 0, len(devices))
	for _, d := range devices {
		regs = append(regs, protocol.RegisterPlayer{AudioOutputID: d.ID, Name: d.Name})
	}

	registered, err := a.api.RegisterPlayers(ctx, connectionID, regs)
	if err != nil {
		a.log.Error("failed to register players", zap.Error(err))
		return
	}

	paired := make([]registry.RegisteredOutput, 0, len(registered))
	for _, p := range registered {
		for _, d := range devices {
			if d.ID == p.AudioOutputID {
				paired = append(paired, registry.RegisteredOutput{Player: p, Output: d})
				break
			}
		}
	}
	a.registry.AddOutputs(paired)

	a.updateAudioZones(ctx)
	a.updateConnectionOutputs(ctx, a.registry.SessionIDs())
}

// fetchAudioZones pulls the zone/session snapshot over HTTP and
// re-sweeps zone bindings.
func (a *App) fetchAudioZones(ctx context.Context) {
	zones, err := a.api.ZonesWithSessions(ctx)
	if err != nil {
		a.log.Error("failed to fetch audio zones", zap.Error(err))
		return
	}
	a.registry.ReplaceZones(zones)
	a.updateAudioZones(ctx)
}

// notifyPlaylist pushes the current session's full snapshot to the
// observer, mirroring state onto the boundary player surface.
func (a *App) notifyPlaylist() {
	a.stateMu.RLock()
	sessionID := a.state.currentSessionID
	a.stateMu.RUnlock()
	if sessionID == nil {
		return
	}
	session, ok := a.registry.Session(*sessionID)
	if !ok {
		return
	}
	a.emit("player-state", session)
}

// notifyPlayerState forwards an update touching the current session to
// the observer.
func (a *App) notifyPlayerState(update protocol.UpdateSession) {
	a.stateMu.RLock()
	sessionID := a.state.currentSessionID
	a.stateMu.RUnlock()
	if sessionID == nil || *sessionID != update.SessionID {
		return
	}
	a.emit("player-update", update)
}
