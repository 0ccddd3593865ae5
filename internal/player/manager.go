// ABOUTME: Target resolver and player lifecycle manager
// ABOUTME: Owns bindings, pending bindings and the global quality
package player

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/ZoneSync-Audio/zonesync-go/internal/api"
	"github.com/ZoneSync-Audio/zonesync-go/internal/protocol"
	"github.com/ZoneSync-Audio/zonesync-go/internal/registry"
)

// ErrMissingOutput is returned when a binding is requested against an
// unknown or empty output device. Not retried internally.
var ErrMissingOutput = errors.New("output device not set")

// Binding associates one playback target and session with a player.
// Exactly one binding exists per (target, session) pair.
type Binding struct {
	Target    protocol.PlaybackTarget
	SessionID int64
	Handle    *Handle
	Kind      string
}

// Manager resolves playback targets to player handles, creating and
// rebinding players while preserving whatever is currently playing.
type Manager struct {
	registry *registry.Registry
	factory  BackendFactory
	creds    api.CredentialSource
	log      *zap.Logger

	mu       sync.RWMutex
	bindings []*Binding
	pending  map[string]int64 // player id -> awaited session id
	quality  *protocol.PlaybackQuality
}

// NewManager creates a player lifecycle manager
func NewManager(reg *registry.Registry, factory BackendFactory, creds api.CredentialSource, log *zap.Logger) *Manager {
	return &Manager{
		registry: reg,
		factory:  factory,
		creds:    creds,
		log:      log,
		pending:  make(map[string]int64),
	}
}

// Quality returns the current global playback quality, or nil
func (m *Manager) Quality() *protocol.PlaybackQuality {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.quality
}

// Bindings returns a snapshot of the current bindings
func (m *Manager) Bindings() []*Binding {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Binding, len(m.bindings))
	copy(out, m.bindings)
	return out
}

// PendingSessions returns a copy of the pending player -> session map
func (m *Manager) PendingSessions() map[string]int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]int64, len(m.pending))
	for k, v := range m.pending {
		out[k] = v
	}
	return out
}

// Players returns the handles bound to the given session, optionally
// narrowed to an exact playback target. Matching is strict: a binding
// for the same session but a different target never matches.
func (m *Manager) Players(sessionID int64, target *protocol.PlaybackTarget) []*Handle {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var handles []*Handle
	for _, b := range m.bindings {
		if b.SessionID != sessionID {
			continue
		}
		if target != nil && *target != b.Target {
			continue
		}
		handles = append(handles, b.Handle)
	}
	return handles
}

// Bind resolves a playback target to a player, creating one when no
// suitable binding exists. An existing binding is reused only when its
// output matches and its player is not bound to a different session.
func (m *Manager) Bind(ctx context.Context, target protocol.PlaybackTarget, sessionID int64, output protocol.OutputDevice, kind string) (*Binding, error) {
	if existing := m.reusable(target, sessionID, output); existing != nil {
		m.log.Debug("reusing existing player binding",
			zap.Any("target", target),
			zap.Int64("sessionId", sessionID),
			zap.String("outputId", output.ID))
		return existing, nil
	}

	// Capture the playback of any binding being replaced before doing
	// anything slow; the transplant below carries it over.
	var previous *Playback
	m.mu.RLock()
	for _, b := range m.bindings {
		if b.Target == target && b.SessionID == sessionID {
			previous = b.Handle.Playback()
			break
		}
	}
	m.mu.RUnlock()

	handle, err := m.createHandle(ctx, target, sessionID, output, kind)
	if err != nil {
		return nil, err
	}

	if previous != nil {
		transplant := Update{
			Playing:  &previous.Playing,
			Position: &previous.Position,
			Seek:     &previous.Seek,
			Volume:   &previous.Volume,
			Tracks:   previous.Tracks,
			Quality:  &previous.Quality,
		}
		if err := handle.Update(ctx, transplant); err != nil {
			m.log.Error("failed to transplant playback into new player",
				zap.String("playerId", handle.ID()),
				zap.Int64("sessionId", sessionID),
				zap.Error(err))
		}
	}

	binding := &Binding{Target: target, SessionID: sessionID, Handle: handle, Kind: kind}

	m.mu.Lock()
	replaced := false
	for i, b := range m.bindings {
		if b.Target == target && b.SessionID == sessionID {
			m.bindings[i] = binding
			replaced = true
			break
		}
	}
	if !replaced {
		m.bindings = append(m.bindings, binding)
	}
	m.mu.Unlock()

	return binding, nil
}

// reusable finds a binding for the target whose output matches and
// whose player is already carrying this session.
func (m *Manager) reusable(target protocol.PlaybackTarget, sessionID int64, output protocol.OutputDevice) *Binding {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, b := range m.bindings {
		if b.Target != target {
			continue
		}
		if b.Handle.Output().ID != output.ID {
			continue
		}
		pb := b.Handle.Playback()
		if pb == nil || pb.SessionID != sessionID {
			continue
		}
		return b
	}
	return nil
}

// createHandle builds a player against the remote playback source and
// seeds it from the registry's session snapshot, or records a pending
// binding when the session has not arrived yet.
func (m *Manager) createHandle(ctx context.Context, target protocol.PlaybackTarget, sessionID int64, output protocol.OutputDevice, kind string) (*Handle, error) {
	creds := m.creds.Credentials()
	if creds.Origin == "" {
		return nil, api.ErrMissingOrigin
	}
	if output.ID == "" {
		return nil, ErrMissingOutput
	}

	source := Source{Host: creds.Origin}
	if creds.Token != "" {
		source.Headers = map[string]string{"Authorization": creds.Token}
	}
	if creds.ClientID != "" && creds.SignatureToken != "" {
		source.Query = map[string][]string{
			"clientId":  {creds.ClientID},
			"signature": {creds.SignatureToken},
		}
	}

	backend, err := m.factory(kind, source, output)
	if err != nil {
		return nil, fmt.Errorf("create %s backend: %w", kind, err)
	}
	handle := NewHandle(backend, output, m.log)

	if session, ok := m.registry.Session(sessionID); ok {
		if err := handle.InitFromSession(session); err != nil {
			m.log.Error("failed to init player from session",
				zap.String("playerId", handle.ID()),
				zap.Int64("sessionId", sessionID),
				zap.Error(err))
		}
	} else {
		m.log.Debug("no session snapshot for new player yet",
			zap.String("playerId", handle.ID()),
			zap.Int64("sessionId", sessionID))
		m.mu.Lock()
		m.pending[handle.ID()] = sessionID
		m.mu.Unlock()
	}

	// Quiescent baseline: attach the session/target and current global
	// quality without forcing playing/position/seek.
	baseline := Update{
		Quality:   m.Quality(),
		SessionID: &sessionID,
		Target:    &target,
	}
	if err := handle.Update(ctx, baseline); err != nil {
		return nil, fmt.Errorf("apply baseline update: %w", err)
	}

	return handle, nil
}

// ResolvePending initializes players whose awaited session appears in
// the given snapshot. Each pending entry is resolved at most once.
func (m *Manager) ResolvePending(sessions []protocol.Session) {
	m.mu.RLock()
	waiting := make(map[string]int64, len(m.pending))
	for id, sid := range m.pending {
		waiting[id] = sid
	}
	m.mu.RUnlock()

	var resolved []string
	for playerID, sessionID := range waiting {
		var session *protocol.Session
		for i := range sessions {
			if sessions[i].SessionID == sessionID {
				session = &sessions[i]
				break
			}
		}
		if session == nil {
			continue
		}

		handle := m.handleByID(playerID)
		if handle == nil {
			continue
		}
		if err := handle.InitFromSession(*session); err != nil {
			m.log.Error("failed to init player from session",
				zap.String("playerId", playerID),
				zap.Int64("sessionId", sessionID),
				zap.Error(err))
		}
		resolved = append(resolved, playerID)
	}

	if len(resolved) > 0 {
		m.mu.Lock()
		for _, id := range resolved {
			delete(m.pending, id)
		}
		m.mu.Unlock()
	}
}

func (m *Manager) handleByID(playerID string) *Handle {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, b := range m.bindings {
		if b.Handle.ID() == playerID {
			return b.Handle
		}
	}
	return nil
}

// StoreQuality records the global quality without touching players.
// Used when an inbound update already carries it to each player.
func (m *Manager) StoreQuality(quality protocol.PlaybackQuality) {
	m.mu.Lock()
	m.quality = &quality
	m.mu.Unlock()
}

// SetQuality stores the global quality and re-applies it to every
// binding without forcing a playing or position change. Does not
// contact the server; per-player failures are isolated.
func (m *Manager) SetQuality(ctx context.Context, quality protocol.PlaybackQuality) {
	m.mu.Lock()
	m.quality = &quality
	bindings := make([]*Binding, len(m.bindings))
	copy(bindings, m.bindings)
	m.mu.Unlock()

	for _, b := range bindings {
		update := Update{
			Quality:   &quality,
			SessionID: &b.SessionID,
			Target:    &b.Target,
		}
		if err := b.Handle.Update(ctx, update); err != nil {
			m.log.Error("failed to apply quality to player",
				zap.String("playerId", b.Handle.ID()),
				zap.Int64("sessionId", b.SessionID),
				zap.Any("target", b.Target),
				zap.Error(err))
		}
	}
}

// Reinit rebuilds every binding's player, carrying live playback into
// the replacement. Used after credential or output changes.
func (m *Manager) Reinit(ctx context.Context) error {
	m.mu.RLock()
	bindings := make([]*Binding, len(m.bindings))
	copy(bindings, m.bindings)
	m.mu.RUnlock()

	for _, b := range bindings {
		previous := b.Handle.Playback()

		handle, err := m.createHandle(ctx, b.Target, b.SessionID, b.Handle.Output(), b.Kind)
		if err != nil {
			return err
		}

		if previous != nil {
			transplant := Update{
				Playing:  &previous.Playing,
				Position: &previous.Position,
				Seek:     &previous.Seek,
				Volume:   &previous.Volume,
				Tracks:   previous.Tracks,
				Quality:  &previous.Quality,
			}
			if err := handle.Update(ctx, transplant); err != nil {
				return err
			}
		}

		replacement := &Binding{Target: b.Target, SessionID: b.SessionID, Handle: handle, Kind: b.Kind}
		m.mu.Lock()
		for i, existing := range m.bindings {
			if existing == b {
				m.bindings[i] = replacement
				break
			}
		}
		m.mu.Unlock()
	}
	return nil
}
