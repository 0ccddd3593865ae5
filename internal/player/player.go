// ABOUTME: Player handles wrapping opaque playback backends
// ABOUTME: Tracks per-player playback state under its own lock
package player

import (
	"context"
	"net/url"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ZoneSync-Audio/zonesync-go/internal/protocol"
)

// Source describes the remote playback origin a backend streams from
type Source struct {
	Host    string
	Headers map[string]string
	Query   url.Values
}

// Playback is a player's current playback snapshot
type Playback struct {
	SessionID int64
	Target    protocol.PlaybackTarget
	Playing   bool
	Position  int
	Seek      float64
	Volume    float64
	Quality   protocol.PlaybackQuality
	Tracks    []protocol.Track
}

// Update carries partial playback changes. Nil fields leave the
// current value untouched; a nil Tracks slice leaves the playlist
// untouched.
type Update struct {
	Playing   *bool
	Position  *int
	Seek      *float64
	Volume    *float64
	Tracks    []protocol.Track
	Quality   *protocol.PlaybackQuality
	SessionID *int64
	Target    *protocol.PlaybackTarget
}

// Backend renders playback for a handle. Implementations drive a local
// audio device or a remote renderer; this core never looks inside.
type Backend interface {
	Kind() string
	Apply(ctx context.Context, playback Playback) error
}

// BackendFactory constructs a backend of the given kind against a
// remote source and output device. Resolved once at binding creation.
type BackendFactory func(kind string, source Source, output protocol.OutputDevice) (Backend, error)

// Handle is one live player instance. Handles are shared across
// reconciliation calls; the playback snapshot is guarded by the
// handle's own lock.
type Handle struct {
	id      string
	backend Backend
	output  protocol.OutputDevice
	log     *zap.Logger

	mu       sync.RWMutex
	playback *Playback
}

// NewHandle wraps a backend in a handle with a fresh id
func NewHandle(backend Backend, output protocol.OutputDevice, log *zap.Logger) *Handle {
	return &Handle{
		id:      uuid.New().String(),
		backend: backend,
		output:  output,
		log:     log,
	}
}

// ID returns the handle's unique id
func (h *Handle) ID() string { return h.id }

// Kind returns the backend kind
func (h *Handle) Kind() string { return h.backend.Kind() }

// Output returns the output device this handle renders through
func (h *Handle) Output() protocol.OutputDevice { return h.output }

// Playback returns a copy of the current snapshot, or nil when the
// player has not been initialized or updated yet.
func (h *Handle) Playback() *Playback {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.playback == nil {
		return nil
	}
	pb := *h.playback
	pb.Tracks = append([]protocol.Track(nil), h.playback.Tracks...)
	return &pb
}

// InitFromSession seeds the playback snapshot from a session snapshot.
// This is a local, non-authoritative catch-up; the server is not
// notified and the backend is not driven.
func (h *Handle) InitFromSession(session protocol.Session) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	pb := Playback{
		SessionID: session.SessionID,
		Playing:   session.Playing,
		Volume:    1,
		Tracks:    append([]protocol.Track(nil), session.Playlist.Tracks...),
	}
	if h.playback != nil {
		pb.Target = h.playback.Target
		pb.Quality = h.playback.Quality
	}
	if session.Position != nil {
		pb.Position = *session.Position
	}
	if session.Seek != nil {
		pb.Seek = *session.Seek
	}
	if session.Volume != nil {
		pb.Volume = *session.Volume
	}
	h.playback = &pb

	h.log.Debug("player initialized from session",
		zap.String("playerId", h.id),
		zap.Int64("sessionId", session.SessionID))
	return nil
}

// Update merges the given fields into the playback snapshot and pushes
// the merged state to the backend. Re-applying an update whose fields
// already match is a no-op beyond the backend call itself.
func (h *Handle) Update(ctx context.Context, u Update) error {
	h.mu.Lock()
	var pb Playback
	if h.playback != nil {
		pb = *h.playback
	} else {
		pb.Volume = 1
	}
	if u.Playing != nil {
		pb.Playing = *u.Playing
	}
	if u.Position != nil {
		pb.Position = *u.Position
	}
	if u.Seek != nil {
		pb.Seek = *u.Seek
	}
	if u.Volume != nil {
		pb.Volume = *u.Volume
	}
	if u.Tracks != nil {
		pb.Tracks = append([]protocol.Track(nil), u.Tracks...)
	}
	if u.Quality != nil {
		pb.Quality = *u.Quality
	}
	if u.SessionID != nil {
		pb.SessionID = *u.SessionID
	}
	if u.Target != nil {
		pb.Target = *u.Target
	}
	h.playback = &pb
	snapshot := pb
	h.mu.Unlock()

	// Backend calls may suspend; never hold the lock across them.
	return h.backend.Apply(ctx, snapshot)
}

// HeadlessBackend tracks playback state without driving a renderer.
// Used when no renderer integration is wired in.
type HeadlessBackend struct {
	kind string
	log  *zap.Logger
}

// Kind returns the backend kind
func (b *HeadlessBackend) Kind() string { return b.kind }

// Apply records the desired state
func (b *HeadlessBackend) Apply(_ context.Context, pb Playback) error {
	b.log.Debug("headless backend apply",
		zap.Int64("sessionId", pb.SessionID),
		zap.Bool("playing", pb.Playing),
		zap.Int("position", pb.Position),
		zap.Float64("seek", pb.Seek))
	return nil
}

// HeadlessFactory builds headless backends of any kind
func HeadlessFactory(log *zap.Logger) BackendFactory {
	return func(kind string, _ Source, _ protocol.OutputDevice) (Backend, error) {
		return &HeadlessBackend{kind: kind, log: log}, nil
	}
}
