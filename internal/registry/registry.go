// ABOUTME: Last-known snapshots of sessions, zones, connections and outputs
// ABOUTME: Single source of truth for what should be playing where
package registry

import (
	"sync"

	"github.com/ZoneSync-Audio/zonesync-go/internal/protocol"
)

// RegisteredOutput pairs a server-side player descriptor with the
// local output device it renders through.
type RegisteredOutput struct {
	Player protocol.Player
	Output protocol.OutputDevice
}

// Registry holds the current server state snapshots. Collections are
// replaced wholesale when a fresh snapshot arrives. All critical
// sections are short and in-memory only; no I/O happens under the
// lock.
type Registry struct {
	mu          sync.RWMutex
	sessions    []protocol.Session
	zones       []protocol.Zone
	connections []protocol.Connection
	outputs     []RegisteredOutput
}

// New creates an empty registry
func New() *Registry {
	return &Registry{}
}

// Sessions returns a copy of the current sessions snapshot
func (r *Registry) Sessions() []protocol.Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]protocol.Session, len(r.sessions))
	copy(out, r.sessions)
	return out
}

// Session looks up a session by id
func (r *Registry) Session(sessionID int64) (protocol.Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, s := range r.sessions {
		if s.SessionID == sessionID {
			return s, true
		}
	}
	return protocol.Session{}, false
}

// SessionIDs returns the ids of all known sessions
func (r *Registry) SessionIDs() []int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]int64, 0, len(r.sessions))
	for _, s := range r.sessions {
		ids = append(ids, s.SessionID)
	}
	return ids
}

// ReplaceSessions installs a fresh sessions snapshot
func (r *Registry) ReplaceSessions(sessions []protocol.Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions = sessions
}

// Zones returns a copy of the current zones snapshot
func (r *Registry) Zones() []protocol.Zone {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]protocol.Zone, len(r.zones))
	copy(out, r.zones)
	return out
}

// Zone looks up a zone by id
func (r *Registry) Zone(zoneID int64) (protocol.Zone, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, z := range r.zones {
		if z.ID == zoneID {
			return z, true
		}
	}
	return protocol.Zone{}, false
}

// ReplaceZones installs a fresh zones snapshot
func (r *Registry) ReplaceZones(zones []protocol.Zone) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.zones = zones
}

// PushZone inserts a zone record, replacing any existing record with
// the same zone id and session id. Used by the reconciliation engine
// to self-heal when a session update arrives for a zone the registry
// knows but has no session assignment for yet.
func (r *Registry) PushZone(zone protocol.Zone) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, z := range r.zones {
		if z.ID == zone.ID && z.SessionID == zone.SessionID {
			r.zones[i] = zone
			return
		}
	}
	r.zones = append(r.zones, zone)
}

// Connections returns a copy of the current connections snapshot
func (r *Registry) Connections() []protocol.Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]protocol.Connection, len(r.connections))
	copy(out, r.connections)
	return out
}

// ReplaceConnections installs a fresh connections snapshot
func (r *Registry) ReplaceConnections(connections []protocol.Connection) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.connections = connections
}

// Outputs returns a copy of the registered output devices
func (r *Registry) Outputs() []RegisteredOutput {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]RegisteredOutput, len(r.outputs))
	copy(out, r.outputs)
	return out
}

// Output looks up a registered output by its audio output id
func (r *Registry) Output(audioOutputID string) (RegisteredOutput, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, o := range r.outputs {
		if o.Player.AudioOutputID == audioOutputID {
			return o, true
		}
	}
	return RegisteredOutput{}, false
}

// AddOutputs merges newly registered outputs into the known set,
// skipping player ids that are already present.
func (r *Registry) AddOutputs(outputs []RegisteredOutput) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, o := range outputs {
		exists := false
		for _, existing := range r.outputs {
			if existing.Player.PlayerID == o.Player.PlayerID {
				exists = true
				break
			}
		}
		if !exists {
			r.outputs = append(r.outputs, o)
		}
	}
}
