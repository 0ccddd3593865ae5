// ABOUTME: Session, zone and playback target models
// ABOUTME: Wire representations shared by the ws and HTTP surfaces
package protocol

// Playback target kinds.
const (
	TargetAudioZone        = "AUDIO_ZONE"
	TargetConnectionOutput = "CONNECTION_OUTPUT"
)

// PlaybackTarget identifies where playback should happen, independent
// of which session is assigned there. It is a tagged union: AUDIO_ZONE
// uses AudioZoneID, CONNECTION_OUTPUT uses ConnectionID+OutputID.
type PlaybackTarget struct {
	Type         string `json:"type"`
	AudioZoneID  int64  `json:"audioZoneId,omitempty"`
	ConnectionID string `json:"connectionId,omitempty"`
	OutputID     string `json:"outputId,omitempty"`
}

// AudioZoneTarget builds a zone-addressed playback target
func AudioZoneTarget(zoneID int64) PlaybackTarget {
	return PlaybackTarget{Type: TargetAudioZone, AudioZoneID: zoneID}
}

// ConnectionOutputTarget builds an output-addressed playback target
func ConnectionOutputTarget(connectionID, outputID string) PlaybackTarget {
	return PlaybackTarget{
		Type:         TargetConnectionOutput,
		ConnectionID: connectionID,
		OutputID:     outputID,
	}
}

// Track is one playlist entry
type Track struct {
	ID       string  `json:"trackId"`
	Title    string  `json:"title,omitempty"`
	Artist   string  `json:"artist,omitempty"`
	Album    string  `json:"album,omitempty"`
	Duration float64 `json:"duration,omitempty"`
}

// Playlist is a session's ordered track list
type Playlist struct {
	SessionPlaylistID int64   `json:"sessionPlaylistId"`
	Tracks            []Track `json:"tracks"`
}

// PlaybackQuality selects the stream encoding for playback
type PlaybackQuality struct {
	Format string `json:"format"`
}

// Session is the server-owned playlist/transport state. Locally
// read-only except for optimistic local-origin echoes.
type Session struct {
	SessionID int64    `json:"sessionId"`
	Name      string   `json:"name,omitempty"`
	Active    bool     `json:"active,omitempty"`
	Playing   bool     `json:"playing"`
	Position  *int     `json:"position,omitempty"`
	Seek      *float64 `json:"seek,omitempty"`
	Volume    *float64 `json:"volume,omitempty"`
	Playlist  Playlist `json:"playlist"`
}

// UpdateSession is a partial session delta. Nil fields are unset and
// must not overwrite current state.
type UpdateSession struct {
	SessionID int64            `json:"sessionId"`
	Target    PlaybackTarget   `json:"playbackTarget"`
	Play      *bool            `json:"play,omitempty"`
	Stop      *bool            `json:"stop,omitempty"`
	Playing   *bool            `json:"playing,omitempty"`
	Position  *int             `json:"position,omitempty"`
	Seek      *float64         `json:"seek,omitempty"`
	Volume    *float64         `json:"volume,omitempty"`
	Playlist  *Playlist        `json:"playlist,omitempty"`
	Quality   *PlaybackQuality `json:"quality,omitempty"`
}

// SetSeek is a seek-only push for one session/target
type SetSeek struct {
	SessionID int64          `json:"sessionId"`
	Target    PlaybackTarget `json:"playbackTarget"`
	Seek      float64        `json:"seek"`
}

// Player describes an output-capable player registered with the server
type Player struct {
	PlayerID      int64  `json:"playerId"`
	AudioOutputID string `json:"audioOutputId"`
	Name          string `json:"name"`
}

// Zone is a named group of players sharing one session assignment
type Zone struct {
	ID        int64    `json:"id"`
	SessionID int64    `json:"sessionId"`
	Name      string   `json:"name"`
	Players   []Player `json:"players"`
}

// Connection is another device attached to the same server
type Connection struct {
	ConnectionID string   `json:"connectionId"`
	Name         string   `json:"name"`
	Alive        bool     `json:"alive"`
	Players      []Player `json:"players"`
}

// RegisterPlayer is the request body for registering an output device
// as a player.
type RegisterPlayer struct {
	AudioOutputID string `json:"audioOutputId"`
	Name          string `json:"name"`
}

// Backend kinds for output devices.
const (
	BackendLocal    = "LOCAL"
	BackendRenderer = "RENDERER"
)

// OutputDevice describes something a player can render through, either
// a local audio device or a remote renderer.
type OutputDevice struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Kind string `json:"kind"`
}
