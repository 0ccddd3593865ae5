// ABOUTME: Application context owning registries, credentials and the transport
// ABOUTME: Replaces global state with one explicitly wired value
package app

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ZoneSync-Audio/zonesync-go/internal/api"
	"github.com/ZoneSync-Audio/zonesync-go/internal/player"
	"github.com/ZoneSync-Audio/zonesync-go/internal/protocol"
	"github.com/ZoneSync-Audio/zonesync-go/internal/registry"
	"github.com/ZoneSync-Audio/zonesync-go/internal/ws"
)

// Observer receives every protocol event so the boundary (UI) sees the
// full message flow regardless of internal handling outcome. Emit is
// fire-and-forget.
type Observer interface {
	Emit(event string, payload any)
}

// OutputProvider supplies the output devices available on this
// connection. Device discovery itself happens elsewhere.
type OutputProvider interface {
	Outputs(ctx context.Context) ([]protocol.OutputDevice, error)
}

// APIClient is the HTTP collaborator surface consumed by the app
type APIClient interface {
	RegisterPlayers(ctx context.Context, connectionID string, players []protocol.RegisterPlayer) ([]protocol.Player, error)
	ZonesWithSessions(ctx context.Context) ([]protocol.Zone, error)
}

// Transport is the send side of the websocket client
type Transport interface {
	Send(data []byte) error
	Connected() bool
}

// State carries connection details and the active playback context.
// Empty strings clear the corresponding value.
type State struct {
	ConnectionID     string
	ConnectionName   string
	APIURL           string
	ClientID         string
	SignatureToken   string
	APIToken         string
	CurrentSessionID *int64
	PlaybackTarget   *protocol.PlaybackTarget
}

type appState struct {
	connectionID     string
	connectionName   string
	apiURL           string
	clientID         string
	signatureToken   string
	apiToken         string
	currentSessionID *int64
	playbackTarget   *protocol.PlaybackTarget
	wsURL            string
}

type outboundCommand struct {
	typ     string
	payload any
}

// Options configures a new App
type Options struct {
	Logger         *zap.Logger
	Observer       Observer
	Outputs        OutputProvider
	BackendFactory player.BackendFactory

	// API overrides the HTTP client; a real one is built from the
	// app's credentials when nil.
	API APIClient

	// Transport tuning, zero values use the ws defaults.
	RetryDelay   time.Duration
	PingInterval time.Duration
}

// App owns all client-side coordination state: the registry, the
// player lifecycle manager, the outbound buffer and the websocket
// connection.
type App struct {
	ctx    context.Context
	cancel context.CancelFunc
	log    *zap.Logger

	registry *registry.Registry
	players  *player.Manager
	api      APIClient
	outputs  OutputProvider
	observer Observer

	retryDelay   time.Duration
	pingInterval time.Duration

	stateMu sync.RWMutex
	state   appState

	bufMu  sync.Mutex
	buffer []outboundCommand

	// initMu serializes connection re-establishment end to end, so
	// concurrent state updates can never leave two live connections.
	initMu    sync.Mutex
	wsMu      sync.Mutex
	transport Transport
	wsCancel  context.CancelFunc
	wsDone    chan struct{}
}

// New creates an application context
func New(opts Options) *App {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())

	a := &App{
		ctx:          ctx,
		cancel:       cancel,
		log:          opts.Logger,
		registry:     registry.New(),
		observer:     opts.Observer,
		outputs:      opts.Outputs,
		retryDelay:   opts.RetryDelay,
		pingInterval: opts.PingInterval,
	}

	factory := opts.BackendFactory
	if factory == nil {
		factory = player.HeadlessFactory(opts.Logger)
	}
	a.players = player.NewManager(a.registry, factory, a, opts.Logger)

	if opts.API != nil {
		a.api = opts.API
	} else {
		a.api = api.NewClient(a)
	}
	return a
}

// Registry exposes the state snapshots
func (a *App) Registry() *registry.Registry { return a.registry }

// Players exposes the player lifecycle manager
func (a *App) Players() *player.Manager { return a.players }

// Credentials implements api.CredentialSource
func (a *App) Credentials() api.Credentials {
	a.stateMu.RLock()
	defer a.stateMu.RUnlock()
	return api.Credentials{
		Origin:         a.state.apiURL,
		Token:          a.state.apiToken,
		ClientID:       a.state.clientID,
		SignatureToken: a.state.signatureToken,
	}
}

// SetState applies connection details pushed from the boundary.
// Changed connection details trigger a full state refresh, including a
// websocket reconnect.
func (a *App) SetState(st State) error {
	a.log.Debug("set state", zap.String("connectionId", st.ConnectionID), zap.String("apiUrl", st.APIURL))

	updated := false
	a.stateMu.Lock()
	if a.state.connectionID != st.ConnectionID {
		a.state.connectionID = st.ConnectionID
		updated = true
	}
	a.state.connectionName = st.ConnectionName
	if a.state.clientID != st.ClientID {
		a.state.clientID = st.ClientID
		updated = true
	}
	if a.state.signatureToken != st.SignatureToken {
		a.state.signatureToken = st.SignatureToken
		updated = true
	}
	if a.state.apiToken != st.APIToken {
		a.state.apiToken = st.APIToken
		updated = true
	}
	if a.state.apiURL != st.APIURL {
		a.state.apiURL = st.APIURL
		updated = true
	}
	a.state.currentSessionID = st.CurrentSessionID
	a.state.playbackTarget = st.PlaybackTarget
	a.stateMu.Unlock()

	if st.CurrentSessionID != nil {
		a.notifyPlaylist()
	}
	if updated {
		a.UpdateState()
	}
	return nil
}

// UpdateState refreshes everything derived from the connection
// details: output registration, player reinitialization, zone
// snapshots and the websocket connection itself.
func (a *App) UpdateState() {
	a.stateMu.RLock()
	hasConnection := a.state.connectionID != ""
	a.stateMu.RUnlock()
	a.log.Debug("update state", zap.Bool("hasConnectionId", hasConnection))

	if hasConnection {
		go func() {
			a.scanOutputs(a.ctx)
			if err := a.players.Reinit(a.ctx); err != nil {
				a.log.Error("failed to reinit players", zap.Error(err))
			}
			a.fetchAudioZones(a.ctx)
		}()
	}

	go a.initWS()
}

// initWS (re)establishes the websocket connection. Any previous
// connection is cancelled and discarded first; only one logical
// connection is ever active.
func (a *App) initWS() {
	a.initMu.Lock()
	defer a.initMu.Unlock()

	a.wsMu.Lock()
	if a.wsCancel != nil {
		a.wsCancel()
		a.wsCancel = nil
	}
	done := a.wsDone
	a.wsMu.Unlock()
	if done != nil {
		<-done
	}

	a.stateMu.Lock()
	origin := a.state.apiURL
	clientID := a.state.clientID
	signature := a.state.signatureToken
	a.stateMu.Unlock()

	if origin == "" {
		a.log.Debug("init ws: missing api url")
		return
	}

	wsURL, err := ws.EndpointURL(origin)
	if err != nil {
		a.log.Error("failed to derive ws endpoint", zap.String("origin", origin), zap.Error(err))
		return
	}
	a.stateMu.Lock()
	a.state.wsURL = wsURL
	a.stateMu.Unlock()

	client := ws.New(ws.Config{
		URL:            wsURL,
		ClientID:       clientID,
		SignatureToken: signature,
		OnConnect:      a.onWSConnect,
		RetryDelay:     a.retryDelay,
		PingInterval:   a.pingInterval,
		Logger:         a.log,
	})

	ctx, cancel := context.WithCancel(a.ctx)
	frames := client.Start(ctx)
	done = make(chan struct{})

	a.wsMu.Lock()
	a.transport = client
	a.wsCancel = cancel
	a.wsDone = done
	a.wsMu.Unlock()

	go func() {
		defer close(done)
		for frame := range frames {
			a.handleFrame(frame)
		}
		a.log.Debug("ws frame loop exited")
	}()
}

// onWSConnect runs after every successful handshake: request our
// connection identity, then flush commands queued while disconnected,
// in order.
func (a *App) onWSConnect() {
	a.log.Debug("sending get connection id")
	if err := a.send(outboundCommand{typ: protocol.TypeGetConnectionID, payload: protocol.EmptyPayload{}}, true); err != nil {
		a.log.Error("failed to send get connection id", zap.Error(err))
	}
	a.flushBuffer()
}

func (a *App) currentTransport() Transport {
	a.wsMu.Lock()
	defer a.wsMu.Unlock()
	return a.transport
}

// WSURL returns the derived websocket endpoint, if any
func (a *App) WSURL() string {
	a.stateMu.RLock()
	defer a.stateMu.RUnlock()
	return a.state.wsURL
}

// Shutdown terminates the connection loop and all background work
func (a *App) Shutdown() {
	a.cancel()
	a.wsMu.Lock()
	done := a.wsDone
	a.wsMu.Unlock()
	if done != nil {
		<-done
	}
}

func (a *App) emit(event string, payload any) {
	if a.observer != nil {
		a.observer.Emit(event, payload)
	}
}
