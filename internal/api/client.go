// ABOUTME: HTTP client for the session server's REST surface
// ABOUTME: Registers output devices and fetches zone/session snapshots
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/ZoneSync-Audio/zonesync-go/internal/protocol"
)

// ErrMissingOrigin is returned when no API origin has been configured.
// It is a configuration error and is never retried internally.
var ErrMissingOrigin = errors.New("api origin not set")

// Credentials carry everything needed to address the server
type Credentials struct {
	Origin         string
	Token          string
	ClientID       string
	SignatureToken string
}

// CredentialSource provides the current credentials. Implemented by
// the application context so credential changes take effect without
// rebuilding clients.
type CredentialSource interface {
	Credentials() Credentials
}

// Client talks to the session server's HTTP API. Retries and backoff
// are the caller's responsibility.
type Client struct {
	creds CredentialSource
	http  *http.Client
}

// NewClient creates an API client backed by the given credentials
func NewClient(creds CredentialSource) *Client {
	return &Client{
		creds: creds,
		http:  &http.Client{Timeout: 30 * time.Second},
	}
}

// page mirrors the server's paged list responses
type page[T any] struct {
	Items []T `json:"items"`
}

// RegisterPlayers registers output devices as players for this
// connection and returns the server-side player descriptors.
func (c *Client) RegisterPlayers(ctx context.Context, connectionID string, players []protocol.RegisterPlayer) ([]protocol.Player, error) {
	creds := c.creds.Credentials()
	if creds.Origin == "" {
		return nil, ErrMissingOrigin
	}

	q := identityQuery(creds)
	q.Set("connectionId", connectionID)

	body, err := json.Marshal(players)
	if err != nil {
		return nil, fmt.Errorf("marshal register players: %w", err)
	}

	endpoint := fmt.Sprintf("%s/session/register-players?%s", creds.Origin, q.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req, creds)

	var registered []protocol.Player
	if err := c.do(req, &registered); err != nil {
		return nil, fmt.Errorf("register players: %w", err)
	}
	return registered, nil
}

// ZonesWithSessions fetches the audio zones and their current session
// assignments.
func (c *Client) ZonesWithSessions(ctx context.Context) ([]protocol.Zone, error) {
	creds := c.creds.Credentials()
	if creds.Origin == "" {
		return nil, ErrMissingOrigin
	}

	endpoint := creds.Origin + "/audio-zone/with-session"
	if q := identityQuery(creds); len(q) > 0 {
		endpoint += "?" + q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	c.authorize(req, creds)

	var zones page[protocol.Zone]
	if err := c.do(req, &zones); err != nil {
		return nil, fmt.Errorf("fetch zones: %w", err)
	}
	return zones.Items, nil
}

// identityQuery builds the clientId/signature parameters the server
// uses to authenticate the caller on unsigned endpoints.
func identityQuery(creds Credentials) url.Values {
	q := url.Values{}
	if creds.ClientID != "" {
		q.Set("clientId", creds.ClientID)
	}
	if creds.SignatureToken != "" {
		q.Set("signature", creds.SignatureToken)
	}
	return q
}

func (c *Client) authorize(req *http.Request, creds Credentials) {
	if creds.Token != "" {
		req.Header.Set("Authorization", "bearer "+creds.Token)
	}
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("HTTP %d: %s", resp.StatusCode, data)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parse response: %w", err)
	}
	return nil
}
