// Package registry is a thin client for the embedded stream server
// (spec §4.7): it only reads authoritative path state and drives
// creation of dynamic paths when needed. The HTTP request/response
// shape — a configured base URL, bounded per-call timeout, structured
// logging of every call — is adapted from pkg/mist/client.go's
// MistServer API client, generalized from Mist's push/stream verbs to
// this spec's path-oriented contract (get/list/ensure) against a
// MediaMTX-shaped control API.
package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/mBelstad/preke-r58-recorder-sub003/internal/ingest"
	"github.com/mBelstad/preke-r58-recorder-sub003/internal/obs"
	"github.com/mBelstad/preke-r58-recorder-sub003/internal/perr"
)

// Path is an alias for ingest.StreamPath (spec §3): the local streaming
// server is the sole authority for this state, so every supervisor that
// reads it — ingest's publication gate, recording, the mixer, the
// control plane — shares the one type rather than each declaring its
// own. Aliasing (not duplicating) it here lets *Client satisfy
// ingest.PathReader directly.
type Path = ingest.StreamPath

// Kind is what ensure_path should provision when a path doesn't
// already exist (spec §4.7).
type Kind string

const (
	KindPublisher Kind = "publisher"
	KindRelay     Kind = "relay"
)

// Client is the stream registry client. All operations are bounded to
// Timeout (default 2s per spec §4.7); failures and timeouts surface as
// perr.ErrRegistryUnavailable, and callers treat an absent path as
// ready=false rather than an error.
type Client struct {
	baseURL    string
	username   string
	password   string
	timeout    time.Duration
	httpClient *http.Client
	logger     obs.Logger
}

// New constructs a registry Client.
func New(baseURL, username, password string, timeout time.Duration, logger obs.Logger) *Client {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		username:   username,
		password:   password,
		timeout:    timeout,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

type pathsListResponse struct {
	Items []pathEntry `json:"items"`
}

type pathEntry struct {
	Name     string   `json:"name"`
	Ready    bool     `json:"ready"`
	Readers  []any    `json:"readers"`
	Tracks   []string `json:"tracks"`
}

// GetPath implements spec §4.7's get_path(name): returns the path's
// current state, or an empty, not-ready Path if the server reports it
// absent. A 404 from the server is not an error here; any other
// failure or timeout is returned wrapped in perr.ErrRegistryUnavailable.
func (c *Client) GetPath(ctx context.Context, name string) (Path, error) {
	entry, err := c.fetchPath(ctx, name)
	if err != nil {
		if isNotFound(err) {
			return Path{Name: name}, nil
		}
		return Path{}, fmt.Errorf("%w: get path %q: %v", perr.ErrRegistryUnavailable, name, err)
	}
	return Path{
		Name:       entry.Name,
		Ready:      entry.Ready,
		HasReaders: len(entry.Readers) > 0,
		Tracks:     entry.Tracks,
	}, nil
}

// ListPaths implements spec §4.7's list_paths().
func (c *Client) ListPaths(ctx context.Context) ([]Path, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var resp pathsListResponse
	if err := c.get(ctx, "/v3/paths/list", &resp); err != nil {
		return nil, fmt.Errorf("%w: list paths: %v", perr.ErrRegistryUnavailable, err)
	}

	paths := make([]Path, 0, len(resp.Items))
	for _, e := range resp.Items {
		paths = append(paths, Path{Name: e.Name, Ready: e.Ready, HasReaders: len(e.Readers) > 0, Tracks: e.Tracks})
	}
	return paths, nil
}

// EnsurePath implements spec §4.7's ensure_path(name, kind): idempotently
// provisions a dynamic path of the given kind if the server supports
// on-demand configuration. relayURL is required when kind is KindRelay.
func (c *Client) EnsurePath(ctx context.Context, name string, kind Kind, relayURL string) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body := map[string]any{"name": name}
	switch kind {
	case KindPublisher:
		body["source"] = "publisher"
	case KindRelay:
		if relayURL == "" {
			return fmt.Errorf("%w: relay path %q requires a source URL", perr.ErrConfigInvalid, name)
		}
		body["source"] = relayURL
	}

	if err := c.post(ctx, "/v3/config/paths/add/"+name, body); err != nil {
		if isConflict(err) {
			return nil // already exists; ensure is idempotent
		}
		return fmt.Errorf("%w: ensure path %q: %v", perr.ErrRegistryUnavailable, name, err)
	}
	return nil
}

func (c *Client) fetchPath(ctx context.Context, name string) (pathEntry, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var entry pathEntry
	if err := c.get(ctx, "/v3/paths/get/"+name, &entry); err != nil {
		return pathEntry{}, err
	}
	return entry, nil
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	c.authenticate(req)
	return c.do(req, out)
}

func (c *Client) post(ctx context.Context, path string, body map[string]any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, strings.NewReader(string(data)))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	c.authenticate(req)
	return c.do(req, nil)
}

func (c *Client) authenticate(req *http.Request) {
	if c.username != "" {
		req.SetBasicAuth(c.username, c.password)
	}
}

type statusError struct {
	code int
}

func (e *statusError) Error() string { return fmt.Sprintf("http status %d", e.code) }

func isNotFound(err error) bool {
	se, ok := err.(*statusError)
	return ok && se.code == http.StatusNotFound
}

func isConflict(err error) bool {
	se, ok := err.(*statusError)
	return ok && se.code == http.StatusBadRequest
}

func (c *Client) do(req *http.Request, out any) error {
	if c.logger != nil {
		c.logger.WithFields(obs.Fields{"url": req.URL.String(), "method": req.Method}).Debug("calling stream registry")
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return &statusError{code: resp.StatusCode}
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
