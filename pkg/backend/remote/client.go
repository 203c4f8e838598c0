// Package remote implements the network-backed namespace adapter. Each
// adapter operation maps to exactly one HTTP call; failures come back as
// *backend.Error and are never retried here.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fruitsalade/explorer/pkg/backend"
	"github.com/fruitsalade/explorer/pkg/models"
	"github.com/fruitsalade/explorer/pkg/pathkey"
	"github.com/fruitsalade/explorer/pkg/protocol"
)

// Client is the remote service adapter.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
	now        func() time.Time
	timeout    time.Duration

	mu        sync.RWMutex
	online    bool
	authToken string
}

// Config holds client configuration.
type Config struct {
	BaseURL   string
	Timeout   time.Duration // per request, not applied to downloads or uploads
	AuthToken string
	Logger    *zap.Logger
}

// New creates a new remote adapter.
func New(cfg Config) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	return &Client{
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		httpClient: &http.Client{
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout:   10 * time.Second,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				MaxIdleConns:        100,
				IdleConnTimeout:     90 * time.Second,
				TLSHandshakeTimeout: 10 * time.Second,
			},
		},
		logger:    cfg.Logger,
		now:       time.Now,
		online:    true,
		authToken: cfg.AuthToken,
		timeout:   cfg.Timeout,
	}
}

var _ backend.Adapter = (*Client)(nil)

// Mode implements backend.Adapter.
func (c *Client) Mode() string { return backend.ModeRemote }

// SetAuthToken sets the bearer token for requests.
func (c *Client) SetAuthToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.authToken = token
}

func (c *Client) token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.authToken
}

// applyAuth adds the auth header to a request if a token is set.
func (c *Client) applyAuth(req *http.Request) {
	if t := c.token(); t != "" {
		req.Header.Set("Authorization", "Bearer "+t)
	}
}

// IsOnline reports whether the last request reached the server.
func (c *Client) IsOnline() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.online
}

func (c *Client) setOnline(online bool) {
	c.mu.Lock()
	changed := c.online != online
	c.online = online
	c.mu.Unlock()

	if changed {
		if online {
			c.logger.Info("Server is back online", zap.String("url", c.baseURL))
		} else {
			c.logger.Error("Server is offline", zap.String("url", c.baseURL))
		}
	}
}

// Ping checks if the server is reachable.
func (c *Client) Ping(ctx context.Context) error {
	var health protocol.HealthResponse
	return c.doJSON(ctx, backend.KindLoad, "/health", http.MethodGet, "/health", nil, nil, &health)
}

// List implements backend.Adapter.
func (c *Client) List(ctx context.Context, path string) (models.Snapshot, error) {
	p := pathkey.Normalize(path)
	var resp protocol.ListResponse
	q := url.Values{protocol.ParamPath: {p}}
	if err := c.doJSON(ctx, backend.KindList, p, http.MethodGet, "/fs", q, nil, &resp); err != nil {
		return nil, err
	}

	out := make(models.Snapshot, len(resp))
	for key, entry := range resp {
		out[pathkey.Normalize(key)] = entry.Clone()
	}
	if _, ok := out[p]; !ok {
		return nil, backend.Fail(backend.KindList, p, fmt.Errorf("response has no entry for %s", p))
	}
	return out, nil
}

// GetContent implements backend.Adapter.
func (c *Client) GetContent(ctx context.Context, path, name string) (string, error) {
	fp := pathkey.FilePath(path, name)
	var resp protocol.ContentResponse
	q := url.Values{protocol.ParamPath: {fp}}
	if err := c.doJSON(ctx, backend.KindContent, fp, http.MethodGet, "/fs/file", q, nil, &resp); err != nil {
		return "", err
	}
	return resp.Content, nil
}

// Save implements backend.Adapter.
func (c *Client) Save(ctx context.Context, path, name, content string) (models.FileRecord, error) {
	fp := pathkey.FilePath(path, name)
	var ack protocol.AckResponse
	body := protocol.SaveRequest{Path: fp, Content: content}
	if err := c.doJSON(ctx, backend.KindSave, fp, http.MethodPut, "/fs/file", nil, body, &ack); err != nil {
		return models.FileRecord{}, err
	}
	return c.record(ack, name, int64(len(content))).WithContent(content), nil
}

// Delete implements backend.Adapter.
func (c *Client) Delete(ctx context.Context, path, name string, isFolder bool) error {
	fp := pathkey.FilePath(path, name)
	body := protocol.DeleteRequest{Path: fp, IsFolder: isFolder}
	return c.doJSON(ctx, backend.KindDelete, fp, http.MethodDelete, "/fs", nil, body, nil)
}

// CreateFolder implements backend.Adapter.
func (c *Client) CreateFolder(ctx context.Context, path, name string) error {
	p := pathkey.Normalize(path)
	body := protocol.FolderRequest{Path: p, FolderName: name}
	return c.doJSON(ctx, backend.KindCreate, pathkey.Join(p, name), http.MethodPost, "/fs/folder", nil, body, nil)
}

// Download implements backend.Adapter. The caller closes the body.
func (c *Client) Download(ctx context.Context, path, name string) (io.ReadCloser, error) {
	fp := pathkey.FilePath(path, name)
	req, err := c.newRequest(ctx, http.MethodGet, "/fs/download", url.Values{protocol.ParamPath: {fp}}, nil)
	if err != nil {
		return nil, backend.Fail(backend.KindDownload, fp, err)
	}
	resp, err := c.send(req, backend.KindDownload, fp)
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

// Login exchanges credentials for a bearer token and starts using it.
func (c *Client) Login(ctx context.Context, username, password string) (protocol.LoginResponse, error) {
	var resp protocol.LoginResponse
	body := protocol.LoginRequest{Username: username, Password: password}
	if err := c.doJSON(ctx, backend.KindLoad, "/auth/token", http.MethodPost, "/auth/token", nil, body, &resp); err != nil {
		return resp, err
	}
	c.SetAuthToken(resp.Token)
	return resp, nil
}

func (c *Client) record(ack protocol.AckResponse, name string, size int64) models.FileRecord {
	if ack.File != nil {
		return ack.File.WithoutContent()
	}
	return models.FileRecord{
		Name:         name,
		Type:         models.TypeFor(name),
		Size:         models.DisplaySize(size),
		LastModified: models.Today(c.now()),
	}
}

// doJSON performs one bounded request: in is JSON-encoded as the body when
// non-nil, out is decoded from a 2xx response when non-nil.
func (c *Client) doJSON(ctx context.Context, kind backend.Kind, path, method, endpoint string, q url.Values, in, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return backend.Fail(kind, path, fmt.Errorf("encode request: %w", err))
		}
		body = bytes.NewReader(b)
	}

	req, err := c.newRequest(ctx, method, endpoint, q, body)
	if err != nil {
		return backend.Fail(kind, path, err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.send(req, kind, path)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return backend.Fail(kind, path, fmt.Errorf("decode response: %w", err))
	}
	return nil
}

func (c *Client) newRequest(ctx context.Context, method, endpoint string, q url.Values, body io.Reader) (*http.Request, error) {
	u := c.baseURL + endpoint
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	c.applyAuth(req)
	return req, nil
}

// send executes req and converts transport failures and non-2xx statuses
// into *backend.Error. On success the caller owns resp.Body.
func (c *Client) send(req *http.Request, kind backend.Kind, path string) (*http.Response, error) {
	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctxErr := req.Context().Err(); ctxErr != nil {
			return nil, backend.Fail(kind, path, ctxErr)
		}
		c.setOnline(false)
		return nil, &backend.Error{Kind: kind, Path: path, Retryable: true, Err: err}
	}
	c.setOnline(true)

	c.logger.Debug("Request completed",
		zap.String("method", req.Method),
		zap.String("url", req.URL.Path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(start)))

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}
	defer resp.Body.Close()

	var apiErr protocol.ErrorResponse
	msg := ""
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&apiErr); err == nil {
		msg = apiErr.Error
	}
	return nil, backend.FromStatus(kind, path, resp.StatusCode, msg)
}
