package cloud

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/nerrad567/g32-bridge/internal/bridges/g32"
	"github.com/nerrad567/g32-bridge/internal/device"
)

const (
	// DefaultBaseURL is the account API.
	DefaultBaseURL = "https://mobile-api.ottowildeapp.com"

	// DefaultTimeout bounds one HTTP request.
	DefaultTimeout = 30 * time.Second

	loginPath  = "/login"
	grillsPath = "/v2/grills"

	// tokenExpirySkew logs in again this long before the token expires.
	tokenExpirySkew = time.Minute

	maxResponseSize = 1 << 20
)

// Logger is the logging interface used by the client.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Recorder counts account API calls. *g32.Manager implements it.
type Recorder interface {
	RecordAPICall(c g32.Counter) error
}

// Config configures the account API client.
type Config struct {
	BaseURL  string
	Email    string
	Password string
	Timeout  time.Duration
}

// Client talks to the account API. Safe for concurrent use.
type Client struct {
	cfg        Config
	httpClient *http.Client
	now        func() time.Time

	mu      sync.Mutex
	token   string
	expires time.Time // zero when the token carries no exp claim

	recMu    sync.Mutex
	recorder Recorder
	pending  []g32.Counter

	debug    *g32.DebugLog
	logger   Logger
	loggerMu sync.RWMutex
}

// NewClient creates a client. Empty BaseURL and Timeout take defaults.
func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		now:        time.Now,
	}
}

// SetLogger sets the logger. Nil disables logging.
func (c *Client) SetLogger(logger Logger) {
	c.loggerMu.Lock()
	c.logger = logger
	c.loggerMu.Unlock()
}

// SetDebugLog routes request summaries into the bridge debug log.
// Call before the first request.
func (c *Client) SetDebugLog(d *g32.DebugLog) {
	c.debug = d
}

// SetRecorder attaches the call counter and replays any calls made
// before it was attached.
func (c *Client) SetRecorder(r Recorder) {
	c.recMu.Lock()
	defer c.recMu.Unlock()

	c.recorder = r
	if r == nil {
		return
	}
	for _, counter := range c.pending {
		if err := r.RecordAPICall(counter); err != nil {
			c.logWarn("recording api call failed", "counter", counter, "error", err)
		}
	}
	c.pending = nil
}

// Discover logs in and returns the account's grills.
//
// On authentication failure it returns ErrAuthFailed and no grills.
func (c *Client) Discover(ctx context.Context) ([]device.Grill, error) {
	if err := c.Login(ctx); err != nil {
		return nil, err
	}
	return c.Grills(ctx)
}

// Login exchanges the account credentials for an access token.
//
// Returns:
//   - error: ErrAuthFailed for rejected credentials or a missing token,
//     ErrRequestFailed for transport or server errors
func (c *Client) Login(ctx context.Context) error {
	body, err := json.Marshal(loginRequest{Email: c.cfg.Email, Password: c.cfg.Password})
	if err != nil {
		return fmt.Errorf("encoding login request: %w", err)
	}

	c.record(g32.CounterLoginCalls)
	status, data, err := c.do(ctx, http.MethodPost, loginPath, "", body)
	if err != nil {
		c.debugf("API login failed: %v", err)
		return err
	}
	c.debugf("API login: HTTP %d", status)

	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return fmt.Errorf("%w: HTTP %d", ErrAuthFailed, status)
	case status < 200 || status > 299:
		return fmt.Errorf("%w: login HTTP %d", ErrRequestFailed, status)
	}

	var resp loginResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return fmt.Errorf("%w: login: %w", ErrInvalidResponse, err)
	}
	token := resp.token()
	if token == "" {
		return fmt.Errorf("%w: no access token in response", ErrAuthFailed)
	}

	expires := tokenExpiry(token)

	c.mu.Lock()
	c.token = token
	c.expires = expires
	c.mu.Unlock()

	c.logInfo("logged in to account API", "email", c.cfg.Email, "expires", expires)
	return nil
}

// Grills fetches the grill list, logging in first when the token is
// missing or about to expire. A 401 triggers one fresh login and retry.
//
// Records that fail validation are skipped with a warning.
func (c *Client) Grills(ctx context.Context) ([]device.Grill, error) {
	token, err := c.validToken(ctx)
	if err != nil {
		return nil, err
	}

	status, data, err := c.getGrills(ctx, token)
	if err != nil {
		return nil, err
	}
	if status == http.StatusUnauthorized {
		c.clearToken()
		if token, err = c.validToken(ctx); err != nil {
			return nil, err
		}
		if status, data, err = c.getGrills(ctx, token); err != nil {
			return nil, err
		}
	}

	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return nil, fmt.Errorf("%w: grills HTTP %d", ErrAuthFailed, status)
	case status < 200 || status > 299:
		return nil, fmt.Errorf("%w: grills HTTP %d", ErrRequestFailed, status)
	}

	records, err := decodeGrills(data)
	if err != nil {
		return nil, err
	}

	grills := make([]device.Grill, 0, len(records))
	for _, g := range records {
		if err := g.Validate(); err != nil {
			c.logWarn("skipping grill from account API", "error", err)
			continue
		}
		grills = append(grills, g)
	}

	c.debugf("API grills: %d grill(s)", len(grills))
	return grills, nil
}

func (c *Client) getGrills(ctx context.Context, token string) (int, []byte, error) {
	c.record(g32.CounterGrillsCalls)
	status, data, err := c.do(ctx, http.MethodGet, grillsPath, token, nil)
	if err != nil {
		c.debugf("API grills failed: %v", err)
		return 0, nil, err
	}
	c.debugf("API grills: HTTP %d", status)
	return status, data, nil
}

// validToken returns the cached token, logging in when there is none or
// it expires within tokenExpirySkew.
func (c *Client) validToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	token, expires := c.token, c.expires
	c.mu.Unlock()

	if token != "" && (expires.IsZero() || c.now().Add(tokenExpirySkew).Before(expires)) {
		return token, nil
	}
	if err := c.Login(ctx); err != nil {
		return "", err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token, nil
}

func (c *Client) clearToken() {
	c.mu.Lock()
	c.token = ""
	c.expires = time.Time{}
	c.mu.Unlock()
}

// do performs one request and returns the status and body.
func (c *Client) do(ctx context.Context, method, path, token string, body []byte) (int, []byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, reader)
	if err != nil {
		return 0, nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("%w: %s %s: %w", ErrRequestFailed, method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return 0, nil, fmt.Errorf("%w: reading %s response: %w", ErrRequestFailed, path, err)
	}
	return resp.StatusCode, data, nil
}

func (c *Client) record(counter g32.Counter) {
	c.recMu.Lock()
	defer c.recMu.Unlock()

	if c.recorder == nil {
		c.pending = append(c.pending, counter)
		return
	}
	if err := c.recorder.RecordAPICall(counter); err != nil {
		c.logWarn("recording api call failed", "counter", counter, "error", err)
	}
}

func (c *Client) debugf(format string, args ...any) {
	if c.debug != nil {
		c.debug.Addf(format, args...)
	}
}

// tokenExpiry reads the exp claim without verifying the signature.
// Opaque or malformed tokens yield the zero time.
func tokenExpiry(token string) time.Time {
	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return time.Time{}
	}
	if claims.ExpiresAt == nil {
		return time.Time{}
	}
	return claims.ExpiresAt.Time
}

func (c *Client) getLogger() Logger {
	c.loggerMu.RLock()
	defer c.loggerMu.RUnlock()
	return c.logger
}

func (c *Client) logInfo(msg string, keysAndValues ...any) {
	if l := c.getLogger(); l != nil {
		l.Info(msg, keysAndValues...)
	}
}

func (c *Client) logWarn(msg string, keysAndValues ...any) {
	if l := c.getLogger(); l != nil {
		l.Warn(msg, keysAndValues...)
	}
}
