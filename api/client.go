// Package api is the transport to the remote dashboard backend.
package api

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"finchat/lib"
	"finchat/model"
	"finchat/store"
)

const maxResponseBytes = 1 << 20

type Config struct {
	BaseURL string
	Timeout time.Duration
	// RequestInterval is the minimum gap between any two requests. Requests
	// arriving sooner wait for their slot. Zero disables the gate.
	RequestInterval time.Duration
	// Production refuses plain http base URLs.
	Production bool
}

// Client wraps net/http with the request and response interceptors every
// backend call goes through.
type Client struct {
	baseURL        *url.URL
	http           *http.Client
	timeout        time.Duration
	storage        store.LocalStorage
	limiter        *rate.Limiter
	logger         logrus.FieldLogger
	now            func() time.Time
	onUnauthorized func()
}

func NewClient(cfg Config, storage store.LocalStorage, logger logrus.FieldLogger) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid api url %q", cfg.BaseURL)
	}
	if cfg.Production && base.Scheme != "https" {
		return nil, errors.New("HTTPS required in production")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	limit := rate.Inf
	if cfg.RequestInterval > 0 {
		limit = rate.Every(cfg.RequestInterval)
	}

	c := &Client{
		baseURL: base,
		http:    &http.Client{},
		timeout: timeout,
		storage: storage,
		limiter: rate.NewLimiter(limit, 1),
		logger:  logger,
		now:     time.Now,
	}
	if _, ok := storage.GetItem(model.KeyCSRFToken); !ok {
		if err := c.rotateCSRFToken(); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// OnUnauthorized registers a callback run after stored credentials were dropped.
func (c *Client) OnUnauthorized(fn func()) {
	c.onUnauthorized = fn
}

func (c *Client) rotateCSRFToken() error {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Errorf("failed to generate csrf token: %w", err)
	}
	return c.storage.SetItem(model.KeyCSRFToken, hex.EncodeToString(buf))
}

func (c *Client) clearCredentials() {
	if err := c.storage.RemoveItem(model.KeyToken, model.KeyUserID); err != nil {
		c.logger.Warnf("failed to clear credentials, %s", err)
	}
	if c.onUnauthorized != nil {
		c.onUnauthorized()
	}
}

// Do sends one request. body and out may be nil. op names the call in logs and errors.
func (c *Client) Do(ctx context.Context, op, method string, path []string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	// pace requests client wide; the wait counts against the call timeout
	if err := c.limiter.Wait(ctx); err != nil {
		return &model.NetworkError{Op: op, Err: fmt.Errorf("waiting for request slot: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL.JoinPath(path...).String(), reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	if csrf, ok := c.storage.GetItem(model.KeyCSRFToken); ok {
		req.Header.Set("X-CSRF-Token", csrf)
	}
	if token, ok := c.storage.GetItem(model.KeyToken); ok && token != "" {
		if _, err := lib.InspectToken(token, c.now()); err != nil {
			c.clearCredentials()
			return fmt.Errorf("%s: %w: %v", op, model.ErrLoginRequired, err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Warnf("[%s] %s %s no response, %s", op, method, req.URL.Path, err)
		return &model.NetworkError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return &model.NetworkError{Op: op, Err: fmt.Errorf("failed to read response body: %w", err)}
	}

	c.logger.WithFields(logrus.Fields{
		"status":  resp.StatusCode,
		"latency": time.Since(start),
	}).Infof("[%s] %s %s", op, method, req.URL.Path)

	if csrf := resp.Header.Get("X-CSRF-Token"); csrf != "" {
		if err := c.storage.SetItem(model.KeyCSRFToken, csrf); err != nil {
			c.logger.Warnf("[%s] failed to store csrf token, %s", op, err)
		}
	}

	if resp.StatusCode == http.StatusUnauthorized {
		c.clearCredentials()
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &model.ServerError{Op: op, Status: resp.StatusCode, Body: string(data)}
	}

	if out == nil {
		return nil
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return &model.ServerError{Op: op, Status: http.StatusBadGateway, Body: "invalid response"}
	}
	if err := json.Unmarshal(data, out); err != nil {
		return &model.ServerError{Op: op, Status: http.StatusBadGateway, Body: "failed to unmarshal JSON: " + err.Error()}
	}
	return nil
}
