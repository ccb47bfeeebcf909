package backpack

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/uhyunpark/tradedriver/params"
	"github.com/uhyunpark/tradedriver/pkg/core"
	"github.com/uhyunpark/tradedriver/pkg/crypto"
	"github.com/uhyunpark/tradedriver/pkg/util"
)

// errEmptyBody marks a 2xx response without content
var errEmptyBody = errors.New("empty response body")

// Client is the signed REST transport. Every failure it returns is a *core.Error.
type Client struct {
	baseURL string
	http    *http.Client
	signer  *crypto.InstructionSigner
	window  time.Duration
	limiter *rate.Limiter
	clock   util.Clock
	log     *zap.SugaredLogger
}

type ClientOption func(*Client)

func WithHTTPClient(h *http.Client) ClientOption { return func(c *Client) { c.http = h } }

func WithClock(clk util.Clock) ClientOption { return func(c *Client) { c.clock = clk } }

func WithLogger(l *zap.SugaredLogger) ClientOption { return func(c *Client) { c.log = l } }

// NewClient builds a client from the venue config. The signer may be nil for public-only use.
func NewClient(cfg params.Backpack, signer *crypto.InstructionSigner, opts ...ClientOption) (*Client, error) {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if cfg.Proxy != "" {
		proxyURL, err := url.Parse(cfg.Proxy)
		if err != nil {
			return nil, fmt.Errorf("invalid BP_PROXY %q: %w", cfg.Proxy, err)
		}
		transport.Proxy = http.ProxyURL(proxyURL)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}

	c := &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http:    &http.Client{Timeout: timeout, Transport: transport},
		signer:  signer,
		window:  cfg.Window,
		limiter: rate.NewLimiter(limit, burst),
		clock:   util.RealClock{},
	}
	for _, o := range opts {
		o(c)
	}
	c.log = util.OrNop(c.log)
	if c.window <= 0 {
		c.window = 10 * time.Second
	}
	return c, nil
}

// Public performs an unsigned GET
func (c *Client) Public(ctx context.Context, op, path string, query map[string]string, out any) error {
	return c.do(ctx, op, http.MethodGet, path, "", query, out)
}

// Private performs a signed request. GET params travel in the query string, others as a JSON body.
func (c *Client) Private(ctx context.Context, op, method, path, instruction string, params map[string]any, out any) error {
	if c.signer == nil {
		return core.Validationf(op, "credentials are not configured")
	}
	return c.do(ctx, op, method, path, instruction, params, out)
}

func (c *Client) do(ctx context.Context, op, method, path, instruction string, params any, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return core.Network(op, err)
	}

	var (
		query  map[string]string
		body   io.Reader
		signed map[string]string
	)
	switch p := params.(type) {
	case map[string]string:
		query = p
	case map[string]any:
		signed = SigningParams(p)
		if method == http.MethodGet {
			query = signed
		} else if len(p) > 0 {
			raw, err := json.Marshal(p)
			if err != nil {
				return core.Validationf(op, "encode request: %v", err)
			}
			body = bytes.NewReader(raw)
		}
	}

	u := c.baseURL + path
	if len(query) > 0 {
		vals := url.Values{}
		for _, k := range sortedKeys(query) {
			vals.Set(k, query[k])
		}
		u += "?" + vals.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return core.Network(op, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json; charset=utf-8")
	}
	if instruction != "" {
		ts := c.clock.Now().UnixMilli()
		window := c.window.Milliseconds()
		req.Header.Set(HeaderAPIKey, c.signer.APIKey())
		req.Header.Set(HeaderTimestamp, strconv.FormatInt(ts, 10))
		req.Header.Set(HeaderWindow, strconv.FormatInt(window, 10))
		req.Header.Set(HeaderSignature, c.signer.Sign(instruction, signed, ts, window))
	}

	start := c.clock.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Warnw("request_failed", "op", op, "method", method, "path", path, "err", err)
		return core.Network(op, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return core.Network(op, fmt.Errorf("read body: %w", err))
	}
	c.log.Debugw("request_done", "op", op, "method", method, "path", path, "status", resp.StatusCode, "elapsed", c.clock.Now().Sub(start))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode}
		if len(bytes.TrimSpace(raw)) > 0 && json.Unmarshal(raw, apiErr) != nil {
			apiErr.Message = strings.TrimSpace(string(raw))
		}
		if apiErr.NotFound() {
			return &core.Error{Kind: core.KindNotFound, Op: op, Err: apiErr}
		}
		return core.Network(op, apiErr)
	}

	if out == nil {
		return nil
	}
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return core.Network(op, errEmptyBody)
	}
	if err := json.Unmarshal(trimmed, out); err != nil {
		return core.Network(op, fmt.Errorf("malformed response: %w", err))
	}
	return nil
}
