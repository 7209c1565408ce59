package bitget

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"bitget-trading-bot/internal/logging"
)

const (
	// BaseURL is the production Bitget API URL. Bitget has no separate
	// testnet host; demo accounts use their own credential set and are
	// selected per request with the paptrading header.
	BaseURL = "https://api.bitget.com"

	defaultMaxRetries         = 5
	defaultBaseRetryDelay     = time.Second
	defaultMaxRetryDelay      = 30 * time.Second
	defaultMinRequestInterval = 500 * time.Millisecond
	defaultConnectTimeout     = 5 * time.Second
	defaultReadTimeout        = 30 * time.Second

	// retryJitter is the ±fraction applied to every backoff delay.
	retryJitter = 0.10
)

// ClientOptions tunes the REST core. Zero values fall back to defaults.
type ClientOptions struct {
	BaseURL            string
	MinRequestInterval time.Duration
	MaxRetries         int
	BaseRetryDelay     time.Duration
	MaxRetryDelay      time.Duration
	ConnectTimeout     time.Duration
	ReadTimeout        time.Duration
	JitterFactor       float64 // negative disables jitter entirely
}

// Client is the signed HTTP core shared by every REST operation. Requests
// are serialized through the token-bucket limiter; transient failures are
// retried with golden-ratio backoff.
type Client struct {
	creds      Credentials
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter

	maxRetries     int
	baseRetryDelay time.Duration
	maxRetryDelay  time.Duration
	jitterFactor   float64

	shuttingDown atomic.Bool
	logger       zerolog.Logger
}

// NewClient creates the REST core. Keys are trimmed; stray whitespace in a
// secret is the classic cause of signature mismatches.
func NewClient(creds Credentials, opts ClientOptions) *Client {
	creds.APIKey = strings.TrimSpace(creds.APIKey)
	creds.SecretKey = strings.TrimSpace(creds.SecretKey)
	creds.Passphrase = strings.TrimSpace(creds.Passphrase)
	if creds.APIVersion == "" {
		creds.APIVersion = V2
	}

	if opts.BaseURL == "" {
		opts.BaseURL = BaseURL
	}
	if opts.MinRequestInterval == 0 {
		opts.MinRequestInterval = defaultMinRequestInterval
	}
	if opts.MaxRetries == 0 {
		opts.MaxRetries = defaultMaxRetries
	}
	if opts.BaseRetryDelay == 0 {
		opts.BaseRetryDelay = defaultBaseRetryDelay
	}
	if opts.MaxRetryDelay == 0 {
		opts.MaxRetryDelay = defaultMaxRetryDelay
	}
	if opts.ConnectTimeout == 0 {
		opts.ConnectTimeout = defaultConnectTimeout
	}
	if opts.ReadTimeout == 0 {
		opts.ReadTimeout = defaultReadTimeout
	}
	jitter := retryJitter
	if opts.JitterFactor != 0 {
		jitter = opts.JitterFactor
		if jitter < 0 {
			jitter = 0
		}
	}

	transport := &http.Transport{
		DialContext:         (&net.Dialer{Timeout: opts.ConnectTimeout}).DialContext,
		TLSHandshakeTimeout: opts.ConnectTimeout,
	}

	return &Client{
		creds:   creds,
		baseURL: opts.BaseURL,
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   opts.ReadTimeout,
		},
		limiter:        rate.NewLimiter(rate.Every(opts.MinRequestInterval), 1),
		maxRetries:     opts.MaxRetries,
		baseRetryDelay: opts.BaseRetryDelay,
		maxRetryDelay:  opts.MaxRetryDelay,
		jitterFactor:   jitter,
		logger:         logging.Component("bitget"),
	}
}

// APIVersion returns the API generation this client was built for.
func (c *Client) APIVersion() APIVersion { return c.creds.APIVersion }

// SubAccount returns the configured sub-account name, if any.
func (c *Client) SubAccount() string { return c.creds.SubAccount }

// CanTrade reports whether credentials are present. Without them the client
// serves market data only.
func (c *Client) CanTrade() bool {
	return c.creds.APIKey != "" && c.creds.SecretKey != "" && c.creds.Passphrase != ""
}

// BeginShutdown flips the shutdown flag. New requests are rejected with
// ErrShutdown; in-flight work is allowed to drain.
func (c *Client) BeginShutdown() { c.shuttingDown.Store(true) }

// IsShuttingDown reports whether shutdown has begun.
func (c *Client) IsShuttingDown() bool { return c.shuttingDown.Load() }

// newBackoff builds the golden-ratio retry schedule:
// delay(n) = base · φⁿ with ±jitter, capped at maxRetryDelay.
func (c *Client) newBackoff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.baseRetryDelay
	b.Multiplier = math.Phi
	b.RandomizationFactor = c.jitterFactor
	b.MaxInterval = c.maxRetryDelay
	b.MaxElapsedTime = 0
	b.Reset()
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(c.maxRetries)), ctx)
}

// request performs one signed (or public) REST call with rate limiting and
// retry. Body must be nil for GETs. Calls are rejected with ErrShutdown once
// shutdown has begun.
func (c *Client) request(ctx context.Context, method, path string, query map[string]string, body any) (json.RawMessage, error) {
	return c.do(ctx, method, path, query, body, false)
}

// closeRequest is request without the shutdown gate. Flatten-on-exit runs
// after the shutdown flag is set, so the close-position call must still
// reach the exchange during the drain window.
func (c *Client) closeRequest(ctx context.Context, method, path string, query map[string]string, body any) (json.RawMessage, error) {
	return c.do(ctx, method, path, query, body, true)
}

func (c *Client) do(ctx context.Context, method, path string, query map[string]string, body any, allowDuringShutdown bool) (json.RawMessage, error) {
	if !allowDuringShutdown && c.shuttingDown.Load() {
		return nil, ErrShutdown
	}

	var bodyStr string
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		bodyStr = string(raw)
	}
	queryStr := canonicalQuery(query)

	var data json.RawMessage
	operation := func() error {
		if !allowDuringShutdown && c.shuttingDown.Load() {
			return backoff.Permanent(ErrShutdown)
		}
		if err := c.limiter.Wait(ctx); err != nil {
			return backoff.Permanent(err)
		}
		var err error
		data, err = c.doOnce(ctx, method, path, queryStr, bodyStr)
		return err
	}

	err := backoff.RetryNotify(operation, c.newBackoff(ctx), func(err error, next time.Duration) {
		c.logger.Warn().Err(err).Str("method", method).Str("path", path).
			Dur("retry_in", next).Msg("transient request failure, retrying")
	})
	if err != nil {
		return nil, err
	}
	return data, nil
}

// doOnce issues one HTTP round trip and classifies the outcome as
// success, retryable, or permanent.
func (c *Client) doOnce(ctx context.Context, method, path, queryStr, bodyStr string) (json.RawMessage, error) {
	fullURL := c.baseURL + path
	if queryStr != "" {
		fullURL += "?" + queryStr
	}

	var bodyReader io.Reader
	if bodyStr != "" {
		bodyReader = bytes.NewReader([]byte(bodyStr))
	}
	req, err := http.NewRequestWithContext(ctx, method, fullURL, bodyReader)
	if err != nil {
		return nil, backoff.Permanent(err)
	}
	req.Header.Set("Content-Type", "application/json")

	if c.CanTrade() {
		timestamp := strconv.FormatInt(time.Now().UnixMilli(), 10)
		message := signingMessage(timestamp, method, path, queryStr, bodyStr)
		signature := sign(c.creds.SecretKey, message)
		req.Header.Set("ACCESS-KEY", c.creds.APIKey)
		req.Header.Set("ACCESS-SIGN", signature)
		req.Header.Set("ACCESS-TIMESTAMP", timestamp)
		req.Header.Set("ACCESS-PASSPHRASE", c.creds.Passphrase)
		if c.creds.TestNet {
			req.Header.Set("paptrading", "1")
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// Transport failures are transient until proven otherwise.
		return nil, fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	raw, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", ErrNetwork, err)
	}

	var envelope apiResponse
	if err := json.Unmarshal(raw, &envelope); err != nil {
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			return nil, fmt.Errorf("%w: HTTP %d", ErrNetwork, resp.StatusCode)
		}
		return nil, backoff.Permanent(fmt.Errorf("decode response (HTTP %d): %w", resp.StatusCode, err))
	}

	if envelope.Code == codeOK {
		return json.RawMessage(envelope.Data), nil
	}

	if isRetryableCode(resp.StatusCode, envelope.Code) {
		return nil, fmt.Errorf("%w: code=%s msg=%s", ErrRateLimited, envelope.Code, envelope.Msg)
	}

	classified := classifyExchangeError(envelope.Code, envelope.Msg)
	if errors.Is(classified, ErrAuth) {
		// Surface signature mismatches distinctly; log the canonical message
		// shape without the secret so the mismatch can be diagnosed.
		c.logger.Error().
			Str("method", method).
			Str("path", path).
			Str("query", queryStr).
			Str("code", envelope.Code).
			Msg("request signing rejected by exchange")
	}
	return nil, backoff.Permanent(classified)
}
