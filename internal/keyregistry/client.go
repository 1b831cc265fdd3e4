package keyregistry

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

	"github.com/cenkalti/backoff/v4"
	"github.com/dropDatabas3/proctoken/internal/metrics"
	"github.com/dropDatabas3/proctoken/internal/observability/logger"
	"go.uber.org/zap"
)

const (
	defaultTimeout      = 10 * time.Second
	defaultRetryBackoff = time.Second
	maxBodyBytes        = 1 << 20
)

var errServerRetry = errors.New("registry_server_error")

// LocalStore recibe el material publicado en modo desarrollo (sin red).
type LocalStore interface {
	Store(kid string, material []byte)
}

// TokenSource devuelve el bearer para el registry. La adquisición OAuth vive afuera.
type TokenSource func(ctx context.Context) (string, error)

// Config del cliente.
type Config struct {
	BaseURL    string
	HTTPClient *http.Client
	Timeout    time.Duration
	// DevMode evita la red: Publish escribe directo en el LocalStore.
	DevMode bool
	// RetryBackoff espera fija antes del único reintento ante 5xx (default 1s).
	RetryBackoff time.Duration
	TokenSource  TokenSource
}

// Client habla con el key registry (PUT/GET /keys/{kid}).
type Client struct {
	baseURL      string
	http         *http.Client
	devMode      bool
	retryBackoff time.Duration
	tokenSource  TokenSource
	local        LocalStore
	log          *zap.Logger
}

func New(cfg Config) *Client {
	hc := cfg.HTTPClient
	if hc == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		hc = &http.Client{Timeout: timeout}
	}
	rb := cfg.RetryBackoff
	if rb <= 0 {
		rb = defaultRetryBackoff
	}
	return &Client{
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		http:         hc,
		devMode:      cfg.DevMode,
		retryBackoff: rb,
		tokenSource:  cfg.TokenSource,
		log:          logger.Named("keyregistry"),
	}
}

// UseLocalStore conecta el destino del modo desarrollo (normalmente el JWKCache).
func (c *Client) UseLocalStore(s LocalStore) {
	c.local = s
}

// DevMode indica si el cliente opera sin red.
func (c *Client) DevMode() bool { return c.devMode }

// Publish sube el material público de kid. Un intento; los reintentos son del caller.
func (c *Client) Publish(ctx context.Context, kid string, material []byte) PublishResult {
	log := c.log.With(logger.Op("Publish"), logger.KeyID(kid))

	if c.devMode {
		if c.local == nil {
			return PublishResult{StatusCode: http.StatusInternalServerError, Body: "dev mode without local store"}
		}
		c.local.Store(kid, material)
		log.Debug("dev mode publish stored locally")
		metrics.RecordRegistryRequest("publish", http.StatusOK)
		return PublishResult{StatusCode: http.StatusOK, Body: "stored locally"}
	}

	status, body, err := c.do(ctx, http.MethodPut, kid, material)
	if err != nil {
		log.Warn("publish transport error", logger.Err(err))
		metrics.RecordRegistryRequest("publish", 0)
		return PublishResult{StatusCode: StatusTransportError, Body: err.Error(), TransportErr: err}
	}
	metrics.RecordRegistryRequest("publish", status)
	if !IsSuccess(status) {
		log.Warn("publish rejected by registry", logger.Status(status), logger.String("body", body))
	}
	return PublishResult{StatusCode: status, Body: body}
}

// Fetch lee el material público de kid.
// 4xx: se clasifica y no se reintenta. 5xx: un reintento con backoff fijo.
// Cualquier falla que no venga del registry => FailureUnavailable con status 0.
func (c *Client) Fetch(ctx context.Context, kid string) LookupResult {
	log := c.log.With(logger.Op("Fetch"), logger.KeyID(kid))

	if c.devMode {
		// En dev todo lo publicado ya vive en la cache local.
		return LookupResult{StatusCode: http.StatusNotFound, Failure: FailureNotFound, Message: lookupMessage(FailureNotFound, kid, http.StatusNotFound, "")}
	}

	var res LookupResult
	attempt := 0
	op := func() error {
		attempt++
		res = c.fetchOnce(ctx, kid)
		if res.Failure == FailureServerError {
			log.Warn("registry server error", logger.Status(res.StatusCode), logger.Int("attempt", attempt))
			return errServerRetry
		}
		return nil
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewConstantBackOff(c.retryBackoff), 1), ctx)
	if err := backoff.Retry(op, policy); err != nil && res.Failure == FailureServerError {
		res.Message = lookupMessage(FailureServerError, kid, res.StatusCode, res.Message)
	}
	return res
}

func (c *Client) fetchOnce(ctx context.Context, kid string) LookupResult {
	status, body, err := c.do(ctx, http.MethodGet, kid, nil)
	if err != nil {
		metrics.RecordRegistryRequest("fetch", 0)
		c.log.Debug("fetch transport error", logger.KeyID(kid), logger.Err(err))
		return LookupResult{Failure: FailureUnavailable, Message: lookupMessage(FailureUnavailable, kid, 0, "")}
	}
	metrics.RecordRegistryRequest("fetch", status)
	if IsSuccess(status) {
		if strings.TrimSpace(body) == "" {
			return LookupResult{Failure: FailureUnavailable, Message: lookupMessage(FailureUnavailable, kid, 0, "")}
		}
		return LookupResult{Material: []byte(body), StatusCode: status}
	}
	f := classify(status)
	if f == FailureServerError {
		// el mensaje final se arma recién cuando se agotó el reintento
		return LookupResult{StatusCode: status, Failure: f, Message: body}
	}
	if f == FailureUnavailable {
		return LookupResult{Failure: f, Message: lookupMessage(f, kid, 0, "")}
	}
	return LookupResult{StatusCode: status, Failure: f, Message: lookupMessage(f, kid, status, body)}
}

func (c *Client) do(ctx context.Context, method, kid string, payload []byte) (int, string, error) {
	if c.baseURL == "" {
		return 0, "", errors.New("key registry base url not configured")
	}
	endpoint := c.baseURL + "/keys/" + url.PathEscape(kid)

	var rd io.Reader
	if payload != nil {
		rd = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, rd)
	if err != nil {
		return 0, "", err
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Content-Length", strconv.Itoa(len(payload)))
	}
	if c.tokenSource != nil {
		tok, err := c.tokenSource(ctx)
		if err != nil {
			return 0, "", fmt.Errorf("registry bearer: %w", err)
		}
		if tok != "" {
			req.Header.Set("Authorization", "Bearer "+tok)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, "", err
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return 0, "", fmt.Errorf("read registry response: %w", err)
	}
	return resp.StatusCode, string(b), nil
}
