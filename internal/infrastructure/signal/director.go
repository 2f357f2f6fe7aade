package signal

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

	"rtsview/internal/core/domain"
	"rtsview/pkg/circuitbreaker"
	"rtsview/pkg/retry"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

// DefaultDirectorURL is the public subscribe endpoint.
const DefaultDirectorURL = "https://director.millicast.com/api/director/subscribe"

var ErrTokenExpired = errors.New("director token expired")

// DirectorError is a director rejection with its HTTP status.
type DirectorError struct {
	Status  int
	Message string
}

func (e *DirectorError) Error() string {
	return fmt.Sprintf("director returned %d: %s", e.Status, e.Message)
}

type ICEServer struct {
	URLs       []string `json:"urls"`
	Username   string   `json:"username,omitempty"`
	Credential string   `json:"credential,omitempty"`
}

// Connection is what the director hands out for one viewer session.
type Connection struct {
	URLs       []string    `json:"urls"`
	JWT        string      `json:"jwt"`
	ICEServers []ICEServer `json:"iceServers"`
	ExpiresAt  time.Time   `json:"-"`
}

// WebSocketURL is the first signaling URL with the session token attached.
func (c Connection) WebSocketURL() (string, error) {
	if len(c.URLs) == 0 {
		return "", errors.New("director response has no signaling url")
	}
	u, err := url.Parse(c.URLs[0])
	if err != nil {
		return "", fmt.Errorf("invalid signaling url: %w", err)
	}
	q := u.Query()
	q.Set("token", c.JWT)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

type directorRequest struct {
	StreamAccountID       string `json:"streamAccountId"`
	StreamName            string `json:"streamName"`
	UnauthorizedSubscribe bool   `json:"unauthorizedSubscribe"`
}

type directorResponse struct {
	Status string     `json:"status"`
	Data   Connection `json:"data"`
}

type directorErrorResponse struct {
	Data struct {
		Message string `json:"message"`
	} `json:"data"`
}

type DirectorClient struct {
	httpClient *http.Client
	retry      retry.Config
	breaker    *circuitbreaker.CircuitBreaker
	logger     *zap.SugaredLogger
}

type DirectorOption func(*DirectorClient)

// WithCircuitBreaker fails lookups fast while the director keeps failing.
// Rejections of the request itself do not count as failures.
func WithCircuitBreaker(cfg circuitbreaker.Config) DirectorOption {
	return func(d *DirectorClient) {
		cfg.IsFailure = IsDirectorFailure
		d.breaker = circuitbreaker.New(cfg)
		d.breaker.OnStateChange(func(from, to circuitbreaker.State) {
			d.logger.Warnw("director circuit breaker state changed", "from", from.String(), "to", to.String())
		})
	}
}

func NewDirectorClient(httpClient *http.Client, cfg retry.Config, logger *zap.SugaredLogger, opts ...DirectorOption) *DirectorClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	d := &DirectorClient{httpClient: httpClient, retry: cfg, logger: logger}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Lookup asks the director where to subscribe. Client errors are not retried.
func (d *DirectorClient) Lookup(ctx context.Context, creds domain.Credentials) (Connection, error) {
	lookup := func(ctx context.Context) (Connection, error) {
		return retry.RetryWithResult(ctx, d.retry, func() (Connection, error) {
			return d.lookup(ctx, creds)
		})
	}

	var (
		conn Connection
		err  error
	)
	if d.breaker != nil {
		conn, err = circuitbreaker.Do(ctx, d.breaker, lookup)
	} else {
		conn, err = lookup(ctx)
	}
	if err != nil {
		return Connection{}, err
	}

	expiresAt, err := tokenExpiry(conn.JWT)
	if err != nil {
		return Connection{}, err
	}
	if !expiresAt.IsZero() {
		if time.Now().After(expiresAt) {
			return Connection{}, ErrTokenExpired
		}
		d.logger.Debugw("director token issued", "stream_name", creds.StreamName, "expires_at", expiresAt)
	}
	conn.ExpiresAt = expiresAt
	return conn, nil
}

func (d *DirectorClient) lookup(ctx context.Context, creds domain.Credentials) (Connection, error) {
	body, err := json.Marshal(directorRequest{
		StreamAccountID:       creds.AccountID,
		StreamName:            creds.StreamName,
		UnauthorizedSubscribe: creds.Token == "",
	})
	if err != nil {
		return Connection{}, retry.Permanent(err)
	}

	apiURL := creds.APIURL
	if apiURL == "" {
		apiURL = DefaultDirectorURL
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL, bytes.NewReader(body))
	if err != nil {
		return Connection{}, retry.Permanent(fmt.Errorf("invalid director url: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	if creds.Token != "" {
		req.Header.Set("Authorization", "Bearer "+creds.Token)
	}

	resp, err := d.httpClient.Do(req)
	if err != nil {
		d.logger.Debugw("director request failed", "error", err)
		return Connection{}, fmt.Errorf("director request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Connection{}, fmt.Errorf("failed to read director response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var body directorErrorResponse
		msg := http.StatusText(resp.StatusCode)
		if json.Unmarshal(raw, &body) == nil && body.Data.Message != "" {
			msg = body.Data.Message
		}
		derr := &DirectorError{Status: resp.StatusCode, Message: msg}
		if resp.StatusCode < http.StatusInternalServerError {
			return Connection{}, retry.Permanent(derr)
		}
		return Connection{}, derr
	}

	var out directorResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return Connection{}, retry.Permanent(fmt.Errorf("invalid director response: %w", err))
	}
	return out.Data, nil
}

// tokenExpiry reads the exp claim without verifying the signature; the
// signaling server does the verification.
func tokenExpiry(token string) (time.Time, error) {
	if token == "" {
		return time.Time{}, errors.New("director response has no token")
	}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, fmt.Errorf("invalid director token: %w", err)
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, nil
	}
	return exp.Time, nil
}

// IsDirectorFailure reports whether err points at the director itself rather
// than at the request, e.g. a 5xx or a network error.
func IsDirectorFailure(err error) bool {
	status := StatusOf(err)
	return status == 0 || status >= http.StatusInternalServerError
}

// StatusOf extracts the HTTP status of a director rejection, or 0.
func StatusOf(err error) int {
	var derr *DirectorError
	if errors.As(err, &derr) {
		return derr.Status
	}
	return 0
}
