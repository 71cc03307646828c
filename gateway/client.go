/*
Copyright 2024 Blnk Finance Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package gateway talks to the M-Pesa Daraja API: it owns the OAuth token and issues
// STK Push and STK Push status query calls.
package gateway

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/blnkfinance/stkpush/config"
)

const (
	tokenPath = "/oauth/v1/generate?grant_type=client_credentials"
	pushPath  = "/mpesa/stkpush/v1/processrequest"
	queryPath = "/mpesa/stkpushquery/v1/query"

	timestampLayout = "20060102150405"

	maxAccountReferenceLen = 12
	maxTransactionDescLen  = 13
)

// eat is the gateway's local time zone; request timestamps are validated against it.
var eat = time.FixedZone("EAT", 3*60*60)

// Config holds everything the client needs to reach and sign requests for the gateway.
type Config struct {
	BaseURL           string
	ShortCode         string
	ConsumerKey       string
	ConsumerSecret    string
	Passkey           string
	CallbackURL       string
	TransactionType   string
	PartyB            string
	AccountReference  string
	Timeout           time.Duration
	TokenSafetyMargin time.Duration
	QueryRetry        RetryPolicy
}

// ConfigFrom builds a gateway Config from the application configuration.
func ConfigFrom(cnf *config.Configuration) Config {
	m := cnf.Mpesa
	return Config{
		BaseURL:           m.BaseURL,
		ShortCode:         m.ShortCode,
		ConsumerKey:       m.ConsumerKey,
		ConsumerSecret:    m.ConsumerSecret,
		Passkey:           m.Passkey,
		CallbackURL:       m.CallbackURL,
		TransactionType:   m.TransactionType,
		PartyB:            m.PartyB,
		AccountReference:  m.AccountReference,
		Timeout:           time.Duration(m.TimeoutSeconds) * time.Second,
		TokenSafetyMargin: time.Duration(m.TokenSafetyMarginSeconds) * time.Second,
		QueryRetry: RetryPolicy{
			MaxAttempts: m.QueryMaxAttempts,
			Delay:       time.Duration(m.QueryRetryDelaySeconds) * time.Second,
		},
	}
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithClock replaces the time source used for token expiry and request timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// WithRetryPolicy overrides the status query retry policy.
func WithRetryPolicy(p RetryPolicy) Option {
	return func(c *Client) { c.cfg.QueryRetry = p }
}

// Client is safe for concurrent use.
type Client struct {
	cfg        Config
	httpClient *http.Client
	now        func() time.Time
	tracer     trace.Tracer

	mu    sync.Mutex
	token gatewayToken
}

// NewClient creates a gateway client.
func NewClient(cfg Config, opts ...Option) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.QueryRetry.MaxAttempts <= 0 {
		cfg.QueryRetry = DefaultQueryRetry
	}
	if cfg.PartyB == "" {
		cfg.PartyB = cfg.ShortCode
	}

	c := &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		now:        time.Now,
		tracer:     otel.Tracer("stkpush.gateway"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// password derives the request signature: base64(shortCode + passkey + timestamp).
func (c *Client) password() (password, timestamp string) {
	timestamp = c.now().In(eat).Format(timestampLayout)
	password = base64.StdEncoding.EncodeToString([]byte(c.cfg.ShortCode + c.cfg.Passkey + timestamp))
	return password, timestamp
}

// response is a fully read gateway reply.
type response struct {
	StatusCode int
	Body       []byte
}

func (r response) ok() bool {
	return r.StatusCode == http.StatusOK
}

func (r response) json() gjson.Result {
	return gjson.ParseBytes(r.Body)
}

// postJSON sends payload with the bearer token and reads the whole reply.
func (c *Client) postJSON(ctx context.Context, path, token string, payload interface{}) (response, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return response{}, errors.Wrap(err, "encoding payload")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, bytes.NewReader(data))
	if err != nil {
		return response{}, errors.Wrap(err, "creating request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	return c.do(req)
}

func (c *Client) do(req *http.Request) (response, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return response{}, errors.Wrap(err, "performing request")
	}
	defer func(Body io.ReadCloser) {
		if err := Body.Close(); err != nil {
			logrus.Error(err)
		}
	}(resp.Body)

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return response{StatusCode: resp.StatusCode}, errors.Wrap(err, "reading response")
	}
	return response{StatusCode: resp.StatusCode, Body: body}, nil
}

// audit records one outbound call. Entries carry enough to join a request with the
// asynchronous callback that follows it.
func audit(operation, checkoutRequestID string, statusCode int, start time.Time, err error) {
	entry := logrus.WithFields(logrus.Fields{
		"operation":           operation,
		"checkout_request_id": checkoutRequestID,
		"status_code":         statusCode,
		"duration":            time.Since(start).String(),
	})
	if err != nil {
		entry.WithField("outcome", "failed").WithError(err).Error("gateway call failed")
		return
	}
	entry.WithField("outcome", "ok").Info("gateway call completed")
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max])
}
