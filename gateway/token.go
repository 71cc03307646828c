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

package gateway

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"

	"github.com/blnkfinance/stkpush/model"
)

// gatewayToken is the cached OAuth token. It never leaves process memory.
type gatewayToken struct {
	value  string
	expiry time.Time
}

func (t gatewayToken) valid(now time.Time) bool {
	return t.value != "" && now.Before(t.expiry)
}

// Authenticate returns a bearer token, fetching a new one when the cached token is absent
// or expired. Concurrent callers share a single refresh.
func (c *Client) Authenticate(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token.valid(c.now()) {
		return c.token.value, nil
	}

	ctx, span := c.tracer.Start(ctx, "gateway.Authenticate")
	start := time.Now()
	token, expiresIn, status, err := c.fetchToken(ctx)
	audit("authenticate", "", status, start, err)
	endSpan(span, err)
	if err != nil {
		return "", err
	}

	lifetime := expiresIn - c.cfg.TokenSafetyMargin
	if lifetime < 0 {
		lifetime = 0
	}
	c.token = gatewayToken{value: token, expiry: c.now().Add(lifetime)}
	return token, nil
}

// invalidateToken drops the cached token so the next call re-authenticates.
func (c *Client) invalidateToken() {
	c.mu.Lock()
	c.token = gatewayToken{}
	c.mu.Unlock()
}

func (c *Client) fetchToken(ctx context.Context) (string, time.Duration, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+tokenPath, nil)
	if err != nil {
		return "", 0, 0, errors.Wrap(model.ErrAuthenticationFailed, err.Error())
	}
	req.SetBasicAuth(c.cfg.ConsumerKey, c.cfg.ConsumerSecret)

	resp, err := c.do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", 0, resp.StatusCode, errors.Wrapf(model.ErrGatewayRequestFailed, "token request: %v", ctxErr)
		}
		return "", 0, resp.StatusCode, errors.Wrap(model.ErrAuthenticationFailed, err.Error())
	}
	if !resp.ok() {
		return "", 0, resp.StatusCode, errors.Wrapf(model.ErrAuthenticationFailed, "status %d: %s", resp.StatusCode, string(resp.Body))
	}

	body := resp.json()
	token := body.Get("access_token").String()
	if token == "" {
		return "", 0, resp.StatusCode, errors.Wrap(model.ErrAuthenticationFailed, "access_token missing in response")
	}

	seconds, err := parseExpiresIn(body.Get("expires_in"))
	if err != nil {
		logrus.WithError(err).Warn("unreadable expires_in, token will not be cached")
		seconds = 0
	}
	return token, time.Duration(seconds) * time.Second, resp.StatusCode, nil
}

// parseExpiresIn accepts both "3599" and 3599.
func parseExpiresIn(v gjson.Result) (int64, error) {
	switch v.Type {
	case gjson.Number:
		return v.Int(), nil
	case gjson.String:
		return strconv.ParseInt(v.Str, 10, 64)
	default:
		return 0, errors.New("expires_in missing")
	}
}
