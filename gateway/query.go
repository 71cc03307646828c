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
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
	"go.opentelemetry.io/otel/attribute"

	"github.com/blnkfinance/stkpush/internal/notification"
	"github.com/blnkfinance/stkpush/model"
)

type stkQueryRequest struct {
	BusinessShortCode string `json:"BusinessShortCode"`
	Password          string `json:"Password"`
	Timestamp         string `json:"Timestamp"`
	CheckoutRequestID string `json:"CheckoutRequestID"`
}

// QueryStatus asks the gateway for the current state of an STK Push request. Every failed
// attempt is retried under the configured RetryPolicy. When the attempts run out the error
// is ErrGatewayUnavailable if the gateway last answered with a 5xx, and
// ErrGatewayRequestFailed otherwise.
func (c *Client) QueryStatus(ctx context.Context, checkoutRequestID string) (*model.StatusResult, error) {
	ctx, span := c.tracer.Start(ctx, "gateway.QueryStatus")
	span.SetAttributes(attribute.String("mpesa.checkout_request_id", checkoutRequestID))

	var (
		result     *model.StatusResult
		lastStatus int
	)
	err := c.cfg.QueryRetry.Do(ctx, func(attempt int) error {
		start := time.Now()
		res, status, err := c.queryOnce(ctx, checkoutRequestID)
		lastStatus = status
		audit("query_status", checkoutRequestID, status, start, err)
		if err != nil {
			logrus.WithFields(logrus.Fields{
				"checkout_request_id": checkoutRequestID,
				"attempt":             attempt,
				"max_attempts":        c.cfg.QueryRetry.MaxAttempts,
			}).WithError(err).Warn("status query attempt failed")
			return err
		}
		result = res
		return nil
	})

	switch {
	case err == nil:
	case ctx.Err() != nil:
		err = errors.Wrap(model.ErrGatewayRequestFailed, ctx.Err().Error())
	case lastStatus >= http.StatusInternalServerError:
		err = errors.Wrap(model.ErrGatewayUnavailable, err.Error())
		notification.NotifyError(err)
	default:
		err = errors.Wrap(model.ErrGatewayRequestFailed, err.Error())
	}
	endSpan(span, err)
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (c *Client) queryOnce(ctx context.Context, checkoutRequestID string) (*model.StatusResult, int, error) {
	token, err := c.Authenticate(ctx)
	if err != nil {
		return nil, 0, err
	}

	password, timestamp := c.password()
	resp, err := c.postJSON(ctx, queryPath, token, stkQueryRequest{
		BusinessShortCode: c.cfg.ShortCode,
		Password:          password,
		Timestamp:         timestamp,
		CheckoutRequestID: checkoutRequestID,
	})
	if err != nil {
		return nil, resp.StatusCode, err
	}
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		c.invalidateToken()
	}
	if !resp.ok() {
		return nil, resp.StatusCode, errors.Errorf("status %d: %s", resp.StatusCode, string(resp.Body))
	}

	result, err := decodeStatus(checkoutRequestID, resp.Body)
	return result, resp.StatusCode, err
}

func decodeStatus(checkoutRequestID string, body []byte) (*model.StatusResult, error) {
	raw := make(map[string]interface{})
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, errors.Wrap(err, "decoding status response")
	}

	parsed := gjson.ParseBytes(body)
	code, err := resultCode(parsed.Get("ResultCode"))
	if err != nil {
		return nil, err
	}

	if id := parsed.Get("CheckoutRequestID").String(); id != "" {
		checkoutRequestID = id
	}
	return &model.StatusResult{
		CheckoutRequestID: checkoutRequestID,
		ResultCode:        code,
		ResultDesc:        parsed.Get("ResultDesc").String(),
		StatusMessage:     parsed.Get("ResponseDescription").String(),
		RawMetadata:       raw,
	}, nil
}

// resultCode reads ResultCode, which the gateway sends as either "0" or 0. Codes
// outside the int32 range are rejected.
func resultCode(v gjson.Result) (int, error) {
	var raw string
	switch v.Type {
	case gjson.Number:
		raw = v.Raw
	case gjson.String:
		raw = v.Str
	default:
		return 0, errors.New("ResultCode missing in status response")
	}

	code, err := strconv.ParseInt(raw, 10, 32)
	if err != nil {
		return 0, errors.Wrapf(err, "invalid ResultCode %q", raw)
	}
	return int(code), nil
}
