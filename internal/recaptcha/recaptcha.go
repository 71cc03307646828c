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

// Package recaptcha verifies client tokens against Google's siteverify endpoint before a
// payment prompt is pushed to a customer.
package recaptcha

import (
	"context"
	"net/http"
	"net/url"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/blnkfinance/stkpush/internal/request"
)

// ErrVerificationFailed is returned when the token is missing or rejected.
var ErrVerificationFailed = errors.New("recaptcha verification failed")

type verifyResponse struct {
	Success    bool     `json:"success"`
	Hostname   string   `json:"hostname"`
	ErrorCodes []string `json:"error-codes"`
}

type Verifier struct {
	secret    string
	verifyURL string
}

func NewVerifier(secret, verifyURL string) *Verifier {
	return &Verifier{secret: secret, verifyURL: verifyURL}
}

// Verify checks token with the siteverify endpoint. remoteIP is optional.
func (v *Verifier) Verify(ctx context.Context, token, remoteIP string) error {
	if token == "" {
		return errors.Wrap(ErrVerificationFailed, "token is required")
	}

	form := url.Values{"secret": {v.secret}, "response": {token}}
	if remoteIP != "" {
		form.Set("remoteip", remoteIP)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.verifyURL, request.ToFormReq(form))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	var resp verifyResponse
	if _, err := request.Call(req, &resp); err != nil {
		logrus.WithError(err).Error("recaptcha verification request failed")
		return errors.Wrap(ErrVerificationFailed, err.Error())
	}
	if !resp.Success {
		logrus.WithField("error_codes", resp.ErrorCodes).Warn("recaptcha token rejected")
		return errors.Wrapf(ErrVerificationFailed, "%v", resp.ErrorCodes)
	}
	return nil
}
