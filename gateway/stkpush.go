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
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"

	"github.com/blnkfinance/stkpush/internal/phone"
	"github.com/blnkfinance/stkpush/model"
)

const defaultTransactionDesc = "Payment"

type stkPushRequest struct {
	BusinessShortCode string `json:"BusinessShortCode"`
	Password          string `json:"Password"`
	Timestamp         string `json:"Timestamp"`
	TransactionType   string `json:"TransactionType"`
	Amount            int64  `json:"Amount"`
	PartyA            string `json:"PartyA"`
	PartyB            string `json:"PartyB"`
	PhoneNumber       string `json:"PhoneNumber"`
	CallBackURL       string `json:"CallBackURL"`
	AccountReference  string `json:"AccountReference"`
	TransactionDesc   string `json:"TransactionDesc"`
}

// InitiatePayment asks the gateway to push a payment prompt to the customer's phone and
// returns the CheckoutRequestID that the eventual callback will carry. Amounts are
// charged in whole shillings, rounded up.
func (c *Client) InitiatePayment(ctx context.Context, phoneNumber string, amount decimal.Decimal, description string) (string, error) {
	if !amount.IsPositive() {
		logrus.WithField("amount", amount.String()).Error("rejected payment with non-positive amount")
		return "", errors.Wrapf(model.ErrInvalidAmount, "got %s", amount.String())
	}

	msisdn, err := phone.Normalize(phoneNumber)
	if err != nil {
		logrus.WithError(err).Error("rejected payment with invalid phone number")
		return "", err
	}

	token, err := c.Authenticate(ctx)
	if err != nil {
		return "", err
	}

	ctx, span := c.tracer.Start(ctx, "gateway.InitiatePayment")
	span.SetAttributes(attribute.String("mpesa.phone_number", msisdn))

	if description == "" {
		description = defaultTransactionDesc
	}
	password, timestamp := c.password()
	payload := stkPushRequest{
		BusinessShortCode: c.cfg.ShortCode,
		Password:          password,
		Timestamp:         timestamp,
		TransactionType:   c.cfg.TransactionType,
		Amount:            amount.Ceil().IntPart(),
		PartyA:            msisdn,
		PartyB:            c.cfg.PartyB,
		PhoneNumber:       msisdn,
		CallBackURL:       c.cfg.CallbackURL,
		AccountReference:  truncate(c.cfg.AccountReference, maxAccountReferenceLen),
		TransactionDesc:   truncate(description, maxTransactionDescLen),
	}

	start := time.Now()
	checkoutID, status, err := c.sendPush(ctx, token, payload)
	audit("initiate_payment", checkoutID, status, start, err)
	if checkoutID != "" {
		span.SetAttributes(attribute.String("mpesa.checkout_request_id", checkoutID))
	}
	endSpan(span, err)
	if err != nil {
		return "", err
	}
	return checkoutID, nil
}

func (c *Client) sendPush(ctx context.Context, token string, payload stkPushRequest) (string, int, error) {
	resp, err := c.postJSON(ctx, pushPath, token, payload)
	if err != nil {
		return "", resp.StatusCode, errors.Wrap(model.ErrGatewayRequestFailed, err.Error())
	}
	if resp.StatusCode == http.StatusUnauthorized {
		c.invalidateToken()
	}
	if !resp.ok() {
		return "", resp.StatusCode, errors.Wrapf(model.ErrGatewayRequestFailed, "status %d: %s", resp.StatusCode, string(resp.Body))
	}

	checkoutID := resp.json().Get("CheckoutRequestID").String()
	if checkoutID == "" {
		return "", resp.StatusCode, errors.Wrapf(model.ErrGatewayRequestFailed, "CheckoutRequestID missing in response: %s", string(resp.Body))
	}
	return checkoutID, resp.StatusCode, nil
}
