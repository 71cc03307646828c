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

// Package stkpush bridges client payment requests to M-Pesa STK Push. It initiates
// prompts through the gateway, records the outcomes the gateway reports back and
// broadcasts them to live subscribers.
package stkpush

import (
	"context"
	"embed"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/blnkfinance/stkpush/broadcast"
	"github.com/blnkfinance/stkpush/callback"
	"github.com/blnkfinance/stkpush/database"
	"github.com/blnkfinance/stkpush/internal/apierror"
	"github.com/blnkfinance/stkpush/internal/notification"
	"github.com/blnkfinance/stkpush/model"
)

//go:embed sql/*.sql
var SQLFiles embed.FS

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

var tracer = otel.Tracer("stkpush")

// PaymentGateway is the subset of the gateway client the bridge depends on.
type PaymentGateway interface {
	InitiatePayment(ctx context.Context, phoneNumber string, amount decimal.Decimal, description string) (string, error)
	QueryStatus(ctx context.Context, checkoutRequestID string) (*model.StatusResult, error)
}

// HumanVerifier checks a client-supplied challenge token before a prompt is sent.
type HumanVerifier interface {
	Verify(ctx context.Context, token, remoteIP string) error
}

// StatusScheduler schedules a deferred status check for a freshly initiated payment.
type StatusScheduler interface {
	EnqueueStatusCheck(ctx context.Context, checkoutRequestID string) error
}

// PaymentRequest is a client's request to charge a customer.
type PaymentRequest struct {
	PhoneNumber    string
	Amount         decimal.Decimal
	Description    string
	RecaptchaToken string
	RemoteIP       string
}

type Bridge struct {
	gateway     PaymentGateway
	datasource  database.IDataSource
	broadcaster *broadcast.Broadcaster
	verifier    HumanVerifier
	scheduler   StatusScheduler
}

type Option func(*Bridge)

// WithVerifier requires every payment request to pass human verification.
func WithVerifier(v HumanVerifier) Option {
	return func(b *Bridge) { b.verifier = v }
}

// WithStatusScheduler enables deferred status checks after each initiation.
func WithStatusScheduler(s StatusScheduler) Option {
	return func(b *Bridge) { b.scheduler = s }
}

func NewBridge(gateway PaymentGateway, datasource database.IDataSource, broadcaster *broadcast.Broadcaster, opts ...Option) *Bridge {
	b := &Bridge{gateway: gateway, datasource: datasource, broadcaster: broadcaster}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Broadcaster exposes the broadcaster stream handlers subscribe to.
func (b *Bridge) Broadcaster() *broadcast.Broadcaster {
	return b.broadcaster
}

// InitiatePayment pushes a payment prompt and returns the checkout request id. The
// payment outcome arrives later through HandleCallback.
func (b *Bridge) InitiatePayment(ctx context.Context, req PaymentRequest) (string, error) {
	ctx, span := tracer.Start(ctx, "InitiatePayment")
	defer span.End()

	if b.verifier != nil {
		if err := b.verifier.Verify(ctx, req.RecaptchaToken, req.RemoteIP); err != nil {
			span.RecordError(err)
			return "", apierror.NewAPIError(apierror.ErrForbidden, "human verification failed", err.Error())
		}
	}

	checkoutID, err := b.gateway.InitiatePayment(ctx, req.PhoneNumber, req.Amount, req.Description)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}
	span.SetAttributes(attribute.String("mpesa.checkout_request_id", checkoutID))

	if b.scheduler != nil {
		if err := b.scheduler.EnqueueStatusCheck(ctx, checkoutID); err != nil {
			logrus.WithField("checkout_request_id", checkoutID).WithError(err).Error("failed to schedule status check")
		}
	}
	return checkoutID, nil
}

// QueryStatus asks the gateway for the current state of a payment.
func (b *Bridge) QueryStatus(ctx context.Context, checkoutRequestID string) (*model.StatusResult, error) {
	checkoutRequestID = strings.TrimSpace(checkoutRequestID)
	if checkoutRequestID == "" {
		return nil, apierror.NewAPIError(apierror.ErrInvalidInput, "checkout_request_id is required", nil)
	}

	ctx, span := tracer.Start(ctx, "QueryStatus")
	defer span.End()
	span.SetAttributes(attribute.String("mpesa.checkout_request_id", checkoutRequestID))

	result, err := b.gateway.QueryStatus(ctx, checkoutRequestID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return result, nil
}

// HandleCallback interprets a webhook body, stores the outcome and broadcasts it. It is
// safe to call repeatedly for the same webhook; every call appends a new row.
func (b *Bridge) HandleCallback(ctx context.Context, body []byte) (*model.TransactionOutcome, error) {
	ctx, span := tracer.Start(ctx, "HandleCallback")
	defer span.End()

	outcome, err := callback.InterpretJSON(body)
	if err != nil {
		span.RecordError(err)
		logrus.WithField("body", string(body)).WithError(err).Error("rejected malformed callback")
		return nil, err
	}
	span.SetAttributes(attribute.String("mpesa.checkout_request_id", outcome.CheckoutRequestID))

	return b.RecordOutcome(ctx, &outcome)
}

// RecordOutcome appends outcome to the store and publishes the stored record.
func (b *Bridge) RecordOutcome(ctx context.Context, outcome *model.TransactionOutcome) (*model.TransactionOutcome, error) {
	stored, err := b.datasource.AppendOutcome(ctx, outcome)
	if err != nil {
		notification.NotifyError(err)
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"checkout_request_id": stored.CheckoutRequestID,
		"result_code":         stored.ResultCode,
		"outcome_id":          stored.ID,
	}).Info("transaction outcome recorded")

	b.broadcaster.Publish(*stored)
	return stored, nil
}

// GetOutcomes returns every outcome stored for a checkout request.
func (b *Bridge) GetOutcomes(ctx context.Context, checkoutRequestID string) ([]model.TransactionOutcome, error) {
	outcomes, err := b.datasource.GetOutcomesByCheckoutID(ctx, checkoutRequestID)
	if err != nil {
		return nil, err
	}
	if len(outcomes) == 0 {
		return nil, apierror.NewAPIError(apierror.ErrNotFound, "no outcome recorded for "+checkoutRequestID, nil)
	}
	return outcomes, nil
}

// ListOutcomes pages through stored outcomes. limit is clamped to [1, 100].
func (b *Bridge) ListOutcomes(ctx context.Context, limit, offset int) ([]model.TransactionOutcome, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	if offset < 0 {
		offset = 0
	}
	return b.datasource.ListOutcomes(ctx, limit, offset)
}
