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

package database

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/blnkfinance/stkpush/internal/apierror"
	"github.com/blnkfinance/stkpush/model"
)

const outcomeColumns = `outcome_id, checkout_request_id, result_code, result_desc, amount, mpesa_receipt_number, transaction_date, phone_number, created_at`

// AppendOutcome inserts outcome as a new row. Duplicate webhooks for the same
// checkout request produce additional rows.
func (d Datasource) AppendOutcome(ctx context.Context, outcome *model.TransactionOutcome) (*model.TransactionOutcome, error) {
	ctx, span := otel.Tracer("stkpush.database").Start(ctx, "Saving transaction outcome to db")
	defer span.End()
	span.SetAttributes(attribute.String("mpesa.checkout_request_id", outcome.CheckoutRequestID))

	if outcome.CheckoutRequestID == "" {
		err := errors.Wrap(model.ErrStoreWriteFailed, "checkout request id is required")
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if outcome.ID == "" {
		outcome.ID = model.GenerateUUIDWithSuffix("outcome")
	}
	if outcome.CreatedAt.IsZero() {
		outcome.CreatedAt = time.Now().UTC()
	}

	_, err := d.Conn.ExecContext(ctx,
		`INSERT INTO stkpush.transaction_outcomes(`+outcomeColumns+`) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		outcome.ID, outcome.CheckoutRequestID, outcome.ResultCode, outcome.ResultDesc,
		nullDecimal(outcome.Amount), outcome.MpesaReceiptNumber, outcome.TransactionDate, outcome.PhoneNumber,
		outcome.CreatedAt,
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logrus.WithFields(logrus.Fields{
			"checkout_request_id": outcome.CheckoutRequestID,
			"result_code":         outcome.ResultCode,
		}).WithError(err).Error("failed to append transaction outcome")
		return nil, errors.Wrap(model.ErrStoreWriteFailed, err.Error())
	}

	return outcome, nil
}

// GetOutcomesByCheckoutID returns every stored outcome for a checkout request, oldest first.
func (d Datasource) GetOutcomesByCheckoutID(ctx context.Context, checkoutRequestID string) ([]model.TransactionOutcome, error) {
	ctx, span := otel.Tracer("stkpush.database").Start(ctx, "Getting transaction outcomes by checkout request id")
	defer span.End()

	rows, err := d.Conn.QueryContext(ctx, `
		SELECT `+outcomeColumns+`
		FROM stkpush.transaction_outcomes
		WHERE checkout_request_id = $1
		ORDER BY created_at ASC, id ASC
	`, checkoutRequestID)
	if err != nil {
		span.RecordError(err)
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve transaction outcomes", err)
	}
	defer rows.Close()

	return scanOutcomes(rows)
}

// ListOutcomes pages through stored outcomes, newest first.
func (d Datasource) ListOutcomes(ctx context.Context, limit, offset int) ([]model.TransactionOutcome, error) {
	ctx, span := otel.Tracer("stkpush.database").Start(ctx, "Listing transaction outcomes")
	defer span.End()

	rows, err := d.Conn.QueryContext(ctx, `
		SELECT `+outcomeColumns+`
		FROM stkpush.transaction_outcomes
		ORDER BY created_at DESC, id DESC
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		span.RecordError(err)
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve transaction outcomes", err)
	}
	defer rows.Close()

	return scanOutcomes(rows)
}

func scanOutcomes(rows *sql.Rows) ([]model.TransactionOutcome, error) {
	outcomes := []model.TransactionOutcome{}
	for rows.Next() {
		var (
			o                          model.TransactionOutcome
			amount                     decimal.NullDecimal
			receipt, date, phoneNumber sql.NullString
		)
		err := rows.Scan(&o.ID, &o.CheckoutRequestID, &o.ResultCode, &o.ResultDesc, &amount, &receipt, &date, &phoneNumber, &o.CreatedAt)
		if err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan transaction outcome", err)
		}
		if amount.Valid {
			o.Amount = &amount.Decimal
		}
		o.MpesaReceiptNumber = nullString(receipt)
		o.TransactionDate = nullString(date)
		o.PhoneNumber = nullString(phoneNumber)
		outcomes = append(outcomes, o)
	}

	if err := rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Error occurred while iterating over transaction outcomes", err)
	}
	return outcomes, nil
}

func nullDecimal(d *decimal.Decimal) decimal.NullDecimal {
	if d == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: *d, Valid: true}
}

func nullString(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	v := s.String
	return &v
}
