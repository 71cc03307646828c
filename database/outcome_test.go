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
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wacul/ptr"

	"github.com/blnkfinance/stkpush/model"
)

var outcomeRowColumns = []string{"outcome_id", "checkout_request_id", "result_code", "result_desc", "amount", "mpesa_receipt_number", "transaction_date", "phone_number", "created_at"}

func TestAppendOutcome_Success(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	ds := Datasource{Conn: db}
	amount := decimal.NewFromInt(500)
	outcome := &model.TransactionOutcome{
		CheckoutRequestID:  "ws_CO_191220191020363925",
		ResultCode:         0,
		ResultDesc:         "The service request is processed successfully.",
		Amount:             &amount,
		MpesaReceiptNumber: ptr.String("ABC123"),
		TransactionDate:    ptr.String("20240101120000"),
		PhoneNumber:        ptr.String("254712345678"),
	}

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO stkpush.transaction_outcomes")).
		WithArgs(sqlmock.AnyArg(), "ws_CO_191220191020363925", 0, "The service request is processed successfully.",
			"500", "ABC123", "20240101120000", "254712345678", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	stored, err := ds.AppendOutcome(context.Background(), outcome)
	require.NoError(t, err)
	assert.Contains(t, stored.ID, "outcome_")
	assert.False(t, stored.CreatedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAppendOutcome_FailureOutcomeStoresNulls(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	ds := Datasource{Conn: db}
	outcome := &model.TransactionOutcome{CheckoutRequestID: "ws_CO_1", ResultCode: 1032, ResultDesc: "Request cancelled by user"}

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO stkpush.transaction_outcomes")).
		WithArgs(sqlmock.AnyArg(), "ws_CO_1", 1032, "Request cancelled by user", nil, nil, nil, nil, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	_, err = ds.AppendOutcome(context.Background(), outcome)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAppendOutcome_DuplicatesAreAppended(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	ds := Datasource{Conn: db}
	for i := 0; i < 2; i++ {
		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO stkpush.transaction_outcomes")).
			WillReturnResult(sqlmock.NewResult(int64(i+1), 1))
	}

	first, err := ds.AppendOutcome(context.Background(), &model.TransactionOutcome{CheckoutRequestID: "ws_CO_1", ResultDesc: "ok"})
	require.NoError(t, err)
	second, err := ds.AppendOutcome(context.Background(), &model.TransactionOutcome{CheckoutRequestID: "ws_CO_1", ResultDesc: "ok"})
	require.NoError(t, err)

	assert.NotEqual(t, first.ID, second.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAppendOutcome_Failure(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	ds := Datasource{Conn: db}
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO stkpush.transaction_outcomes")).
		WillReturnError(errors.New("connection reset by peer"))

	_, err = ds.AppendOutcome(context.Background(), &model.TransactionOutcome{CheckoutRequestID: "ws_CO_1"})
	assert.ErrorIs(t, err, model.ErrStoreWriteFailed)
	assert.Contains(t, err.Error(), "connection reset by peer")
}

func TestAppendOutcome_RejectsEmptyCheckoutID(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	ds := Datasource{Conn: db}
	_, err = ds.AppendOutcome(context.Background(), &model.TransactionOutcome{})
	assert.ErrorIs(t, err, model.ErrStoreWriteFailed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetOutcomesByCheckoutID(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	ds := Datasource{Conn: db}
	created := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows(outcomeRowColumns).
		AddRow("outcome_1", "ws_CO_1", 0, "ok", "500", "ABC123", "20240101120000", "254712345678", created).
		AddRow("outcome_2", "ws_CO_1", 0, "ok", nil, nil, nil, nil, created.Add(time.Second))

	mock.ExpectQuery(regexp.QuoteMeta("FROM stkpush.transaction_outcomes")).
		WithArgs("ws_CO_1").
		WillReturnRows(rows)

	outcomes, err := ds.GetOutcomesByCheckoutID(context.Background(), "ws_CO_1")
	require.NoError(t, err)
	require.Len(t, outcomes, 2)

	assert.Equal(t, "outcome_1", outcomes[0].ID)
	assert.True(t, decimal.NewFromInt(500).Equal(*outcomes[0].Amount))
	assert.Equal(t, "ABC123", *outcomes[0].MpesaReceiptNumber)
	assert.Equal(t, "254712345678", *outcomes[0].PhoneNumber)
	assert.Nil(t, outcomes[1].Amount)
	assert.Nil(t, outcomes[1].MpesaReceiptNumber)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetOutcomesByCheckoutID_Empty(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	ds := Datasource{Conn: db}
	mock.ExpectQuery(regexp.QuoteMeta("FROM stkpush.transaction_outcomes")).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(outcomeRowColumns))

	outcomes, err := ds.GetOutcomesByCheckoutID(context.Background(), "missing")
	require.NoError(t, err)
	assert.Empty(t, outcomes)
}

func TestListOutcomes(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	ds := Datasource{Conn: db}
	rows := sqlmock.NewRows(outcomeRowColumns).
		AddRow("outcome_9", "ws_CO_9", 1, "cancelled", nil, nil, nil, nil, time.Now())

	mock.ExpectQuery(regexp.QuoteMeta("LIMIT $1 OFFSET $2")).
		WithArgs(20, 40).
		WillReturnRows(rows)

	outcomes, err := ds.ListOutcomes(context.Background(), 20, 40)
	require.NoError(t, err)
	require.Len(t, outcomes, 1)
	assert.Equal(t, 1, outcomes[0].ResultCode)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListOutcomes_QueryError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	ds := Datasource{Conn: db}
	mock.ExpectQuery(regexp.QuoteMeta("FROM stkpush.transaction_outcomes")).
		WillReturnError(errors.New("boom"))

	_, err = ds.ListOutcomes(context.Background(), 10, 0)
	assert.Error(t, err)
}
