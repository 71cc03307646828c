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

package model

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateUUIDWithSuffix(t *testing.T) {
	id := GenerateUUIDWithSuffix("outcome")
	assert.Contains(t, id, "outcome_")
	assert.Len(t, id, len("outcome_")+36)
}

func TestTransactionOutcome_Succeeded(t *testing.T) {
	assert.True(t, TransactionOutcome{ResultCode: 0}.Succeeded())
	assert.False(t, TransactionOutcome{ResultCode: 1032}.Succeeded())
}

func TestTransactionOutcome_JSONOmitsUnsetSettlementFields(t *testing.T) {
	data, err := json.Marshal(TransactionOutcome{CheckoutRequestID: "ws_CO_1", ResultCode: 1, ResultDesc: "failed"})
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.NotContains(t, decoded, "amount")
	assert.NotContains(t, decoded, "mpesa_receipt_number")
	assert.Equal(t, "ws_CO_1", decoded["checkout_request_id"])
}

func TestTransactionOutcome_AmountKeepsPrecision(t *testing.T) {
	amount := decimal.RequireFromString("1500.50")
	data, err := json.Marshal(TransactionOutcome{CheckoutRequestID: "ws_CO_1", Amount: &amount})
	require.NoError(t, err)
	assert.Contains(t, string(data), `"amount":"1500.5"`)
}

func TestStatusResult(t *testing.T) {
	pending := StatusResult{CheckoutRequestID: "ws_CO_1", ResultCode: ResultCodeProcessing}
	assert.False(t, pending.Final())

	cancelled := StatusResult{CheckoutRequestID: "ws_CO_1", ResultCode: 1032, ResultDesc: "Request cancelled by user"}
	assert.True(t, cancelled.Final())

	outcome := cancelled.ToOutcome()
	assert.Equal(t, "ws_CO_1", outcome.CheckoutRequestID)
	assert.Equal(t, 1032, outcome.ResultCode)
	assert.Nil(t, outcome.Amount)
}
