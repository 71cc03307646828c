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

package callback

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blnkfinance/stkpush/model"
)

const successBody = `{
  "Body": {
    "stkCallback": {
      "MerchantRequestID": "29115-34620561-1",
      "CheckoutRequestID": "ws_CO_191220191020363925",
      "ResultCode": 0,
      "ResultDesc": "The service request is processed successfully.",
      "CallbackMetadata": {
        "Item": [
          {"Name": "Amount", "Value": 500},
          {"Name": "MpesaReceiptNumber", "Value": "ABC123"},
          {"Name": "Balance"},
          {"Name": "TransactionDate", "Value": 20240101120000},
          {"Name": "PhoneNumber", "Value": 254712345678}
        ]
      }
    }
  }
}`

func TestInterpretJSON_Success(t *testing.T) {
	outcome, err := InterpretJSON([]byte(successBody))
	require.NoError(t, err)

	assert.Equal(t, "ws_CO_191220191020363925", outcome.CheckoutRequestID)
	assert.Equal(t, 0, outcome.ResultCode)
	assert.True(t, outcome.Succeeded())
	require.NotNil(t, outcome.Amount)
	assert.Equal(t, "500", outcome.Amount.String())
	assert.Equal(t, "ABC123", *outcome.MpesaReceiptNumber)
	assert.Equal(t, "20240101120000", *outcome.TransactionDate)
	assert.Equal(t, "254712345678", *outcome.PhoneNumber)
}

func TestInterpret_DecodedWithFloats(t *testing.T) {
	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(successBody), &payload))

	outcome, err := Interpret(payload)
	require.NoError(t, err)
	assert.Equal(t, "20240101120000", *outcome.TransactionDate)
	assert.Equal(t, "254712345678", *outcome.PhoneNumber)
	assert.Equal(t, "500", outcome.Amount.String())
}

func TestInterpret_FailureIgnoresMetadata(t *testing.T) {
	payload := map[string]interface{}{
		"Body": map[string]interface{}{
			"stkCallback": map[string]interface{}{
				"CheckoutRequestID": "ws_CO_1",
				"ResultCode":        1,
				"ResultDesc":        "The balance is insufficient for the transaction.",
				"CallbackMetadata": map[string]interface{}{
					"Item": []interface{}{
						map[string]interface{}{"Name": "Amount", "Value": 10},
						map[string]interface{}{"Name": "MpesaReceiptNumber", "Value": "XYZ"},
					},
				},
			},
		},
	}

	outcome, err := Interpret(payload)
	require.NoError(t, err)
	assert.Equal(t, 1, outcome.ResultCode)
	assert.False(t, outcome.Succeeded())
	assert.Nil(t, outcome.Amount)
	assert.Nil(t, outcome.MpesaReceiptNumber)
	assert.Nil(t, outcome.TransactionDate)
	assert.Nil(t, outcome.PhoneNumber)
}

func TestInterpret_FailureWithBrokenMetadataStillParses(t *testing.T) {
	payload := map[string]interface{}{
		"Body": map[string]interface{}{
			"stkCallback": map[string]interface{}{
				"CheckoutRequestID": "ws_CO_1",
				"ResultCode":        "1032",
				"ResultDesc":        "Request cancelled by user",
				"CallbackMetadata":  "garbage",
			},
		},
	}

	outcome, err := Interpret(payload)
	require.NoError(t, err)
	assert.Equal(t, 1032, outcome.ResultCode)
}

func TestInterpret_SuccessWithoutMetadata(t *testing.T) {
	outcome, err := InterpretJSON([]byte(`{"Body":{"stkCallback":{"CheckoutRequestID":"ws_CO_2","ResultCode":0,"ResultDesc":"ok"}}}`))
	require.NoError(t, err)
	assert.Nil(t, outcome.Amount)
	assert.Nil(t, outcome.MpesaReceiptNumber)
}

func TestInterpret_NullValuesLeaveFieldsUnset(t *testing.T) {
	outcome, err := InterpretJSON([]byte(`{"Body":{"stkCallback":{
		"CheckoutRequestID":"ws_CO_3","ResultCode":0,"ResultDesc":"ok",
		"CallbackMetadata":{"Item":[
			{"Name":"Amount","Value":null},
			{"Name":"MpesaReceiptNumber","Value":"QWE123"},
			{"Name":"Unknown","Value":"x"}
		]}}}}`))
	require.NoError(t, err)
	assert.Nil(t, outcome.Amount)
	assert.Nil(t, outcome.TransactionDate)
	assert.Equal(t, "QWE123", *outcome.MpesaReceiptNumber)
}

func TestInterpret_UnreadableAmountKeepsOutcome(t *testing.T) {
	values := []string{`"1,000.00"`, `true`, `{"v":1}`}

	for _, value := range values {
		t.Run(value, func(t *testing.T) {
			outcome, err := InterpretJSON([]byte(`{"Body":{"stkCallback":{
				"CheckoutRequestID":"ws_CO_4","ResultCode":0,"ResultDesc":"ok",
				"CallbackMetadata":{"Item":[
					{"Name":"Amount","Value":` + value + `},
					{"Name":"MpesaReceiptNumber","Value":"RCP777"},
					{"Name":"PhoneNumber","Value":254712345678}
				]}}}}`))
			require.NoError(t, err)
			assert.Equal(t, "ws_CO_4", outcome.CheckoutRequestID)
			assert.True(t, outcome.Succeeded())
			assert.Nil(t, outcome.Amount)
			require.NotNil(t, outcome.MpesaReceiptNumber)
			assert.Equal(t, "RCP777", *outcome.MpesaReceiptNumber)
			assert.Equal(t, "254712345678", *outcome.PhoneNumber)
		})
	}
}

func TestInterpret_MalformedMetadataContainersAreSkipped(t *testing.T) {
	bodies := []string{
		`{"Body":{"stkCallback":{"CheckoutRequestID":"ws_CO_5","ResultCode":0,"ResultDesc":"ok","CallbackMetadata":"garbage"}}}`,
		`{"Body":{"stkCallback":{"CheckoutRequestID":"ws_CO_5","ResultCode":0,"ResultDesc":"ok","CallbackMetadata":{"Item":{}}}}}`,
	}

	for _, body := range bodies {
		outcome, err := InterpretJSON([]byte(body))
		require.NoError(t, err, body)
		assert.Equal(t, "ws_CO_5", outcome.CheckoutRequestID)
		assert.Nil(t, outcome.Amount)
		assert.Nil(t, outcome.MpesaReceiptNumber)
	}
}

func TestToInt_Int32Range(t *testing.T) {
	tests := []struct {
		in   interface{}
		want int
		ok   bool
	}{
		{json.Number("2147483647"), 2147483647, true},
		{json.Number("-2147483648"), -2147483648, true},
		{json.Number("2147483648"), 0, false},
		{json.Number("1e30"), 0, false},
		{json.Number("1e3"), 1000, true},
		{float64(1 << 40), 0, false},
		{int64(1) << 40, 0, false},
		{"1032", 1032, true},
	}

	for _, tt := range tests {
		got, ok := toInt(tt.in)
		assert.Equal(t, tt.ok, ok, "%v", tt.in)
		assert.Equal(t, tt.want, got, "%v", tt.in)
	}
}

func TestInterpret_Malformed(t *testing.T) {
	tests := []struct {
		name string
		body string
		kind ErrorKind
	}{
		{"missing body", `{}`, MissingContainer},
		{"body not object", `{"Body":[]}`, MissingContainer},
		{"missing stkCallback", `{"Body":{}}`, MissingContainer},
		{"missing checkout id", `{"Body":{"stkCallback":{"ResultCode":0,"ResultDesc":"ok"}}}`, MissingField},
		{"empty checkout id", `{"Body":{"stkCallback":{"CheckoutRequestID":"","ResultCode":0,"ResultDesc":"ok"}}}`, InvalidField},
		{"missing result code", `{"Body":{"stkCallback":{"CheckoutRequestID":"ws","ResultDesc":"ok"}}}`, MissingField},
		{"non numeric result code", `{"Body":{"stkCallback":{"CheckoutRequestID":"ws","ResultCode":"zero","ResultDesc":"ok"}}}`, InvalidField},
		{"result code beyond int32", `{"Body":{"stkCallback":{"CheckoutRequestID":"ws","ResultCode":1e30,"ResultDesc":"ok"}}}`, InvalidField},
		{"result code beyond uint64", `{"Body":{"stkCallback":{"CheckoutRequestID":"ws","ResultCode":18446744073709551616,"ResultDesc":"ok"}}}`, InvalidField},
		{"result code string beyond int32", `{"Body":{"stkCallback":{"CheckoutRequestID":"ws","ResultCode":"4294967296","ResultDesc":"ok"}}}`, InvalidField},
		{"fractional result code", `{"Body":{"stkCallback":{"CheckoutRequestID":"ws","ResultCode":0.5,"ResultDesc":"ok"}}}`, InvalidField},
		{"missing result desc", `{"Body":{"stkCallback":{"CheckoutRequestID":"ws","ResultCode":0}}}`, MissingField},
		{"not json", `not json`, InvalidField},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := InterpretJSON([]byte(tt.body))
			require.Error(t, err)
			assert.ErrorIs(t, err, model.ErrMalformedCallback)

			var parseErr *ParseError
			require.True(t, errors.As(err, &parseErr))
			assert.Equal(t, tt.kind, parseErr.Kind)
		})
	}
}

func TestInterpret_ReceiptRoundTrip(t *testing.T) {
	for i := 0; i < 20; i++ {
		receipt := gofakeit.Regex(`[A-Z]{3}[0-9]{7}`)
		payload := map[string]interface{}{
			"Body": map[string]interface{}{
				"stkCallback": map[string]interface{}{
					"CheckoutRequestID": gofakeit.UUID(),
					"ResultCode":        json.Number("0"),
					"ResultDesc":        "ok",
					"CallbackMetadata": map[string]interface{}{
						"Item": []interface{}{map[string]interface{}{"Name": "MpesaReceiptNumber", "Value": receipt}},
					},
				},
			},
		}

		outcome, err := Interpret(payload)
		require.NoError(t, err)
		assert.Equal(t, receipt, *outcome.MpesaReceiptNumber)
	}
}
