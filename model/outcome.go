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
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	// ResultCodeSuccess is the only result code that denotes a completed payment.
	ResultCodeSuccess = 0
	// ResultCodeProcessing is reported by status queries while the customer has not
	// yet answered the prompt.
	ResultCodeProcessing = 500
)

// TransactionOutcome is the record of one STK Push attempt as reported by the gateway.
// The four settlement fields are only ever set for successful outcomes, and only when
// the gateway actually sent the matching metadata item.
type TransactionOutcome struct {
	ID                 string           `json:"id,omitempty"`
	CheckoutRequestID  string           `json:"checkout_request_id"`
	ResultCode         int              `json:"result_code"`
	ResultDesc         string           `json:"result_desc"`
	Amount             *decimal.Decimal `json:"amount,omitempty"`
	MpesaReceiptNumber *string          `json:"mpesa_receipt_number,omitempty"`
	TransactionDate    *string          `json:"transaction_date,omitempty"`
	PhoneNumber        *string          `json:"phone_number,omitempty"`
	CreatedAt          time.Time        `json:"created_at,omitempty"`
}

// Succeeded reports whether the gateway accepted the payment.
func (o TransactionOutcome) Succeeded() bool {
	return o.ResultCode == ResultCodeSuccess
}

// StatusResult is the normalized answer to an STK Push status query.
type StatusResult struct {
	CheckoutRequestID string                 `json:"checkout_request_id"`
	ResultCode        int                    `json:"result_code"`
	ResultDesc        string                 `json:"result_desc"`
	StatusMessage     string                 `json:"status_message"`
	RawMetadata       map[string]interface{} `json:"raw_metadata,omitempty"`
}

// Final reports whether the query result settles the payment either way.
func (s StatusResult) Final() bool {
	return s.ResultCode != ResultCodeProcessing
}

// ToOutcome converts a final status result into an outcome. Query responses never
// carry settlement metadata, so the settlement fields stay unset.
func (s StatusResult) ToOutcome() TransactionOutcome {
	return TransactionOutcome{
		CheckoutRequestID: s.CheckoutRequestID,
		ResultCode:        s.ResultCode,
		ResultDesc:        s.ResultDesc,
	}
}

// GenerateUUIDWithSuffix returns a new uuid prefixed with the module name, e.g. outcome_<uuid>.
func GenerateUUIDWithSuffix(module string) string {
	return fmt.Sprintf("%s_%s", module, uuid.New().String())
}
