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

// Package callback turns the gateway's STK Push webhook body into a TransactionOutcome.
//
// The expected shape is:
//
//	{"Body": {"stkCallback": {
//	    "MerchantRequestID": "...",
//	    "CheckoutRequestID": "ws_CO_...",
//	    "ResultCode": 0,
//	    "ResultDesc": "The service request is processed successfully.",
//	    "CallbackMetadata": {"Item": [{"Name": "Amount", "Value": 1}, ...]}
//	}}}
package callback

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/wacul/ptr"

	"github.com/blnkfinance/stkpush/model"
)

// ErrorKind classifies why a payload was rejected.
type ErrorKind int

const (
	MissingContainer ErrorKind = iota
	MissingField
	InvalidField
)

func (k ErrorKind) String() string {
	switch k {
	case MissingContainer:
		return "missing container"
	case MissingField:
		return "missing field"
	case InvalidField:
		return "invalid field"
	default:
		return "unknown"
	}
}

// ParseError describes a payload that does not have the webhook shape. It matches
// model.ErrMalformedCallback.
type ParseError struct {
	Kind  ErrorKind
	Field string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s: %s %q", model.ErrMalformedCallback, e.Kind, e.Field)
}

func (e *ParseError) Is(target error) bool {
	return target == model.ErrMalformedCallback
}

// InterpretJSON decodes body and interprets it. Numbers are kept exact.
func InterpretJSON(body []byte) (model.TransactionOutcome, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var payload map[string]interface{}
	if err := dec.Decode(&payload); err != nil {
		return model.TransactionOutcome{}, &ParseError{Kind: InvalidField, Field: "body"}
	}
	return Interpret(payload)
}

// Interpret extracts the outcome from a decoded webhook payload. Settlement metadata is
// only read for successful results; unknown items and null values are skipped.
func Interpret(payload map[string]interface{}) (model.TransactionOutcome, error) {
	body, err := container(payload, "Body")
	if err != nil {
		return model.TransactionOutcome{}, err
	}
	cb, err := container(body, "stkCallback")
	if err != nil {
		return model.TransactionOutcome{}, err
	}

	checkoutID, err := requiredString(cb, "CheckoutRequestID")
	if err != nil {
		return model.TransactionOutcome{}, err
	}
	if checkoutID == "" {
		return model.TransactionOutcome{}, &ParseError{Kind: InvalidField, Field: "CheckoutRequestID"}
	}

	raw, ok := cb["ResultCode"]
	if !ok || raw == nil {
		return model.TransactionOutcome{}, &ParseError{Kind: MissingField, Field: "ResultCode"}
	}
	code, ok := toInt(raw)
	if !ok {
		return model.TransactionOutcome{}, &ParseError{Kind: InvalidField, Field: "ResultCode"}
	}

	desc, err := requiredString(cb, "ResultDesc")
	if err != nil {
		return model.TransactionOutcome{}, err
	}

	outcome := model.TransactionOutcome{
		CheckoutRequestID: checkoutID,
		ResultCode:        code,
		ResultDesc:        desc,
	}
	if !outcome.Succeeded() {
		return outcome, nil
	}

	readMetadata(&outcome, cb["CallbackMetadata"])
	return outcome, nil
}

// readMetadata fills the settlement fields of a successful outcome. Metadata is
// optional: a malformed container or an unreadable value is logged and skipped, and
// never rejects the callback.
func readMetadata(outcome *model.TransactionOutcome, meta interface{}) {
	if meta == nil {
		return
	}
	entry := logrus.WithField("checkout_request_id", outcome.CheckoutRequestID)

	metaMap, ok := meta.(map[string]interface{})
	if !ok {
		entry.Warn("CallbackMetadata is not an object, settlement fields left unset")
		return
	}
	items, present := metaMap["Item"]
	if !present || items == nil {
		return
	}
	list, ok := items.([]interface{})
	if !ok {
		entry.Warn("CallbackMetadata.Item is not a list, settlement fields left unset")
		return
	}

	for _, it := range list {
		item, ok := it.(map[string]interface{})
		if !ok {
			continue
		}
		name, _ := item["Name"].(string)
		value, present := item["Value"]
		if !present || value == nil {
			continue
		}
		if err := apply(outcome, name, value); err != nil {
			entry.WithError(err).WithField("value", value).Warn("skipping unreadable metadata item")
		}
	}
}

func apply(outcome *model.TransactionOutcome, name string, value interface{}) error {
	switch name {
	case "Amount":
		amount, err := decimal.NewFromString(scalar(value))
		if err != nil {
			return &ParseError{Kind: InvalidField, Field: "Amount"}
		}
		outcome.Amount = &amount
	case "MpesaReceiptNumber":
		outcome.MpesaReceiptNumber = ptr.String(scalar(value))
	case "TransactionDate":
		outcome.TransactionDate = ptr.String(scalar(value))
	case "PhoneNumber":
		outcome.PhoneNumber = ptr.String(scalar(value))
	}
	return nil
}

func container(parent map[string]interface{}, key string) (map[string]interface{}, error) {
	v, ok := parent[key].(map[string]interface{})
	if !ok {
		return nil, &ParseError{Kind: MissingContainer, Field: key}
	}
	return v, nil
}

func requiredString(m map[string]interface{}, key string) (string, error) {
	v, ok := m[key]
	if !ok || v == nil {
		return "", &ParseError{Kind: MissingField, Field: key}
	}
	s, ok := v.(string)
	if !ok {
		return "", &ParseError{Kind: InvalidField, Field: key}
	}
	return s, nil
}

// scalar renders a metadata value as text. Large numbers such as 20240101120000 are
// written out in full, never in exponent form.
func scalar(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case json.Number:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	default:
		return fmt.Sprint(t)
	}
}

// toInt reads a result code. Codes outside the int32 range are rejected.
func toInt(v interface{}) (int, bool) {
	var i int64
	switch t := v.(type) {
	case int:
		i = int64(t)
	case int64:
		i = t
	case float64:
		if t != math.Trunc(t) || t < math.MinInt32 || t > math.MaxInt32 {
			return 0, false
		}
		i = int64(t)
	case json.Number:
		n, err := t.Int64()
		if err != nil {
			f, ferr := t.Float64()
			if ferr != nil || f != math.Trunc(f) || f < math.MinInt32 || f > math.MaxInt32 {
				return 0, false
			}
			n = int64(f)
		}
		i = n
	case string:
		n, err := strconv.ParseInt(t, 10, 32)
		if err != nil {
			return 0, false
		}
		i = n
	default:
		return 0, false
	}
	if i < math.MinInt32 || i > math.MaxInt32 {
		return 0, false
	}
	return int(i), true
}
