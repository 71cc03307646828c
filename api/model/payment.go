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
	"errors"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/shopspring/decimal"

	"github.com/blnkfinance/stkpush"
)

// InitiatePayment is the body of POST /payments.
type InitiatePayment struct {
	PhoneNumber    string          `json:"phone_number"`
	Amount         decimal.Decimal `json:"amount"`
	Description    string          `json:"description"`
	RecaptchaToken string          `json:"recaptcha_token"`
}

func positiveAmount(value interface{}) error {
	amount, ok := value.(decimal.Decimal)
	if !ok || !amount.IsPositive() {
		return errors.New("must be greater than zero")
	}
	return nil
}

func (p *InitiatePayment) ValidateInitiatePayment() error {
	return validation.ValidateStruct(p,
		validation.Field(&p.PhoneNumber, validation.Required, validation.Length(9, 20)),
		validation.Field(&p.Amount, validation.By(positiveAmount)),
		validation.Field(&p.Description, validation.Length(0, 100)),
	)
}

func (p *InitiatePayment) ToPaymentRequest(remoteIP string) stkpush.PaymentRequest {
	return stkpush.PaymentRequest{
		PhoneNumber:    p.PhoneNumber,
		Amount:         p.Amount,
		Description:    p.Description,
		RecaptchaToken: p.RecaptchaToken,
		RemoteIP:       remoteIP,
	}
}
