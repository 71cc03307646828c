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

package stkpush

import (
	"context"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"

	"github.com/blnkfinance/stkpush/model"
)

// MockGateway is a testify mock of PaymentGateway.
type MockGateway struct {
	mock.Mock
}

func (m *MockGateway) InitiatePayment(ctx context.Context, phoneNumber string, amount decimal.Decimal, description string) (string, error) {
	args := m.Called(ctx, phoneNumber, amount, description)
	return args.String(0), args.Error(1)
}

func (m *MockGateway) QueryStatus(ctx context.Context, checkoutRequestID string) (*model.StatusResult, error) {
	args := m.Called(ctx, checkoutRequestID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.StatusResult), args.Error(1)
}
