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

package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/blnkfinance/stkpush/model"
)

// MockDataSource is a mock implementation of the IDataSource interface
type MockDataSource struct {
	mock.Mock
}

func (m *MockDataSource) AppendOutcome(ctx context.Context, outcome *model.TransactionOutcome) (*model.TransactionOutcome, error) {
	args := m.Called(ctx, outcome)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.TransactionOutcome), args.Error(1)
}

func (m *MockDataSource) GetOutcomesByCheckoutID(ctx context.Context, checkoutRequestID string) ([]model.TransactionOutcome, error) {
	args := m.Called(ctx, checkoutRequestID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.TransactionOutcome), args.Error(1)
}

func (m *MockDataSource) ListOutcomes(ctx context.Context, limit, offset int) ([]model.TransactionOutcome, error) {
	args := m.Called(ctx, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.TransactionOutcome), args.Error(1)
}
