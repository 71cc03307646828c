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

	"github.com/blnkfinance/stkpush/model"
)

// IDataSource is the append-only store of transaction outcomes.
type IDataSource interface {
	outcome
}

type outcome interface {
	AppendOutcome(ctx context.Context, outcome *model.TransactionOutcome) (*model.TransactionOutcome, error) // Stores a new outcome row, never updating existing ones
	GetOutcomesByCheckoutID(ctx context.Context, checkoutRequestID string) ([]model.TransactionOutcome, error)
	ListOutcomes(ctx context.Context, limit, offset int) ([]model.TransactionOutcome, error)
}
