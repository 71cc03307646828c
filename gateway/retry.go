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

package gateway

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryPolicy runs an operation up to MaxAttempts times, waiting a fixed Delay
// between attempts. Attempts are strictly sequential.
type RetryPolicy struct {
	MaxAttempts int
	Delay       time.Duration
}

// DefaultQueryRetry is the policy applied to status queries.
var DefaultQueryRetry = RetryPolicy{MaxAttempts: 3, Delay: 10 * time.Second}

// Do calls op until it succeeds, the attempts are exhausted or ctx is done. op receives
// the 1-based attempt number. The error of the last attempt is returned, or ctx.Err()
// when the context ended first.
func (p RetryPolicy) Do(ctx context.Context, op func(attempt int) error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var b backoff.BackOff = backoff.NewConstantBackOff(p.Delay)
	b = backoff.WithMaxRetries(b, uint64(attempts-1))
	b = backoff.WithContext(b, ctx)

	attempt := 0
	return backoff.Retry(func() error {
		if err := ctx.Err(); err != nil {
			return backoff.Permanent(err)
		}
		attempt++
		return op(attempt)
	}, b)
}
