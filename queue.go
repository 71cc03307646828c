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
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/blnkfinance/stkpush/config"
	redis_db "github.com/blnkfinance/stkpush/internal/redis-db"
	"github.com/blnkfinance/stkpush/model"
)

// Queue schedules deferred status checks on asynq.
type Queue struct {
	Client    *asynq.Client
	Inspector *asynq.Inspector
	name      string
	delay     time.Duration
	maxRetry  int
}

// StatusCheckPayload is the task body for a deferred status check.
type StatusCheckPayload struct {
	CheckoutRequestID string `json:"checkout_request_id"`
}

func NewQueue(conf *config.Configuration) (*Queue, error) {
	queueOptions, err := redis_db.QueueOptions(conf.Redis.Dns, conf.Redis.SkipTLSVerify)
	if err != nil {
		return nil, err
	}

	return &Queue{
		Client:    asynq.NewClient(queueOptions),
		Inspector: asynq.NewInspector(queueOptions),
		name:      conf.Queue.StatusQueue,
		delay:     time.Duration(conf.Queue.StatusCheckDelaySeconds) * time.Second,
		maxRetry:  conf.Queue.StatusCheckMaxRetry,
	}, nil
}

func statusTaskID(checkoutRequestID string) string {
	return fmt.Sprintf("status_%s", checkoutRequestID)
}

// EnqueueStatusCheck schedules one status check for checkoutRequestID after the
// configured delay. Scheduling the same id twice is a no-op.
func (q *Queue) EnqueueStatusCheck(ctx context.Context, checkoutRequestID string) error {
	ctx, span := tracer.Start(ctx, "Adding status check to queue")
	defer span.End()

	payload, err := json.Marshal(StatusCheckPayload{CheckoutRequestID: checkoutRequestID})
	if err != nil {
		return err
	}

	task := asynq.NewTask(q.name, payload,
		asynq.TaskID(statusTaskID(checkoutRequestID)),
		asynq.Queue(q.name),
		asynq.ProcessIn(q.delay),
		asynq.MaxRetry(q.maxRetry),
	)
	info, err := q.Client.EnqueueContext(ctx, task)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		return nil
	}
	if err != nil {
		span.RecordError(err)
		return err
	}

	logrus.WithFields(logrus.Fields{
		"checkout_request_id": checkoutRequestID,
		"queue":               info.Queue,
		"process_at":          info.NextProcessAt,
	}).Info("status check scheduled")
	return nil
}

// ProcessStatusCheck is the asynq handler for deferred status checks. When no callback
// has been stored for the checkout request and the gateway reports a final result, the
// result is recorded as the outcome. Results that are still processing are retried by
// asynq.
func (b *Bridge) ProcessStatusCheck(ctx context.Context, t *asynq.Task) error {
	var payload StatusCheckPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil || payload.CheckoutRequestID == "" {
		return fmt.Errorf("invalid status check payload: %v: %w", err, asynq.SkipRetry)
	}

	entry := logrus.WithField("checkout_request_id", payload.CheckoutRequestID)

	existing, err := b.datasource.GetOutcomesByCheckoutID(ctx, payload.CheckoutRequestID)
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		entry.Info("outcome already recorded, skipping status check")
		return nil
	}

	result, err := b.gateway.QueryStatus(ctx, payload.CheckoutRequestID)
	if err != nil {
		if errors.Is(err, model.ErrGatewayUnavailable) {
			return err
		}
		entry.WithError(err).Error("status check failed")
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}
	if !result.Final() {
		return fmt.Errorf("transaction %s is still being processed", payload.CheckoutRequestID)
	}

	outcome := result.ToOutcome()
	if _, err := b.RecordOutcome(ctx, &outcome); err != nil {
		return err
	}
	entry.WithField("result_code", outcome.ResultCode).Info("outcome recorded from status check")
	return nil
}
