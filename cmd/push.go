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

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/blnkfinance/stkpush"
	"github.com/blnkfinance/stkpush/model"
)

const (
	pollInterval = 30 * time.Second
	pollTimeout  = 90 * time.Second
)

var errPollTimeout = errors.New("payment did not settle before the poll timeout")

type statusQuerier interface {
	QueryStatus(ctx context.Context, checkoutRequestID string) (*model.StatusResult, error)
}

// pollStatus queries the payment every interval until the gateway reports a final
// result or timeout passes. Query errors are logged and the poll continues.
func pollStatus(ctx context.Context, q statusQuerier, checkoutRequestID string, interval, timeout time.Duration) (*model.StatusResult, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, errPollTimeout
		case <-ticker.C:
		}

		result, err := q.QueryStatus(ctx, checkoutRequestID)
		if err != nil {
			logrus.WithField("checkout_request_id", checkoutRequestID).WithError(err).Warn("status query failed, polling again")
			continue
		}
		if result.Final() {
			return result, nil
		}
		logrus.WithField("checkout_request_id", checkoutRequestID).Info("payment still processing")
	}
}

func printJSON(v interface{}) {
	data, err := json.MarshalIndent(v, "", "    ")
	if err != nil {
		log.Fatalf("Error printing result: %v\n", err)
	}
	fmt.Println(string(data))
}

func pushCommands(b *bridgeInstance) *cobra.Command {
	var (
		phoneNumber string
		amount      string
		description string
	)

	cmd := &cobra.Command{
		Use:   "push",
		Short: "send a payment prompt and wait for the result",
		Run: func(cmd *cobra.Command, args []string) {
			value, err := decimal.NewFromString(amount)
			if err != nil {
				log.Fatalf("invalid amount %q: %v", amount, err)
			}

			ctx := context.Background()
			checkoutID, err := b.bridge.InitiatePayment(ctx, stkpush.PaymentRequest{
				PhoneNumber: phoneNumber,
				Amount:      value,
				Description: description,
			})
			if err != nil {
				log.Fatalf("Error initiating payment: %v", err)
			}
			fmt.Printf("Payment prompt sent. Checkout request id: %s\n", checkoutID)

			result, err := pollStatus(ctx, b.bridge, checkoutID, pollInterval, pollTimeout)
			if err != nil {
				log.Fatalf("Error waiting for payment %s: %v", checkoutID, err)
			}
			printJSON(result)
		},
	}

	cmd.Flags().StringVar(&phoneNumber, "phone", "", "customer phone number, e.g. 0712345678")
	cmd.Flags().StringVar(&amount, "amount", "", "amount in KES")
	cmd.Flags().StringVar(&description, "description", "", "transaction description")
	_ = cmd.MarkFlagRequired("phone")
	_ = cmd.MarkFlagRequired("amount")

	return cmd
}

func statusCommands(b *bridgeInstance) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status [checkout_request_id]",
		Short: "query the status of a payment",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			result, err := b.bridge.QueryStatus(context.Background(), args[0])
			if err != nil {
				log.Fatalf("Error querying status: %v", err)
			}
			printJSON(result)
		},
	}
	return cmd
}
