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

package broadcast

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wacul/ptr"

	"github.com/blnkfinance/stkpush/model"
)

func sampleOutcome(id string) model.TransactionOutcome {
	amount := decimal.NewFromInt(500)
	return model.TransactionOutcome{
		CheckoutRequestID:  id,
		ResultCode:         0,
		ResultDesc:         "The service request is processed successfully.",
		Amount:             &amount,
		MpesaReceiptNumber: ptr.String("ABC123"),
	}
}

func TestPublish_DeliversToWaitingSubscriber(t *testing.T) {
	b := New(time.Second)
	sub := b.Subscribe()
	defer sub.Close()

	got := make(chan Event, 1)
	go func() {
		ev, err := sub.Next(context.Background())
		assert.NoError(t, err)
		got <- ev
	}()

	time.Sleep(20 * time.Millisecond)
	want := sampleOutcome("ws_CO_1")
	b.Publish(want)

	select {
	case ev := <-got:
		assert.False(t, ev.KeepAlive)
		assert.Equal(t, want, ev.Outcome)
	case <-time.After(time.Second):
		t.Fatal("outcome not delivered")
	}
}

func TestPublish_FanOutPreservesOrder(t *testing.T) {
	b := New(time.Second)
	first := b.Subscribe()
	second := b.Subscribe()
	defer first.Close()
	defer second.Close()

	for _, id := range []string{"a", "b", "c"} {
		b.Publish(sampleOutcome(id))
	}

	for _, sub := range []*Subscription{first, second} {
		for _, id := range []string{"a", "b", "c"} {
			ev, err := sub.Next(context.Background())
			require.NoError(t, err)
			assert.Equal(t, id, ev.Outcome.CheckoutRequestID)
		}
	}
}

func TestNext_KeepAliveThenStillSubscribed(t *testing.T) {
	b := New(30 * time.Millisecond)
	sub := b.Subscribe()
	defer sub.Close()

	ev, err := sub.Next(context.Background())
	require.NoError(t, err)
	assert.True(t, ev.KeepAlive)
	assert.Equal(t, 1, b.Subscribers())

	b.Publish(sampleOutcome("after-keepalive"))
	ev, err = sub.Next(context.Background())
	require.NoError(t, err)
	assert.False(t, ev.KeepAlive)
	assert.Equal(t, "after-keepalive", ev.Outcome.CheckoutRequestID)
}

func TestSubscribe_LateSubscriberMissesEarlierEvents(t *testing.T) {
	b := New(30 * time.Millisecond)
	b.Publish(sampleOutcome("early"))

	sub := b.Subscribe()
	defer sub.Close()

	ev, err := sub.Next(context.Background())
	require.NoError(t, err)
	assert.True(t, ev.KeepAlive)
}

func TestNext_ContextCancelled(t *testing.T) {
	b := New(time.Minute)
	sub := b.Subscribe()
	defer sub.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := sub.Next(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestClose_Unsubscribes(t *testing.T) {
	b := New(time.Minute)
	sub := b.Subscribe()
	assert.Equal(t, 1, b.Subscribers())

	sub.Close()
	sub.Close()
	assert.Equal(t, 0, b.Subscribers())

	b.Publish(sampleOutcome("ignored"))
	_, err := sub.Next(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
}

func TestClose_WakesBlockedNext(t *testing.T) {
	b := New(time.Minute)
	sub := b.Subscribe()

	done := make(chan error, 1)
	go func() {
		_, err := sub.Next(context.Background())
		done <- err
	}()

	time.Sleep(20 * time.Millisecond)
	sub.Close()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrClosed)
	case <-time.After(time.Second):
		t.Fatal("Next did not return after Close")
	}
}

func TestPublish_ConcurrentPublishers(t *testing.T) {
	b := New(time.Second)
	sub := b.Subscribe()
	defer sub.Close()

	const publishers, each = 8, 25
	var wg sync.WaitGroup
	for i := 0; i < publishers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < each; j++ {
				b.Publish(sampleOutcome("ws_CO"))
			}
		}()
	}
	wg.Wait()

	for i := 0; i < publishers*each; i++ {
		ev, err := sub.Next(context.Background())
		require.NoError(t, err)
		require.False(t, ev.KeepAlive)
	}
}

func TestNew_DefaultIdle(t *testing.T) {
	assert.Equal(t, DefaultKeepAlive, New(0).idle)
}

func TestRedisRelay_DeliversAcrossBroadcasters(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	newRelayed := func() *Broadcaster {
		client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		t.Cleanup(func() { _ = client.Close() })
		b := New(time.Second)
		require.NoError(t, b.AttachRelay(ctx, NewRedisRelay(client, "stkpush:outcomes")))
		return b
	}

	publisher := newRelayed()
	receiver := newRelayed()

	local := publisher.Subscribe()
	remote := receiver.Subscribe()
	defer local.Close()
	defer remote.Close()

	want := sampleOutcome("ws_CO_relay")
	publisher.Publish(want)

	for _, sub := range []*Subscription{local, remote} {
		ev, err := sub.Next(ctx)
		require.NoError(t, err)
		require.False(t, ev.KeepAlive)
		assert.Equal(t, want.CheckoutRequestID, ev.Outcome.CheckoutRequestID)
		assert.True(t, want.Amount.Equal(*ev.Outcome.Amount))
		assert.Equal(t, "ABC123", *ev.Outcome.MpesaReceiptNumber)
	}
}

func TestRedisRelay_FallsBackToLocalWhenRedisDown(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer func() { _ = client.Close() }()

	b := New(time.Second)
	require.NoError(t, b.AttachRelay(ctx, NewRedisRelay(client, "stkpush:outcomes")))

	sub := b.Subscribe()
	defer sub.Close()

	mr.Close()
	b.Publish(sampleOutcome("ws_CO_local"))

	ev, err := sub.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, "ws_CO_local", ev.Outcome.CheckoutRequestID)
}
