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
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/blnkfinance/stkpush/model"
)

const publishTimeout = 2 * time.Second

// RedisRelay carries outcomes between bridge instances over a Redis pub/sub channel. It
// adds no durability: messages published while an instance is disconnected are lost.
type RedisRelay struct {
	client  redis.UniversalClient
	channel string
}

func NewRedisRelay(client redis.UniversalClient, channel string) *RedisRelay {
	return &RedisRelay{client: client, channel: channel}
}

func (r *RedisRelay) publish(outcome model.TransactionOutcome) error {
	data, err := json.Marshal(outcome)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	return r.client.Publish(ctx, r.channel, data).Err()
}

// AttachRelay subscribes to the relay channel and, once the subscription is confirmed,
// routes Publish through Redis. Messages from the channel are delivered to local
// subscribers until ctx ends, after which Publish goes back to local delivery.
func (b *Broadcaster) AttachRelay(ctx context.Context, r *RedisRelay) error {
	pubsub := r.client.Subscribe(ctx, r.channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return err
	}

	b.mu.Lock()
	b.relay = r
	b.mu.Unlock()

	go b.pump(ctx, r, pubsub)
	return nil
}

func (b *Broadcaster) pump(ctx context.Context, r *RedisRelay, pubsub *redis.PubSub) {
	defer func() {
		_ = pubsub.Close()
		b.mu.Lock()
		if b.relay == r {
			b.relay = nil
		}
		b.mu.Unlock()
	}()

	messages := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-messages:
			if !ok {
				return
			}
			var outcome model.TransactionOutcome
			if err := json.Unmarshal([]byte(msg.Payload), &outcome); err != nil {
				logrus.WithField("channel", r.channel).WithError(err).Error("dropping undecodable relay message")
				continue
			}
			b.deliver(outcome)
		}
	}
}
