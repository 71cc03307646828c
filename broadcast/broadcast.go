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

// Package broadcast fans stored transaction outcomes out to live stream subscribers.
// Delivery is best-effort and in memory: subscribers only see outcomes published while
// they are subscribed, and nothing survives a restart.
package broadcast

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/blnkfinance/stkpush/model"
)

// DefaultKeepAlive is the idle window after which a waiting subscriber gets a keep-alive.
const DefaultKeepAlive = 10 * time.Second

// ErrClosed is returned by Next once the subscription has been closed.
var ErrClosed = errors.New("subscription closed")

// Event is what a subscriber receives: either an outcome or a keep-alive marker.
type Event struct {
	Outcome   model.TransactionOutcome
	KeepAlive bool
}

type Broadcaster struct {
	idle time.Duration

	mu    sync.Mutex
	subs  map[*Subscription]struct{}
	relay *RedisRelay
}

// New creates a broadcaster. A non-positive idle window falls back to DefaultKeepAlive.
func New(idle time.Duration) *Broadcaster {
	if idle <= 0 {
		idle = DefaultKeepAlive
	}
	return &Broadcaster{idle: idle, subs: make(map[*Subscription]struct{})}
}

// Publish hands outcome to every live subscriber. With a relay attached the outcome goes
// through Redis so subscribers on every instance receive it.
func (b *Broadcaster) Publish(outcome model.TransactionOutcome) {
	b.mu.Lock()
	relay := b.relay
	b.mu.Unlock()

	if relay != nil {
		err := relay.publish(outcome)
		if err == nil {
			return
		}
		logrus.WithField("checkout_request_id", outcome.CheckoutRequestID).
			WithError(err).Warn("relay publish failed, delivering locally")
	}
	b.deliver(outcome)
}

func (b *Broadcaster) deliver(outcome model.TransactionOutcome) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for s := range b.subs {
		s.push(outcome)
	}
}

// Subscribe registers a new subscriber. It receives only outcomes published from now on.
func (b *Broadcaster) Subscribe() *Subscription {
	s := &Subscription{b: b, notify: make(chan struct{}, 1)}
	b.mu.Lock()
	b.subs[s] = struct{}{}
	b.mu.Unlock()
	return s
}

// Subscribers reports the number of live subscriptions.
func (b *Broadcaster) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

func (b *Broadcaster) remove(s *Subscription) {
	b.mu.Lock()
	delete(b.subs, s)
	b.mu.Unlock()
}

// Subscription is a single subscriber's unbounded FIFO of outcomes.
type Subscription struct {
	b      *Broadcaster
	notify chan struct{}

	mu     sync.Mutex
	queue  []model.TransactionOutcome
	closed bool
}

func (s *Subscription) push(outcome model.TransactionOutcome) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.queue = append(s.queue, outcome)
	s.mu.Unlock()
	s.signal()
}

func (s *Subscription) signal() {
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

func (s *Subscription) pop() (model.TransactionOutcome, bool, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) > 0 {
		o := s.queue[0]
		s.queue[0] = model.TransactionOutcome{}
		s.queue = s.queue[1:]
		return o, true, s.closed
	}
	return model.TransactionOutcome{}, false, s.closed
}

// Next blocks until an outcome is available, the idle window passes or ctx ends. An idle
// window with nothing published yields a keep-alive event; the subscription stays live.
func (s *Subscription) Next(ctx context.Context) (Event, error) {
	timer := time.NewTimer(s.b.idle)
	defer timer.Stop()

	for {
		outcome, ok, closed := s.pop()
		if ok {
			return Event{Outcome: outcome}, nil
		}
		if closed {
			return Event{}, ErrClosed
		}

		select {
		case <-s.notify:
		case <-timer.C:
			return Event{KeepAlive: true}, nil
		case <-ctx.Done():
			return Event{}, ctx.Err()
		}
	}
}

// Close unsubscribes. Pending outcomes are dropped.
func (s *Subscription) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.queue = nil
	s.mu.Unlock()

	s.b.remove(s)
	s.signal()
}
