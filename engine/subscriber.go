// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/absmach/mqbench/client"
	"github.com/absmach/mqbench/message"
)

type delivery struct {
	payload    []byte
	receivedAt int64
}

// subscriber pairs a connection with its delivery queue. Statistics are written only
// by the consume goroutine.
type subscriber struct {
	index  int
	client client.Client
	queue  chan delivery

	received   int64
	outOfOrder int64
	lastSeq    int64
	latencies  []time.Duration
}

func newSubscriber(index int, c client.Client, size int) *subscriber {
	return &subscriber{
		index:   index,
		client:  c,
		queue:   make(chan delivery, size),
		lastSeq: -1,
	}
}

// enqueue returns the transport callback. It stamps the receipt time and blocks
// while the queue is full, so a slow consumer pushes back on the transport
// instead of losing deliveries.
func (s *subscriber) enqueue(ctx context.Context) client.MessageHandler {
	return func(_ string, payload []byte) {
		d := delivery{payload: payload, receivedAt: message.Now()}
		select {
		case s.queue <- d:
		case <-ctx.Done():
		}
	}
}

// consume processes deliveries until ctx ends, then drains what is already queued.
func (s *subscriber) consume(ctx context.Context, r *run, obs Observer) error {
	for {
		select {
		case <-ctx.Done():
			for {
				select {
				case d := <-s.queue:
					if err := s.handle(d, r, obs); err != nil {
						return err
					}
				default:
					return nil
				}
			}
		case d := <-s.queue:
			if err := s.handle(d, r, obs); err != nil {
				return err
			}
		}
	}
}

func (s *subscriber) handle(d delivery, r *run, obs Observer) error {
	tag, err := message.Decode(d.payload)
	if err != nil {
		return fmt.Errorf("subscriber %d: %w", s.index, err)
	}
	latency := time.Duration(d.receivedAt - tag.Timestamp)
	s.latencies = append(s.latencies, latency)

	// Sequences are per publisher, so with several publishers this only
	// approximates reordering.
	seq := int64(tag.Sequence)
	if seq <= s.lastSeq {
		s.outOfOrder++
	}
	s.lastSeq = seq
	s.received++

	obs.Delivered(latency)
	r.delivered()
	return nil
}
