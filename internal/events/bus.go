// Tunedrift - Personality-Aware Music Recommendation Service
// Copyright 2026 Tunedrift Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tunedrift/tunedrift

// Package events carries accepted feedback from the request path to
// asynchronous persistence over a Watermill in-process pub/sub. The
// learner is updated synchronously in the API path; everything durable
// (interaction log, genre aggregates, history, profile counters) hangs
// off this bus so a slow disk never blocks a feedback response.
package events

import (
	"context"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/tunedrift/tunedrift/internal/recommend"
	"github.com/tunedrift/tunedrift/internal/recommend/learner"
)

// FeedbackTopic is the bus topic for accepted feedback events.
const FeedbackTopic = "feedback.accepted"

// feedbackEnvelope is the wire form of an accepted feedback event. The
// track snapshot rides along so consumers never need a catalog lookup.
type feedbackEnvelope struct {
	Event  recommend.InteractionEvent `json:"event"`
	Track  recommend.Track            `json:"track"`
	Reward float64                    `json:"reward"`
}

// InteractionAppender persists one feedback event with its reward.
type InteractionAppender interface {
	Append(ctx context.Context, event recommend.InteractionEvent, t recommend.Track, reward float64) error
}

// InteractionCounter bumps a user's lifetime feedback counter.
type InteractionCounter interface {
	IncrementInteractions(ctx context.Context, userID string) error
}

// PlayRecorder folds play-like feedback into listening history.
type PlayRecorder interface {
	Record(ctx context.Context, userID string, t recommend.Track, playedAt time.Time) error
}

// Bus is the in-process feedback pub/sub. It implements
// recommend.FeedbackPublisher on the producing side; Run drives the
// consuming side.
type Bus struct {
	pubsub   *gochannel.GoChannel
	messages <-chan *message.Message
	logger   zerolog.Logger

	interactions InteractionAppender
	counters     InteractionCounter
	history      PlayRecorder
}

var _ recommend.FeedbackPublisher = (*Bus)(nil)

// NewBus creates the feedback bus and subscribes to the feedback topic
// immediately, so events published before Run starts draining are
// buffered rather than dropped. counters and history may be nil when
// the corresponding persistence is not wired (tests).
//
//nolint:gocritic // hugeParam: zerolog.Logger passed by value per convention
func NewBus(interactions InteractionAppender, counters InteractionCounter, history PlayRecorder, logger zerolog.Logger) (*Bus, error) {
	log := logger.With().Str("component", "events").Logger()

	pubsub := gochannel.NewGoChannel(gochannel.Config{
		// Buffer absorbs feedback bursts without blocking the API path.
		OutputChannelBuffer:            1024,
		Persistent:                     false,
		BlockPublishUntilSubscriberAck: false,
	}, watermill.NopLogger{})

	// The subscription lives for the bus's lifetime; Close tears it down.
	messages, err := pubsub.Subscribe(context.Background(), FeedbackTopic)
	if err != nil {
		return nil, fmt.Errorf("subscribing to %s: %w", FeedbackTopic, err)
	}

	return &Bus{
		pubsub:       pubsub,
		messages:     messages,
		logger:       log,
		interactions: interactions,
		counters:     counters,
		history:      history,
	}, nil
}

// PublishFeedback enqueues an accepted feedback event for persistence.
func (b *Bus) PublishFeedback(event recommend.InteractionEvent, t recommend.Track) error {
	env := feedbackEnvelope{
		Event:  event,
		Track:  t,
		Reward: learner.ShapeReward(event),
	}
	payload, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encoding feedback envelope: %w", err)
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	if err := b.pubsub.Publish(FeedbackTopic, msg); err != nil {
		return fmt.Errorf("publishing feedback event: %w", err)
	}
	return nil
}

// Run consumes feedback events and persists them until ctx is cancelled.
// Persistence failures are logged and the message dropped; feedback is
// advisory data and must never wedge the bus.
func (b *Bus) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-b.messages:
			if !ok {
				return nil
			}
			b.handle(ctx, msg)
			msg.Ack()
		}
	}
}

func (b *Bus) handle(ctx context.Context, msg *message.Message) {
	var env feedbackEnvelope
	if err := json.Unmarshal(msg.Payload, &env); err != nil {
		b.logger.Error().Err(err).Str("message_id", msg.UUID).
			Msg("dropping undecodable feedback event")
		return
	}

	if err := b.interactions.Append(ctx, env.Event, env.Track, env.Reward); err != nil {
		b.logger.Error().Err(err).Str("user_id", env.Event.UserID).
			Msg("failed to persist interaction")
	}

	if b.counters != nil {
		if err := b.counters.IncrementInteractions(ctx, env.Event.UserID); err != nil {
			b.logger.Warn().Err(err).Str("user_id", env.Event.UserID).
				Msg("failed to bump interaction counter")
		}
	}

	// Play-like feedback feeds listening history so the similarity
	// signal keeps up without a separate ingest pipeline.
	if b.history != nil && playLike(env.Event.Kind) {
		if err := b.history.Record(ctx, env.Event.UserID, env.Track, env.Event.Timestamp); err != nil {
			b.logger.Warn().Err(err).Str("user_id", env.Event.UserID).
				Msg("failed to record play in history")
		}
	}
}

func playLike(kind recommend.FeedbackKind) bool {
	switch kind {
	case recommend.FeedbackPlay, recommend.FeedbackRepeat:
		return true
	default:
		return false
	}
}

// Close shuts the pub/sub down, releasing subscribers.
func (b *Bus) Close() error {
	return b.pubsub.Close()
}
