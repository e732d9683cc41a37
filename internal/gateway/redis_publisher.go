package gateway

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// pubsubChannel is the single Valkey channel every gateway process subscribes
// to for cross-process fan-out. Messages are tagged with their page so a
// receiving process can resolve its own local audience rather than trusting
// the publisher's.
const pubsubChannel = "gateway:broadcast"

type wireMessage struct {
	Origin    uuid.UUID       `json:"origin"`
	PageID    uuid.UUID       `json:"page_id"`
	FrameType string          `json:"frame_type"`
	Frame     json.RawMessage `json:"frame"`
}

// RedisPublisher fans broadcasts out to every other gateway process sharing
// the same Valkey deployment, so that a user's sessions connected to
// different processes all observe the same events. A gateway run as a single
// process can omit this entirely; Broadcaster tolerates a nil Publisher.
type RedisPublisher struct {
	rdb    *redis.Client
	origin uuid.UUID
	log    zerolog.Logger
}

// NewRedisPublisher wraps an existing client. It does not own the client's
// lifecycle. Each instance gets a random origin ID so Subscribe can recognize
// and drop its own published messages: the Broadcaster already delivers to
// this process's local sessions directly, so re-delivering the echo off
// Valkey would hand every local session a duplicate frame.
func NewRedisPublisher(rdb *redis.Client, logger zerolog.Logger) *RedisPublisher {
	return &RedisPublisher{rdb: rdb, origin: uuid.New(), log: logger.With().Str("component", "gateway_publisher").Logger()}
}

// Publish implements Publisher.
func (p *RedisPublisher) Publish(ctx context.Context, pageID uuid.UUID, frameType string, frame []byte) error {
	data, err := json.Marshal(wireMessage{Origin: p.origin, PageID: pageID, FrameType: frameType, Frame: frame})
	if err != nil {
		return fmt.Errorf("marshal pubsub message: %w", err)
	}
	return p.rdb.Publish(ctx, pubsubChannel, data).Err()
}

// Subscribe runs until ctx is cancelled, delivering every message this
// process did not itself publish to onMessage. Started once per process
// alongside the Hub (Hub.RunSubscriber); onMessage is typically
// Hub.broadcaster.deliver-equivalent logic scoped to this process's own
// SessionRegistry, so call sites pass a function that re-resolves the
// audience against the local Store and registry rather than trusting the
// publishing process's view.
func (p *RedisPublisher) Subscribe(ctx context.Context, onMessage func(pageID uuid.UUID, frameType string, frame []byte)) error {
	sub := p.rdb.Subscribe(ctx, pubsubChannel)
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var wm wireMessage
			if err := json.Unmarshal([]byte(msg.Payload), &wm); err != nil {
				p.log.Warn().Err(err).Msg("dropping malformed pubsub message")
				continue
			}
			if wm.Origin == p.origin {
				continue
			}
			onMessage(wm.PageID, wm.FrameType, wm.Frame)
		}
	}
}
