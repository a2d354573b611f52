package service

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/khdrvss/co-found-sub000/internal/metrics"
	"github.com/khdrvss/co-found-sub000/internal/model"

	"github.com/redis/go-redis/v9"
)

const fanoutChannel = "cofound:events"

// fanoutEnvelope is what travels on the shared pub/sub channel.
type fanoutEnvelope struct {
	Room  string       `json:"room"`
	Event *model.Event `json:"event"`
}

// Fanout bridges room-targeted emits across server processes. Every emit
// is published on a shared Redis channel; every process subscribes and
// re-delivers locally to whatever connections it holds. Without Redis
// (or while it is down) delivery is process-local only and the polling
// endpoints bound the staleness window.
type Fanout struct {
	rdb *redis.Client
	hub *Hub

	cancel context.CancelFunc
}

func NewFanout(rdb *redis.Client, hub *Hub) *Fanout {
	f := &Fanout{rdb: rdb, hub: hub}
	if rdb == nil {
		metrics.FanoutDegraded.Set(1)
		log.Printf("[Fanout] WARNING: no pub/sub bridge, events reach locally-connected users only")
	}
	return f
}

// Start launches the subscriber loop. No-op without a Redis client.
func (f *Fanout) Start() {
	if f.rdb == nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	f.cancel = cancel

	go f.subscribe(ctx)
}

func (f *Fanout) Stop() {
	if f.cancel != nil {
		f.cancel()
	}
}

func (f *Fanout) subscribe(ctx context.Context) {
	for {
		pubsub := f.rdb.Subscribe(ctx, fanoutChannel)
		ch := pubsub.Channel()
		metrics.FanoutDegraded.Set(0)

	recv:
		for {
			select {
			case msg, ok := <-ch:
				if !ok {
					break recv
				}
				var env fanoutEnvelope
				if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil || env.Event == nil {
					log.Printf("[Fanout] dropping malformed envelope: %v", err)
					continue
				}
				f.hub.Deliver(env.Room, env.Event)
			case <-ctx.Done():
				_ = pubsub.Close()
				return
			}
		}

		_ = pubsub.Close()
		metrics.FanoutDegraded.Set(1)
		log.Printf("[Fanout] WARNING: subscription lost, local-only delivery until reconnect")

		select {
		case <-time.After(2 * time.Second):
		case <-ctx.Done():
			return
		}
	}
}

// Emit routes an event to a room. With a healthy bridge the publish
// round-trips through Redis and our own subscription handles local
// delivery; on failure we fall back to direct local delivery so users on
// this process still get the event.
func (f *Fanout) Emit(room string, event *model.Event) {
	if f.rdb == nil {
		f.hub.Deliver(room, event)
		return
	}

	payload, err := json.Marshal(fanoutEnvelope{Room: room, Event: event})
	if err != nil {
		log.Printf("[Fanout] encode envelope: %v", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := f.rdb.Publish(ctx, fanoutChannel, payload).Err(); err != nil {
		log.Printf("[Fanout] WARNING: publish failed, delivering locally only: %v", err)
		f.hub.Deliver(room, event)
	}
}

// Broadcast sends an event to every connected user on every process.
func (f *Fanout) Broadcast(event *model.Event) {
	// Broadcast reuses the room channel with a reserved name.
	f.Emit(broadcastRoom, event)
}

const broadcastRoom = "*"
