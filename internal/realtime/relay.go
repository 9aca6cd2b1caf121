package realtime

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const relayPrefix = "events:"

// Relay routes events through redis pub/sub so a user connected to another
// instance still receives them. Each instance runs one subscriber that feeds
// its local hub.
type Relay struct {
	hub *Hub
	rdb *redis.Client
	log *zap.SugaredLogger
}

func NewRelay(hub *Hub, rdb *redis.Client, log *zap.SugaredLogger) *Relay {
	return &Relay{hub: hub, rdb: rdb, log: log}
}

func relayChannel(userID uuid.UUID) string { return relayPrefix + userID.String() }

// SendToUser publishes to redis and falls back to local delivery when the
// publish fails.
func (r *Relay) SendToUser(userID uuid.UUID, data any) {
	payload, err := json.Marshal(data)
	if err != nil {
		r.log.Errorw("marshal realtime payload", "error", err)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := r.rdb.Publish(ctx, relayChannel(userID), payload).Err(); err != nil {
		r.log.Warnw("redis publish failed, delivering locally", "user", userID, "error", err)
		r.hub.deliver(userID, payload)
	}
}

// Run forwards published events to the local hub until ctx is done.
func (r *Relay) Run(ctx context.Context) {
	sub := r.rdb.PSubscribe(ctx, relayPrefix+"*")
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				r.log.Warn("redis relay subscription closed")
				return
			}
			userID, err := uuid.Parse(strings.TrimPrefix(msg.Channel, relayPrefix))
			if err != nil {
				continue
			}
			r.hub.deliver(userID, []byte(msg.Payload))
		}
	}
}
