package services

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"attendance-backend/internal/models"
	"attendance-backend/internal/worker"
)

const (
	EventKeyRotated   = "key_rotated"
	EventSessionEnded = "session_ended"
)

// RotationPublisher fans rotation events out over Redis pub/sub so every
// server instance can refresh the codes shown on its connected displays.
type RotationPublisher struct {
	redis *redis.Client
}

func NewRotationPublisher(redisClient *redis.Client) *RotationPublisher {
	return &RotationPublisher{redis: redisClient}
}

// ObserveTick implements worker.TickObserver.
func (p *RotationPublisher) ObserveTick(ctx context.Context, result worker.TickResult) {
	switch result.Status {
	case worker.TickSuccess:
		p.PublishRotation(ctx, result.SessionID, "scheduler", result.RotatedAt)
	case worker.TickDisarmed:
		p.publish(ctx, result.SessionID, models.WSMessage{
			Type:    EventSessionEnded,
			Payload: models.SessionEndedEvent{SessionID: result.SessionID},
		})
	}
}

func (p *RotationPublisher) PublishRotation(ctx context.Context, sessionID uuid.UUID, source string, rotatedAt time.Time) {
	p.publish(ctx, sessionID, models.WSMessage{
		Type: EventKeyRotated,
		Payload: models.RotationEvent{
			SessionID: sessionID,
			Source:    source,
			RotatedAt: rotatedAt.UnixMilli(),
		},
	})
}

func (p *RotationPublisher) publish(ctx context.Context, sessionID uuid.UUID, msg models.WSMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	if err := p.redis.Publish(ctx, models.SessionUpdatesChannel(sessionID), string(data)).Err(); err != nil {
		log.Printf("publisher: %s for session %s not delivered: %v", msg.Type, sessionID, err)
	}
}
