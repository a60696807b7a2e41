package events

import (
	"context"
	"encoding/json"
	"time"

	"gamecafe_backend/pkg/utils"

	"github.com/redis/go-redis/v9"
)

// Event types published on booking lifecycle transitions.
const (
	BookingCreated           = "booking.created"
	BookingAssigned          = "booking.assigned"
	BookingCompleted         = "booking.completed"
	BookingCancelled         = "booking.cancelled"
	BookingExtended          = "booking.extended"
	ExtensionPaymentRecorded = "booking.extension_payment"
	OTPVerified              = "booking.otp_verified"
	TerminalStatusChanged    = "terminal.status_changed"
	RefundProcessed          = "refund.processed"
)

// Event is the JSON payload published for every transition.
type Event struct {
	Type      string                 `json:"type"`
	CafeID    int64                  `json:"cafeId"`
	BookingID int64                  `json:"bookingId,omitempty"`
	Terminals []string               `json:"terminals,omitempty"`
	Status    string                 `json:"status,omitempty"`
	At        time.Time              `json:"at"`
	Data      map[string]interface{} `json:"data,omitempty"`
}

// Publisher delivers lifecycle events. Delivery is best effort: failures are
// logged and never fail the operation that produced the event.
type Publisher interface {
	Publish(ctx context.Context, event Event)
}

type redisPublisher struct {
	client  *redis.Client
	channel string
}

// NewRedisPublisher publishes JSON events on a Redis pub/sub channel.
func NewRedisPublisher(client *redis.Client, channel string) Publisher {
	return &redisPublisher{client: client, channel: channel}
}

func (p *redisPublisher) Publish(ctx context.Context, event Event) {
	data, err := json.Marshal(event)
	if err != nil {
		utils.LogError(err, "Failed to marshal event", map[string]interface{}{"type": event.Type})
		return
	}
	if err := p.client.Publish(ctx, p.channel, data).Err(); err != nil {
		utils.LogError(err, "Failed to publish event to Redis", map[string]interface{}{
			"type":       event.Type,
			"channel":    p.channel,
			"booking_id": event.BookingID,
		})
		return
	}
	utils.LogDebug("Event published", map[string]interface{}{"type": event.Type, "channel": p.channel})
}

type logPublisher struct{}

// NewLogPublisher writes events to the debug log only. Used when Redis is not configured.
func NewLogPublisher() Publisher {
	return logPublisher{}
}

func (logPublisher) Publish(_ context.Context, event Event) {
	utils.LogDebug("Event", map[string]interface{}{
		"type":       event.Type,
		"cafe_id":    event.CafeID,
		"booking_id": event.BookingID,
		"terminals":  event.Terminals,
		"status":     event.Status,
	})
}

// NewRedisClient connects to Redis and checks the connection.
func NewRedisClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, err
	}
	return client, nil
}
