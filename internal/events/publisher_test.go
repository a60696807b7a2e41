package events

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
)

func TestRedisPublisher_UnreachableServerDoesNotFail(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer client.Close()

	p := NewRedisPublisher(client, "gamecafe:test")

	assert.NotPanics(t, func() {
		p.Publish(context.Background(), Event{Type: BookingAssigned, CafeID: 1, BookingID: 2, Terminals: []string{"PC-1"}})
	})
}

func TestNewRedisClient_Unreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, err := NewRedisClient(ctx, "127.0.0.1:1", "", 0)
	assert.Error(t, err)
}

func TestLogPublisher(t *testing.T) {
	assert.NotPanics(t, func() {
		NewLogPublisher().Publish(context.Background(), Event{Type: BookingCompleted, CafeID: 1, BookingID: 2})
	})
}
