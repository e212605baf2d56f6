package publisher

import (
	"context"
	"encoding/base64"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
)

// This test requires a running Redis instance
// If Redis is not available, the test will be skipped
func TestRedisPublisher(t *testing.T) {
	ctx := context.Background()
	publisher := NewRedisPublisher(ctx, "localhost:6379", 0, "test_promotions", 1, 10)
	defer publisher.Close()

	client := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
		DB:   0,
	})
	defer client.Close()

	// Test if Redis is available
	if _, err := client.Ping(ctx).Result(); err != nil {
		t.Skip("Redis is not available, skipping test")
	}
	defer client.Del(ctx, "test_promotions:0")

	payload := []byte(`{"dedupe_key":"mercadolivre#MLB123#100.5"}`)
	err := publisher.Publish("mercadolivre", payload)
	assert.NoError(t, err)

	// With streamCount 1 everything lands on stream :0
	messages, err := client.XRange(ctx, "test_promotions:0", "-", "+").Result()
	assert.NoError(t, err)
	assert.Len(t, messages, 1)

	encoded := messages[0].Values["mercadolivre"].(string)
	decoded, err := base64.StdEncoding.DecodeString(encoded)
	assert.NoError(t, err)
	assert.Equal(t, payload, decoded)

	// Trimming keeps the stream bounded
	for i := 0; i < 20; i++ {
		assert.NoError(t, publisher.Publish("mercadolivre", payload))
	}
	assert.NoError(t, publisher.TrimStreams())

	length, err := client.XLen(ctx, "test_promotions:0").Result()
	assert.NoError(t, err)
	assert.LessOrEqual(t, length, int64(10))
}
