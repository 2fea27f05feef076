//go:build integration

package ratelimit

import (
	"context"
	"net/http"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupRedis starts a Redis container and returns a client
func setupRedis(t *testing.T) (*redis.Client, func()) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections"),
	}

	redisContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("Failed to start Redis container: %v", err)
	}

	endpoint, err := redisContainer.Endpoint(ctx, "")
	if err != nil {
		t.Fatalf("Failed to get Redis endpoint: %v", err)
	}

	client := redis.NewClient(&redis.Options{
		Addr: endpoint,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		t.Fatalf("Failed to connect to Redis: %v", err)
	}

	cleanup := func() {
		client.Close()
		redisContainer.Terminate(ctx)
	}

	return client, cleanup
}

func TestTracker_Integration_DefaultState(t *testing.T) {
	redisClient, cleanup := setupRedis(t)
	defer cleanup()

	logger := zerolog.New(os.Stderr).Level(zerolog.Disabled)
	tracker := NewTracker(redisClient, logger)

	state, err := tracker.GetState(context.Background())
	if err != nil {
		t.Fatalf("GetState() error = %v", err)
	}
	if !state.IsHealthy {
		t.Error("Expected default state to be healthy")
	}
}

func TestTracker_Integration_SharedAcrossTrackers(t *testing.T) {
	redisClient, cleanup := setupRedis(t)
	defer cleanup()

	logger := zerolog.New(os.Stderr).Level(zerolog.Disabled)
	writer := NewTracker(redisClient, logger)
	reader := NewTracker(redisClient, logger)
	ctx := context.Background()

	reset := time.Now().Add(2 * time.Minute).Unix()
	headers := http.Header{}
	headers.Set(HeaderRemaining, "0")
	headers.Set(HeaderLimit, "5000")
	headers.Set(HeaderReset, strconv.FormatInt(reset, 10))
	headers.Set(HeaderResource, "core")

	if err := writer.UpdateFromHeaders(ctx, headers); err != nil {
		t.Fatalf("UpdateFromHeaders() error = %v", err)
	}

	state, err := reader.GetState(ctx)
	if err != nil {
		t.Fatalf("GetState() error = %v", err)
	}

	if !state.IsExhausted() {
		t.Errorf("Remaining = %d, want exhausted", state.Remaining)
	}
	if state.Limit != 5000 {
		t.Errorf("Limit = %d, want 5000", state.Limit)
	}
	if state.ResetAt.Unix() != reset {
		t.Errorf("ResetAt = %d, want %d", state.ResetAt.Unix(), reset)
	}
	if state.LastUpdate.IsZero() {
		t.Error("LastUpdate should be set")
	}
}
