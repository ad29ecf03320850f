package redis_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/jonesrussell/north-cloud/veritas/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/veritas/infrastructure/redis"
	"github.com/jonesrussell/north-cloud/veritas/infrastructure/retry"
)

func TestNewClient_ReturnsNilWhenAddressEmpty(t *testing.T) {
	client, err := redis.NewClient(redis.Config{Address: ""})

	if err == nil {
		t.Error("expected error for empty address")
	}
	if client != nil {
		t.Error("expected nil client for invalid config")
	}
}

func TestNewClient_ConnectsToRedis(t *testing.T) {
	mr := miniredis.RunT(t)

	client, err := redis.NewClient(redis.Config{Address: mr.Addr()})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if pingErr := client.Ping(ctx).Err(); pingErr != nil {
		t.Errorf("ping failed: %v", pingErr)
	}
}

func TestConnect_GivesUpAfterRetries(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	cfg := retry.Config{MaxAttempts: 2, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond}
	client, err := redis.Connect(context.Background(), redis.Config{Address: addr}, cfg, logger.NewNop())
	if err == nil {
		_ = client.Close()
		t.Fatal("expected error when redis is down")
	}
}

func TestConnect_Succeeds(t *testing.T) {
	mr := miniredis.RunT(t)

	client, err := redis.Connect(context.Background(), redis.Config{Address: mr.Addr()}, retry.DefaultConfig(), logger.NewNop())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer client.Close()
}
