//go:build integration

package redis

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/alanyoungcy/memebot/internal/domain"
)

func setupRedis(t *testing.T) *Client {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	addr, err := container.Endpoint(ctx, "")
	require.NoError(t, err)

	c, err := New(ctx, ClientConfig{Addr: addr, Namespace: "memebot:test"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestLockManager_Exclusive(t *testing.T) {
	c := setupRedis(t)
	ctx := context.Background()
	lm := NewLockManager(c, slog.New(slog.NewTextHandler(io.Discard, nil)))

	unlock, err := lm.Acquire(ctx, "wallet:0xabc", 300*time.Millisecond)
	require.NoError(t, err)

	_, err = lm.Acquire(ctx, "wallet:0xabc", time.Second)
	assert.ErrorIs(t, err, domain.ErrLockHeld)

	// Held past its TTL: the keepalive must have extended it.
	time.Sleep(700 * time.Millisecond)
	_, err = lm.Acquire(ctx, "wallet:0xabc", time.Second)
	assert.ErrorIs(t, err, domain.ErrLockHeld)

	unlock()
	unlock()

	again, err := lm.Acquire(ctx, "wallet:0xabc", time.Second)
	require.NoError(t, err)
	again()
}

func TestPriceCache_RoundTrip(t *testing.T) {
	c := setupRedis(t)
	ctx := context.Background()
	pc := NewPriceCache(c)
	ts := time.Now().UTC().Truncate(time.Microsecond)

	require.NoError(t, pc.SetPrice(ctx, "0xAbC", 0.0042, ts))

	price, got, err := pc.GetPrice(ctx, "0xabc")
	require.NoError(t, err)
	assert.InDelta(t, 0.0042, price, 1e-12)
	assert.True(t, got.Equal(ts))

	_, _, err = pc.GetPrice(ctx, "0xdead")
	assert.True(t, errors.Is(err, domain.ErrNotFound))

	prices, err := pc.GetPrices(ctx, []string{"0xabc", "0xdead"})
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{"0xabc": 0.0042}, prices)

	ttl, err := c.Underlying().TTL(ctx, c.key("price", "0xabc")).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Hour)
}

func TestRateLimiter_SlidingWindow(t *testing.T) {
	c := setupRedis(t)
	ctx := context.Background()
	rl := NewRateLimiter(c, 2, 200*time.Millisecond)

	for i := 0; i < 3; i++ {
		ok, err := rl.Allow(ctx, "api:127.0.0.1", 3, time.Minute)
		require.NoError(t, err)
		assert.True(t, ok, "request %d", i)
	}
	ok, err := rl.Allow(ctx, "api:127.0.0.1", 3, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, rl.Wait(ctx, "dexscreener"))
	require.NoError(t, rl.Wait(ctx, "dexscreener"))

	short, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, rl.Wait(short, "dexscreener"), domain.ErrRateLimited)

	require.NoError(t, rl.Wait(ctx, "dexscreener"))
}

func TestSignalBus_PublishAndStream(t *testing.T) {
	c := setupRedis(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	bus := NewSignalBus(c)

	ch, err := bus.Subscribe(ctx, "*")
	require.NoError(t, err)
	require.NoError(t, bus.Publish(ctx, domain.ChannelCycles, []byte(`{"type":"cycle_completed"}`)))

	select {
	case msg := <-ch:
		assert.JSONEq(t, `{"type":"cycle_completed"}`, string(msg))
	case <-time.After(5 * time.Second):
		t.Fatal("no message received")
	}

	msgs, err := bus.StreamRead(ctx, domain.StreamExecutions, "0", 10)
	require.NoError(t, err)
	assert.Empty(t, msgs)

	require.NoError(t, bus.StreamAppend(ctx, domain.StreamExecutions, []byte("a")))
	require.NoError(t, bus.StreamAppend(ctx, domain.StreamExecutions, []byte("b")))

	msgs, err = bus.StreamRead(ctx, domain.StreamExecutions, "0", 10)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, []byte("a"), msgs[0].Payload)

	require.NoError(t, bus.StreamAppend(ctx, domain.StreamExecutions, []byte("c")))
	tail, err := bus.StreamTail(ctx, domain.StreamExecutions, 2)
	require.NoError(t, err)
	require.Len(t, tail, 2)
	assert.Equal(t, []byte("b"), tail[0].Payload)
	assert.Equal(t, []byte("c"), tail[1].Payload)

	n, err := c.Underlying().XLen(ctx, c.key("stream", domain.StreamExecutions)).Result()
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)
}
