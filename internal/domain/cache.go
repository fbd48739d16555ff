package domain

import (
	"context"
	"time"
)

// PriceCache holds the last seen price per token for other processes and
// dashboards.
type PriceCache interface {
	SetPrice(ctx context.Context, token string, price float64, ts time.Time) error
	GetPrice(ctx context.Context, token string) (float64, time.Time, error)
	GetPrices(ctx context.Context, tokens []string) (map[string]float64, error)
}

// RateLimiter provides distributed rate limiting.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
	Wait(ctx context.Context, key string) error
}

// LockManager provides distributed locking.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// StreamMessage represents a single entry from a stream.
type StreamMessage struct {
	ID      string
	Payload []byte
}

// SignalBus provides pub/sub and durable streams.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	StreamAppend(ctx context.Context, stream string, payload []byte) error
	StreamRead(ctx context.Context, stream string, lastID string, count int) ([]StreamMessage, error)
	// StreamTail returns the newest count entries, oldest first.
	StreamTail(ctx context.Context, stream string, count int) ([]StreamMessage, error)
}

// Bus channels carrying loop events.
const (
	ChannelCycles    = "cycles"
	ChannelPositions = "positions"
	StreamExecutions = "executions"
)

// Event is the envelope published on the signal bus.
type Event struct {
	Type    string    `json:"type"`
	At      time.Time `json:"at"`
	Payload any       `json:"payload"`
}
