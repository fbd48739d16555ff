package redis

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestClient_KeyNamespace(t *testing.T) {
	c := &Client{ns: "memebot:ethereum"}
	assert.Equal(t, "memebot:ethereum:lock:wallet:0xabc", c.key("lock", "wallet:0xabc"))

	bare := &Client{}
	assert.Equal(t, "price:0xabc", bare.key("price", "0xabc"))
}

func TestParsePrice(t *testing.T) {
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	price, got, ok := parsePrice([]any{"0.00125", "1772366400000000000"})
	assert.True(t, ok)
	assert.InDelta(t, 0.00125, price, 1e-12)
	assert.True(t, got.Equal(ts))

	for name, vals := range map[string][]any{
		"missing":   {nil, nil},
		"bad price": {"abc", "1"},
		"bad ts":    {"1", "x"},
		"short":     {"1"},
	} {
		t.Run(name, func(t *testing.T) {
			_, _, ok := parsePrice(vals)
			assert.False(t, ok)
		})
	}
}
