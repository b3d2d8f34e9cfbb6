package semcache

import (
	"context"
	"encoding/binary"
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseHit(t *testing.T) {
	t.Run("within threshold", func(t *testing.T) {
		fields := map[string]string{
			"response": "cached answer",
			"metadata": `{"abc":{"title":"Avatar","score":7.6}}`,
			"distance": "0.05",
		}

		hit, ok := parseHit("ragpilot:cache:deadbeef", fields, 0.1)
		require.True(t, ok)
		assert.Equal(t, "ragpilot:cache:deadbeef", hit.ID)
		assert.Equal(t, "cached answer", hit.Response)
		assert.Equal(t, 0.05, hit.Distance)
		require.Contains(t, hit.References, "abc")
		assert.Equal(t, "Avatar", hit.References["abc"].Title)
	})

	t.Run("beyond threshold", func(t *testing.T) {
		fields := map[string]string{"response": "x", "distance": "0.4"}

		_, ok := parseHit("id", fields, 0.1)
		assert.False(t, ok)
	})

	t.Run("missing distance", func(t *testing.T) {
		fields := map[string]string{"response": "x"}

		_, ok := parseHit("id", fields, 0.1)
		assert.False(t, ok)
	})

	t.Run("empty metadata is a valid hit", func(t *testing.T) {
		fields := map[string]string{"response": "x", "distance": "0"}

		hit, ok := parseHit("id", fields, 0.1)
		require.True(t, ok)
		assert.Empty(t, hit.References)
	})

	t.Run("malformed metadata", func(t *testing.T) {
		fields := map[string]string{"response": "x", "distance": "0", "metadata": "{"}

		_, ok := parseHit("id", fields, 0.1)
		assert.False(t, ok)
	})
}

func TestVectorBytes(t *testing.T) {
	vec := []float32{1.5, -0.25, 0}
	buf := vectorBytes(vec)

	require.Len(t, buf, 12)
	for i, want := range vec {
		got := math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
		assert.Equal(t, want, got)
	}
}

func TestEnsureIndex_ConcurrentCallsAfterReady(t *testing.T) {
	// One cache is shared by every session, so the ready flag is read and
	// written from concurrent question goroutines. With a nil client any
	// attempt to recreate the index would panic, so this also proves the
	// ready short-circuit holds under contention.
	c := New(nil, nil)
	c.mu.Lock()
	c.indexReady = true
	c.mu.Unlock()

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, c.ensureIndex(context.Background(), 4))
		}()
	}
	wg.Wait()
}

func TestOptions(t *testing.T) {
	c := New(nil, nil,
		WithIndexName("custom_idx"),
		WithKeyPrefix("custom:"),
		WithMaxDistance(0.3),
	)

	assert.Equal(t, "custom_idx", c.indexName)
	assert.Equal(t, "custom:", c.keyPrefix)
	assert.Equal(t, 0.3, c.maxDistance)
}
