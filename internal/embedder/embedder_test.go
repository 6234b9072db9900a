package embedder

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalProviderDeterministic(t *testing.T) {
	provider, err := NewLocalProvider(nil)
	require.NoError(t, err)

	ctx := context.Background()
	first, err := provider.EmbedBatch(ctx, []string{"func main() {}"})
	require.NoError(t, err)
	second, err := provider.EmbedBatch(ctx, []string{"func main() {}"})
	require.NoError(t, err)

	require.Len(t, first, 1)
	assert.Equal(t, first[0].Vector, second[0].Vector)
	assert.Equal(t, LocalDimension, first[0].Dimension)
	assert.Equal(t, ProviderLocal, first[0].Provider)
	assert.Equal(t, ComputeHash("func main() {}"), first[0].Hash)
}

func TestLocalProviderDistinctInputs(t *testing.T) {
	provider, err := NewLocalProvider(nil)
	require.NoError(t, err)

	embeddings, err := provider.EmbedBatch(context.Background(), []string{"alpha", "beta"})
	require.NoError(t, err)
	require.Len(t, embeddings, 2)
	assert.NotEqual(t, embeddings[0].Vector, embeddings[1].Vector)
}

func TestLocalProviderUnitVectors(t *testing.T) {
	provider, err := NewLocalProvider(nil)
	require.NoError(t, err)

	embeddings, err := provider.EmbedBatch(context.Background(), []string{"some text"})
	require.NoError(t, err)

	var sum float64
	for _, v := range embeddings[0].Vector {
		sum += float64(v) * float64(v)
	}
	assert.InDelta(t, 1.0, math.Sqrt(sum), 1e-5)
}

func TestLocalProviderUsesCache(t *testing.T) {
	cache := NewCache(10)
	provider, err := NewLocalProvider(cache)
	require.NoError(t, err)

	_, err = provider.EmbedBatch(context.Background(), []string{"cached text"})
	require.NoError(t, err)
	assert.Equal(t, 1, cache.Len())

	cached, ok := cache.Get(ComputeHash("cached text"))
	require.True(t, ok)
	assert.Equal(t, LocalDimension, cached.Dimension)
}

func TestCacheGetReturnsCopy(t *testing.T) {
	cache := NewCache(10)
	cache.Set("h", &Embedding{Vector: []float32{1, 2, 3}, Hash: "h"})

	got, ok := cache.Get("h")
	require.True(t, ok)
	got.Vector[0] = 99

	again, ok := cache.Get("h")
	require.True(t, ok)
	assert.Equal(t, float32(1), again.Vector[0])
}

func TestCacheEviction(t *testing.T) {
	cache := NewCache(2)
	cache.Set("a", &Embedding{Hash: "a"})
	cache.Set("b", &Embedding{Hash: "b"})
	cache.Set("c", &Embedding{Hash: "c"})

	assert.Equal(t, 2, cache.Len())
	_, ok := cache.Get("a")
	assert.False(t, ok)
}

func TestValidateBatch(t *testing.T) {
	assert.ErrorIs(t, validateBatch(nil), ErrInvalidInput)
	assert.ErrorIs(t, validateBatch([]string{""}), ErrInvalidInput)
	assert.ErrorIs(t, validateBatch([]string{"ok", ""}), ErrInvalidInput)

	tooMany := make([]string, MaxBatchSize+1)
	for i := range tooMany {
		tooMany[i] = "x"
	}
	assert.ErrorIs(t, validateBatch(tooMany), ErrBatchTooLarge)

	assert.NoError(t, validateBatch([]string{"one", "two"}))
}

func TestComputeHash(t *testing.T) {
	h := ComputeHash("text")
	assert.Len(t, h, 64)
	assert.Equal(t, h, ComputeHash("text"))
	assert.NotEqual(t, h, ComputeHash("other"))
	assert.Equal(t, strings.ToLower(h), h)
}

func TestNormalizeVectorZero(t *testing.T) {
	zero := []float32{0, 0, 0}
	assert.Equal(t, zero, NormalizeVector(zero))
}

func TestRetryWithBackoffSucceedsAfterFailures(t *testing.T) {
	attempts := 0
	cfg := RetryConfig{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 1}

	result, err := retryWithBackoff(context.Background(), cfg, func() (string, error) {
		attempts++
		if attempts < 3 {
			return "", errors.New("transient")
		}
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", result)
	assert.Equal(t, 3, attempts)
}

func TestRetryWithBackoffExhausted(t *testing.T) {
	cfg := RetryConfig{MaxAttempts: 2, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 1}

	_, err := retryWithBackoff(context.Background(), cfg, func() (int, error) {
		return 0, errors.New("always fails")
	})
	assert.EqualError(t, err, "always fails")
}

func TestRetryWithBackoffCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	cfg := DefaultRetryConfig()
	attempts := 0
	_, err := retryWithBackoff(ctx, cfg, func() (int, error) {
		attempts++
		return 0, errors.New("fail")
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, attempts)
}

func TestNewFactoryAutoProvider(t *testing.T) {
	t.Setenv(EnvProvider, "")
	t.Setenv(EnvOpenAIAPIKey, "")
	t.Setenv(EnvJinaAPIKey, "")

	// No keys anywhere falls back to the local provider.
	assert.Equal(t, ProviderLocal, DetectProvider())
	emb, err := New(Config{Provider: ProviderAuto})
	require.NoError(t, err)
	assert.Equal(t, ProviderLocal, emb.Provider())

	// The first provider with an API key wins.
	t.Setenv(EnvJinaAPIKey, "jina-test")
	assert.Equal(t, ProviderJina, DetectProvider())
	emb, err = New(Config{Provider: ProviderAuto})
	require.NoError(t, err)
	assert.Equal(t, ProviderJina, emb.Provider())

	t.Setenv(EnvOpenAIAPIKey, "sk-test")
	assert.Equal(t, ProviderOpenAI, DetectProvider())

	// An explicit provider in the environment beats key detection.
	t.Setenv(EnvProvider, "jina")
	assert.Equal(t, ProviderJina, DetectProvider())
}

func TestNewFactorySelectsProvider(t *testing.T) {
	emb, err := New(Config{Provider: "local"})
	require.NoError(t, err)
	assert.Equal(t, ProviderLocal, emb.Provider())

	emb, err = New(Config{})
	require.NoError(t, err)
	assert.Equal(t, ProviderLocal, emb.Provider())

	emb, err = New(Config{Provider: "openai", APIKey: "sk-test"})
	require.NoError(t, err)
	assert.Equal(t, ProviderOpenAI, emb.Provider())
	assert.Equal(t, OpenAIDimension, emb.Dimension())

	_, err = New(Config{Provider: "duckdb"})
	assert.ErrorIs(t, err, ErrUnknownProvider)
}

func TestBatchLimits(t *testing.T) {
	assert.LessOrEqual(t, DefaultBatchSize, MaxBatchSize)
}
