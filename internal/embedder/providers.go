package embedder

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"time"
)

const (
	ProviderOpenAI = "openai"
	ProviderJina   = "jina"
	ProviderLocal  = "local"

	// ProviderAuto selects a provider from the environment.
	ProviderAuto = "auto"

	DefaultOpenAIModel = "text-embedding-3-small"
	DefaultJinaModel   = "jina-embeddings-v3"

	OpenAIDimension = 1536
	JinaDimension   = 1024
	LocalDimension  = 384

	openAIEndpoint = "https://api.openai.com/v1/embeddings"
	jinaEndpoint   = "https://api.jina.ai/v1/embeddings"

	// DefaultBatchSize is the batch size the indexer submits;
	// MaxBatchSize is the hard limit providers accept.
	DefaultBatchSize = 50
	MaxBatchSize     = 100

	MaxRetries        = 3
	initialBackoff    = 100 * time.Millisecond
	maxBackoff        = 5 * time.Second
	backoffMultiplier = 2.0
)

// httpProvider calls an OpenAI-compatible embeddings endpoint. OpenAI
// and Jina share the same wire format, so one implementation serves
// both.
type httpProvider struct {
	name      string
	model     string
	endpoint  string
	apiKey    string
	dimension int
	client    *http.Client
	cache     *Cache
	retry     RetryConfig
}

// NewOpenAIProvider creates an embedder backed by the OpenAI API.
func NewOpenAIProvider(apiKey string, cache *Cache) (Embedder, error) {
	return newHTTPProvider(ProviderOpenAI, DefaultOpenAIModel, openAIEndpoint, apiKey, OpenAIDimension, cache)
}

// NewJinaProvider creates an embedder backed by the Jina AI API.
func NewJinaProvider(apiKey string, cache *Cache) (Embedder, error) {
	return newHTTPProvider(ProviderJina, DefaultJinaModel, jinaEndpoint, apiKey, JinaDimension, cache)
}

func newHTTPProvider(name, model, endpoint, apiKey string, dimension int, cache *Cache) (*httpProvider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: %s api key not set", ErrNoProviderEnabled, name)
	}
	return &httpProvider{
		name:      name,
		model:     model,
		endpoint:  endpoint,
		apiKey:    apiKey,
		dimension: dimension,
		client:    &http.Client{Timeout: 30 * time.Second},
		cache:     cache,
		retry:     DefaultRetryConfig(),
	}, nil
}

func (p *httpProvider) EmbedBatch(ctx context.Context, texts []string) ([]*Embedding, error) {
	if err := validateBatch(texts); err != nil {
		return nil, err
	}

	// Serve fully cached batches without an API call; partial hits
	// still go to the API as one batch to keep ordering simple.
	hashes := make([]string, len(texts))
	cached := make([]*Embedding, len(texts))
	allCached := p.cache != nil
	for i, text := range texts {
		hashes[i] = ComputeHash(text)
		if p.cache == nil {
			continue
		}
		emb, ok := p.cache.Get(hashes[i])
		if !ok {
			allCached = false
			continue
		}
		cached[i] = emb
	}
	if allCached {
		return cached, nil
	}

	embeddings, err := retryWithBackoff(ctx, p.retry, func() ([]*Embedding, error) {
		return p.callAPI(ctx, texts)
	})
	if err != nil {
		return nil, fmt.Errorf("%w after %d attempts: %v", ErrProviderFailed, p.retry.MaxAttempts, err)
	}
	if len(embeddings) != len(texts) {
		return nil, fmt.Errorf("%w: got %d embeddings for %d texts", ErrProviderFailed, len(embeddings), len(texts))
	}

	for i, emb := range embeddings {
		emb.Hash = hashes[i]
		if p.cache != nil {
			p.cache.Set(hashes[i], emb)
		}
	}
	return embeddings, nil
}

func (p *httpProvider) callAPI(ctx context.Context, texts []string) ([]*Embedding, error) {
	body, err := json.Marshal(map[string]any{
		"input": texts,
		"model": p.model,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("api call: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("api error %d: %s", resp.StatusCode, string(msg))
	}

	var apiResp struct {
		Data []struct {
			Embedding []float32 `json:"embedding"`
			Index     int       `json:"index"`
		} `json:"data"`
		Model string `json:"model"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	embeddings := make([]*Embedding, len(apiResp.Data))
	for _, data := range apiResp.Data {
		if data.Index < 0 || data.Index >= len(embeddings) {
			return nil, fmt.Errorf("embedding index %d out of range", data.Index)
		}
		embeddings[data.Index] = &Embedding{
			Vector:    data.Embedding,
			Dimension: len(data.Embedding),
			Provider:  p.name,
			Model:     apiResp.Model,
		}
	}
	for i, emb := range embeddings {
		if emb == nil {
			return nil, fmt.Errorf("missing embedding for text %d", i)
		}
	}
	return embeddings, nil
}

func (p *httpProvider) Dimension() int { return p.dimension }
func (p *httpProvider) Provider() string { return p.name }
func (p *httpProvider) Model() string { return p.model }

func (p *httpProvider) Close() error {
	p.client.CloseIdleConnections()
	return nil
}

// LocalProvider produces deterministic hash-derived vectors. It exists
// so indexing and tests work without network access; the vectors carry
// no semantic signal.
type LocalProvider struct {
	model string
	cache *Cache
}

// NewLocalProvider creates the offline embedder.
func NewLocalProvider(cache *Cache) (*LocalProvider, error) {
	return &LocalProvider{model: "local-deterministic", cache: cache}, nil
}

func (l *LocalProvider) EmbedBatch(ctx context.Context, texts []string) ([]*Embedding, error) {
	if err := validateBatch(texts); err != nil {
		return nil, err
	}
	embeddings := make([]*Embedding, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		hash := ComputeHash(text)
		if l.cache != nil {
			if emb, ok := l.cache.Get(hash); ok {
				embeddings[i] = emb
				continue
			}
		}
		emb := &Embedding{
			Vector:    localVector(text),
			Dimension: LocalDimension,
			Provider:  ProviderLocal,
			Model:     l.model,
			Hash:      hash,
		}
		if l.cache != nil {
			l.cache.Set(hash, emb)
		}
		embeddings[i] = emb
	}
	return embeddings, nil
}

// localVector expands the text's digest across the vector and
// normalizes it, so identical text always maps to the same unit
// vector.
func localVector(text string) []float32 {
	vector := make([]float32, LocalDimension)
	digest := sha256.Sum256([]byte(text))
	for i := range vector {
		if i%len(digest) == 0 && i > 0 {
			digest = sha256.Sum256(digest[:])
		}
		vector[i] = float32(digest[i%len(digest)])/127.5 - 1.0
	}
	return NormalizeVector(vector)
}

func (l *LocalProvider) Dimension() int { return LocalDimension }
func (l *LocalProvider) Provider() string { return ProviderLocal }
func (l *LocalProvider) Model() string { return l.model }
func (l *LocalProvider) Close() error { return nil }

// NormalizeVector scales v to unit length. Zero vectors are returned
// unchanged.
func NormalizeVector(v []float32) []float32 {
	var sum float64
	for _, val := range v {
		sum += float64(val) * float64(val)
	}
	if sum == 0 {
		return v
	}
	norm := float32(math.Sqrt(sum))
	out := make([]float32, len(v))
	for i, val := range v {
		out[i] = val / norm
	}
	return out
}
