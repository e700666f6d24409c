package llm

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/avast/retry-go/v4"
	gocache "github.com/patrickmn/go-cache"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"go.uber.org/zap"
)

const (
	defaultRetryDelay    = 200 * time.Millisecond
	defaultRetryMaxDelay = 3 * time.Second

	embedCacheTTL     = 30 * time.Minute
	embedCacheCleanup = 10 * time.Minute
)

// model is the subset of the langchaingo OpenAI client the Client needs.
// Tests substitute it with a fake.
type model interface {
	CreateEmbedding(ctx context.Context, texts []string) ([][]float32, error)
	GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error)
}

// Config holds provider credentials and model selection.
type Config struct {
	APIKey      string
	EmbedModel  string
	ChatModel   string
	Temperature float64
	MaxRetries  int
}

// Client talks to OpenAI via langchaingo, with retries on transient
// failures and an in-process cache for repeated embedding inputs.
type Client struct {
	model       model
	temperature float64
	retryOpts   []retry.Option
	embedCache  *gocache.Cache
	logger      *zap.Logger
}

// NewClient constructs a Client against the OpenAI API.
func NewClient(cfg Config, logger *zap.Logger) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("openai api key is required")
	}
	m, err := openai.New(
		openai.WithToken(cfg.APIKey),
		openai.WithModel(cfg.ChatModel),
		openai.WithEmbeddingModel(cfg.EmbedModel),
	)
	if err != nil {
		return nil, fmt.Errorf("init openai client: %w", err)
	}
	return newClient(m, cfg, logger), nil
}

func newClient(m model, cfg Config, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	attempts := cfg.MaxRetries + 1
	if attempts < 1 {
		attempts = 1
	}
	return &Client{
		model:       m,
		temperature: cfg.Temperature,
		retryOpts: []retry.Option{
			retry.Attempts(uint(attempts)),
			retry.Delay(defaultRetryDelay),
			retry.MaxDelay(defaultRetryMaxDelay),
			retry.LastErrorOnly(true),
		},
		embedCache: gocache.New(embedCacheTTL, embedCacheCleanup),
		logger:     logger,
	}
}

// EmbedTexts embeds each text, serving repeats from the cache and
// batching only the misses to the API.
func (c *Client) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	var missTexts []string
	var missIdx []int
	for i, text := range texts {
		key := embedKey(text)
		if v, ok := c.embedCache.Get(key); ok {
			out[i] = v.([]float32)
			continue
		}
		missTexts = append(missTexts, text)
		missIdx = append(missIdx, i)
	}
	if len(missTexts) == 0 {
		return out, nil
	}

	var vecs [][]float32
	err := retry.Do(func() error {
		var innerErr error
		vecs, innerErr = c.model.CreateEmbedding(ctx, missTexts)
		return innerErr
	}, append(c.retryOpts, retry.Context(ctx))...)
	if err != nil {
		return nil, fmt.Errorf("create embeddings: %w", err)
	}
	if len(vecs) != len(missTexts) {
		return nil, fmt.Errorf("embedding count mismatch: got %d for %d inputs", len(vecs), len(missTexts))
	}

	for j, vec := range vecs {
		out[missIdx[j]] = vec
		c.embedCache.Set(embedKey(missTexts[j]), vec, gocache.DefaultExpiration)
	}
	c.logger.Debug("embedded texts",
		zap.Int("requested", len(texts)),
		zap.Int("cache_hits", len(texts)-len(missTexts)),
	)
	return out, nil
}

// EmbedQuery embeds a single query string.
func (c *Client) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vecs, err := c.EmbedTexts(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// Answer runs a chat completion over the system and user prompts.
func (c *Client) Answer(ctx context.Context, systemPrompt, userPrompt string) (string, Usage, error) {
	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, systemPrompt),
		llms.TextParts(llms.ChatMessageTypeHuman, userPrompt),
	}

	var resp *llms.ContentResponse
	err := retry.Do(func() error {
		var innerErr error
		resp, innerErr = c.model.GenerateContent(ctx, messages, llms.WithTemperature(c.temperature))
		return innerErr
	}, append(c.retryOpts, retry.Context(ctx))...)
	if err != nil {
		return "", Usage{}, fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", Usage{}, errors.New("chat completion returned no choices")
	}

	choice := resp.Choices[0]
	usage := Usage{
		PromptTokens:     infoInt(choice.GenerationInfo, "PromptTokens"),
		CompletionTokens: infoInt(choice.GenerationInfo, "CompletionTokens"),
	}
	return choice.Content, usage, nil
}

func embedKey(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

func infoInt(info map[string]any, key string) int {
	if info == nil {
		return 0
	}
	if n, ok := info[key].(int); ok {
		return n
	}
	return 0
}
