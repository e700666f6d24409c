// Package llm abstracts the language-model provider used for embeddings
// and answer generation.
package llm

import "context"

// Usage reports token consumption for one chat completion.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

// Embedder produces embedding vectors for texts.
type Embedder interface {
	// EmbedTexts embeds each text and returns one vector per input,
	// in order.
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
	// EmbedQuery embeds a single query string.
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// ChatModel generates a grounded answer from a system and user prompt.
type ChatModel interface {
	Answer(ctx context.Context, systemPrompt, userPrompt string) (string, Usage, error)
}
