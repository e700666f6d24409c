package llm

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
)

type fakeModel struct {
	embedCalls   int
	embedInputs  [][]string
	embedErr     error
	embedFailFor int

	chatCalls int
	chatResp  *llms.ContentResponse
	chatErr   error
}

func (f *fakeModel) CreateEmbedding(_ context.Context, texts []string) ([][]float32, error) {
	f.embedCalls++
	f.embedInputs = append(f.embedInputs, texts)
	if f.embedErr != nil && f.embedCalls <= f.embedFailFor {
		return nil, f.embedErr
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{float32(len(texts[i])), 1}
	}
	return out, nil
}

func (f *fakeModel) GenerateContent(context.Context, []llms.MessageContent, ...llms.CallOption) (*llms.ContentResponse, error) {
	f.chatCalls++
	if f.chatErr != nil {
		return nil, f.chatErr
	}
	return f.chatResp, nil
}

func TestEmbedTextsCachesRepeats(t *testing.T) {
	t.Parallel()

	fm := &fakeModel{}
	c := newClient(fm, Config{}, nil)

	first, err := c.EmbedTexts(context.Background(), []string{"osobný účet", "hypotéka"})
	require.NoError(t, err)
	require.Len(t, first, 2)
	assert.Equal(t, 1, fm.embedCalls)

	// Second call with one repeat and one new text only sends the miss.
	second, err := c.EmbedTexts(context.Background(), []string{"osobný účet", "sporenie"})
	require.NoError(t, err)
	require.Len(t, second, 2)
	assert.Equal(t, 2, fm.embedCalls)
	assert.Equal(t, []string{"sporenie"}, fm.embedInputs[1])
	assert.Equal(t, first[0], second[0])
}

func TestEmbedTextsRetriesTransientFailure(t *testing.T) {
	t.Parallel()

	fm := &fakeModel{embedErr: errors.New("rate limited"), embedFailFor: 1}
	c := newClient(fm, Config{MaxRetries: 2}, nil)

	vecs, err := c.EmbedTexts(context.Background(), []string{"účet"})
	require.NoError(t, err)
	assert.Len(t, vecs, 1)
	assert.Equal(t, 2, fm.embedCalls)
}

func TestEmbedTextsExhaustedRetries(t *testing.T) {
	t.Parallel()

	fm := &fakeModel{embedErr: errors.New("rate limited"), embedFailFor: 10}
	c := newClient(fm, Config{MaxRetries: 1}, nil)

	_, err := c.EmbedTexts(context.Background(), []string{"účet"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "create embeddings")
	assert.Equal(t, 2, fm.embedCalls)
}

func TestEmbedQuery(t *testing.T) {
	t.Parallel()

	c := newClient(&fakeModel{}, Config{}, nil)
	vec, err := c.EmbedQuery(context.Background(), "účet")
	require.NoError(t, err)
	assert.NotEmpty(t, vec)
}

func TestAnswer(t *testing.T) {
	t.Parallel()

	fm := &fakeModel{chatResp: &llms.ContentResponse{
		Choices: []*llms.ContentChoice{{
			Content: "Osobný účet vedieme zadarmo. [1]",
			GenerationInfo: map[string]any{
				"PromptTokens":     120,
				"CompletionTokens": 18,
			},
		}},
	}}
	c := newClient(fm, Config{Temperature: 0.2}, nil)

	answer, usage, err := c.Answer(context.Background(), "system", "user")
	require.NoError(t, err)
	assert.Equal(t, "Osobný účet vedieme zadarmo. [1]", answer)
	assert.Equal(t, Usage{PromptTokens: 120, CompletionTokens: 18}, usage)
}

func TestAnswerNoChoices(t *testing.T) {
	t.Parallel()

	c := newClient(&fakeModel{chatResp: &llms.ContentResponse{}}, Config{}, nil)
	_, _, err := c.Answer(context.Background(), "system", "user")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no choices")
}

func TestNewClientRequiresKey(t *testing.T) {
	t.Parallel()

	_, err := NewClient(Config{}, nil)
	require.Error(t, err)
}
