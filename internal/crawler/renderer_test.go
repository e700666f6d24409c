package crawler

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewChromedpRendererDisabled(t *testing.T) {
	t.Parallel()

	_, err := NewChromedpRenderer(RendererConfig{MaxParallel: 0}, zap.NewNop())
	require.ErrorIs(t, err, ErrRendererDisabled)
}

func TestExpandExpressionIsCallable(t *testing.T) {
	t.Parallel()

	// A bare arrow function followed by () does not parse; the function
	// has to be wrapped in parentheses before it is invoked.
	require.True(t, strings.HasPrefix(expandExpression, "("))
	require.True(t, strings.HasSuffix(expandExpression, ")()"))
	require.Contains(t, expandExpression, expandScript)

	depth := 0
	for _, r := range expandExpression {
		switch r {
		case '(':
			depth++
		case ')':
			depth--
		}
		require.GreaterOrEqual(t, depth, 0)
	}
	require.Equal(t, 0, depth)
}

func TestNilRendererIsSafe(t *testing.T) {
	t.Parallel()

	var r *ChromedpRenderer
	_, err := r.Render(context.Background(), "https://www.slsp.sk/")
	assert.ErrorIs(t, err, ErrRendererDisabled)
	assert.NoError(t, r.Close(context.Background()))
}
