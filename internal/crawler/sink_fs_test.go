package crawler

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestFileSystemSinkSaveHTML(t *testing.T) {
	t.Parallel()

	sink, err := NewFileSystemSink(t.TempDir(), 1024, zap.NewNop())
	require.NoError(t, err)

	path, err := sink.SaveHTML(context.Background(), "https://www.slsp.sk/sk/ludia/ucty", []byte("<html>účty</html>"))
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "<html>účty</html>", string(data))
	assert.Contains(t, path, "www.slsp.sk")
}

func TestFileSystemSinkRejectsEmptyAndOversized(t *testing.T) {
	t.Parallel()

	sink, err := NewFileSystemSink(t.TempDir(), 4, zap.NewNop())
	require.NoError(t, err)

	_, err = sink.SaveHTML(context.Background(), "https://slsp.sk/", nil)
	require.Error(t, err)

	_, err = sink.SaveHTML(context.Background(), "https://slsp.sk/", []byte("too big"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeds max")
}
