package crawler

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	"go.uber.org/zap"
)

// FileSystemSink writes HTML snapshots to disk, one file per URL hash
// grouped by host. Snapshots support reindexing without refetching.
type FileSystemSink struct {
	root     string
	maxBytes int64
	logger   *zap.Logger
}

// NewFileSystemSink returns a sink rooted at dir.
func NewFileSystemSink(root string, maxBytes int64, logger *zap.Logger) (*FileSystemSink, error) {
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("create sink dir %s: %w", root, err)
	}
	return &FileSystemSink{
		root:     root,
		maxBytes: maxBytes,
		logger:   logger,
	}, nil
}

// SaveHTML writes the HTML snapshot to disk and returns its path.
func (s *FileSystemSink) SaveHTML(ctx context.Context, rawURL string, body []byte) (string, error) {
	if len(body) == 0 {
		return "", fmt.Errorf("empty page body")
	}
	if s.maxBytes > 0 && int64(len(body)) > s.maxBytes {
		return "", fmt.Errorf("page size %d exceeds max %d", len(body), s.maxBytes)
	}
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("context canceled: %w", err)
	}

	target := s.htmlPath(rawURL)
	if err := os.MkdirAll(filepath.Dir(target), 0o750); err != nil {
		return "", fmt.Errorf("creating snapshot dir for %s: %w", target, err)
	}
	if err := os.WriteFile(target, body, 0o600); err != nil {
		return "", fmt.Errorf("writing snapshot to %s: %w", target, err)
	}
	return target, nil
}

func (s *FileSystemSink) htmlPath(rawURL string) string {
	host := "unknown"
	if u, err := url.Parse(rawURL); err == nil && u.Hostname() != "" {
		host = u.Hostname()
	}
	sum := sha256.Sum256([]byte(rawURL))
	return filepath.Join(s.root, host, hex.EncodeToString(sum[:])+".html")
}
