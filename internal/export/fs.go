package export

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// FSSink stores exported objects as files under a root directory. Writes go
// through a temp file and rename, so a crashed export never leaves a
// partial object behind.
type FSSink struct {
	root string
}

func NewFSSink(root string) (*FSSink, error) {
	if strings.TrimSpace(root) == "" {
		return nil, fmt.Errorf("export root cannot be empty")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create export root: %w", err)
	}
	return &FSSink{root: root}, nil
}

func (s *FSSink) pathFor(key string) string {
	return filepath.Join(s.root, filepath.FromSlash(key))
}

func (s *FSSink) Export(ctx context.Context, key string, payload []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	target := s.pathFor(key)
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return "", fmt.Errorf("create export directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(target), ".export-*")
	if err != nil {
		return "", fmt.Errorf("create temp export file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(payload); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return "", fmt.Errorf("write export payload: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("close export file: %w", err)
	}

	if err := os.Rename(tmpName, target); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("finalize export file: %w", err)
	}

	return Checksum(payload), nil
}

func (s *FSSink) Verify(ctx context.Context, key string, checksum string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := os.ReadFile(s.pathFor(key))
	if os.IsNotExist(err) {
		return ErrObjectNotFound
	}
	if err != nil {
		return fmt.Errorf("read export object: %w", err)
	}

	if Checksum(data) != checksum {
		return ErrChecksumMismatch
	}
	return nil
}
