// Package export provides the durable cold-storage sink used by the archive
// and export_then_delete actions. Keys are deterministic, so repeating an
// export overwrites the previous object instead of duplicating it.
package export

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/poppopjmp/spiderfoot-sub001/internal/model"
)

var (
	ErrObjectNotFound   = errors.New("export object not found")
	ErrChecksumMismatch = errors.New("export checksum mismatch")
)

// Sink writes payloads to cold storage and verifies them by checksum.
// Implementations must overwrite on repeated keys and be safe for
// concurrent use across distinct keys.
type Sink interface {
	// Export stores payload under key and returns its sha256 checksum.
	Export(ctx context.Context, key string, payload []byte) (string, error)

	// Verify confirms the object at key exists and matches checksum.
	// Returns ErrObjectNotFound or ErrChecksumMismatch on failure.
	Verify(ctx context.Context, key string, checksum string) error
}

// Checksum is the content hash recorded for every exported object.
func Checksum(payload []byte) string {
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

// ExportKey is content-addressed by resource identity: re-exporting the
// same resource always lands on the same object.
func ExportKey(resourceType model.ResourceType, resourceID string) string {
	return fmt.Sprintf("exports/%s/%s", resourceType, resourceID)
}

// ArchiveKey is keyed by (rule, resource) so a retried archive overwrites
// rather than duplicates.
func ArchiveKey(ruleID string, resourceID string) string {
	return fmt.Sprintf("archives/%s/%s", ruleID, resourceID)
}
