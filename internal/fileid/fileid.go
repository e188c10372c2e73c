// Package fileid derives document ids for inbox files.
package fileid

import (
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"
	"strings"
)

// Prefix marks ids derived from a file path.
const Prefix = "inbox-"

// FileDocID returns the document id for a file. The same cleaned path always
// yields the same id, so re-ingesting a file replaces its previous version.
func FileDocID(absolutePath string) string {
	sum := sha256.Sum256([]byte(filepath.Clean(absolutePath)))
	return Prefix + hex.EncodeToString(sum[:16])
}

// IsFileDocID reports whether id was derived from a file path.
func IsFileDocID(id string) bool {
	rest, ok := strings.CutPrefix(id, Prefix)
	if !ok || len(rest) != 32 {
		return false
	}
	_, err := hex.DecodeString(rest)
	return err == nil
}
