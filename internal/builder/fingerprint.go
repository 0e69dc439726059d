package builder

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"os"
)

// fingerprint derives a content hash for change detection. When the file
// cannot be read (locked, permission change mid-build) it falls back to a
// size+mtime stamp so the entry still gets a stable identity.
func fingerprint(path string, info fs.FileInfo) string {
	f, err := os.Open(path)
	if err != nil {
		return statFingerprint(info)
	}
	defer func() { _ = f.Close() }()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return statFingerprint(info)
	}
	return hex.EncodeToString(h.Sum(nil))
}

func statFingerprint(info fs.FileInfo) string {
	if info == nil {
		return ""
	}
	return fmt.Sprintf("stat:%d:%d", info.Size(), info.ModTime().UnixNano())
}
