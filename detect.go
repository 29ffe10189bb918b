package mirrorfs

import (
	"bytes"

	"github.com/h2non/filetype"
)

// sniffLen bounds how much of an unrecognized payload is scanned for
// NUL bytes.
const sniffLen = 8000

// BinaryDetector classifies a raw file payload. Returning true stores
// the file without content.
type BinaryDetector func(payload []byte) bool

// DetectBinary is the default classification oracle. Payloads carrying a
// known magic number (images, archives, executables and the like) are
// binary; anything unrecognized falls back to a NUL-byte scan over the
// payload head.
func DetectBinary(payload []byte) bool {
	if len(payload) == 0 {
		return false
	}

	if kind, err := filetype.Match(payload); err == nil && kind != filetype.Unknown {
		return true
	}

	head := payload
	if len(head) > sniffLen {
		head = head[:sniffLen]
	}

	return bytes.IndexByte(head, 0) >= 0
}
