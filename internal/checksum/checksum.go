// Package checksum derives content-identity fingerprints for index rows.
package checksum

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
)

// HashLen is the length of a fingerprint returned by StatHash.
const HashLen = 8

// StatHash returns an 8-character hex fingerprint of a root-relative name,
// size and modification time. File content is never read, so the cost is
// independent of file size.
func StatHash(fullName string, size, mtime int64) string {
	h := sha256.New()
	h.Write([]byte(fullName))
	h.Write([]byte{0})
	h.Write(strconv.AppendInt(nil, size, 10))
	h.Write([]byte{0})
	h.Write(strconv.AppendInt(nil, mtime, 10))
	sum := h.Sum(nil)
	return hex.EncodeToString(sum[:HashLen/2])
}
