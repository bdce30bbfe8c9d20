// Package checksum fingerprints document content. The digests decide warm
// starts, pair renamed files and back optimistic locking over HTTP.
package checksum

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Sum returns the hex-encoded SHA-256 digest of data.
func Sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// ETag quotes sum as an HTTP entity tag.
func ETag(sum string) string {
	return `"` + sum + `"`
}

// FromETag returns the digest inside an If-Match or ETag header value. The
// weak marker and surrounding quotes are optional.
func FromETag(tag string) string {
	tag = strings.TrimPrefix(strings.TrimSpace(tag), "W/")
	return strings.Trim(tag, `"`)
}
