// Package idgen generates request ids. Every id must be unique within the
// producing process's lifetime (§3): 8 random bytes guard against
// cross-process collision, 8 monotonically increasing bytes guard against
// same-process collision even under a broken random source. The 16 bytes
// are rendered as lowercase hex grouped 8-4-4-4-12, the shape of a UUID
// without claiming to be one, following original_source's UUid::uuid().
package idgen

import (
	"crypto/rand"
	"encoding/binary"
	"encoding/hex"
	"sync/atomic"
)

var counter atomic.Uint64

// New returns a fresh request id.
func New() string {
	var buf [16]byte
	if _, err := rand.Read(buf[0:8]); err != nil {
		// crypto/rand failing is effectively unrecoverable; fall back to
		// the counter alone rather than panicking mid-request.
		binary.BigEndian.PutUint64(buf[0:8], counter.Add(1))
	}
	binary.BigEndian.PutUint64(buf[8:16], counter.Add(1))

	h := hex.EncodeToString(buf[:])
	out := make([]byte, 0, 36)
	out = append(out, h[0:8]...)
	out = append(out, '-')
	out = append(out, h[8:12]...)
	out = append(out, '-')
	out = append(out, h[12:16]...)
	out = append(out, '-')
	out = append(out, h[16:20]...)
	out = append(out, '-')
	out = append(out, h[20:32]...)
	return string(out)
}
