// Package ident generates the opaque identifiers used across the matchmaker.
package ident

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"
)

const base36 = "0123456789abcdefghijklmnopqrstuvwxyz"

// NewNodeID returns an identifier for a freshly registered stream node.
func NewNodeID() string {
	return "node_" + uuid.New().String()
}

// NewSessionID returns a session identifier of the form
// session_<unix ms>_<9 base36 chars>. The timestamp keeps ids sortable by
// creation time; the random suffix keeps them unique within a millisecond.
func NewSessionID(now time.Time) string {
	return fmt.Sprintf("session_%d_%s", now.UnixMilli(), randBase36(9))
}

func randBase36(n int) string {
	max := big.NewInt(int64(len(base36)))
	b := make([]byte, n)
	for i := range b {
		v, err := rand.Int(rand.Reader, max)
		if err != nil {
			// crypto/rand only fails if the OS entropy source is broken;
			// fall back to uuid bytes rather than returning a short id.
			u := uuid.New()
			for j := i; j < n; j++ {
				b[j] = base36[int(u[j%len(u)])%len(base36)]
			}
			return string(b)
		}
		b[i] = base36[v.Int64()]
	}
	return string(b)
}
