package og

import (
	"strconv"
	"sync/atomic"
)

// IDGenerator creates internal order ids that are unique within a session.
type IDGenerator struct {
	prefix string
	next   uint64
}

// NewIDGenerator returns a generator whose ids start with session.
func NewIDGenerator(session string) *IDGenerator {
	if len(session) > 8 {
		session = session[:8]
	}
	if session == "" {
		session = "session"
	}
	return &IDGenerator{prefix: session + "-"}
}

// Next returns the next internal id.
func (g *IDGenerator) Next() (string, uint64) {
	n := atomic.AddUint64(&g.next, 1)
	return g.prefix + strconv.FormatUint(n, 10), n
}
