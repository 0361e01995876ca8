package identity

import (
	"fmt"
	"sync/atomic"
)

// Generator hands out session instance ids. Every conversation switch starts
// a new session instance.
type Generator struct {
	counter uint64
}

func NewGenerator() *Generator {
	return &Generator{}
}

func (g *Generator) Next(principal string) string {
	n := atomic.AddUint64(&g.counter, 1)
	return fmt.Sprintf("%s-sess-%d", principal, n)
}
