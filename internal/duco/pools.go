// Package duco implements the client side of the DUCO-S1 pool protocol:
// dialing the pool, reading its greeting and exchanging the line-oriented
// JOB and share messages.
package duco

import (
	"strings"
	"sync"
)

// stringBuilderPool reuses builders for request lines, one per job cycle
var stringBuilderPool = sync.Pool{
	New: func() any {
		return &strings.Builder{}
	},
}

func getStringBuilder() *strings.Builder {
	sb := stringBuilderPool.Get().(*strings.Builder)
	sb.Reset()
	return sb
}

func putStringBuilder(sb *strings.Builder) {
	if sb != nil {
		stringBuilderPool.Put(sb)
	}
}
