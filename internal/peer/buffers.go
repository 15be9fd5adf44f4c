package peer

import (
	"bufio"
	"io"
	"strings"
	"sync"
)

// responseBufferSize bounds a single peer response line
const responseBufferSize = 4096

var (
	// readerPool reuses response readers across short-lived connections
	readerPool = sync.Pool{
		New: func() any {
			return bufio.NewReaderSize(nil, responseBufferSize)
		},
	}

	// builderPool reuses request builders on the submit path
	builderPool = sync.Pool{
		New: func() any {
			return &strings.Builder{}
		},
	}
)

func getReader(r io.Reader) *bufio.Reader {
	br := readerPool.Get().(*bufio.Reader)
	br.Reset(r)
	return br
}

func putReader(br *bufio.Reader) {
	if br != nil {
		br.Reset(nil)
		readerPool.Put(br)
	}
}

func getBuilder() *strings.Builder {
	sb := builderPool.Get().(*strings.Builder)
	sb.Reset()
	return sb
}

func putBuilder(sb *strings.Builder) {
	if sb != nil {
		builderPool.Put(sb)
	}
}
