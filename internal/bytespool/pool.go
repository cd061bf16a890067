// Package bytespool recycles the buffers used to encode exported table files.
package bytespool

import (
	"bytes"
	"sync"
)

// buffers larger than this are dropped instead of pooled so one huge export does not pin memory
const maxPooled = 1 << 20

var pool = sync.Pool{
	New: func() interface{} {
		return &bytes.Buffer{}
	},
}

func Get() *bytes.Buffer {
	return pool.Get().(*bytes.Buffer)
}

func Put(b *bytes.Buffer) {
	if b.Cap() > maxPooled {
		return
	}
	b.Reset()
	pool.Put(b)
}
