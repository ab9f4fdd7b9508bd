package capture

import (
	"bytes"
	"io"
	"sync"
)

// RecordingFilename is the upload name of a live recording.
const RecordingFilename = "recorded_video.webm"

// Media is one finalized recording or selected file.
type Media struct {
	Filename    string
	ContentType string
	Data        []byte
}

func (m *Media) Reader() io.Reader {
	return bytes.NewReader(m.Data)
}

func (m *Media) Size() int {
	return len(m.Data)
}

// chunkBuffer keeps recorded chunks in arrival order.
type chunkBuffer struct {
	mu     sync.Mutex
	chunks [][]byte
}

// add appends a copy of b; empty chunks are dropped.
func (c *chunkBuffer) add(b []byte) {
	if len(b) == 0 {
		return
	}
	cp := make([]byte, len(b))
	copy(cp, b)
	c.mu.Lock()
	c.chunks = append(c.chunks, cp)
	c.mu.Unlock()
}

func (c *chunkBuffer) reset() {
	c.mu.Lock()
	c.chunks = nil
	c.mu.Unlock()
}

func (c *chunkBuffer) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.chunks)
}

// bytes concatenates the chunks in order.
func (c *chunkBuffer) bytes() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, ch := range c.chunks {
		n += len(ch)
	}
	out := make([]byte, 0, n)
	for _, ch := range c.chunks {
		out = append(out, ch...)
	}
	return out
}
