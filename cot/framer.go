package cot

import (
	"bytes"
)

// DefaultMaxBuffer is the accumulation limit before an unparseable stream is
// discarded wholesale.
const DefaultMaxBuffer = 1 << 20 // 1 MiB

var (
	openTag  = []byte("<event")
	closeTag = []byte("</event>")
)

// Framer incrementally splits a raw byte stream into candidate CoT event
// documents. The stream has no length prefix or delimiter; the only framing
// guarantee is the literal closing tag. Events may arrive fragmented across
// chunks or several per chunk, and the framer is insensitive to where chunk
// boundaries fall.
type Framer struct {
	buf    bytes.Buffer
	maxBuf int
}

// NewFramer creates a framer with the given accumulation limit;
// maxBuf <= 0 selects DefaultMaxBuffer.
func NewFramer(maxBuf int) *Framer {
	if maxBuf <= 0 {
		maxBuf = DefaultMaxBuffer
	}
	return &Framer{maxBuf: maxBuf}
}

// Push appends a chunk and extracts every complete candidate event now in the
// buffer. A candidate spans from the nearest opening tag before a closing tag
// through the closing tag; prefixes with no opening tag (leading garbage) are
// dropped silently.
//
// When the residue after extraction exceeds the limit without containing a
// complete event, the whole buffer is discarded and discarded=true is
// returned; the stream keeps running and later valid events parse normally.
func (f *Framer) Push(chunk []byte) (events [][]byte, discarded bool) {
	f.buf.Write(chunk)

	for {
		data := f.buf.Bytes()
		end := bytes.Index(data, closeTag)
		if end < 0 {
			break
		}
		end += len(closeTag)

		candidate := make([]byte, end)
		copy(candidate, data[:end])
		f.buf.Next(end)

		// Strip any leading partial fragment before the opening tag.
		start := bytes.LastIndex(candidate, openTag)
		if start < 0 {
			continue
		}
		events = append(events, candidate[start:])
	}

	if f.buf.Len() > f.maxBuf {
		f.buf.Reset()
		discarded = true
	}

	return events, discarded
}

// Pending returns the number of buffered bytes awaiting a closing tag.
func (f *Framer) Pending() int {
	return f.buf.Len()
}

// Reset drops any buffered partial data. Called when a connection is torn
// down so a fragment from one socket generation never prefixes the next.
func (f *Framer) Reset() {
	f.buf.Reset()
}
