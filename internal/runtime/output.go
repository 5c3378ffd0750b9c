package runtime

import (
	"bytes"
	"unicode/utf8"
)

// maxOutputBytes bounds each captured stream of a single execution
const maxOutputBytes = 1 << 20

// rawOutputLimit bounds Docker's multiplexed stream before it is split.
// Frame headers add 8 bytes per write, so it leaves room above both streams.
const rawOutputLimit = 4 * maxOutputBytes

const truncatedNote = "\n... output truncated ...\n"

// cappedBuffer keeps the first limit bytes written to it and discards the
// rest. Writes never fail so the producer is drained rather than blocked.
type cappedBuffer struct {
	buf       bytes.Buffer
	limit     int
	truncated bool
}

func newCappedBuffer(limit int) *cappedBuffer {
	return &cappedBuffer{limit: limit}
}

func (c *cappedBuffer) Write(p []byte) (int, error) {
	room := c.limit - c.buf.Len()
	switch {
	case room >= len(p):
		c.buf.Write(p)
	case room > 0:
		c.buf.Write(p[:room])
		c.truncated = true
	case len(p) > 0:
		c.truncated = true
	}
	return len(p), nil
}

// Bytes returns the kept bytes without the truncation note
func (c *cappedBuffer) Bytes() []byte {
	return c.buf.Bytes()
}

// String returns the kept output, noting when some was dropped
func (c *cappedBuffer) String() string {
	return limitOutput(c.buf.String(), c.limit, c.truncated)
}

// limitOutput cuts s to limit bytes on a rune boundary and appends the
// truncation note when anything was dropped here or upstream.
func limitOutput(s string, limit int, truncated bool) string {
	if len(s) > limit {
		s = s[:limit]
		truncated = true
	}
	if !truncated {
		return s
	}
	// the cut may have split a multi-byte rune
	if r, size := utf8.DecodeLastRuneInString(s); r == utf8.RuneError && size == 1 {
		i := len(s) - 1
		for i > 0 && len(s)-i < utf8.UTFMax && !utf8.RuneStart(s[i]) {
			i--
		}
		s = s[:i]
	}
	return s + truncatedNote
}
