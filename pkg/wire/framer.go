package wire

import (
	"bytes"
	"encoding/json"
)

// Frame terminator on the wire.
var terminator = []byte("\r\n")

// Framer splits an inbound byte stream into complete frames and keeps
// unterminated partial data buffered across feeds. A Framer belongs to
// exactly one connection instance and is replaced with it.
type Framer struct {
	buf []byte
}

// NewFramer returns an empty Framer.
func NewFramer() *Framer {
	return &Framer{}
}

// Feed appends p to the receive buffer and returns every complete frame
// now available, in arrival order, without terminators. Frames are
// terminated by LF; a preceding CR is stripped, so both CR LF and bare
// LF streams reassemble to the same lines.
func (f *Framer) Feed(p []byte) [][]byte {
	f.buf = append(f.buf, p...)

	var frames [][]byte
	for {
		i := bytes.IndexByte(f.buf, '\n')
		if i < 0 {
			break
		}
		line := f.buf[:i]
		if len(line) > 0 && line[len(line)-1] == '\r' {
			line = line[:len(line)-1]
		}
		frame := append([]byte(nil), line...)
		f.buf = f.buf[i+1:]
		frames = append(frames, frame)
	}

	// Release the backing array once fully drained
	if len(f.buf) == 0 {
		f.buf = nil
	}
	return frames
}

// Buffered returns the number of bytes held as a partial frame.
func (f *Framer) Buffered() int {
	return len(f.buf)
}

// Encode marshals a message and appends the frame terminator.
func Encode(msg interface{}) ([]byte, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, err
	}
	return append(data, terminator...), nil
}
