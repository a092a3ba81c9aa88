package audioio

import (
	"errors"
	"io"
)

// Buffer is an in-memory io.WriteSeeker for encoding WAV data without a
// temporary file.
type Buffer struct {
	data []byte
	pos  int
}

func (b *Buffer) Write(p []byte) (int, error) {
	if end := b.pos + len(p); end > len(b.data) {
		b.data = append(b.data, make([]byte, end-len(b.data))...)
	}
	n := copy(b.data[b.pos:], p)
	b.pos += n
	return n, nil
}

func (b *Buffer) Seek(offset int64, whence int) (int64, error) {
	var abs int64
	switch whence {
	case io.SeekStart:
		abs = offset
	case io.SeekCurrent:
		abs = int64(b.pos) + offset
	case io.SeekEnd:
		abs = int64(len(b.data)) + offset
	default:
		return 0, errors.New("audioio: invalid whence")
	}
	if abs < 0 {
		return 0, errors.New("audioio: negative position")
	}
	b.pos = int(abs)
	return abs, nil
}

// Bytes returns the written data.
func (b *Buffer) Bytes() []byte { return b.data }
