package flow

import (
	"encoding/binary"
	"fmt"
	"io"

	"google.golang.org/protobuf/encoding/protowire"
)

// AppendFrame appends buf to dst, prefixed by its length encoded as a
// protobuf varint.
func AppendFrame(dst []byte, buf []byte) []byte {
	dst = protowire.AppendVarint(dst, uint64(len(buf)))
	return append(dst, buf...)
}

// WriteFrame writes buf as a single length-prefixed frame.
func WriteFrame(w io.Writer, buf []byte, maxSize int) error {
	if len(buf) > maxSize {
		return fmt.Errorf("%w: %d bytes", ErrTooLargeFrame, len(buf))
	}
	prefixed := AppendFrame(make([]byte, 0, protowire.SizeVarint(uint64(len(buf)))+len(buf)), buf)
	_, err := w.Write(prefixed)
	return err
}

// ReadFrame reads one length-prefixed frame. Frames announcing more than
// maxSize bytes are rejected before their payload is read.
func ReadFrame(r io.ByteReader, body io.Reader, maxSize int) ([]byte, error) {
	prefix := make([]byte, 0, binary.MaxVarintLen64)
	for {
		b, err := r.ReadByte()
		if err != nil {
			if len(prefix) > 0 && err == io.EOF {
				err = io.ErrUnexpectedEOF
			}
			return nil, err
		}
		prefix = append(prefix, b)
		if b < 0x80 {
			break
		}
		if len(prefix) == binary.MaxVarintLen64 {
			return nil, fmt.Errorf("%w: frame prefix overflows", ErrMalformedFrame)
		}
	}

	size, n := protowire.ConsumeVarint(prefix)
	if err := protowire.ParseError(n); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedFrame, err)
	}
	if size > uint64(maxSize) {
		return nil, fmt.Errorf("%w: peer announced %d bytes", ErrTooLargeFrame, size)
	}

	buf := make([]byte, size)
	if _, err := io.ReadFull(body, buf); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return nil, err
	}
	return buf, nil
}
