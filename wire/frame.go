// Package wire implements copyd's length-prefixed framing and tagged-field binary
// encoding for the Request/Response RPC exchanged over the daemon's local socket.
package wire

import (
	"encoding/binary"
	"io"

	"github.com/pkg/errors"
)

// MaxFrameSize bounds a single encoded message; a frame announcing a larger length is
// rejected before any payload bytes are read.
const MaxFrameSize = 16 * 1024 * 1024

var ErrFrameTooLarge = errors.New("wire: frame exceeds maximum size")

// WriteFrame writes the length-prefixed frame for payload, looping on short writes the
// way a raw net.Conn.Write can legally return them.
func WriteFrame(w io.Writer, payload []byte) error {
	if len(payload) > MaxFrameSize {
		return ErrFrameTooLarge
	}
	var header [4]byte
	binary.LittleEndian.PutUint32(header[:], uint32(len(payload)))
	if _, err := writeFull(w, header[:]); err != nil {
		return errors.Wrap(err, "wire: writing frame header")
	}
	if _, err := writeFull(w, payload); err != nil {
		return errors.Wrap(err, "wire: writing frame payload")
	}
	return nil
}

// ReadFrame reads one length-prefixed frame, returning its payload.
func ReadFrame(r io.Reader) ([]byte, error) {
	var header [4]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, err // EOF/UnexpectedEOF propagate as-is so callers can tell "no more frames" apart from a decode error
	}
	length := binary.LittleEndian.Uint32(header[:])
	if length > MaxFrameSize {
		return nil, ErrFrameTooLarge
	}
	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, errors.Wrap(err, "wire: reading frame payload")
	}
	return payload, nil
}

func writeFull(w io.Writer, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := w.Write(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}
