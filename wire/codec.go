package wire

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/pkg/errors"
)

// fieldWriter accumulates tagged, length-prefixed fields so an older reader can skip
// tags it doesn't recognize instead of failing the whole decode.
type fieldWriter struct {
	buf bytes.Buffer
}

func newFieldWriter() *fieldWriter { return &fieldWriter{} }

func (w *fieldWriter) putTag(tag uint8, length int) {
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(tmp[:], uint64(tag))
	w.buf.Write(tmp[:n])
	n = binary.PutUvarint(tmp[:], uint64(length))
	w.buf.Write(tmp[:n])
}

func (w *fieldWriter) String(tag uint8, v string) {
	if v == "" {
		return
	}
	w.putTag(tag, len(v))
	w.buf.WriteString(v)
}

func (w *fieldWriter) Bytes(tag uint8, v []byte) {
	if len(v) == 0 {
		return
	}
	w.putTag(tag, len(v))
	w.buf.Write(v)
}

func (w *fieldWriter) Bool(tag uint8, v bool) {
	if !v {
		return
	}
	w.putTag(tag, 1)
	w.buf.WriteByte(1)
}

func (w *fieldWriter) Uint64(tag uint8, v uint64) {
	if v == 0 {
		return
	}
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(tmp[:], v)
	w.putTag(tag, n)
	w.buf.Write(tmp[:n])
}

func (w *fieldWriter) Int64(tag uint8, v int64) { w.Uint64(tag, uint64(v)) }

func (w *fieldWriter) Bytes_() []byte { return w.buf.Bytes() }

// field is one decoded (tag, value) pair from a fieldReader pass.
type field struct {
	tag   uint8
	value []byte
}

func readFields(payload []byte) ([]field, error) {
	r := bytes.NewReader(payload)
	var fields []field
	for r.Len() > 0 {
		tag, err := binary.ReadUvarint(r)
		if err != nil {
			return nil, errors.Wrap(err, "wire: reading field tag")
		}
		length, err := binary.ReadUvarint(r)
		if err != nil {
			return nil, errors.Wrap(err, "wire: reading field length")
		}
		value := make([]byte, length)
		if _, err := io.ReadFull(r, value); err != nil {
			return nil, errors.Wrap(err, "wire: reading field value")
		}
		fields = append(fields, field{tag: uint8(tag), value: value})
	}
	return fields, nil
}

func stringOf(f field) string { return string(f.value) }

func uint64Of(f field) uint64 {
	v, _ := binary.Uvarint(f.value)
	return v
}

func int64Of(f field) int64 { return int64(uint64Of(f)) }

func boolOf(f field) bool { return len(f.value) == 1 && f.value[0] == 1 }
