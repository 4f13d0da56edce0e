package packet

import (
	"bytes"
	"encoding/binary"
	"io"
	"math"

	hub "github.com/sessamekesh/rts-relay-hub/pkg/errors"
)

// Writer builds a packet payload. The encoding matches what the game client
// reads with a Java DataInputStream: big-endian integers, booleans as one
// byte, strings as a uint16 byte length followed by UTF-8 bytes.
type Writer struct {
	buf bytes.Buffer
}

func NewWriter() *Writer {
	return &Writer{}
}

func (w *Writer) WriteByte(b byte) {
	w.buf.WriteByte(b)
}

func (w *Writer) WriteBool(v bool) {
	if v {
		w.buf.WriteByte(1)
	} else {
		w.buf.WriteByte(0)
	}
}

func (w *Writer) WriteInt32(v int32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], uint32(v))
	w.buf.Write(b[:])
}

func (w *Writer) WriteInt64(v int64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(v))
	w.buf.Write(b[:])
}

func (w *Writer) WriteFloat32(v float32) {
	w.WriteInt32(int32(math.Float32bits(v)))
}

func (w *Writer) WriteString(s string) {
	raw := []byte(s)
	if len(raw) > math.MaxUint16 {
		raw = raw[:math.MaxUint16]
	}
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], uint16(len(raw)))
	w.buf.Write(b[:])
	w.buf.Write(raw)
}

// WriteIsString writes a presence flag followed by the string when present.
func (w *Writer) WriteIsString(s string) {
	if s == "" {
		w.WriteBool(false)
		return
	}
	w.WriteBool(true)
	w.WriteString(s)
}

func (w *Writer) WriteBytes(raw []byte) {
	w.buf.Write(raw)
}

// WriteGzip writes a gzip-compressed section: an int32 byte length of the
// compressed block followed by the block itself. The enclosing frame length
// always reflects the compressed size.
func (w *Writer) WriteGzip(data []byte) error {
	compressed, err := gzipCompress(data)
	if err != nil {
		return err
	}
	w.WriteInt32(int32(len(compressed)))
	w.buf.Write(compressed)
	return nil
}

func (w *Writer) Bytes() []byte {
	return w.buf.Bytes()
}

// CreatePacket seals the payload into a Packet of the given type.
func (w *Writer) CreatePacket(t Type) Packet {
	return New(t, w.buf.Bytes())
}

// Reader walks a packet payload written by Writer (or by the game client).
// Every read returns an Underflow error instead of panicking when the
// payload is shorter than declared.
type Reader struct {
	buf *bytes.Reader
}

func NewReader(p Packet) *Reader {
	return &Reader{buf: bytes.NewReader(p.Bytes)}
}

func NewBytesReader(raw []byte) *Reader {
	return &Reader{buf: bytes.NewReader(raw)}
}

func (r *Reader) underflow(name string, need int) error {
	return &hub.Underflow{MessageName: name, MsgSize: r.buf.Len(), MinimumSize: need}
}

func (r *Reader) ReadByte() (byte, error) {
	b, err := r.buf.ReadByte()
	if err != nil {
		return 0, r.underflow("byte", 1)
	}
	return b, nil
}

func (r *Reader) ReadBool() (bool, error) {
	b, err := r.ReadByte()
	return b != 0, err
}

func (r *Reader) ReadInt32() (int32, error) {
	var b [4]byte
	if _, err := io.ReadFull(r.buf, b[:]); err != nil {
		return 0, r.underflow("int32", 4)
	}
	return int32(binary.BigEndian.Uint32(b[:])), nil
}

func (r *Reader) ReadInt64() (int64, error) {
	var b [8]byte
	if _, err := io.ReadFull(r.buf, b[:]); err != nil {
		return 0, r.underflow("int64", 8)
	}
	return int64(binary.BigEndian.Uint64(b[:])), nil
}

func (r *Reader) ReadString() (string, error) {
	var b [2]byte
	if _, err := io.ReadFull(r.buf, b[:]); err != nil {
		return "", r.underflow("string length", 2)
	}
	n := int(binary.BigEndian.Uint16(b[:]))
	raw := make([]byte, n)
	if _, err := io.ReadFull(r.buf, raw); err != nil {
		return "", r.underflow("string", n)
	}
	return string(raw), nil
}

// ReadIsString reads a presence flag and, when set, the string that follows.
func (r *Reader) ReadIsString() (string, error) {
	has, err := r.ReadBool()
	if err != nil || !has {
		return "", err
	}
	return r.ReadString()
}

// ReadGzip reads a section written by Writer.WriteGzip and inflates it.
func (r *Reader) ReadGzip() ([]byte, error) {
	n, err := r.ReadInt32()
	if err != nil {
		return nil, err
	}
	if n < 0 || int(n) > r.buf.Len() {
		return nil, r.underflow("gzip section", int(n))
	}
	compressed := make([]byte, n)
	if _, err := io.ReadFull(r.buf, compressed); err != nil {
		return nil, r.underflow("gzip section", int(n))
	}
	return gzipDecompress(compressed)
}

func (r *Reader) Skip(n int) error {
	if r.buf.Len() < n {
		return r.underflow("skip", n)
	}
	_, err := r.buf.Seek(int64(n), io.SeekCurrent)
	return err
}

func (r *Reader) Remaining() int {
	return r.buf.Len()
}

// ReadRemaining consumes and returns everything left in the payload.
func (r *Reader) ReadRemaining() []byte {
	out := make([]byte, r.buf.Len())
	_, _ = r.buf.Read(out)
	return out
}
