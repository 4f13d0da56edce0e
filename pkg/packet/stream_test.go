package packet

import (
	"testing"

	hub "github.com/sessamekesh/rts-relay-hub/pkg/errors"

	pkgerrors "github.com/pkg/errors"
)

func TestWriterReaderPrimitives(t *testing.T) {
	w := NewWriter()
	w.WriteByte(0x7f)
	w.WriteBool(true)
	w.WriteBool(false)
	w.WriteInt32(-42)
	w.WriteInt64(1<<40 + 3)
	w.WriteString("Hello 世界")
	w.WriteIsString("")
	w.WriteIsString("present")

	r := NewBytesReader(w.Bytes())

	if b, err := r.ReadByte(); err != nil || b != 0x7f {
		t.Fatalf("ReadByte = %v, %v", b, err)
	}
	if v, err := r.ReadBool(); err != nil || !v {
		t.Fatalf("ReadBool = %v, %v", v, err)
	}
	if v, err := r.ReadBool(); err != nil || v {
		t.Fatalf("ReadBool = %v, %v", v, err)
	}
	if v, err := r.ReadInt32(); err != nil || v != -42 {
		t.Fatalf("ReadInt32 = %v, %v", v, err)
	}
	if v, err := r.ReadInt64(); err != nil || v != 1<<40+3 {
		t.Fatalf("ReadInt64 = %v, %v", v, err)
	}
	if s, err := r.ReadString(); err != nil || s != "Hello 世界" {
		t.Fatalf("ReadString = %q, %v", s, err)
	}
	if s, err := r.ReadIsString(); err != nil || s != "" {
		t.Fatalf("ReadIsString(empty) = %q, %v", s, err)
	}
	if s, err := r.ReadIsString(); err != nil || s != "present" {
		t.Fatalf("ReadIsString = %q, %v", s, err)
	}
	if r.Remaining() != 0 {
		t.Errorf("Remaining = %d, want 0", r.Remaining())
	}
}

func TestReaderUnderflowsInsteadOfPanicking(t *testing.T) {
	r := NewBytesReader([]byte{0x00})

	var underflow *hub.Underflow
	if _, err := r.ReadInt32(); !pkgerrors.As(err, &underflow) {
		t.Fatalf("ReadInt32 error = %v, want Underflow", err)
	}
}

func TestReadStringDeclaredTooLong(t *testing.T) {
	// Declares 100 bytes, carries 2.
	r := NewBytesReader([]byte{0x00, 0x64, 'h', 'i'})
	var underflow *hub.Underflow
	if _, err := r.ReadString(); !pkgerrors.As(err, &underflow) {
		t.Fatalf("ReadString error = %v, want Underflow", err)
	}
}

func TestGzipSectionRoundTrip(t *testing.T) {
	payload := []byte("compressed section content, long enough to deflate a little bit")
	w := NewWriter()
	if err := w.WriteGzip(payload); err != nil {
		t.Fatalf("WriteGzip: %v", err)
	}

	got, err := NewBytesReader(w.Bytes()).ReadGzip()
	if err != nil {
		t.Fatalf("ReadGzip: %v", err)
	}
	if string(got) != string(payload) {
		t.Errorf("round trip mismatch: %q", got)
	}
}

func TestReadGzipRejectsTruncatedSection(t *testing.T) {
	w := NewWriter()
	if err := w.WriteGzip([]byte("data")); err != nil {
		t.Fatalf("WriteGzip: %v", err)
	}
	raw := w.Bytes()
	if _, err := NewBytesReader(raw[:len(raw)-3]).ReadGzip(); err == nil {
		t.Fatal("ReadGzip accepted a truncated section")
	}
}

func TestSkipAndReadRemaining(t *testing.T) {
	r := NewBytesReader([]byte{1, 2, 3, 4, 5})
	if err := r.Skip(2); err != nil {
		t.Fatalf("Skip: %v", err)
	}
	rest := r.ReadRemaining()
	if len(rest) != 3 || rest[0] != 3 {
		t.Errorf("ReadRemaining = %v", rest)
	}
	if err := r.Skip(1); err == nil {
		t.Error("Skip past end succeeded")
	}
}
