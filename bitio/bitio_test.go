package bitio

import (
	"bytes"
	"io"
	"testing"
)

func TestWriteReadRoundTrip(t *testing.T) {
	bits := []byte{1, 0, 1, 1, 0, 0, 0, 1, 1, 0, 1}
	var buf bytes.Buffer
	w := NewWriter(&buf)
	for _, b := range bits {
		if err := w.WriteBit(b); err != nil {
			t.Fatalf("WriteBit: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	r := NewReader(buf.Bytes(), len(bits))
	for i, want := range bits {
		got, err := r.ReadBit()
		if err != nil {
			t.Fatalf("ReadBit(%d): %v", i, err)
		}
		if got != want {
			t.Errorf("bit %d = %d, want %d", i, got, want)
		}
	}
	if _, err := r.ReadBit(); err != ErrEndOfStream {
		t.Errorf("ReadBit past end = %v, want ErrEndOfStream", err)
	}
}

func TestWriteBitsReadBits(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	if err := w.WriteBits(0x1A2B, 16); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	r := NewReader(buf.Bytes(), 16)
	got, err := r.ReadBits(16)
	if err != nil {
		t.Fatal(err)
	}
	if got != 0x1A2B {
		t.Errorf("ReadBits = %#x, want 0x1a2b", got)
	}
}

func TestByteAlignedPadding(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	for i := 0; i < 3; i++ {
		if err := w.WriteBit(1); err != nil {
			t.Fatal(err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	if got, want := buf.Len(), 1; got != want {
		t.Fatalf("buf.Len() = %d, want %d", got, want)
	}
	if got, want := buf.Bytes()[0], byte(0b1110_0000); got != want {
		t.Errorf("padded byte = %08b, want %08b", got, want)
	}
}

func TestSeekableWriter(t *testing.T) {
	w, ws := NewSeekableWriter()
	if err := w.WriteBits(0xFF, 8); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	b, err := io.ReadAll(ws.Reader())
	if err != nil {
		t.Fatal(err)
	}
	if len(b) != 1 || b[0] != 0xFF {
		t.Errorf("got %v, want [0xff]", b)
	}
}
