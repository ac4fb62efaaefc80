package codec

import (
	"bytes"
	"crypto/rand"
	"errors"
	"testing"
)

func TestLZ4_RoundTrip(t *testing.T) {
	z := NewLZ4()

	// Highly repetitive input compresses well.
	raw := bytes.Repeat([]byte("aqueduct frame payload "), 512)

	compressed, err := z.Compress(raw)
	if err != nil {
		t.Fatal(err)
	}
	if len(compressed) >= len(raw) {
		t.Errorf("compressed %d bytes >= raw %d bytes", len(compressed), len(raw))
	}

	out, err := z.Decompress(compressed, len(raw))
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(out, raw) {
		t.Error("round trip mismatch")
	}
}

func TestLZ4_Incompressible(t *testing.T) {
	z := NewLZ4()

	raw := make([]byte, 4096)
	if _, err := rand.Read(raw); err != nil {
		t.Fatal(err)
	}

	if _, err := z.Compress(raw); !errors.Is(err, ErrIncompressible) {
		t.Errorf("err = %v, want ErrIncompressible", err)
	}
}

func TestLZ4_DecompressInto(t *testing.T) {
	z := NewLZ4()

	raw := bytes.Repeat([]byte{0x42}, 8192)
	compressed, err := z.Compress(raw)
	if err != nil {
		t.Fatal(err)
	}
	// Compress reuses its scratch buffer; copy before the next call.
	compressed = append([]byte(nil), compressed...)

	dst := make([]byte, len(raw))
	n, err := z.DecompressInto(compressed, dst)
	if err != nil {
		t.Fatal(err)
	}
	if n != len(raw) || !bytes.Equal(dst[:n], raw) {
		t.Errorf("decoded %d bytes, mismatch or wrong size", n)
	}
}

func TestLZ4_DecompressSizeOverLimit(t *testing.T) {
	z := NewLZ4()

	raw := bytes.Repeat([]byte{7}, 1024)
	compressed, err := z.Compress(raw)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := z.Decompress(compressed, len(raw)-1); !errors.Is(err, ErrCodec) {
		t.Errorf("err = %v, want ErrCodec for size over limit", err)
	}
}

func TestLZ4_DecompressTruncated(t *testing.T) {
	z := NewLZ4()

	if _, err := z.Decompress([]byte{1, 2}, 64); !errors.Is(err, ErrCodec) {
		t.Errorf("short input: err = %v, want ErrCodec", err)
	}

	// Valid size prologue, garbage block.
	bad := []byte{16, 0, 0, 0, 0xFF, 0xFF}
	if _, err := z.Decompress(bad, 64); !errors.Is(err, ErrCodec) {
		t.Errorf("corrupt block: err = %v, want ErrCodec", err)
	}
}

func TestPassthrough(t *testing.T) {
	var p Passthrough

	if _, err := p.Compress([]byte{1, 2, 3}); !errors.Is(err, ErrIncompressible) {
		t.Errorf("Compress err = %v, want ErrIncompressible", err)
	}
	if _, err := p.Decompress([]byte{1, 2, 3}, 3); !errors.Is(err, ErrCodec) {
		t.Errorf("Decompress err = %v, want ErrCodec", err)
	}
}
