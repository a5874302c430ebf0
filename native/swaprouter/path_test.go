package swaprouter

import (
	"testing"
)

func addr(b byte) [20]byte {
	var a [20]byte
	a[19] = b
	return a
}

func TestSingleTokenPath(t *testing.T) {
	p := SingleToken(addr(1))
	if !p.Valid() {
		t.Fatal("trivial path invalid")
	}
	if p.NumHops() != 0 {
		t.Fatalf("trivial path has %d hops", p.NumHops())
	}
	if p.First() != addr(1) || p.Last() != addr(1) {
		t.Fatal("trivial path endpoints wrong")
	}
}

func TestEncodePathRoundTrip(t *testing.T) {
	tokens := [][20]byte{addr(1), addr(2), addr(3)}
	fees := []uint32{3_000, 10_000}
	p, err := EncodePath(tokens, fees)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if !p.Valid() {
		t.Fatal("encoded path invalid")
	}
	if p.NumHops() != 2 {
		t.Fatalf("hops = %d, want 2", p.NumHops())
	}
	if p.First() != addr(1) || p.Last() != addr(3) {
		t.Fatal("endpoints wrong")
	}
	for i := 0; i < 2; i++ {
		in, out, fee := p.Hop(i)
		if in != tokens[i] || out != tokens[i+1] || fee != fees[i] {
			t.Fatalf("hop %d = (%x, %x, %d)", i, in, out, fee)
		}
	}
}

func TestEncodePathRejectsMismatch(t *testing.T) {
	if _, err := EncodePath([][20]byte{addr(1), addr(2)}, nil); err != ErrInvalidPath {
		t.Fatalf("missing fees: got %v", err)
	}
	if _, err := EncodePath(nil, nil); err != ErrInvalidPath {
		t.Fatalf("empty tokens: got %v", err)
	}
	if _, err := EncodePath([][20]byte{addr(1), addr(2)}, []uint32{1_000_000}); err != ErrInvalidPath {
		t.Fatalf("fee above ppm range: got %v", err)
	}
}

func TestValidRejectsTruncatedBytes(t *testing.T) {
	p, err := EncodePath([][20]byte{addr(1), addr(2)}, []uint32{500})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if Path(p[:len(p)-1]).Valid() {
		t.Fatal("truncated path reported valid")
	}
	if Path(nil).Valid() {
		t.Fatal("empty path reported valid")
	}
}

func TestSplitAt(t *testing.T) {
	base := addr(2)
	p, err := EncodePath([][20]byte{addr(1), base, addr(3)}, []uint32{500, 600})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	front, back, ok := p.SplitAt(base)
	if !ok {
		t.Fatal("split failed")
	}
	if front.NumHops() != 1 || front.First() != addr(1) || front.Last() != base {
		t.Fatalf("front wrong: hops=%d", front.NumHops())
	}
	if back.NumHops() != 1 || back.First() != base || back.Last() != addr(3) {
		t.Fatalf("back wrong: hops=%d", back.NumHops())
	}
}

func TestSplitAtTerminalToken(t *testing.T) {
	base := addr(2)
	p, err := EncodePath([][20]byte{addr(1), base}, []uint32{500})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	front, back, ok := p.SplitAt(base)
	if !ok {
		t.Fatal("split failed")
	}
	if front.NumHops() != 1 {
		t.Fatalf("front hops = %d, want 1", front.NumHops())
	}
	if back.NumHops() != 0 || back.First() != base {
		t.Fatal("terminal split should produce trivial back path")
	}
}

func TestSplitAtMissingToken(t *testing.T) {
	p, err := EncodePath([][20]byte{addr(1), addr(2)}, []uint32{500})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if _, _, ok := p.SplitAt(addr(9)); ok {
		t.Fatal("split found a token the path does not contain")
	}
}
