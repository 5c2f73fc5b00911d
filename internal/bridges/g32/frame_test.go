package g32

import (
	"bytes"
	"testing"
)

func TestFramer_SingleFrame(t *testing.T) {
	var f Framer
	p := buildPacket()
	f.Write(p)

	got, ok := f.Next()
	if !ok {
		t.Fatal("Next() = false, want a frame")
	}
	if !bytes.Equal(got, p) {
		t.Errorf("frame = %x, want %x", got, p)
	}
	if _, ok := f.Next(); ok {
		t.Error("second Next() = true, want false")
	}
	if f.Buffered() != 0 {
		t.Errorf("Buffered() = %d, want 0", f.Buffered())
	}
}

func TestFramer_SplitAcrossWrites(t *testing.T) {
	var f Framer
	p := buildPacket()

	f.Write(p[:1])
	if _, ok := f.Next(); ok {
		t.Fatal("Next() after 1 byte = true")
	}
	f.Write(p[1:30])
	if _, ok := f.Next(); ok {
		t.Fatal("Next() after 30 bytes = true")
	}
	f.Write(p[30:])

	got, ok := f.Next()
	if !ok || !bytes.Equal(got, p) {
		t.Errorf("Next() = %x, %v; want complete frame", got, ok)
	}
}

func TestFramer_DiscardsLeadingGarbage(t *testing.T) {
	var f Framer
	p := buildPacket()
	f.Write([]byte{0x00, 0x11, 0x3A, 0xA3, 0x22})
	f.Write(p)

	got, ok := f.Next()
	if !ok || !bytes.Equal(got, p) {
		t.Errorf("Next() = %x, %v; want frame after garbage", got, ok)
	}
}

func TestFramer_KeepsTrailingHeaderByte(t *testing.T) {
	var f Framer
	f.Write([]byte{0x01, 0x02, 0xA3})
	if _, ok := f.Next(); ok {
		t.Fatal("Next() = true, want false")
	}
	if f.Buffered() != 1 {
		t.Fatalf("Buffered() = %d, want 1", f.Buffered())
	}

	p := buildPacket()
	f.Write(p[1:])
	got, ok := f.Next()
	if !ok || !bytes.Equal(got, p) {
		t.Errorf("Next() = %x, %v; want frame completed from trailing byte", got, ok)
	}
}

func TestFramer_DropsBufferWithoutHeader(t *testing.T) {
	var f Framer
	f.Write(bytes.Repeat([]byte{0x55}, 200))
	if _, ok := f.Next(); ok {
		t.Fatal("Next() = true, want false")
	}
	if f.Buffered() != 0 {
		t.Errorf("Buffered() = %d, want 0", f.Buffered())
	}
}

func TestFramer_BackToBackFrames(t *testing.T) {
	var f Framer
	a := buildPacket()
	b := buildPacket()
	b[zoneOffsets[0]], b[zoneOffsets[0]+1] = 0x01, 0x40

	stream := append(append([]byte{}, a...), b...)
	f.Write(stream)

	first, ok := f.Next()
	if !ok || !bytes.Equal(first, a) {
		t.Fatalf("first frame = %x, %v", first, ok)
	}
	second, ok := f.Next()
	if !ok || !bytes.Equal(second, b) {
		t.Fatalf("second frame = %x, %v", second, ok)
	}
}

// Header bytes inside a record's payload must not split the stream.
func TestFramer_EmbeddedHeaderDoesNotResync(t *testing.T) {
	var f Framer
	bad := buildPacket()
	bad[gasWeightOffset] = 0xA3
	bad[gasWeightOffset+1] = 0x3A
	good := buildPacket()
	good[zoneOffsets[0]], good[zoneOffsets[0]+1] = 0x01, 0x40

	f.Write(bad)
	f.Write(good)

	var decoded []*Telemetry
	for {
		frame, ok := f.Next()
		if !ok {
			break
		}
		tel, err := DecodePacket(frame)
		if err != nil {
			t.Fatalf("DecodePacket() error = %v", err)
		}
		decoded = append(decoded, tel)
	}

	if len(decoded) != 2 {
		t.Fatalf("decoded = %d, want 2", len(decoded))
	}
	if decoded[0].GasWeight != 0xA33A {
		t.Errorf("first frame GasWeight = %#x, want 0xa33a", decoded[0].GasWeight)
	}
	if v, ok := decoded[1].Zone(1); !ok || v != 14.0 {
		t.Errorf("second frame Zone(1) = %v, %v; want 14", v, ok)
	}
}

func TestFramer_Reset(t *testing.T) {
	var f Framer
	f.Write(buildPacket()[:20])
	f.Reset()
	if f.Buffered() != 0 {
		t.Errorf("Buffered() = %d, want 0", f.Buffered())
	}
}
