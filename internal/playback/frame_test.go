// ABOUTME: Frame encoding tests for each output datatype
// ABOUTME: Transposition, byte serialization, and sensitivity scaling
package playback

import (
	"encoding/binary"
	"math"
	"testing"
)

// Two channels, three samples: channel-major input.
var encodeInput = []int32{1, 2, 3, 10, 20, 30}

func TestEncodeInt32Transposes(t *testing.T) {
	f := encodeFrame(DatatypeInt32, encodeInput, 2, 3, 1)

	want := []int32{1, 10, 2, 20, 3, 30}
	if len(f.Samples) != len(want) {
		t.Fatalf("got %d samples, want %d", len(f.Samples), len(want))
	}
	for i, v := range want {
		if f.Samples[i] != v {
			t.Errorf("sample %d = %d, want %d", i, f.Samples[i], v)
		}
	}
	if f.Bytes != nil || f.Floats != nil {
		t.Error("int32 frame must not carry bytes or floats")
	}
}

func TestEncodeRawInt32(t *testing.T) {
	f := encodeFrame(DatatypeRawInt32, encodeInput, 2, 3, 1)

	if len(f.Bytes) != 4*6 {
		t.Fatalf("got %d bytes, want %d", len(f.Bytes), 24)
	}

	// First word is channel 0 sample 0, second is channel 1 sample 0.
	if got := int32(binary.LittleEndian.Uint32(f.Bytes[0:])); got != 1 {
		t.Errorf("word 0 = %d, want 1", got)
	}
	if got := int32(binary.LittleEndian.Uint32(f.Bytes[4:])); got != 10 {
		t.Errorf("word 1 = %d, want 10", got)
	}
}

func TestEncodeFloat32AppliesSensitivity(t *testing.T) {
	f := encodeFrame(DatatypeFloat32, encodeInput, 2, 3, 0.5)

	want := []float32{0.5, 5, 1, 10, 1.5, 15}
	for i, v := range want {
		if f.Floats[i] != v {
			t.Errorf("float %d = %g, want %g", i, f.Floats[i], v)
		}
	}
}

func TestEncodeRawFloat32(t *testing.T) {
	f := encodeFrame(DatatypeRawFloat32, encodeInput, 2, 3, 2)

	got := math.Float32frombits(binary.LittleEndian.Uint32(f.Bytes[0:]))
	if got != 2 {
		t.Errorf("word 0 = %g, want 2", got)
	}
}

func TestParseDatatype(t *testing.T) {
	cases := map[string]Datatype{
		"int32":    DatatypeInt32,
		"bint32":   DatatypeRawInt32,
		"float32":  DatatypeFloat32,
		"bfloat32": DatatypeRawFloat32,
	}
	for in, want := range cases {
		got, err := ParseDatatype(in)
		if err != nil {
			t.Errorf("ParseDatatype(%q) failed: %v", in, err)
		}
		if got != want {
			t.Errorf("ParseDatatype(%q) = %v, want %v", in, got, want)
		}
	}

	if _, err := ParseDatatype("int16"); err == nil {
		t.Error("ParseDatatype should reject unknown names")
	}
}
