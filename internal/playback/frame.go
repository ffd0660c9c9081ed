// ABOUTME: Frame assembly and output-representation encoding
// ABOUTME: Transposes channel-major blocks to the sample-major wire layout
package playback

import (
	"encoding/binary"
	"math"
)

// Frame is one fixed-length multi-channel slice handed to the consumer.
// Exactly one of Samples, Floats, or Bytes is populated, per the
// configured datatype. The producer never retains a frame after it is
// queued.
type Frame struct {
	Index    int
	Channels int
	Length   int

	Samples []int32   // DatatypeInt32: sample-major, channels interleaved
	Floats  []float32 // DatatypeFloat32: sample-major, scaled
	Bytes   []byte    // raw datatypes: little-endian serialization
}

// Payload returns the frame as little-endian bytes regardless of the
// configured datatype, for transports that only move buffers.
func (f Frame) Payload() []byte {
	if f.Bytes != nil {
		return f.Bytes
	}

	if f.Floats != nil {
		out := make([]byte, 4*len(f.Floats))
		for i, v := range f.Floats {
			binary.LittleEndian.PutUint32(out[4*i:], math.Float32bits(v))
		}
		return out
	}

	out := make([]byte, 4*len(f.Samples))
	for i, v := range f.Samples {
		binary.LittleEndian.PutUint32(out[4*i:], uint32(v))
	}
	return out
}

// encodeFrame converts a channel-major buffer of channels x length into
// the representation dt selects. buf is laid out row by row.
func encodeFrame(dt Datatype, buf []int32, channels, length int, sensitivity float32) Frame {
	f := Frame{Channels: channels, Length: length}

	switch dt {
	case DatatypeInt32:
		f.Samples = transpose(buf, channels, length)

	case DatatypeRawInt32:
		samples := transpose(buf, channels, length)
		f.Bytes = make([]byte, 4*len(samples))
		for i, v := range samples {
			binary.LittleEndian.PutUint32(f.Bytes[4*i:], uint32(v))
		}

	case DatatypeFloat32:
		samples := transpose(buf, channels, length)
		f.Floats = make([]float32, len(samples))
		for i, v := range samples {
			f.Floats[i] = float32(v) * sensitivity
		}

	case DatatypeRawFloat32:
		samples := transpose(buf, channels, length)
		f.Bytes = make([]byte, 4*len(samples))
		for i, v := range samples {
			binary.LittleEndian.PutUint32(f.Bytes[4*i:], math.Float32bits(float32(v)*sensitivity))
		}
	}

	return f
}

// transpose turns channels x length into length x channels so each
// sample instant carries all its channel values contiguously.
func transpose(buf []int32, channels, length int) []int32 {
	out := make([]int32, len(buf))
	for c := 0; c < channels; c++ {
		row := buf[c*length : (c+1)*length]
		for s, v := range row {
			out[s*channels+c] = v
		}
	}
	return out
}
