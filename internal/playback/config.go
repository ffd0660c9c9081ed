// ABOUTME: Playback engine configuration and pre-run validation types
// ABOUTME: File metadata stays authoritative; the config only narrows it
package playback

import (
	"fmt"
	"time"
)

const (
	// DefaultFrameLength is used when no frame length is configured.
	DefaultFrameLength = 256

	// DefaultQueueSize bounds the output channel in frames.
	DefaultQueueSize = 2

	// processingDelayRate discounts the pacing sleep by a fixed share
	// of the frame duration so slicing and encoding time does not
	// accumulate as drift.
	processingDelayRate = 0.4
)

// Datatype selects the output representation of produced frames.
type Datatype int

const (
	DatatypeUnknown Datatype = iota
	DatatypeInt32             // int32 samples, sample-major
	DatatypeRawInt32          // byte serialization of the int32 form
	DatatypeFloat32           // float32 samples scaled by sensitivity
	DatatypeRawFloat32        // byte serialization of the float32 form
)

// ParseDatatype maps the wire names used by the recording tools.
func ParseDatatype(s string) (Datatype, error) {
	switch s {
	case "int32":
		return DatatypeInt32, nil
	case "bint32":
		return DatatypeRawInt32, nil
	case "float32":
		return DatatypeFloat32, nil
	case "bfloat32":
		return DatatypeRawFloat32, nil
	}
	return DatatypeUnknown, &ConfigError{Msg: fmt.Sprintf("unknown datatype %q", s)}
}

func (d Datatype) String() string {
	switch d {
	case DatatypeInt32:
		return "int32"
	case DatatypeRawInt32:
		return "bint32"
	case DatatypeFloat32:
		return "float32"
	case DatatypeRawFloat32:
		return "bfloat32"
	}
	return "unknown"
}

// Config drives one replay run. Sampling frequency and channel
// availability always come from the files themselves; the selections
// here are intersected with what each file offers, never widened.
type Config struct {
	// Mems and Analogs select the active channel subsets.
	Mems    []int
	Analogs []int

	// Duration bounds the run. 0 plays until input is exhausted
	// (forever in loop mode); negative means not set and fails
	// validation. DefaultConfig seeds -1.
	Duration time.Duration

	// StartTime is the offset in seconds into the first file.
	StartTime float64

	// FrameLength is the frame size in samples. 0 takes the default.
	FrameLength int

	// Datatype must be set before running.
	Datatype Datatype

	// Loop restarts from the first file after the list is exhausted.
	Loop bool

	// CounterSkip drops the counter row when the file carries one.
	CounterSkip bool

	// Status forwards the status row when the file carries one.
	Status bool

	// QueueSize bounds the output channel. 0 takes the default.
	QueueSize int

	// Sensitivity scales float32 output. 0 takes the MEMs constant.
	Sensitivity float32
}

// DefaultConfig returns a config whose duration is explicitly unset.
func DefaultConfig() Config {
	return Config{Duration: -1}
}

// ConfigError reports a setting missing or invalid before the run starts.
type ConfigError struct {
	Msg string
}

func (e *ConfigError) Error() string {
	return "invalid configuration: " + e.Msg
}
