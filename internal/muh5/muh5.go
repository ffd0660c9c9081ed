// ABOUTME: MuH5 recording format types and channel layout math
// ABOUTME: Metadata, row masks, and the MEMs sensitivity constant
package muh5

import (
	"fmt"
	"math"
)

// GroupName is the top-level H5 group every MuH5 recording carries.
const GroupName = "muh5"

// Sensitivity converts raw MEMs counts to pascals
// (-26 dBFS for 104 dB, that is 3.17 Pa).
var Sensitivity = float32(1 / (math.Pow(2, 23) * math.Pow(10, -26.0/20) / 3.17))

// FormatError reports a file that does not follow the MuH5 layout:
// missing group, missing required attribute, or an empty file list.
type FormatError struct {
	Path string
	Msg  string
}

func (e *FormatError) Error() string {
	if e.Path == "" {
		return e.Msg
	}
	return fmt.Sprintf("%s: %s", e.Path, e.Msg)
}

// Info is the metadata of one MuH5 file, read once from the muh5 group
// attributes. It is authoritative for the file's processing lifetime:
// sampling frequency and channel availability cannot be overridden by
// callers.
type Info struct {
	SamplingFrequency float64
	Mems              []int
	Analogs           []int
	Counter           bool
	CounterSkip       bool
	Status            bool
	Timestamp         float64
	Date              string
	Duration          float64
	Comment           string
	DatasetNumber     int
	DatasetDuration   float64
	DatasetLength     int
	Compression       bool
}

// ChannelCount is the number of rows in each dataset: counter first
// when present, MEMs, analogs, status last when present.
func (i Info) ChannelCount() int {
	n := len(i.Mems) + len(i.Analogs)
	if i.Counter {
		n++
	}
	if i.Status {
		n++
	}
	return n
}

// SampleCount is the total samples per channel in the file.
func (i Info) SampleCount() int {
	return i.DatasetNumber * i.DatasetLength
}

// Intersect keeps the requested channels that the availability list
// actually carries, in availability order. Requesting a superset of
// what is available therefore yields the availability alone, and the
// operation is idempotent.
func Intersect(available, requested []int) []int {
	want := make(map[int]struct{}, len(requested))
	for _, ch := range requested {
		want[ch] = struct{}{}
	}

	var active []int
	for _, ch := range available {
		if _, ok := want[ch]; ok {
			active = append(active, ch)
		}
	}
	return active
}

// Mask builds the dataset row mask for the given active selection.
// Row order follows the file layout; the returned count is the number
// of selected rows.
func (i Info) Mask(activeMems, activeAnalogs []int, counterSkip, wantStatus bool) ([]bool, int) {
	mask := make([]bool, 0, i.ChannelCount())

	if i.Counter {
		mask = append(mask, !counterSkip)
	}

	memSet := make(map[int]struct{}, len(activeMems))
	for _, ch := range activeMems {
		memSet[ch] = struct{}{}
	}
	for _, ch := range i.Mems {
		_, ok := memSet[ch]
		mask = append(mask, ok)
	}

	analogSet := make(map[int]struct{}, len(activeAnalogs))
	for _, ch := range activeAnalogs {
		analogSet[ch] = struct{}{}
	}
	for _, ch := range i.Analogs {
		_, ok := analogSet[ch]
		mask = append(mask, ok)
	}

	if i.Status {
		mask = append(mask, wantStatus)
	}

	count := 0
	for _, on := range mask {
		if on {
			count++
		}
	}
	return mask, count
}

// Block is one dataset read into memory, row-major channels x length.
type Block struct {
	Channels int
	Length   int
	Data     []int32
}

// Row returns one channel row of the block.
func (b *Block) Row(c int) []int32 {
	return b.Data[c*b.Length : (c+1)*b.Length]
}
