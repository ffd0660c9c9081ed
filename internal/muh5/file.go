// ABOUTME: HDF5-backed access to MuH5 recordings via the gonum binding
// ABOUTME: The only package touching libhdf5; everything above works on Info and Block
package muh5

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gonum.org/v1/hdf5"
)

// File is an open MuH5 recording.
type File struct {
	path string
	h5   *hdf5.File
	info Info
}

// Open opens the recording and reads its metadata once.
func Open(path string) (*File, error) {
	h5, err := hdf5.OpenFile(path, hdf5.F_ACC_RDONLY)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}

	info, err := readInfo(h5, path)
	if err != nil {
		h5.Close()
		return nil, err
	}

	return &File{path: path, h5: h5, info: info}, nil
}

// Path returns the filename the file was opened from.
func (f *File) Path() string {
	return f.path
}

// Info returns the file metadata.
func (f *File) Info() Info {
	return f.info
}

// Close releases the underlying H5 handle.
func (f *File) Close() error {
	if f.h5 == nil {
		return nil
	}
	err := f.h5.Close()
	f.h5 = nil
	return err
}

// ReadDataset reads dataset muh5/{index}/sig in full and keeps the rows
// selected by mask. A nil mask keeps every row.
func (f *File) ReadDataset(index int, mask []bool) (*Block, error) {
	name := fmt.Sprintf("%s/%d/sig", GroupName, index)
	dset, err := f.h5.OpenDataset(name)
	if err != nil {
		return nil, &FormatError{Path: f.path, Msg: fmt.Sprintf("missing dataset %s", name)}
	}
	defer dset.Close()

	space := dset.Space()
	defer space.Close()

	dims, _, err := space.SimpleExtentDims()
	if err != nil {
		return nil, fmt.Errorf("failed to read extent of %s: %w", name, err)
	}
	if len(dims) != 2 {
		return nil, &FormatError{Path: f.path, Msg: fmt.Sprintf("dataset %s is not 2-D", name)}
	}

	rows, cols := int(dims[0]), int(dims[1])
	raw := make([]int32, rows*cols)
	if err := dset.Read(&raw); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", name, err)
	}

	if mask == nil {
		return &Block{Channels: rows, Length: cols, Data: raw}, nil
	}
	if len(mask) != rows {
		return nil, &FormatError{Path: f.path,
			Msg: fmt.Sprintf("dataset %s has %d rows, mask covers %d", name, rows, len(mask))}
	}

	kept := 0
	for _, on := range mask {
		if on {
			kept++
		}
	}

	data := make([]int32, 0, kept*cols)
	for r, on := range mask {
		if on {
			data = append(data, raw[r*cols:(r+1)*cols]...)
		}
	}
	return &Block{Channels: kept, Length: cols, Data: data}, nil
}

// IsMuH5 reports whether path is an H5 file carrying the muh5 group.
func IsMuH5(path string) bool {
	h5, err := hdf5.OpenFile(path, hdf5.F_ACC_RDONLY)
	if err != nil {
		return false
	}
	defer h5.Close()

	g, err := h5.OpenGroup(GroupName)
	if err != nil {
		return false
	}
	g.Close()
	return true
}

// ResolveFiles expands path into the ordered list of MuH5 files to
// play: either the single .h5 file it names or every MuH5 file found
// in the directory. An empty result is a format error.
func ResolveFiles(path string) ([]string, error) {
	st, err := os.Stat(path)
	if err != nil {
		return nil, &FormatError{Path: path, Msg: "no MuH5 file found"}
	}

	if st.IsDir() {
		entries, err := os.ReadDir(path)
		if err != nil {
			return nil, fmt.Errorf("failed to scan %s: %w", path, err)
		}

		var files []string
		for _, e := range entries {
			if e.IsDir() || !strings.HasSuffix(e.Name(), ".h5") {
				continue
			}
			full := filepath.Join(path, e.Name())
			if IsMuH5(full) {
				files = append(files, full)
			}
		}

		if len(files) == 0 {
			return nil, &FormatError{Path: path, Msg: "directory holds no MuH5 files"}
		}
		return files, nil
	}

	if !strings.HasSuffix(path, ".h5") {
		return nil, &FormatError{Path: path, Msg: "not an .h5 file"}
	}
	if !IsMuH5(path) {
		return nil, &FormatError{Path: path, Msg: "unrecognized format: missing muh5 group"}
	}
	return []string{path}, nil
}

// ReadInfo reads the metadata of a file without keeping it open.
func ReadInfo(path string) (Info, error) {
	f, err := Open(path)
	if err != nil {
		return Info{}, err
	}
	defer f.Close()
	return f.Info(), nil
}

func readInfo(h5 *hdf5.File, path string) (Info, error) {
	g, err := h5.OpenGroup(GroupName)
	if err != nil {
		return Info{}, &FormatError{Path: path, Msg: "unrecognized format: missing muh5 group"}
	}
	defer g.Close()

	var info Info

	// Required attributes.
	if info.SamplingFrequency, err = attrFloat(g, "sampling_frequency"); err != nil {
		return Info{}, &FormatError{Path: path, Msg: err.Error()}
	}
	if info.Mems, err = attrInts(g, "mems"); err != nil {
		return Info{}, &FormatError{Path: path, Msg: err.Error()}
	}
	if info.Analogs, err = attrInts(g, "analogs"); err != nil {
		return Info{}, &FormatError{Path: path, Msg: err.Error()}
	}
	if info.Counter, err = attrBool(g, "counter"); err != nil {
		return Info{}, &FormatError{Path: path, Msg: err.Error()}
	}
	if info.Duration, err = attrFloat(g, "duration"); err != nil {
		return Info{}, &FormatError{Path: path, Msg: err.Error()}
	}

	n, err := attrFloat(g, "dataset_number")
	if err != nil {
		return Info{}, &FormatError{Path: path, Msg: err.Error()}
	}
	info.DatasetNumber = int(n)

	n, err = attrFloat(g, "dataset_length")
	if err != nil {
		return Info{}, &FormatError{Path: path, Msg: err.Error()}
	}
	info.DatasetLength = int(n)

	// Optional attributes degrade to zero values.
	info.CounterSkip, _ = attrBool(g, "counter_skip")
	info.Status, _ = attrBool(g, "status")
	info.Compression, _ = attrBool(g, "compression")
	info.Timestamp, _ = attrFloat(g, "timestamp")
	info.DatasetDuration, _ = attrFloat(g, "dataset_duration")
	info.Date, _ = attrString(g, "date")
	info.Comment, _ = attrString(g, "comment")

	return info, nil
}

func attrFloat(g *hdf5.Group, name string) (float64, error) {
	attr, err := g.OpenAttribute(name)
	if err != nil {
		return 0, fmt.Errorf("missing attribute %q", name)
	}
	defer attr.Close()

	var v float64
	if err := attr.Read(&v, hdf5.T_NATIVE_DOUBLE); err != nil {
		return 0, fmt.Errorf("unreadable attribute %q", name)
	}
	return v, nil
}

func attrBool(g *hdf5.Group, name string) (bool, error) {
	attr, err := g.OpenAttribute(name)
	if err != nil {
		return false, fmt.Errorf("missing attribute %q", name)
	}
	defer attr.Close()

	var v int32
	if err := attr.Read(&v, hdf5.T_NATIVE_INT32); err != nil {
		return false, fmt.Errorf("unreadable attribute %q", name)
	}
	return v != 0, nil
}

func attrString(g *hdf5.Group, name string) (string, error) {
	attr, err := g.OpenAttribute(name)
	if err != nil {
		return "", fmt.Errorf("missing attribute %q", name)
	}
	defer attr.Close()

	var v string
	if err := attr.Read(&v, hdf5.T_GO_STRING); err != nil {
		return "", fmt.Errorf("unreadable attribute %q", name)
	}
	return v, nil
}

func attrInts(g *hdf5.Group, name string) ([]int, error) {
	attr, err := g.OpenAttribute(name)
	if err != nil {
		return nil, fmt.Errorf("missing attribute %q", name)
	}
	defer attr.Close()

	space := attr.Space()
	defer space.Close()

	n := space.SimpleExtentNPoints()
	if n == 0 {
		return nil, nil
	}

	raw := make([]int32, n)
	if err := attr.Read(&raw, hdf5.T_NATIVE_INT32); err != nil {
		return nil, fmt.Errorf("unreadable attribute %q", name)
	}

	out := make([]int, n)
	for i, v := range raw {
		out[i] = int(v)
	}
	return out, nil
}
