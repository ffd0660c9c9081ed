// ABOUTME: Replay engine tests against in-memory recordings
// ABOUTME: Frame counts, splicing, padding, start offsets, looping, pacing, validation
package playback

import (
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/megamicros/megamicros-go/internal/muh5"
)

// memSource plays the role of an open MuH5 file. Datasets are
// channel-major, one slice per dataset, all rows present per the
// layout the Info describes.
type memSource struct {
	info     muh5.Info
	datasets [][]int32
	closed   bool
}

func (m *memSource) Info() muh5.Info { return m.info }

func (m *memSource) ReadDataset(index int, mask []bool) (*muh5.Block, error) {
	if index >= len(m.datasets) {
		return nil, errors.New("dataset out of range")
	}

	cols := m.info.DatasetLength
	raw := m.datasets[index]

	if mask == nil {
		return &muh5.Block{Channels: len(raw) / cols, Length: cols, Data: raw}, nil
	}

	var data []int32
	kept := 0
	for r, on := range mask {
		if on {
			data = append(data, raw[r*cols:(r+1)*cols]...)
			kept++
		}
	}
	return &muh5.Block{Channels: kept, Length: cols, Data: data}, nil
}

func (m *memSource) Close() error {
	m.closed = true
	return nil
}

// ramp builds a dataset whose every channel carries base+0, base+1, ...
// so sample positions are recognizable after slicing.
func ramp(channels, length int, base int32) []int32 {
	data := make([]int32, channels*length)
	for c := 0; c < channels; c++ {
		for s := 0; s < length; s++ {
			data[c*length+s] = base + int32(s)
		}
	}
	return data
}

func testInfo(channels, datasets, datasetLen int, fs float64) muh5.Info {
	mems := make([]int, channels)
	for i := range mems {
		mems[i] = i
	}
	return muh5.Info{
		SamplingFrequency: fs,
		Mems:              mems,
		DatasetNumber:     datasets,
		DatasetLength:     datasetLen,
		Duration:          float64(datasets*datasetLen) / fs,
	}
}

func newTestEngine(t *testing.T, cfg Config, src func() *memSource) *Engine {
	t.Helper()
	e := New(cfg, zap.NewNop())
	e.open = func(string) (Source, error) {
		return src(), nil
	}
	return e
}

func collect(t *testing.T, e *Engine) []Frame {
	t.Helper()
	var frames []Frame
	for f := range e.Frames() {
		frames = append(frames, f)
	}
	if err := e.Wait(); err != nil {
		t.Fatalf("run failed: %v", err)
	}
	return frames
}

func baseConfig() Config {
	cfg := DefaultConfig()
	cfg.Mems = []int{0, 1}
	cfg.Duration = 0
	cfg.Datatype = DatatypeInt32
	return cfg
}

func TestExactFrameCount(t *testing.T) {
	// 2 channels, one dataset of 320 samples, frames of 80
	// -> exactly 4 frames.
	cfg := baseConfig()
	cfg.FrameLength = 80

	e := newTestEngine(t, cfg, func() *memSource {
		return &memSource{
			info:     testInfo(2, 1, 320, 16000),
			datasets: [][]int32{ramp(2, 320, 0)},
		}
	})

	if err := e.Run([]string{"a.h5"}); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	frames := collect(t, e)
	if len(frames) != 4 {
		t.Fatalf("expected 4 frames, got %d", len(frames))
	}
	for _, f := range frames {
		if f.Channels != 2 || f.Length != 80 {
			t.Errorf("frame %d has shape (%d, %d), want (2, 80)", f.Index, f.Channels, f.Length)
		}
	}
}

func TestZeroPaddedTail(t *testing.T) {
	cfg := baseConfig()
	cfg.FrameLength = 4

	e := newTestEngine(t, cfg, func() *memSource {
		return &memSource{
			info:     testInfo(2, 1, 10, 10000),
			datasets: [][]int32{ramp(2, 10, 1)},
		}
	})

	if err := e.Run([]string{"a.h5"}); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	frames := collect(t, e)
	// floor(10/4) = 2 full frames plus one padded remainder.
	if len(frames) != 3 {
		t.Fatalf("expected 3 frames, got %d", len(frames))
	}

	last := frames[2]
	// Sample-major layout: samples 8,9 then zeros, two channels each.
	want := []int32{9, 9, 10, 10, 0, 0, 0, 0}
	for i, v := range want {
		if last.Samples[i] != v {
			t.Errorf("padded frame sample %d = %d, want %d", i, last.Samples[i], v)
		}
	}
}

func TestSpliceAcrossDatasets(t *testing.T) {
	cfg := baseConfig()
	cfg.Mems = []int{0}
	cfg.FrameLength = 4

	e := newTestEngine(t, cfg, func() *memSource {
		return &memSource{
			info:     testInfo(1, 2, 6, 10000),
			datasets: [][]int32{ramp(1, 6, 0), ramp(1, 6, 100)},
		}
	})

	if err := e.Run([]string{"a.h5"}); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	frames := collect(t, e)
	// 12 samples over frames of 4: three full frames, no padding.
	if len(frames) != 3 {
		t.Fatalf("expected 3 frames, got %d", len(frames))
	}

	middle := frames[1].Samples
	want := []int32{4, 5, 100, 101}
	for i, v := range want {
		if middle[i] != v {
			t.Errorf("spliced frame sample %d = %d, want %d", i, middle[i], v)
		}
	}
}

func TestSpliceThroughSeveralShortDatasets(t *testing.T) {
	cfg := baseConfig()
	cfg.Mems = []int{0}
	cfg.FrameLength = 7

	e := newTestEngine(t, cfg, func() *memSource {
		return &memSource{
			info:     testInfo(1, 4, 2, 10000),
			datasets: [][]int32{ramp(1, 2, 0), ramp(1, 2, 10), ramp(1, 2, 20), ramp(1, 2, 30)},
		}
	})

	if err := e.Run([]string{"a.h5"}); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	frames := collect(t, e)
	// 8 samples, one 7-sample frame plus a padded single-sample tail.
	if len(frames) != 2 {
		t.Fatalf("expected 2 frames, got %d", len(frames))
	}

	want := []int32{0, 1, 10, 11, 20, 21, 30}
	for i, v := range want {
		if frames[0].Samples[i] != v {
			t.Errorf("frame sample %d = %d, want %d", i, frames[0].Samples[i], v)
		}
	}
}

func TestStartTimeSkipsSamples(t *testing.T) {
	// start_time=1s at 1 kHz skips the first 1000 samples.
	cfg := baseConfig()
	cfg.Mems = []int{0}
	cfg.FrameLength = 50
	cfg.StartTime = 1

	e := newTestEngine(t, cfg, func() *memSource {
		return &memSource{
			info:     testInfo(1, 1, 1100, 1000),
			datasets: [][]int32{ramp(1, 1100, 0)},
		}
	})

	if err := e.Run([]string{"a.h5"}); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	frames := collect(t, e)
	if len(frames) != 2 {
		t.Fatalf("expected 2 frames, got %d", len(frames))
	}
	if frames[0].Samples[0] != 1000 {
		t.Errorf("first sample = %d, want 1000", frames[0].Samples[0])
	}
}

func TestStartTimeBeyondDuration(t *testing.T) {
	cfg := baseConfig()
	cfg.Mems = []int{0}
	cfg.FrameLength = 5
	cfg.StartTime = 99

	e := newTestEngine(t, cfg, func() *memSource {
		return &memSource{
			info:     testInfo(1, 1, 20, 10),
			datasets: [][]int32{ramp(1, 20, 0)},
		}
	})

	if err := e.Run([]string{"a.h5"}); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	for range e.Frames() {
	}
	err := e.Wait()

	var cerr *ConfigError
	if !errors.As(err, &cerr) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestZeroDatasetLengthIsFormatError(t *testing.T) {
	// A file whose metadata reports dataset_length = 0 must surface a
	// format error from Wait, not crash the worker.
	cfg := baseConfig()
	cfg.Mems = []int{0}
	cfg.FrameLength = 5

	e := newTestEngine(t, cfg, func() *memSource {
		return &memSource{
			info: testInfo(1, 1, 0, 10000),
		}
	})

	if err := e.Run([]string{"a.h5"}); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	for range e.Frames() {
	}
	err := e.Wait()

	var ferr *muh5.FormatError
	if !errors.As(err, &ferr) {
		t.Fatalf("expected format error, got %v", err)
	}
}

func TestLoopRestartsAtConfiguredStartTime(t *testing.T) {
	// One file of 4040 samples at 4 kHz with start time 1s: each pass
	// plays exactly one 40-sample frame beginning at sample 4000, not
	// at 0.
	cfg := baseConfig()
	cfg.Mems = []int{0}
	cfg.FrameLength = 40
	cfg.StartTime = 1
	cfg.Loop = true

	e := newTestEngine(t, cfg, func() *memSource {
		return &memSource{
			info:     testInfo(1, 1, 4040, 4000),
			datasets: [][]int32{ramp(1, 4040, 0)},
		}
	})

	if err := e.Run([]string{"a.h5"}); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	var frames []Frame
	for f := range e.Frames() {
		frames = append(frames, f)
		if len(frames) == 3 {
			e.Stop()
		}
	}
	if err := e.Wait(); err != nil {
		t.Fatalf("run failed: %v", err)
	}

	if len(frames) < 3 {
		t.Fatalf("expected at least 3 frames across passes, got %d", len(frames))
	}
	for i := 0; i < 3; i++ {
		if frames[i].Samples[0] != 4000 {
			t.Errorf("pass %d starts at sample %d, want 4000", i, frames[i].Samples[0])
		}
	}
}

func TestMaskIntersectionGatesSelection(t *testing.T) {
	// Requesting mems 0..5 against a 2-mem file plays 2 channels.
	cfg := baseConfig()
	cfg.Mems = []int{0, 1, 2, 3, 4, 5}
	cfg.FrameLength = 4

	e := newTestEngine(t, cfg, func() *memSource {
		return &memSource{
			info:     testInfo(2, 1, 8, 10000),
			datasets: [][]int32{ramp(2, 8, 0)},
		}
	})

	if err := e.Run([]string{"a.h5"}); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	frames := collect(t, e)
	for _, f := range frames {
		if f.Channels != 2 {
			t.Errorf("frame has %d channels, want 2", f.Channels)
		}
	}
}

func TestPacingLowerBound(t *testing.T) {
	// 3 frames of nominal 50ms: wall time must reach at least
	// N*T*(1-0.4) even though the data is available instantly.
	cfg := baseConfig()
	cfg.Mems = []int{0}
	cfg.FrameLength = 50

	e := newTestEngine(t, cfg, func() *memSource {
		return &memSource{
			info:     testInfo(1, 1, 150, 1000),
			datasets: [][]int32{ramp(1, 150, 0)},
		}
	})

	begin := time.Now()
	if err := e.Run([]string{"a.h5"}); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	frames := collect(t, e)
	elapsed := time.Since(begin)

	if len(frames) != 3 {
		t.Fatalf("expected 3 frames, got %d", len(frames))
	}

	nominal := 3 * 50 * time.Millisecond
	// The first frame goes out immediately, so the floor covers the
	// remaining two intervals, each discounted by the delay allowance.
	floor := time.Duration(float64(2*50*time.Millisecond) * (1 - processingDelayRate))
	if elapsed < floor {
		t.Errorf("run finished in %v, pacing floor is %v", elapsed, floor)
	}
	if elapsed > nominal+500*time.Millisecond {
		t.Errorf("run took %v, far beyond nominal %v", elapsed, nominal)
	}
}

func TestDurationTimerStopsRun(t *testing.T) {
	cfg := baseConfig()
	cfg.Mems = []int{0}
	cfg.FrameLength = 10
	cfg.Duration = 60 * time.Millisecond
	cfg.Loop = true

	e := newTestEngine(t, cfg, func() *memSource {
		return &memSource{
			info:     testInfo(1, 1, 100, 1000),
			datasets: [][]int32{ramp(1, 100, 0)},
		}
	})

	if err := e.Run([]string{"a.h5"}); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	done := make(chan struct{})
	go func() {
		for range e.Frames() {
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timer did not end the looped run")
	}
	if err := e.Wait(); err != nil {
		t.Fatalf("run failed: %v", err)
	}
}

func TestValidationFailsFast(t *testing.T) {
	cases := []struct {
		name  string
		cfg   func() Config
		files []string
	}{
		{"no channels", func() Config {
			cfg := baseConfig()
			cfg.Mems = nil
			return cfg
		}, []string{"a.h5"}},
		{"duration unset", func() Config {
			cfg := baseConfig()
			cfg.Duration = -1
			return cfg
		}, []string{"a.h5"}},
		{"datatype unset", func() Config {
			cfg := baseConfig()
			cfg.Datatype = DatatypeUnknown
			return cfg
		}, []string{"a.h5"}},
		{"empty file list", baseConfig, nil},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			e := New(tc.cfg(), zap.NewNop())
			err := e.Run(tc.files)

			var cerr *ConfigError
			if !errors.As(err, &cerr) {
				t.Fatalf("expected configuration error, got %v", err)
			}
		})
	}
}

func TestOpenFailureSurfacesFromWait(t *testing.T) {
	cfg := baseConfig()
	cfg.Mems = []int{0}

	e := New(cfg, zap.NewNop())
	e.open = func(string) (Source, error) {
		return nil, errors.New("no such file")
	}

	if err := e.Run([]string{"missing.h5"}); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	for range e.Frames() {
	}

	if err := e.Wait(); err == nil {
		t.Fatal("expected open failure from Wait")
	}
}
