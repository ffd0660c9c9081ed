// ABOUTME: Timed replay engine streaming MuH5 datasets through a bounded channel
// ABOUTME: One worker goroutine paced to the recording's sampling rate, one stop timer
package playback

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/megamicros/megamicros-go/internal/logx"
	"github.com/megamicros/megamicros-go/internal/muh5"
)

// Source is one open recording the engine reads datasets from.
// muh5.File satisfies it; tests feed in-memory recordings.
type Source interface {
	Info() muh5.Info
	ReadDataset(index int, mask []bool) (*muh5.Block, error)
	Close() error
}

// OpenFunc opens a recording by path.
type OpenFunc func(path string) (Source, error)

func openMuH5(path string) (Source, error) {
	return muh5.Open(path)
}

// Stats is a snapshot of a running replay.
type Stats struct {
	RunID       string
	CurrentFile string
	Frames      int64
	Channels    int
	Elapsed     time.Duration
}

// Engine replays MuH5 files at approximately real time, producing one
// frame per pacing interval into Frames(). A one-shot timer bounds the
// run when a positive duration is configured.
type Engine struct {
	cfg  Config
	log  *zap.Logger
	open OpenFunc
	id   string

	frames chan Frame
	quit   chan struct{}
	done   chan struct{}
	halted sync.Once

	stop    atomic.Bool
	running atomic.Bool

	mu       sync.RWMutex
	current  string
	channels int
	started  time.Time
	runErr   error

	frameCount atomic.Int64
}

// New prepares an engine. Missing frame length and queue size take
// their defaults here so the run loop never sees a zero.
func New(cfg Config, log *zap.Logger) *Engine {
	if cfg.FrameLength <= 0 {
		log.Info("frame length not set, using default", zap.Int("frame_length", DefaultFrameLength))
		cfg.FrameLength = DefaultFrameLength
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}
	if cfg.Sensitivity == 0 {
		cfg.Sensitivity = muh5.Sensitivity
	}

	return &Engine{
		cfg:    cfg,
		log:    log,
		open:   openMuH5,
		id:     uuid.New().String(),
		frames: make(chan Frame, cfg.QueueSize),
		quit:   make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// Frames is the output queue. It is closed when the run ends.
func (e *Engine) Frames() <-chan Frame {
	return e.frames
}

// RunID identifies this run in logs and stream handshakes.
func (e *Engine) RunID() string {
	return e.id
}

// Run validates the configuration, arms the duration timer, and starts
// the worker. Configuration errors surface synchronously; everything
// after that comes out of Wait.
func (e *Engine) Run(files []string) error {
	if e.running.Load() {
		return &ConfigError{Msg: "engine already running"}
	}

	if len(e.cfg.Mems)+len(e.cfg.Analogs) == 0 {
		return &ConfigError{Msg: "no active channels"}
	}
	if e.cfg.Duration < 0 {
		return &ConfigError{Msg: "run duration not set"}
	}
	if e.cfg.Datatype == DatatypeUnknown {
		return &ConfigError{Msg: "datatype not set"}
	}
	if len(files) == 0 {
		return &ConfigError{Msg: "empty file list"}
	}

	if e.cfg.Duration == 0 {
		e.log.Info("run not time limited", zap.Bool("loop", e.cfg.Loop))
	} else {
		e.log.Info("run time limited", zap.Duration("duration", e.cfg.Duration))
	}
	e.log.Info("starting replay",
		zap.String("run_id", e.id),
		zap.Int("files", len(files)),
		zap.Int("frame_length", e.cfg.FrameLength),
		zap.String("datatype", e.cfg.Datatype.String()),
		zap.Ints("mems", e.cfg.Mems),
		zap.Ints("analogs", e.cfg.Analogs),
	)

	e.running.Store(true)
	e.mu.Lock()
	e.started = time.Now()
	e.mu.Unlock()

	if e.cfg.Duration > 0 {
		time.AfterFunc(e.cfg.Duration, e.halt)
	}

	go e.runLoop(files)
	return nil
}

// Stop flips the stop flag, ending the run at the next frame boundary.
func (e *Engine) Stop() {
	e.halt()
}

// halt is shared by Stop and the duration timer. The flag is write-once
// per run; the worker polls it.
func (e *Engine) halt() {
	e.halted.Do(func() {
		e.stop.Store(true)
		close(e.quit)
	})
}

// Wait blocks until the worker exits and reports the run error, if any.
func (e *Engine) Wait() error {
	<-e.done
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.runErr
}

// Stats snapshots run progress for dashboards.
func (e *Engine) Stats() Stats {
	e.mu.RLock()
	defer e.mu.RUnlock()

	var elapsed time.Duration
	if !e.started.IsZero() {
		elapsed = time.Since(e.started)
	}
	return Stats{
		RunID:       e.id,
		CurrentFile: e.current,
		Frames:      e.frameCount.Load(),
		Channels:    e.channels,
		Elapsed:     elapsed,
	}
}

func (e *Engine) runLoop(files []string) {
	defer close(e.done)
	defer close(e.frames)
	defer e.running.Store(false)

	start := time.Now()

	for !e.stop.Load() {
		for i, path := range files {
			if e.stop.Load() {
				break
			}

			// Only the first file of each pass honors the configured
			// start time; later files play from their beginning.
			startTime := 0.0
			if i == 0 {
				startTime = e.cfg.StartTime
			}

			if err := e.playFile(path, startTime); err != nil {
				e.log.Error("replay aborted", zap.String("file", path), zap.Error(err))
				logx.DumpStack(e.log)
				e.mu.Lock()
				e.runErr = fmt.Errorf("replay of %s failed: %w", path, err)
				e.mu.Unlock()
				return
			}
		}

		if !e.cfg.Loop {
			break
		}
	}

	e.log.Info("run completed",
		zap.Duration("elapsed", time.Since(start)),
		zap.Int64("frames", e.frameCount.Load()),
	)
}

// playFile replays one recording: metadata re-derivation, mask
// intersection, start-time cursor placement, then the frame loop.
func (e *Engine) playFile(path string, startTime float64) error {
	src, err := e.open(path)
	if err != nil {
		return err
	}
	defer src.Close()

	info := src.Info()

	// The file's availability gates the active selection, it never
	// widens it.
	activeMems := muh5.Intersect(info.Mems, e.cfg.Mems)
	activeAnalogs := muh5.Intersect(info.Analogs, e.cfg.Analogs)
	if len(activeMems)+len(activeAnalogs) == 0 {
		return &ConfigError{Msg: fmt.Sprintf("no requested channel is available in %s", path)}
	}

	if e.cfg.CounterSkip && !info.Counter {
		e.log.Warn("counter skip requested but file has no counter channel", zap.String("file", path))
	}
	if e.cfg.Status && !info.Status {
		e.log.Warn("status channel requested but file has none", zap.String("file", path))
	}

	mask, channels := info.Mask(activeMems, activeAnalogs, e.cfg.CounterSkip, e.cfg.Status)

	fs := info.SamplingFrequency
	if fs <= 0 {
		return &muh5.FormatError{Path: path, Msg: "non-positive sampling frequency"}
	}
	if info.DatasetLength <= 0 {
		return &muh5.FormatError{Path: path, Msg: "non-positive dataset length"}
	}
	if startTime > 0 && startTime >= info.Duration {
		return &ConfigError{Msg: fmt.Sprintf(
			"start time %.2fs is beyond the %.2fs file duration", startTime, info.Duration)}
	}

	startSample := int(startTime * fs)
	dsIndex := startSample / info.DatasetLength
	ptr := startSample % info.DatasetLength

	e.mu.Lock()
	e.current = path
	e.channels = channels
	e.mu.Unlock()

	e.log.Info("processing file",
		zap.String("file", path),
		zap.Float64("sampling_frequency", fs),
		zap.Float64("file_duration", info.Duration),
		zap.Float64("start_time", startTime),
		zap.Ints("active_mems", activeMems),
		zap.Ints("active_analogs", activeAnalogs),
		zap.Int("channels", channels),
		zap.Int("datasets", info.DatasetNumber),
	)

	cur, err := src.ReadDataset(dsIndex, mask)
	if err != nil {
		return err
	}
	dsIndex++

	frameLen := e.cfg.FrameLength
	frameDur := time.Duration(float64(frameLen) / fs * float64(time.Second))
	procDelay := time.Duration(float64(frameDur) * processingDelayRate)
	lastSend := time.Now().Add(-frameDur)

	for !e.stop.Load() {
		// Assemble one frame, splicing across dataset boundaries with
		// an explicit fill cursor. The buffer starts zeroed, so an
		// exhausted file pads its final partial frame for free.
		buf := make([]int32, channels*frameLen)
		fill := 0
		exhausted := false

		for fill < frameLen {
			avail := cur.Length - ptr
			if avail > 0 {
				n := min(avail, frameLen-fill)
				for c := 0; c < channels; c++ {
					copy(buf[c*frameLen+fill:c*frameLen+fill+n], cur.Row(c)[ptr:ptr+n])
				}
				ptr += n
				fill += n
				continue
			}

			if dsIndex < info.DatasetNumber {
				if cur, err = src.ReadDataset(dsIndex, mask); err != nil {
					return err
				}
				dsIndex++
				ptr = 0
				continue
			}

			// No further dataset: the zeroed tail stands.
			exhausted = true
			break
		}

		// Pacing: align wall clock to the nominal frame duration,
		// discounted by the processing delay allowance.
		if wait := frameDur - procDelay - time.Since(lastSend); wait > 0 {
			time.Sleep(wait)
		}
		lastSend = time.Now()

		frame := encodeFrame(e.cfg.Datatype, buf, channels, frameLen, e.cfg.Sensitivity)
		frame.Index = int(e.frameCount.Load())

		select {
		case e.frames <- frame:
			e.frameCount.Add(1)
		case <-e.quit:
			return nil
		}

		if exhausted {
			e.log.Info("no more dataset, file done", zap.String("file", path))
			return nil
		}
		if ptr >= cur.Length && dsIndex >= info.DatasetNumber {
			// File ended exactly on a frame boundary.
			return nil
		}
	}

	return nil
}
