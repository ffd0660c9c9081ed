// ABOUTME: Sound card monitoring of one replayed channel using oto
// ABOUTME: Converts int32 MEMS samples to int16 PCM with software volume
package monitor

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/ebitengine/oto/v3"
	"go.uber.org/zap"

	"github.com/megamicros/megamicros-go/internal/muh5"
	"github.com/megamicros/megamicros-go/internal/playback"
)

// Monitor plays a single channel of the replay stream on the local
// sound card. Feed is called from the frame consumer goroutine; Start,
// SetVolume, SetMuted and Close belong to the controlling goroutine.
type Monitor struct {
	channel int
	volume  int
	muted   bool
	log     *zap.Logger

	otoCtx *oto.Context
	player *oto.Player
	pw     *io.PipeWriter
	ready  bool
}

// NewMonitor prepares a monitor for the given channel index within
// the frame's channel ordering.
func NewMonitor(channel int, log *zap.Logger) *Monitor {
	return &Monitor{
		channel: channel,
		volume:  100,
		log:     log,
	}
}

// Start opens the sound card at the replay sampling frequency.
func (m *Monitor) Start(samplingFrequency float64) error {
	if m.ready {
		return fmt.Errorf("monitor already started")
	}

	op := &oto.NewContextOptions{
		SampleRate:   int(samplingFrequency),
		ChannelCount: 1,
		Format:       oto.FormatSignedInt16LE,
	}

	ctx, readyChan, err := oto.NewContext(op)
	if err != nil {
		return fmt.Errorf("failed to create oto context: %w", err)
	}
	<-readyChan

	pr, pw := io.Pipe()
	m.otoCtx = ctx
	m.pw = pw
	m.player = ctx.NewPlayer(pr)
	m.player.Play()
	m.ready = true

	m.log.Info("sound card monitoring started",
		zap.Int("channel", m.channel),
		zap.Float64("sampling_frequency", samplingFrequency))

	return nil
}

// Feed extracts the monitored channel from a frame and queues it for
// playback. Frames carrying raw bytes cannot be monitored.
func (m *Monitor) Feed(f playback.Frame) error {
	if !m.ready {
		return fmt.Errorf("monitor not started")
	}
	if m.channel >= f.Channels {
		return fmt.Errorf("channel %d out of range, frame has %d channels", m.channel, f.Channels)
	}

	pcm := make([]byte, f.Length*2)
	mult := volumeMultiplier(m.volume, m.muted)

	switch {
	case f.Samples != nil:
		for i := 0; i < f.Length; i++ {
			s := f.Samples[i*f.Channels+m.channel]
			binary.LittleEndian.PutUint16(pcm[i*2:], uint16(toInt16(s, mult)))
		}
	case f.Floats != nil:
		for i := 0; i < f.Length; i++ {
			s := int32(f.Floats[i*f.Channels+m.channel] / muh5.Sensitivity)
			binary.LittleEndian.PutUint16(pcm[i*2:], uint16(toInt16(s, mult)))
		}
	default:
		return fmt.Errorf("frame datatype cannot be monitored")
	}

	if _, err := m.pw.Write(pcm); err != nil {
		return fmt.Errorf("failed to queue monitor samples: %w", err)
	}
	return nil
}

// SetVolume sets the volume (0-100).
func (m *Monitor) SetVolume(volume int) {
	if volume < 0 {
		volume = 0
	}
	if volume > 100 {
		volume = 100
	}
	m.volume = volume
}

// SetMuted sets mute state.
func (m *Monitor) SetMuted(muted bool) {
	m.muted = muted
}

// Close stops playback and releases the sound card.
func (m *Monitor) Close() {
	if !m.ready {
		return
	}
	m.pw.Close()
	m.player.Close()
	m.otoCtx.Suspend()
	m.ready = false
}

// toInt16 maps a 24-bit MEMS sample to 16-bit PCM.
func toInt16(sample int32, mult float64) int16 {
	return int16(float64(sample>>8) * mult)
}

func volumeMultiplier(volume int, muted bool) float64 {
	if muted {
		return 0.0
	}
	return float64(volume) / 100.0
}
