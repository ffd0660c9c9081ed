// ABOUTME: Play command running the real-time replay engine
// ABOUTME: Optional websocket serving, sound card monitoring, and dashboard
package cli

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/megamicros/megamicros-go/internal/discovery"
	"github.com/megamicros/megamicros-go/internal/monitor"
	"github.com/megamicros/megamicros-go/internal/muh5"
	"github.com/megamicros/megamicros-go/internal/playback"
	"github.com/megamicros/megamicros-go/internal/stream"
	"github.com/megamicros/megamicros-go/internal/ui"
)

type playOptions struct {
	mems        []int
	analogs     []int
	frameLength int
	duration    time.Duration
	start       float64
	loop        bool
	datatype    string
	counterSkip bool
	status      bool
	queueSize   int
	serve       string
	mdns        bool
	monitorCh   int
	monitorVol  int
	monitorMute bool
	tui         bool
}

func newPlayCmd() *cobra.Command {
	o := &playOptions{}

	cmd := &cobra.Command{
		Use:   "play FILE|DIR",
		Short: "Replay a MuH5 recording at real-time pace",
		Long: `Replays one MuH5 file or every MuH5 file in a directory, producing
frames at the recording's own sampling rate. Frames can be streamed to
bench clients over websocket, monitored on the local sound card, and
supervised from a live dashboard.`,
		Example: `  megamicros play session.h5 --mems 0,1,2,3
  megamicros play ./recordings --mems 0,1 --duration 30s --loop
  megamicros play session.h5 --mems 0,1 --serve :9003 --mdns --tui
  megamicros play session.h5 --mems 0 --monitor 0 --datatype float32`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPlay(cmd, args[0], o)
		},
	}

	cmd.Flags().IntSliceVar(&o.mems, "mems", nil, "MEMs channels to replay")
	cmd.Flags().IntSliceVar(&o.analogs, "analogs", nil, "analog channels to replay")
	cmd.Flags().IntVar(&o.frameLength, "frame-length", playback.DefaultFrameLength, "frame size in samples")
	cmd.Flags().DurationVar(&o.duration, "duration", 0, "stop after this long (0 plays to the end)")
	cmd.Flags().Float64Var(&o.start, "start", 0, "start offset into the first file, in seconds")
	cmd.Flags().BoolVar(&o.loop, "loop", false, "restart from the first file when the list is exhausted")
	cmd.Flags().StringVar(&o.datatype, "datatype", "int32", "output datatype (int32, bint32, float32, bfloat32)")
	cmd.Flags().BoolVar(&o.counterSkip, "counter-skip", false, "drop the counter channel")
	cmd.Flags().BoolVar(&o.status, "status", false, "forward the status channel")
	cmd.Flags().IntVar(&o.queueSize, "queue-size", playback.DefaultQueueSize, "frame queue depth")
	cmd.Flags().StringVar(&o.serve, "serve", "", "serve frames over websocket on this address (e.g. :9003)")
	cmd.Flags().BoolVar(&o.mdns, "mdns", false, "advertise the stream server via mDNS (requires --serve)")
	cmd.Flags().IntVar(&o.monitorCh, "monitor", -1, "play this channel on the local sound card")
	cmd.Flags().IntVar(&o.monitorVol, "monitor-volume", 100, "sound card volume (0-100)")
	cmd.Flags().BoolVar(&o.monitorMute, "monitor-mute", false, "mute the sound card output")
	cmd.Flags().BoolVar(&o.tui, "tui", false, "show the live dashboard")

	return cmd
}

func runPlay(cmd *cobra.Command, path string, o *playOptions) error {
	log, err := buildLogger(cmd)
	if err != nil {
		return err
	}
	defer log.Sync()

	if o.mdns && o.serve == "" {
		return fmt.Errorf("--mdns requires --serve")
	}
	if o.monitorVol < 0 || o.monitorVol > 100 {
		return fmt.Errorf("--monitor-volume must be between 0 and 100")
	}

	files, err := muh5.ResolveFiles(path)
	if err != nil {
		return err
	}

	dt, err := playback.ParseDatatype(o.datatype)
	if err != nil {
		return err
	}

	cfg := playback.Config{
		Mems:        o.mems,
		Analogs:     o.analogs,
		Duration:    o.duration,
		StartTime:   o.start,
		FrameLength: o.frameLength,
		Datatype:    dt,
		Loop:        o.loop,
		CounterSkip: o.counterSkip,
		Status:      o.status,
		QueueSize:   o.queueSize,
	}

	engine := playback.New(cfg, log)

	// Settings the stream handshake and the monitor need before the
	// first frame comes out.
	info, err := muh5.ReadInfo(files[0])
	if err != nil {
		return err
	}
	mems := muh5.Intersect(info.Mems, cfg.Mems)
	analogs := muh5.Intersect(info.Analogs, cfg.Analogs)
	_, channels := info.Mask(mems, analogs, cfg.CounterSkip, cfg.Status)

	var b *stream.Broadcaster
	if o.serve != "" {
		b = stream.NewBroadcaster()
		srv := stream.NewServer(stream.Handshake{
			RunID:             engine.RunID(),
			SamplingFrequency: info.SamplingFrequency,
			Channels:          channels,
			FrameLength:       cfg.FrameLength,
			Datatype:          dt.String(),
		}, b, log)
		if err := srv.Start(o.serve); err != nil {
			return err
		}
		defer srv.Shutdown(context.Background())

		if o.mdns {
			port, err := servePort(o.serve)
			if err != nil {
				return err
			}
			mgr := discovery.NewManager(discovery.Config{
				InstanceName: "megamicros-replay",
				Port:         port,
				RunID:        engine.RunID(),
			}, log)
			if err := mgr.Advertise(); err != nil {
				return err
			}
			defer mgr.Stop()
		}
	}

	var mon *monitor.Monitor
	if o.monitorCh >= 0 {
		mon = monitor.NewMonitor(o.monitorCh, log)
		mon.SetVolume(o.monitorVol)
		mon.SetMuted(o.monitorMute)
		if err := mon.Start(info.SamplingFrequency); err != nil {
			return err
		}
		defer mon.Close()
	}

	if err := engine.Run(files); err != nil {
		return err
	}

	consumerDone := make(chan struct{})
	go func() {
		defer close(consumerDone)
		feed := mon
		for frame := range engine.Frames() {
			if b != nil {
				b.Publish(frame.Payload())
			}
			if feed != nil {
				if err := feed.Feed(frame); err != nil {
					log.Warn("sound card monitoring stopped", zap.Error(err))
					feed = nil
				}
			}
		}
	}()

	if o.tui {
		runDashboard(engine, b, o, info, dt, consumerDone)
	} else {
		ctx, stopSig := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stopSig()
		select {
		case <-ctx.Done():
			log.Info("interrupted, stopping replay")
			engine.Stop()
		case <-consumerDone:
		}
	}

	<-consumerDone
	return engine.Wait()
}

// runDashboard supervises the run from the TUI until the replay ends
// or the user quits.
func runDashboard(engine *playback.Engine, b *stream.Broadcaster, o *playOptions,
	info muh5.Info, dt playback.Datatype, consumerDone <-chan struct{}) {

	dash := ui.NewDashboard()

	go func() {
		ticker := time.NewTicker(500 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				st := engine.Stats()
				status := ui.Status{
					RunID:             st.RunID,
					CurrentFile:       st.CurrentFile,
					SamplingFrequency: info.SamplingFrequency,
					Channels:          st.Channels,
					Datatype:          dt.String(),
					Frames:            st.Frames,
					Elapsed:           st.Elapsed,
					Looping:           o.loop,
				}
				if b != nil {
					status.StreamAddr = o.serve
					status.Listeners = b.ListenerCount()
				}
				dash.Update(status)
			case <-consumerDone:
				dash.Update(ui.Status{Done: true})
				return
			}
		}
	}()

	go func() {
		<-dash.QuitChan()
		engine.Stop()
	}()

	dash.Start(ui.Status{RunID: engine.RunID(), Datatype: dt.String(),
		SamplingFrequency: info.SamplingFrequency, Looping: o.loop})
	engine.Stop()
}

func servePort(addr string) (int, error) {
	_, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return 0, fmt.Errorf("cannot derive mDNS port from %q: %w", addr, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return 0, fmt.Errorf("cannot derive mDNS port from %q: %w", addr, err)
	}
	return port, nil
}
