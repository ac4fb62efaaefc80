package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/zsiec/aqueduct/codec"
	"github.com/zsiec/aqueduct/discovery"
	"github.com/zsiec/aqueduct/media"
	"github.com/zsiec/aqueduct/receive"
)

func newRecvCmd() *cobra.Command {
	var (
		addr        string
		browseWait  time.Duration
		statsEvery  time.Duration
		printFrames bool
	)

	cmd := &cobra.Command{
		Use:   "recv",
		Short: "Connect to a sender and log the streams it delivers",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			if addr == "" {
				slog.Info("browsing for senders", "service", discovery.ServiceType)
				browseCtx, browseCancel := context.WithTimeout(ctx, browseWait)
				rec, err := discovery.First(browseCtx, nil)
				browseCancel()
				if err != nil {
					return err
				}
				slog.Info("sender found", "name", rec.Name, "addr", rec.Addr())
				addr = rec.Addr()
			}

			r, err := receive.Dial(ctx, receive.Config{
				Addr:  addr,
				Codec: codec.NewLZ4(),
			})
			if err != nil {
				return err
			}

			g, ctx := errgroup.WithContext(ctx)

			g.Go(func() error {
				return r.Run(ctx)
			})

			g.Go(func() error {
				return consume(ctx, r, statsEvery, printFrames)
			})

			return g.Wait()
		},
	}

	cmd.Flags().StringVar(&addr, "addr", envOr("AQUEDUCT_SENDER", ""), "sender host:port (empty: discover via mDNS)")
	cmd.Flags().DurationVar(&browseWait, "browse-wait", 5*time.Second, "how long to wait for discovery")
	cmd.Flags().DurationVar(&statsEvery, "stats", 5*time.Second, "stats log interval")
	cmd.Flags().BoolVar(&printFrames, "print-frames", false, "log every received frame")

	return cmd
}

// consume drains the receiver's frame channels, releasing pooled frame
// buffers and periodically logging stream health. A real consumer would
// hand the frames to a renderer here.
func consume(ctx context.Context, r *receive.Receiver, statsEvery time.Duration, printFrames bool) error {
	ticker := time.NewTicker(statsEvery)
	defer ticker.Stop()

	videoCh, audioCh, metadataCh := r.Video(), r.Audio(), r.Metadata()

	for {
		select {
		case <-ctx.Done():
			return nil

		case frame, ok := <-videoCh:
			if !ok {
				logStats(r)
				return nil
			}
			if printFrames {
				slog.Info("video",
					"format", frame.Format.String(),
					"width", frame.Width,
					"height", frame.Height,
					"ts_us", frame.Timestamp,
					"bytes", len(frame.Data),
					"anomaly", frame.ClockAnomaly,
				)
			}
			frame.Release()

		case frame, ok := <-audioCh:
			if !ok {
				logStats(r)
				return nil
			}
			if printFrames {
				slog.Info("audio",
					"rate", frame.SampleRate,
					"channels", frame.Channels,
					"samples", frame.SampleCount(),
					"ts_us", frame.Timestamp,
				)
			}
			frame.Release()

		case frame, ok := <-metadataCh:
			if !ok {
				logStats(r)
				return nil
			}
			logMetadata(frame)

		case <-ticker.C:
			logStats(r)
		}
	}
}

func logMetadata(frame *media.MetadataFrame) {
	if tally, err := media.ParseTally(frame.Content); err == nil {
		slog.Info("tally",
			"source", tally.Source,
			"program", tally.OnProgram,
			"preview", tally.OnPreview,
		)
		return
	}
	slog.Info("metadata", "bytes", len(frame.Content), "ts_us", frame.Timestamp)
}

func logStats(r *receive.Receiver) {
	s := r.Stats()
	slog.Info("receiver stats",
		"packets", s.PacketsReceived,
		"bytes", s.BytesReceived,
		"frames", s.FramesDelivered,
		"codec_errors", s.CodecErrors,
		"clock_anomalies", s.ClockAnomalies,
	)
}
