package main

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/zsiec/aqueduct/capture"
	"github.com/zsiec/aqueduct/codec"
	"github.com/zsiec/aqueduct/discovery"
	"github.com/zsiec/aqueduct/pipeline"
	"github.com/zsiec/aqueduct/send"
)

func newSendCmd() *cobra.Command {
	var (
		addr       string
		device     string
		source     string
		width      uint32
		height     uint32
		fps        int
		noCompress bool
		noAdvert   bool
		queueDepth int
		dropOldest bool
	)

	cmd := &cobra.Command{
		Use:   "send",
		Short: "Serve a synthetic source (color bars, tone, tally) to the network",
		RunE: func(cmd *cobra.Command, args []string) error {
			if fps < 1 {
				return fmt.Errorf("fps must be at least 1, got %d", fps)
			}
			if width == 0 || height == 0 {
				return fmt.Errorf("resolution %dx%d", width, height)
			}

			ctx, cancel := signalContext()
			defer cancel()

			policy := send.PolicyBlock
			if dropOldest {
				policy = send.PolicyDropOldest
			}

			cfg := send.Config{
				Addr:       addr,
				QueueDepth: queueDepth,
				Overload:   policy,
			}
			if !noCompress {
				cfg.Codec = codec.NewLZ4()
			}

			sender, err := send.New(cfg)
			if err != nil {
				return err
			}

			g, ctx := errgroup.WithContext(ctx)

			g.Go(func() error {
				return sender.Start(ctx)
			})

			if !noAdvert {
				port, err := sender.Port(ctx)
				if err != nil {
					return err
				}
				adv, err := discovery.Register(device, source, port, nil)
				if err != nil {
					slog.Warn("mDNS registration failed, sender reachable by address only", "error", err)
				} else {
					defer adv.Shutdown()
				}
			}

			interval := time.Second / time.Duration(fps)
			p := pipeline.New(sender,
				capture.NewColorBars(width, height),
				capture.NewSineWave(440, 48000, 2),
				capture.NewTallySource(source),
				pipeline.Config{FrameInterval: interval},
			)

			g.Go(func() error {
				return p.Run(ctx)
			})

			slog.Info("sender running",
				"addr", addr,
				"resolution", fmt.Sprintf("%dx%d", width, height),
				"fps", fps,
				"compress", !noCompress,
			)
			return g.Wait()
		},
	}

	hostname, _ := os.Hostname()
	if hostname == "" {
		hostname = "aqueduct"
	}

	cmd.Flags().StringVar(&addr, "addr", envOr("AQUEDUCT_ADDR", ":9030"), "TCP listen address")
	cmd.Flags().StringVar(&device, "device", hostname, "advertised device name")
	cmd.Flags().StringVar(&source, "source", "Test Pattern", "advertised source name")
	cmd.Flags().Uint32Var(&width, "width", 1280, "pattern width")
	cmd.Flags().Uint32Var(&height, "height", 720, "pattern height")
	cmd.Flags().IntVar(&fps, "fps", 30, "frames per second")
	cmd.Flags().BoolVar(&noCompress, "no-compress", false, "ship raw frames without LZ4")
	cmd.Flags().BoolVar(&noAdvert, "no-advertise", false, "skip mDNS registration")
	cmd.Flags().IntVar(&queueDepth, "queue", send.DefaultQueueDepth, "per-receiver pending packet bound")
	cmd.Flags().BoolVar(&dropOldest, "drop-oldest", false, "drop oldest non-keyframe packets instead of blocking when a receiver is slow")

	return cmd
}
