package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/zsiec/aqueduct/discovery"
)

func newDiscoverCmd() *cobra.Command {
	var wait time.Duration

	cmd := &cobra.Command{
		Use:   "discover",
		Short: "List aqueduct senders on the local network",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()
			ctx, timeout := context.WithTimeout(ctx, wait)
			defer timeout()

			seen := 0
			err := discovery.Browse(ctx, func(rec discovery.SenderRecord) {
				seen++
				fmt.Printf("%-40s %s\n", rec.Name, rec.Addr())
			}, nil)
			if ctx.Err() != nil {
				err = nil // browse windows always end by deadline
			}
			if err != nil {
				return err
			}
			if seen == 0 {
				fmt.Println("no senders found")
			}
			return nil
		},
	}

	cmd.Flags().DurationVar(&wait, "wait", 5*time.Second, "how long to browse")
	return cmd
}
