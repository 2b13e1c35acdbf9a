package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/AJMerr/gopamix/internal/discovery"
)

func init() {
	var wait time.Duration

	discoverCmd := &cobra.Command{
		Use:   "discover",
		Short: "Browse the local network for PulseAudio servers",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), wait)
			defer cancel()

			servers, err := discovery.Browse(ctx)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(servers) == 0 {
				fmt.Fprintln(out, "no servers found")
				return nil
			}
			for _, s := range servers {
				fmt.Fprintf(out, "%-40s %s\n", s.Instance, s.Address())
			}
			return nil
		},
	}
	discoverCmd.Flags().DurationVar(&wait, "timeout", 3*time.Second, "How long to listen for announcements")

	rootCmd.AddCommand(discoverCmd)
}
