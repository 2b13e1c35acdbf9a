package cmd

import (
	"context"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/AJMerr/gopamix/internal/doctor"
	"github.com/AJMerr/gopamix/internal/pulse"
)

func init() {
	var deep, jsonOut bool

	doctorCmd := &cobra.Command{
		Use:   "doctor",
		Short: "Runs connectivity and readiness checks.",
		RunE: func(cmd *cobra.Command, args []string) error {
			timeoutMS := viper.GetInt("pulse.timeout_ms")

			cfg := doctor.Config{
				Server:    viper.GetString("pulse.server"),
				AppName:   viper.GetString("pulse.app_name") + "-doctor",
				TimeoutMS: timeoutMS,
			}

			// every check shares one budget on top of the connect timeout
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Duration(timeoutMS)*time.Millisecond)
			defer cancel()

			rep := doctor.Run(ctx, pulse.Native{}, cfg, deep)
			if jsonOut {
				if err := doctor.RenderJSON(os.Stdout, rep); err != nil {
					return err
				}
			} else {
				doctor.RenderHuman(os.Stdout, cfg, viper.ConfigFileUsed(), rep)
			}
			if rep.ExitCode != 0 {
				os.Exit(rep.ExitCode)
			}
			return nil
		},
	}

	doctorCmd.Flags().BoolVar(&deep, "deep", false, "Also open and close a peak monitor")
	doctorCmd.Flags().BoolVar(&jsonOut, "json", false, "Output JSON")

	rootCmd.AddCommand(doctorCmd)
}
