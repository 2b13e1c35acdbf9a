package cmd

import (
	tea "github.com/charmbracelet/bubbletea"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/AJMerr/gopamix/internal/app"
	"github.com/AJMerr/gopamix/internal/pulse"
)

func init() {
	tuiCmd := &cobra.Command{
		Use:   "tui",
		Short: "Run the interactive mixer (default)",
		RunE:  runTUI,
	}
	tuiCmd.Flags().Int("step", 0, "Volume step in percent")
	tuiCmd.Flags().Int("max-volume", 0, "Volume ceiling in percent")
	_ = viper.BindPFlag("ui.volume_step", tuiCmd.Flags().Lookup("step"))
	_ = viper.BindPFlag("ui.max_volume", tuiCmd.Flags().Lookup("max-volume"))

	rootCmd.AddCommand(tuiCmd)
}

func runTUI(cmd *cobra.Command, args []string) error {
	// Flags/env/file already resolved in root
	deps := app.Deps{
		Server:     pulse.Native{},
		Engine:     engineConfig(),
		Tick:       msDuration(viper.GetInt("ui.tick_ms")),
		VolumeStep: viper.GetInt("ui.volume_step"),
		MaxVolume:  viper.GetInt("ui.max_volume"),
	}
	log.WithField("server", deps.Engine.Server).Info("starting mixer")

	m := app.New(deps)
	p := tea.NewProgram(m, tea.WithAltScreen())
	_, err := p.Run()
	return err
}
