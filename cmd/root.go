package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/AJMerr/gopamix/internal/engine"
	"github.com/AJMerr/gopamix/internal/pulse"
)

var rootCmd = &cobra.Command{
	Use:   "gopamix",
	Short: "Terminal volume mixer for PulseAudio",
	RunE:  runTUI,
}

// Called by main.go
func Execute() {
	cobra.CheckErr(rootCmd.Execute())
}

func init() {
	// Defaults
	viper.SetDefault("pulse.server", "")
	viper.SetDefault("pulse.app_name", "gopamix")
	viper.SetDefault("pulse.timeout_ms", 5000)
	viper.SetDefault("engine.queue_size", engine.DefaultQueueSize)
	viper.SetDefault("ui.tick_ms", 50)
	viper.SetDefault("ui.volume_step", 5)
	viper.SetDefault("ui.max_volume", 150)
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.file", defaultLogPath())

	// Flags
	rootCmd.PersistentFlags().String("server", "", "PulseAudio server (env PULSE_SERVER)")
	rootCmd.PersistentFlags().Int("timeout", 0, "Connect timeout ms (env GOPAMIX_TIMEOUT_MS)")
	rootCmd.PersistentFlags().String("log-level", "", "Log level (env GOPAMIX_LOG_LEVEL)")
	rootCmd.PersistentFlags().String("log-file", "", "Log file, - for stderr (env GOPAMIX_LOG_FILE)")
	rootCmd.PersistentFlags().String("config", defaultConfigPath(), "Path to config file")

	_ = viper.BindPFlag("pulse.server", rootCmd.PersistentFlags().Lookup("server"))
	_ = viper.BindPFlag("pulse.timeout_ms", rootCmd.PersistentFlags().Lookup("timeout"))
	_ = viper.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("log.file", rootCmd.PersistentFlags().Lookup("log-file"))
	_ = viper.BindPFlag("config_path", rootCmd.PersistentFlags().Lookup("config"))

	// env
	_ = viper.BindEnv("pulse.server", "PULSE_SERVER")
	_ = viper.BindEnv("pulse.timeout_ms", "GOPAMIX_TIMEOUT_MS")
	_ = viper.BindEnv("log.level", "GOPAMIX_LOG_LEVEL")
	_ = viper.BindEnv("log.file", "GOPAMIX_LOG_FILE")

	// Loads .env and the TOML config if present, then points logging at its sink
	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		_ = godotenv.Load()
		path := viper.GetString("config_path")
		viper.SetConfigFile(path)
		viper.SetConfigType("toml")
		_ = viper.ReadInConfig()
		return setupLogging(viper.GetString("log.level"), viper.GetString("log.file"))
	}
}

func setupLogging(level, file string) error {
	lvl, err := log.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("log level: %w", err)
	}
	log.SetLevel(lvl)
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})

	var out io.Writer = os.Stderr
	if file != "" && file != "-" {
		if err := os.MkdirAll(filepath.Dir(file), 0o755); err != nil {
			return fmt.Errorf("log dir: %w", err)
		}
		f, err := os.OpenFile(file, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("log file: %w", err)
		}
		out = f
	}
	log.SetOutput(out)
	return nil
}

func engineConfig() engine.Config {
	return engine.Config{
		Config: pulse.Config{
			Server:  viper.GetString("pulse.server"),
			AppName: viper.GetString("pulse.app_name"),
			Timeout: msDuration(viper.GetInt("pulse.timeout_ms")),
		},
		QueueSize: viper.GetInt("engine.queue_size"),
	}
}

func defaultConfigPath() string {
	home, _ := os.UserHomeDir()
	if x := os.Getenv("XDG_CONFIG_HOME"); x != "" {
		return filepath.Join(x, "gopamix", "config.toml")
	}
	return filepath.Join(home, ".config", "gopamix", "config.toml")
}

func defaultLogPath() string {
	home, _ := os.UserHomeDir()
	if x := os.Getenv("XDG_STATE_HOME"); x != "" {
		return filepath.Join(x, "gopamix", "gopamix.log")
	}
	return filepath.Join(home, ".local", "state", "gopamix", "gopamix.log")
}

func msDuration(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}
