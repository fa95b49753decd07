package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/tphakala/streamrecorder/cmd/config"
	"github.com/tphakala/streamrecorder/cmd/devices"
	"github.com/tphakala/streamrecorder/cmd/record"
	"github.com/tphakala/streamrecorder/internal/buildinfo"
	"github.com/tphakala/streamrecorder/internal/conf"
)

// RootCommand creates and returns the root command. Running it without a
// subcommand records, like the record subcommand.
func RootCommand(settings *conf.Settings) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "streamrecorder",
		Short:         "Continuous audio stream recorder",
		Long:          "Record a continuous audio stream into fixed-duration 16-bit PCM WAV segments.",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		Version:       buildinfo.Current().String(),
		RunE: func(cmd *cobra.Command, args []string) error {
			return record.Run(cmd.Context(), settings)
		},
	}

	if err := setupFlags(rootCmd, settings); err != nil {
		fmt.Printf("error setting up flags: %v\n", err)
	}

	rootCmd.AddCommand(
		record.Command(settings),
		devices.Command(settings),
		config.Command(settings),
	)

	return rootCmd
}

// flagKeys maps persistent flags to their configuration keys
var flagKeys = map[string]string{
	"debug":      "debug",
	"rate":       "recorder.rate",
	"dura":       "recorder.dura",
	"device":     "recorder.device",
	"end-time":   "recorder.endtime",
	"blocksize":  "recorder.blocksize",
	"audio-path": "recorder.audiopath",
	"backend":    "recorder.backend",
	"log-path":   "log.path",
}

// setupFlags defines the global flags. Defaults come from the loaded settings
// so flags only override what was set explicitly.
func setupFlags(rootCmd *cobra.Command, settings *conf.Settings) error {
	flags := rootCmd.PersistentFlags()
	flags.BoolVar(&settings.Debug, "debug", settings.Debug, "Enable debug output")
	flags.IntVarP(&settings.Recorder.Rate, "rate", "r", settings.Recorder.Rate, "Sampling frequency in Hz")
	flags.IntVarP(&settings.Recorder.Dura, "dura", "D", settings.Recorder.Dura, "Segment duration in seconds")
	flags.StringVarP(&settings.Recorder.Device, "device", "d", settings.Recorder.Device, "Capture device index, name or id, empty for system default")
	flags.StringVarP(&settings.Recorder.EndTime, "end-time", "e", settings.Recorder.EndTime, "Daily stop time HH:MM, -1:0 to never stop")
	flags.IntVarP(&settings.Recorder.BlockSize, "blocksize", "b", settings.Recorder.BlockSize, "Frames per capture block")
	flags.StringVarP(&settings.Recorder.AudioPath, "audio-path", "a", settings.Recorder.AudioPath, "Root directory for recorded segments")
	flags.StringVar(&settings.Recorder.Backend, "backend", settings.Recorder.Backend, "Audio backend (auto, alsa, pulse, jack, wasapi, coreaudio)")
	flags.StringVarP(&settings.Log.Path, "log-path", "l", settings.Log.Path, "Directory for log files")

	return bindFlags(flags)
}

func bindFlags(flags *pflag.FlagSet) error {
	for name, key := range flagKeys {
		if err := viper.BindPFlag(key, flags.Lookup(name)); err != nil {
			return fmt.Errorf("error binding flag %s: %w", name, err)
		}
	}
	return nil
}
