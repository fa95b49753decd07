// Package config implements the command printing the effective settings
package config

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/tphakala/streamrecorder/internal/conf"
)

const redacted = "********"

// Command creates the config command
func Command(settings *conf.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		Long:  "Print the settings after config file, environment and flags were applied, as YAML. Secrets are redacted.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return printSettings(cmd.OutOrStdout(), settings)
		},
	}
}

func printSettings(w io.Writer, settings *conf.Settings) error {
	s := *settings
	if s.MQTT.Password != "" {
		s.MQTT.Password = redacted
	}
	if s.Sentry.DSN != "" {
		s.Sentry.DSN = redacted
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(&s); err != nil {
		return fmt.Errorf("error encoding settings: %w", err)
	}
	return enc.Close()
}
