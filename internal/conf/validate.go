package conf

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"

	"github.com/tphakala/streamrecorder/internal/errors"
)

// NeverHour is the end-time hour meaning the recorder never stops on its own
const NeverHour = -1

// ValidationError represents a collection of validation errors
type ValidationError struct {
	Errors []string
}

// Error returns a string representation of the validation errors
func (ve ValidationError) Error() string {
	return fmt.Sprintf("Validation errors: %v", ve.Errors)
}

// ValidateSettings validates the entire Settings struct
func ValidateSettings(settings *Settings) error {
	ve := ValidationError{}

	if err := validateRecorderSettings(&settings.Recorder); err != nil {
		ve.Errors = append(ve.Errors, err.Error())
	}

	if err := validateTelemetrySettings(&settings.Telemetry); err != nil {
		ve.Errors = append(ve.Errors, err.Error())
	}

	if err := validateMQTTSettings(&settings.MQTT); err != nil {
		ve.Errors = append(ve.Errors, err.Error())
	}

	if settings.Sentry.Enabled && settings.Sentry.DSN == "" {
		ve.Errors = append(ve.Errors, "sentry.dsn must be set when sentry is enabled")
	}

	if len(ve.Errors) > 0 {
		return ve
	}

	return nil
}

func validateRecorderSettings(settings *RecorderSettings) error {
	var errs []string

	if settings.Rate <= 0 {
		errs = append(errs, fmt.Sprintf("sampling frequency must be positive, got %d", settings.Rate))
	}
	if settings.Dura <= 0 {
		errs = append(errs, fmt.Sprintf("segment duration must be positive, got %d", settings.Dura))
	}
	if settings.BlockSize <= 0 {
		errs = append(errs, fmt.Sprintf("block size must be positive, got %d", settings.BlockSize))
	}
	if settings.QueueSize <= 0 {
		errs = append(errs, fmt.Sprintf("queue size must be positive, got %d", settings.QueueSize))
	}
	if settings.MaxRetries < 0 {
		errs = append(errs, fmt.Sprintf("max retries cannot be negative, got %d", settings.MaxRetries))
	}
	if settings.StopCheck <= 0 {
		errs = append(errs, fmt.Sprintf("stop check interval must be positive, got %s", settings.StopCheck))
	}
	if settings.StopTolerance <= 0 {
		errs = append(errs, fmt.Sprintf("stop tolerance must be positive, got %s", settings.StopTolerance))
	}
	if settings.AudioPath == "" {
		errs = append(errs, "audio path cannot be empty")
	}
	if _, _, err := ParseEndTime(settings.EndTime); err != nil {
		errs = append(errs, err.Error())
	}

	if len(errs) > 0 {
		return errors.Newf("recorder settings: %s", strings.Join(errs, "; ")).
			Component("conf").
			Category(errors.CategoryValidation).
			Build()
	}
	return nil
}

func validateTelemetrySettings(settings *TelemetrySettings) error {
	if !settings.Enabled {
		return nil
	}
	if _, _, err := net.SplitHostPort(settings.Listen); err != nil {
		return fmt.Errorf("telemetry listen address %q is invalid: %w", settings.Listen, err)
	}
	return nil
}

func validateMQTTSettings(settings *MQTTSettings) error {
	if !settings.Enabled {
		return nil
	}
	if settings.Topic == "" {
		return errors.NewStd("mqtt topic cannot be empty")
	}
	u, err := url.Parse(settings.Broker)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("mqtt broker %q must be a URL such as tcp://host:1883", settings.Broker)
	}
	return nil
}

// ParseEndTime parses a daily stop time "HH:MM". An hour of -1 means never,
// as does an empty string; the minute is then ignored.
func ParseEndTime(s string) (hour, minute int, err error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "never") {
		return NeverHour, 0, nil
	}

	hs, ms, ok := strings.Cut(s, ":")
	if !ok {
		return 0, 0, fmt.Errorf("end time %q must be HH:MM", s)
	}

	hour, err = strconv.Atoi(hs)
	if err != nil || hour < NeverHour || hour > 23 {
		return 0, 0, fmt.Errorf("end time %q: hour must be -1 or 0-23", s)
	}
	minute, err = strconv.Atoi(ms)
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("end time %q: minute must be 0-59", s)
	}

	if hour == NeverHour {
		return NeverHour, 0, nil
	}
	return hour, minute, nil
}
