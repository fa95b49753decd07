package conf

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validSettings() *Settings {
	return &Settings{
		Recorder: RecorderSettings{
			Rate:          16000,
			Dura:          300,
			EndTime:       "23:59",
			BlockSize:     1024,
			AudioPath:     "audio_data",
			QueueSize:     16,
			MaxRetries:    5,
			StopCheck:     time.Second,
			StopTolerance: time.Minute,
		},
	}
}

func TestValidateSettings(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*Settings)
		wantErr string
	}{
		{"defaults are valid", func(*Settings) {}, ""},
		{"zero duration", func(s *Settings) { s.Recorder.Dura = 0 }, "segment duration must be positive"},
		{"negative rate", func(s *Settings) { s.Recorder.Rate = -1 }, "sampling frequency must be positive"},
		{"zero block size", func(s *Settings) { s.Recorder.BlockSize = 0 }, "block size must be positive"},
		{"bad end time", func(s *Settings) { s.Recorder.EndTime = "25:00" }, "hour must be -1 or 0-23"},
		{"bad telemetry listen", func(s *Settings) {
			s.Telemetry = TelemetrySettings{Enabled: true, Listen: "nonsense"}
		}, "telemetry listen address"},
		{"bad mqtt broker", func(s *Settings) {
			s.MQTT = MQTTSettings{Enabled: true, Broker: "localhost", Topic: "rec"}
		}, "mqtt broker"},
		{"sentry without dsn", func(s *Settings) { s.Sentry.Enabled = true }, "sentry.dsn"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			s := validSettings()
			tt.mutate(s)

			err := ValidateSettings(s)
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}

			var ve ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidateSettingsCollectsAllErrors(t *testing.T) {
	t.Parallel()

	s := validSettings()
	s.Recorder.Dura = 0
	s.Sentry.Enabled = true

	var ve ValidationError
	require.ErrorAs(t, ValidateSettings(s), &ve)
	assert.Len(t, ve.Errors, 2)
}

func TestParseEndTime(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in         string
		hour, min  int
		shouldFail bool
	}{
		{"23:59", 23, 59, false},
		{"14:30", 14, 30, false},
		{"0:00", 0, 0, false},
		{"-1:0", NeverHour, 0, false},
		{"-1:45", NeverHour, 0, false},
		{"", NeverHour, 0, false},
		{"never", NeverHour, 0, false},
		{"24:00", 0, 0, true},
		{"12:60", 0, 0, true},
		{"1230", 0, 0, true},
		{"ab:cd", 0, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()

			hour, minute, err := ParseEndTime(tt.in)
			if tt.shouldFail {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.hour, hour)
			assert.Equal(t, tt.min, minute)
		})
	}
}
