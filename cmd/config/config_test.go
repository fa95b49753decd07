package config

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/tphakala/streamrecorder/internal/conf"
)

func TestPrintSettings(t *testing.T) {
	settings := &conf.Settings{
		Recorder: conf.RecorderSettings{Rate: 48000, Dura: 60, EndTime: "06:30", AudioPath: "/srv/audio"},
		MQTT:     conf.MQTTSettings{Broker: "tcp://broker:1883", Password: "hunter2"},
		Sentry:   conf.SentrySettings{DSN: "https://key@sentry.example/1"},
	}

	var buf bytes.Buffer
	require.NoError(t, printSettings(&buf, settings))

	var got conf.Settings
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, 48000, got.Recorder.Rate)
	assert.Equal(t, 60, got.Recorder.Dura)
	assert.Equal(t, "06:30", got.Recorder.EndTime)
	assert.Equal(t, "/srv/audio", got.Recorder.AudioPath)
	assert.Equal(t, redacted, got.MQTT.Password)
	assert.Equal(t, redacted, got.Sentry.DSN)

	assert.NotContains(t, buf.String(), "hunter2")
	// the caller's settings are untouched
	assert.Equal(t, "hunter2", settings.MQTT.Password)
}
