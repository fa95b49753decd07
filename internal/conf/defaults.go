package conf

import (
	"time"

	"github.com/spf13/viper"
)

// setDefaultConfig registers default values for every key
func setDefaultConfig() {
	viper.SetDefault("debug", false)

	viper.SetDefault("recorder.rate", 16000)
	viper.SetDefault("recorder.dura", 300)
	viper.SetDefault("recorder.device", "")
	viper.SetDefault("recorder.endtime", "23:59")
	viper.SetDefault("recorder.blocksize", 1024)
	viper.SetDefault("recorder.audiopath", "audio_data")
	viper.SetDefault("recorder.backend", "auto")
	viper.SetDefault("recorder.queuesize", 16)
	viper.SetDefault("recorder.maxretries", 5)
	viper.SetDefault("recorder.stopcheck", time.Second)
	viper.SetDefault("recorder.stoptolerance", time.Minute)
	viper.SetDefault("recorder.minfreespace", 0)

	viper.SetDefault("log.path", "logs")
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.timezone", "Local")
	viper.SetDefault("log.console", true)
	viper.SetDefault("log.file", true)

	viper.SetDefault("telemetry.enabled", false)
	viper.SetDefault("telemetry.listen", "0.0.0.0:8090")

	viper.SetDefault("mqtt.enabled", false)
	viper.SetDefault("mqtt.broker", "tcp://localhost:1883")
	viper.SetDefault("mqtt.topic", "streamrecorder")
	viper.SetDefault("mqtt.username", "")
	viper.SetDefault("mqtt.password", "")
	viper.SetDefault("mqtt.clientid", "")
	viper.SetDefault("mqtt.retain", false)

	viper.SetDefault("sentry.enabled", false)
	viper.SetDefault("sentry.dsn", "")
	viper.SetDefault("sentry.environment", "production")
	viper.SetDefault("sentry.samplerate", 1.0)
}
