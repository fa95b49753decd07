// Package record implements the capture command
package record

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/tphakala/streamrecorder/internal/buildinfo"
	"github.com/tphakala/streamrecorder/internal/conf"
	"github.com/tphakala/streamrecorder/internal/diskmanager"
	"github.com/tphakala/streamrecorder/internal/errors"
	"github.com/tphakala/streamrecorder/internal/logger"
	"github.com/tphakala/streamrecorder/internal/mqtt"
	"github.com/tphakala/streamrecorder/internal/observability"
	"github.com/tphakala/streamrecorder/internal/recorder"
	"github.com/tphakala/streamrecorder/internal/recorder/malgo"
)

const (
	sentryFlushTimeout = 2 * time.Second
	mqttConnectTimeout = 10 * time.Second
)

// Command creates the record command
func Command(settings *conf.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "record",
		Short: "Record the audio stream",
		Long:  "Capture the configured device into WAV segments until the daily stop time or an interrupt.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return Run(cmd.Context(), settings)
		},
	}
}

// Run executes one capture session. It returns nil when the session stopped
// cleanly and the failure otherwise.
func Run(parent context.Context, settings *conf.Settings) error {
	if parent == nil {
		parent = context.Background()
	}

	if err := conf.ValidateSettings(settings); err != nil {
		return err
	}

	central, err := logger.NewCentralLogger(settings.LoggingConfig())
	if err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	logger.SetGlobal(central)
	defer func() { _ = central.Close() }()

	log := logger.Global().Module("main")
	log.Info("streamrecorder starting", logger.String("version", buildinfo.Current().String()))

	if settings.Sentry.Enabled {
		if err := errors.InitSentry(errors.SentryOptions{
			DSN:         settings.Sentry.DSN,
			Environment: settings.Sentry.Environment,
			Release:     "streamrecorder@" + buildinfo.Current().GetVersion(),
			SampleRate:  settings.Sentry.SampleRate,
		}); err != nil {
			log.Warn("error reporting disabled", logger.Error(err))
		} else {
			defer errors.FlushSentry(sentryFlushTimeout)
		}
	}

	m, err := observability.NewMetrics()
	if err != nil {
		return fmt.Errorf("failed to initialize metrics: %w", err)
	}

	rec, closeObservers, err := buildRecorder(parent, settings, m)
	if err != nil {
		log.Error("failed to set up recorder", logger.Error(err))
		return err
	}
	defer closeObservers()

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	serveCtx, stopServing := context.WithCancel(gctx)

	if settings.Telemetry.Enabled {
		endpoint := observability.NewEndpoint(settings.Telemetry.Listen, m, healthOf(rec))
		g.Go(func() error {
			return endpoint.Run(serveCtx)
		})
	}

	g.Go(func() error {
		defer stopServing()
		return rec.Run(gctx)
	})

	return g.Wait()
}

// buildRecorder wires the capture device, disk checks and event publishing
// into a Recorder. The returned func releases the observers.
func buildRecorder(ctx context.Context, settings *conf.Settings, m *observability.Metrics) (*recorder.Recorder, func(), error) {
	rs := settings.Recorder

	hour, minute, err := conf.ParseEndTime(rs.EndTime)
	if err != nil {
		return nil, nil, err
	}
	stopAt, err := recorder.StopTimeFromClock(hour, minute)
	if err != nil {
		return nil, nil, err
	}

	session, err := recorder.NewSession(rs.Rate, time.Duration(rs.Dura)*time.Second, stopAt, rs.Device)
	if err != nil {
		return nil, nil, err
	}

	backend, err := malgo.ParseBackend(rs.Backend)
	if err != nil {
		return nil, nil, err
	}

	cfg := recorder.Config{
		Session:           session,
		Device:            malgo.New(malgo.WithMetrics(m.Recorder), malgo.WithBackend(backend)),
		OutputDir:         rs.AudioPath,
		BlockFrames:       rs.BlockSize,
		QueueSize:         rs.QueueSize,
		MaxRetries:        rs.MaxRetries,
		StopCheckInterval: rs.StopCheck,
		StopTolerance:     rs.StopTolerance,
		Metrics:           m.Recorder,
	}

	if rs.MinFreeSpace > 0 {
		cfg.SpaceChecker = diskmanager.NewSpaceChecker(rs.MinFreeSpace, diskmanager.WithMetrics(m.DiskManager))
	}

	closeObservers := func() {}
	if settings.MQTT.Enabled {
		publisher, closeFn := connectPublisher(ctx, settings.MQTT, session, m)
		if publisher != nil {
			cfg.Observers = append(cfg.Observers, publisher)
			closeObservers = closeFn
		}
	}

	rec, err := recorder.New(cfg)
	if err != nil {
		closeObservers()
		return nil, nil, err
	}
	return rec, closeObservers, nil
}

// connectPublisher connects to the broker. Failure to connect only disables
// event publishing.
func connectPublisher(ctx context.Context, ms conf.MQTTSettings, session *recorder.Session, m *observability.Metrics) (*mqtt.Publisher, func()) {
	log := mqtt.GetLogger()

	clientID := ms.ClientID
	if clientID == "" {
		clientID = "streamrecorder-" + session.ID
	}

	cfg := mqtt.DefaultConfig()
	cfg.Broker = ms.Broker
	cfg.ClientID = clientID
	cfg.Username = ms.Username
	cfg.Password = ms.Password
	cfg.Retain = ms.Retain

	client := mqtt.NewClient(cfg, m.MQTT)

	connectCtx, cancel := context.WithTimeout(ctx, mqttConnectTimeout)
	defer cancel()
	if err := client.Connect(connectCtx); err != nil {
		log.Warn("MQTT publishing disabled", logger.Error(err))
		return nil, nil
	}

	publisher := mqtt.NewPublisher(client, ms.Topic, m.MQTT)
	return publisher, func() {
		publisher.Close()
		client.Disconnect()
	}
}

// healthOf reports the recorder state for /health
func healthOf(rec *recorder.Recorder) observability.HealthFunc {
	return func() (observability.Health, bool) {
		state := rec.State()
		h := observability.Health{
			Status:    "ok",
			State:     state.String(),
			SessionID: rec.Session().ID,
		}
		if rep, ok := rec.Format(); ok {
			h.Format = rep.String()
		}
		if state == recorder.StateFailed {
			h.Status = "failed"
			return h, false
		}
		return h, true
	}
}
