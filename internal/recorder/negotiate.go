package recorder

import (
	"context"
	"fmt"

	"github.com/tphakala/streamrecorder/internal/errors"
	"github.com/tphakala/streamrecorder/internal/logger"
)

// Negotiate opens dev with each candidate representation in order and returns
// the first one the device accepts together with its stream. It fails with
// ErrDeviceUnavailable when every candidate is rejected. Candidates default to
// DefaultCandidates.
func Negotiate(ctx context.Context, dev Device, req OpenRequest, candidates []Representation) (Representation, Stream, error) {
	if len(candidates) == 0 {
		candidates = DefaultCandidates
	}

	log := GetLogger()
	attempts := make([]error, 0, len(candidates))

	for _, rep := range candidates {
		if err := ctx.Err(); err != nil {
			return 0, nil, err
		}

		req.Format = rep
		stream, err := dev.Open(ctx, req)
		if err == nil {
			log.Info("sample format negotiated",
				logger.String("format", rep.String()),
				logger.String("device", deviceLabel(req.DeviceID)),
				logger.Int("sample_rate", req.SampleRate))
			return rep, stream, nil
		}

		log.Debug("device rejected sample format",
			logger.String("format", rep.String()),
			logger.Error(err))
		attempts = append(attempts, fmt.Errorf("%s: %w", rep, err))
	}

	return 0, nil, errors.New(fmt.Errorf("%w: %w", ErrDeviceUnavailable, errors.Join(attempts...))).
		Component(ComponentRecorder).
		Category(errors.CategoryAudioSource).
		Context("operation", "negotiate_format").
		Context("device", deviceLabel(req.DeviceID)).
		Context("attempts", len(attempts)).
		Build()
}

func deviceLabel(id string) string {
	if id == "" {
		return "default"
	}
	return id
}
