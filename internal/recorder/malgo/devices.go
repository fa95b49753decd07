package malgo

import (
	"encoding/hex"
	"runtime"
	"strconv"
	"strings"

	"github.com/gen2brain/malgo"

	"github.com/tphakala/streamrecorder/internal/errors"
	"github.com/tphakala/streamrecorder/internal/recorder"
)

// DeviceInfo holds information about a capture device
type DeviceInfo struct {
	Index     int
	Name      string
	ID        string
	IsDefault bool
}

// backendForPlatform returns the miniaudio backend for the current platform
func backendForPlatform() malgo.Backend {
	switch runtime.GOOS {
	case "linux":
		return malgo.BackendAlsa
	case "windows":
		return malgo.BackendWasapi
	case "darwin":
		return malgo.BackendCoreaudio
	default:
		return malgo.BackendNull
	}
}

// ParseBackend maps a configured backend name to a miniaudio backend. "auto"
// and the empty string select the platform default.
func ParseBackend(name string) (malgo.Backend, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "auto":
		return backendForPlatform(), nil
	case "alsa":
		return malgo.BackendAlsa, nil
	case "pulseaudio", "pulse":
		return malgo.BackendPulseaudio, nil
	case "jack":
		return malgo.BackendJack, nil
	case "wasapi":
		return malgo.BackendWasapi, nil
	case "coreaudio":
		return malgo.BackendCoreaudio, nil
	case "null":
		return malgo.BackendNull, nil
	default:
		return malgo.BackendNull, errors.Newf("unknown audio backend %q", name).
			Component(componentAudio).
			Category(errors.CategoryConfiguration).
			Build()
	}
}

// ListDevices returns the capture devices of backend
func ListDevices(backend malgo.Backend) ([]DeviceInfo, error) {
	ctx, err := malgo.InitContext([]malgo.Backend{backend}, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, errors.New(err).
			Component(componentAudio).
			Category(errors.CategoryAudioSource).
			Context("operation", "init_context").
			Context("backend", runtime.GOOS).
			Build()
	}
	defer func() {
		_ = ctx.Uninit()
		ctx.Free()
	}()

	infos, err := ctx.Devices(malgo.Capture)
	if err != nil {
		return nil, errors.New(err).
			Component(componentAudio).
			Category(errors.CategoryAudioSource).
			Context("operation", "enumerate_devices").
			Build()
	}

	return describeDevices(infos), nil
}

func describeDevices(infos []malgo.DeviceInfo) []DeviceInfo {
	devices := make([]DeviceInfo, 0, len(infos))
	for i := range infos {
		// skip the null backend sink
		if strings.Contains(infos[i].Name(), "Discard all samples") {
			continue
		}

		id, err := hexToASCII(infos[i].ID.String())
		if err != nil {
			id = infos[i].ID.String()
		}

		devices = append(devices, DeviceInfo{
			Index:     i,
			Name:      infos[i].Name(),
			ID:        strings.TrimRight(id, "\x00"),
			IsDefault: infos[i].IsDefault == 1,
		})
	}
	return devices
}

// isDefaultQuery reports whether query selects the system default device
func isDefaultQuery(query string) bool {
	return query == "" || query == "default" || query == "sysdefault"
}

// matchDevice returns the position in devices selected by query. A query is
// tried as device index, exact name, decoded id and finally name substring.
// Numeric queries never match by substring.
func matchDevice(devices []DeviceInfo, query string) (int, bool) {
	idx, err := strconv.Atoi(query)
	numeric := err == nil
	if numeric {
		for i := range devices {
			if devices[i].Index == idx {
				return i, true
			}
		}
	}

	for i := range devices {
		if devices[i].Name == query {
			return i, true
		}
	}

	for i := range devices {
		if devices[i].ID == query {
			return i, true
		}
	}

	if numeric {
		return 0, false
	}

	for i := range devices {
		if strings.Contains(devices[i].Name, query) {
			return i, true
		}
	}

	return 0, false
}

// selectDevice resolves query against infos. The default device yields nil so
// miniaudio opens whatever the system default is.
func selectDevice(infos []malgo.DeviceInfo, query string) (*malgo.DeviceInfo, error) {
	if isDefaultQuery(query) {
		return nil, nil
	}

	devices := describeDevices(infos)
	if i, ok := matchDevice(devices, query); ok {
		return &infos[devices[i].Index], nil
	}

	return nil, errors.New(recorder.ErrDeviceUnavailable).
		Component(componentAudio).
		Category(errors.CategoryAudioSource).
		Context("device", query).
		Context("available_devices", len(devices)).
		Context("operation", "select_device").
		Build()
}

// hexToASCII converts a hexadecimal string to an ASCII string
func hexToASCII(hexStr string) (string, error) {
	bytes, err := hex.DecodeString(hexStr)
	if err != nil {
		return "", err
	}
	return string(bytes), nil
}
