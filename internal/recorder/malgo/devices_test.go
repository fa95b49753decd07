package malgo

import (
	"testing"

	"github.com/gen2brain/malgo"
	"github.com/stretchr/testify/assert"
)

func TestMatchDevice(t *testing.T) {
	devices := []DeviceInfo{
		{Index: 0, Name: "HDA Intel PCH, ALC257 Analog", ID: ":0,0", IsDefault: true},
		{Index: 2, Name: "USB Audio Device, USB Audio", ID: ":1,0"},
		{Index: 3, Name: "1", ID: ":2,0"},
	}

	tests := []struct {
		name  string
		query string
		want  int
		found bool
	}{
		{"by index", "2", 1, true},
		{"numeric name without such index", "1", 2, true},
		{"exact name", "USB Audio Device, USB Audio", 1, true},
		{"decoded id", ":0,0", 0, true},
		{"substring", "ALC257", 0, true},
		{"no match", "Focusrite", 0, false},
		{"unknown index", "7", 0, false},
		{"unknown index inside a name", "257", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := matchDevice(devices, tt.query)
			assert.Equal(t, tt.found, ok)
			if tt.found {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestIsDefaultQuery(t *testing.T) {
	assert.True(t, isDefaultQuery(""))
	assert.True(t, isDefaultQuery("default"))
	assert.True(t, isDefaultQuery("sysdefault"))
	assert.False(t, isDefaultQuery("hw:1,0"))
}

func TestHexToASCII(t *testing.T) {
	got, err := hexToASCII("3a312c30")
	assert.NoError(t, err)
	assert.Equal(t, ":1,0", got)

	_, err = hexToASCII("zz")
	assert.Error(t, err)
}

func TestParseBackend(t *testing.T) {
	tests := []struct {
		name    string
		want    malgo.Backend
		wantErr bool
	}{
		{"auto", backendForPlatform(), false},
		{"", backendForPlatform(), false},
		{"ALSA", malgo.BackendAlsa, false},
		{"pulse", malgo.BackendPulseaudio, false},
		{"wasapi", malgo.BackendWasapi, false},
		{"coreaudio", malgo.BackendCoreaudio, false},
		{"null", malgo.BackendNull, false},
		{"oss4", malgo.BackendNull, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseBackend(tt.name)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
