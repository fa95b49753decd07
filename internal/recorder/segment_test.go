package recorder

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedSpace struct{ err error }

func (f fixedSpace) CheckFreeSpace(string) error { return f.err }

func declaredSizes(t *testing.T, path string) (riff, data uint32) {
	t.Helper()
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(raw), wavHeaderSize)
	return binary.LittleEndian.Uint32(raw[riffSizeOffset:]), binary.LittleEndian.Uint32(raw[dataSizeOffset:])
}

func TestSegmentWriterWriteWithoutOpen(t *testing.T) {
	w := NewSegmentWriter(t.TempDir(), testRate, time.Minute)

	err := w.Write([]int16{1, 2, 3})
	assert.ErrorIs(t, err, ErrNotOpen)
	assert.False(t, w.IsOpen())
}

func TestSegmentWriterHeaderTracksWrites(t *testing.T) {
	dir := t.TempDir()
	w := NewSegmentWriter(dir, testRate, time.Minute)

	require.NoError(t, w.Open(testStart))
	path := w.Current().Path
	assert.Equal(t, filepath.Join(dir, "20260301", "20260301h10m00s00S0001.wav"), path)

	// a freshly opened segment is already a valid empty container
	riff, data := declaredSizes(t, path)
	assert.Equal(t, uint32(36), riff)
	assert.Equal(t, uint32(0), data)

	require.NoError(t, w.Write(make([]int16, 1000)))
	riff, data = declaredSizes(t, path)
	assert.Equal(t, uint32(2036), riff)
	assert.Equal(t, uint32(2000), data)

	require.NoError(t, w.Write(make([]int16, 600)))
	info, err := w.Close()
	require.NoError(t, err)

	assert.Equal(t, int64(1600), info.Samples)
	assert.Equal(t, int64(3200), info.Bytes)
	assert.Equal(t, 100*time.Millisecond, info.Duration())
	assert.Equal(t, 1, info.Seq)

	riff, data = declaredSizes(t, path)
	assert.Equal(t, uint32(3236), riff)
	assert.Equal(t, uint32(3200), data)

	st, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, int64(wavHeaderSize+3200), st.Size())
}

func TestSegmentWriterEmptyWrite(t *testing.T) {
	w := NewSegmentWriter(t.TempDir(), testRate, time.Minute)
	require.NoError(t, w.Open(testStart))
	require.NoError(t, w.Write(nil))

	info, err := w.Close()
	require.NoError(t, err)
	assert.Zero(t, info.Samples)
}

func TestSegmentWriterRotationAndSequence(t *testing.T) {
	dir := t.TempDir()
	w := NewSegmentWriter(dir, testRate, 5*time.Second)

	require.NoError(t, w.Open(testStart))
	assert.False(t, w.ShouldRotate(testStart.Add(4999*time.Millisecond)))
	assert.True(t, w.ShouldRotate(testStart.Add(5*time.Second)))
	assert.Equal(t, 2*time.Second, w.Elapsed(testStart.Add(2*time.Second)))

	_, err := w.Close()
	require.NoError(t, err)
	assert.False(t, w.ShouldRotate(testStart.Add(time.Hour)))
	assert.Zero(t, w.Elapsed(testStart.Add(time.Hour)))

	// the sequence number keeps counting across segments and days
	next := testStart.Add(24 * time.Hour)
	require.NoError(t, w.Open(next))
	assert.Equal(t, filepath.Join(dir, "20260302", "20260302h10m00s00S0002.wav"), w.Current().Path)
	_, err = w.Close()
	require.NoError(t, err)
}

func TestSegmentWriterNameCollision(t *testing.T) {
	dir := t.TempDir()
	day := filepath.Join(dir, "20260301")
	require.NoError(t, os.MkdirAll(day, 0o755))
	taken := filepath.Join(day, "20260301h10m00s00S0001.wav")
	require.NoError(t, os.WriteFile(taken, []byte("keep"), 0o600))

	w := NewSegmentWriter(dir, testRate, time.Minute)
	require.NoError(t, w.Open(testStart))
	assert.Equal(t, 2, w.Current().Seq)
	_, err := w.Close()
	require.NoError(t, err)

	existing, err := os.ReadFile(taken)
	require.NoError(t, err)
	assert.Equal(t, "keep", string(existing))
}

func TestSegmentWriterOpenTwice(t *testing.T) {
	w := NewSegmentWriter(t.TempDir(), testRate, time.Minute)
	require.NoError(t, w.Open(testStart))

	err := w.Open(testStart.Add(time.Second))
	assert.ErrorIs(t, err, ErrIOFailure)

	_, err = w.Close()
	require.NoError(t, err)
}

func TestSegmentWriterCloseIdempotent(t *testing.T) {
	w := NewSegmentWriter(t.TempDir(), testRate, time.Minute)

	info, err := w.Close()
	require.NoError(t, err)
	assert.Equal(t, SegmentInfo{}, info)

	require.NoError(t, w.Open(testStart))
	_, err = w.Close()
	require.NoError(t, err)

	info, err = w.Close()
	require.NoError(t, err)
	assert.Equal(t, SegmentInfo{}, info)
}

func TestSegmentWriterSpaceCheck(t *testing.T) {
	dir := t.TempDir()
	w := NewSegmentWriter(dir, testRate, time.Minute,
		WithSpaceChecker(fixedSpace{err: fmt.Errorf("only 10 MB free")}))

	err := w.Open(testStart)
	assert.ErrorIs(t, err, ErrIOFailure)
	assert.False(t, w.IsOpen())
	assert.Empty(t, segmentFiles(t, dir))
}
