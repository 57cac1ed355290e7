package imagesource_test

import (
	"bytes"
	"context"
	"encoding/binary"
	"hash/crc32"
	"image"
	"image/color"
	"image/gif"
	"image/jpeg"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/okian/skincheck/internal/adapters/imagesource"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"
)

func sample() image.Image {
	img := image.NewRGBA(image.Rect(0, 0, 5, 4))
	img.Set(2, 2, color.RGBA{R: 10, G: 200, B: 30, A: 255})
	return img
}

func encoded(t *testing.T, enc func(io.Writer, image.Image) error) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, enc(&buf, sample()))
	return buf.Bytes()
}

// withPNGSize rewrites the IHDR dimensions of a PNG and fixes its checksum.
func withPNGSize(t *testing.T, data []byte, width, height uint32) []byte {
	t.Helper()
	require.Equal(t, "IHDR", string(data[12:16]))
	out := append([]byte(nil), data...)
	binary.BigEndian.PutUint32(out[16:20], width)
	binary.BigEndian.PutUint32(out[20:24], height)
	binary.BigEndian.PutUint32(out[29:33], crc32.ChecksumIEEE(out[12:29]))
	return out
}

func TestDecode(t *testing.T) {
	formats := map[string]func(io.Writer, image.Image) error{
		"png":  png.Encode,
		"jpeg": func(w io.Writer, m image.Image) error { return jpeg.Encode(w, m, nil) },
		"gif":  func(w io.Writer, m image.Image) error { return gif.Encode(w, m, nil) },
		"bmp":  bmp.Encode,
		"tiff": func(w io.Writer, m image.Image) error { return tiff.Encode(w, m, nil) },
	}
	for name, enc := range formats {
		t.Run(name, func(t *testing.T) {
			img, format, err := imagesource.Decode(bytes.NewReader(encoded(t, enc)), 0, 0)
			require.NoError(t, err)
			assert.Equal(t, name, format)
			assert.Equal(t, image.Rect(0, 0, 5, 4), img.Bounds())
		})
	}

	t.Run("rejects empty input", func(t *testing.T) {
		_, _, err := imagesource.Decode(strings.NewReader(""), 0, 0)
		assert.ErrorIs(t, err, imagesource.ErrEmpty)
	})

	t.Run("rejects oversized input", func(t *testing.T) {
		data := encoded(t, png.Encode)
		_, _, err := imagesource.Decode(bytes.NewReader(data), int64(len(data)-1), 0)
		assert.ErrorIs(t, err, imagesource.ErrTooLarge)
	})

	t.Run("rejects images with too many pixels", func(t *testing.T) {
		_, _, err := imagesource.Decode(bytes.NewReader(encoded(t, png.Encode)), 0, 19)
		assert.ErrorIs(t, err, imagesource.ErrTooLarge)

		img, _, err := imagesource.Decode(bytes.NewReader(encoded(t, png.Encode)), 0, 20)
		require.NoError(t, err)
		assert.Equal(t, 20, img.Bounds().Dx()*img.Bounds().Dy())
	})

	t.Run("rejects huge declared dimensions from the header", func(t *testing.T) {
		data := withPNGSize(t, encoded(t, png.Encode), 12000, 12000)
		_, _, err := imagesource.Decode(bytes.NewReader(data), 0, 0)
		assert.ErrorIs(t, err, imagesource.ErrTooLarge)
	})

	t.Run("rejects unknown formats", func(t *testing.T) {
		_, _, err := imagesource.Decode(strings.NewReader("definitely not an image"), 0, 0)
		assert.ErrorIs(t, err, imagesource.ErrUnsupportedFormat)
	})
}

type recordingSink struct {
	captured, picked []image.Image
	cancels          int
}

func (s *recordingSink) PhotoCaptured(_ context.Context, img image.Image) error {
	s.captured = append(s.captured, img)
	return nil
}

func (s *recordingSink) PhotoPicked(_ context.Context, img image.Image) error {
	s.picked = append(s.picked, img)
	return nil
}

func (s *recordingSink) CancelImageAcquisition(context.Context) error {
	s.cancels++
	return nil
}

func TestProducers(t *testing.T) {
	ctx := context.Background()

	t.Run("camera hands decoded frames to the sink", func(t *testing.T) {
		sink := &recordingSink{}
		cam := imagesource.NewCamera(sink, 0, 0)
		require.NoError(t, cam.Capture(ctx, bytes.NewReader(encoded(t, png.Encode))))
		require.NoError(t, cam.Cancel(ctx))

		assert.Len(t, sink.captured, 1)
		assert.Empty(t, sink.picked)
		assert.Equal(t, 1, sink.cancels)
	})

	t.Run("bad frames never reach the sink", func(t *testing.T) {
		sink := &recordingSink{}
		err := imagesource.NewCamera(sink, 0, 0).Capture(ctx, strings.NewReader("garbage"))
		assert.ErrorIs(t, err, imagesource.ErrUnsupportedFormat)
		assert.Empty(t, sink.captured)
	})

	t.Run("library picks files from disk", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "mole.png")
		require.NoError(t, os.WriteFile(path, encoded(t, png.Encode), 0o600))

		sink := &recordingSink{}
		lib := imagesource.NewLibrary(sink, 0, 0)
		require.NoError(t, lib.PickFile(ctx, path))
		assert.Len(t, sink.picked, 1)

		assert.Error(t, lib.PickFile(ctx, filepath.Join(t.TempDir(), "missing.png")))
		assert.Len(t, sink.picked, 1)
	})
}
