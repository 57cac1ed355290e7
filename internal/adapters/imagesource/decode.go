// Package imagesource turns uploaded or on-disk bytes into images and hands
// them to the flow as camera captures or library picks.
package imagesource

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"image"
	"io"

	// Formats accepted from cameras and photo libraries.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// Defaults for limits left at zero.
const (
	DefaultMaxBytes  = 10 << 20
	DefaultMaxPixels = 24_000_000
)

var (
	ErrEmpty             = errors.New("empty image data")
	ErrTooLarge          = errors.New("image exceeds size limit")
	ErrUnsupportedFormat = errors.New("unsupported image format")
)

// Decode reads at most maxBytes from r and decodes the image, returning
// its format name. Images declaring more than maxPixels pixels are rejected
// from their header, before any pixel buffer is allocated. Limits <= 0 mean
// the defaults.
func Decode(r io.Reader, maxBytes, maxPixels int64) (image.Image, string, error) {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	if maxPixels <= 0 {
		maxPixels = DefaultMaxPixels
	}
	raw, err := io.ReadAll(io.LimitReader(r, maxBytes+1))
	if err != nil {
		return nil, "", fmt.Errorf("read image: %w", err)
	}
	switch {
	case len(raw) == 0:
		return nil, "", ErrEmpty
	case int64(len(raw)) > maxBytes:
		return nil, "", fmt.Errorf("%w: more than %d bytes", ErrTooLarge, maxBytes)
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(raw))
	if err != nil {
		return nil, "", fmt.Errorf("%w: %w", ErrUnsupportedFormat, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, "", ErrEmpty
	}
	if int64(cfg.Width)*int64(cfg.Height) > maxPixels {
		return nil, "", fmt.Errorf("%w: %dx%d exceeds %d pixels", ErrTooLarge, cfg.Width, cfg.Height, maxPixels)
	}

	img, format, err := image.Decode(bufio.NewReader(bytes.NewReader(raw)))
	if err != nil {
		return nil, "", fmt.Errorf("%w: %w", ErrUnsupportedFormat, err)
	}
	if img.Bounds().Empty() {
		return nil, "", ErrEmpty
	}
	return img, format, nil
}
