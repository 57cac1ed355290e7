package imagesource

import (
	"context"
	"fmt"
	"image"
	"io"
	"os"
)

// CameraSink receives camera captures.
type CameraSink interface {
	PhotoCaptured(ctx context.Context, img image.Image) error
	CancelImageAcquisition(ctx context.Context) error
}

// LibrarySink receives photo library picks.
type LibrarySink interface {
	PhotoPicked(ctx context.Context, img image.Image) error
	CancelImageAcquisition(ctx context.Context) error
}

// Camera delivers captured frames to a sink.
type Camera struct {
	sink      CameraSink
	maxBytes  int64
	maxPixels int64
}

// NewCamera creates a camera producer. Limits <= 0 mean the defaults.
func NewCamera(sink CameraSink, maxBytes, maxPixels int64) *Camera {
	return &Camera{sink: sink, maxBytes: maxBytes, maxPixels: maxPixels}
}

// Capture decodes a frame and hands it over. Undecodable frames never reach
// the sink.
func (c *Camera) Capture(ctx context.Context, r io.Reader) error {
	img, _, err := Decode(r, c.maxBytes, c.maxPixels)
	if err != nil {
		return err
	}
	return c.sink.PhotoCaptured(ctx, img)
}

// Cancel reports that the user closed the camera.
func (c *Camera) Cancel(ctx context.Context) error {
	return c.sink.CancelImageAcquisition(ctx)
}

// Library delivers picked photos to a sink.
type Library struct {
	sink      LibrarySink
	maxBytes  int64
	maxPixels int64
}

// NewLibrary creates a library producer. Limits <= 0 mean the defaults.
func NewLibrary(sink LibrarySink, maxBytes, maxPixels int64) *Library {
	return &Library{sink: sink, maxBytes: maxBytes, maxPixels: maxPixels}
}

// Pick decodes a photo and hands it over.
func (l *Library) Pick(ctx context.Context, r io.Reader) error {
	img, _, err := Decode(r, l.maxBytes, l.maxPixels)
	if err != nil {
		return err
	}
	return l.sink.PhotoPicked(ctx, img)
}

// PickFile picks the photo stored at path.
func (l *Library) PickFile(ctx context.Context, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()
	return l.Pick(ctx, f)
}

// Cancel reports that the user closed the picker.
func (l *Library) Cancel(ctx context.Context) error {
	return l.sink.CancelImageAcquisition(ctx)
}
