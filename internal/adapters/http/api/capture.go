package api

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/okian/skincheck/internal/adapters/imagesource"
)

// multipartSlack covers multipart headers and boundaries around the image.
const multipartSlack = 64 << 10

// CaptureHandler accepts images from the camera or the photo library.
type CaptureHandler struct {
	s       *Server
	camera  *imagesource.Camera
	library *imagesource.Library
}

// NewCaptureHandler creates a new capture handler.
func NewCaptureHandler(s *Server) *CaptureHandler {
	return &CaptureHandler{
		s:       s,
		camera:  imagesource.NewCamera(s.deps, s.maxUpload, s.maxPixels),
		library: imagesource.NewLibrary(s.deps, s.maxUpload, s.maxPixels),
	}
}

// HandleCapture handles POST /capture/{camera|library}. The image comes as the
// "image" part of a multipart form or as a raw image/* body.
func (h *CaptureHandler) HandleCapture(w http.ResponseWriter, r *http.Request) {
	const op = "api.post_capture"
	r.Body = http.MaxBytesReader(w, r.Body, h.s.maxUpload+multipartSlack)

	body, closeBody, err := imageBody(r)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			err = imagesource.ErrTooLarge
		}
		h.s.writeFlowError(w, r, op, WrapKind(op, ErrBadRequest, err))
		return
	}
	defer closeBody()

	if mux.Vars(r)["source"] == "camera" {
		err = h.camera.Capture(r.Context(), body)
	} else {
		err = h.library.Pick(r.Context(), body)
	}
	if err != nil {
		h.s.writeFlowError(w, r, op, err)
		return
	}
	writeJSON(w, http.StatusOK, h.s.view(r))
}

func imageBody(r *http.Request) (io.Reader, func(), error) {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil {
		return nil, nil, err
	}
	switch {
	case strings.HasPrefix(mediaType, "image/"), mediaType == "application/octet-stream":
		return r.Body, func() {}, nil
	case mediaType == "multipart/form-data":
		f, _, err := r.FormFile("image")
		if err != nil {
			return nil, nil, err
		}
		return f, func() { _ = f.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("%w: content type %s", imagesource.ErrUnsupportedFormat, mediaType)
	}
}
