package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/skincheck/internal/adapters/imagesource"
	"github.com/okian/skincheck/internal/app"
)

func TestClassify(t *testing.T) {
	Convey("Given wrapped runner and image errors", t, func() {
		cases := []struct {
			err    error
			status int
			code   string
		}{
			{fmt.Errorf("submit: %w", app.ErrMailboxFull), http.StatusTooManyRequests, "backpressure"},
			{fmt.Errorf("submit: %w", app.ErrStopped), http.StatusServiceUnavailable, "unavailable"},
			{fmt.Errorf("decode: %w", imagesource.ErrTooLarge), http.StatusRequestEntityTooLarge, "image_too_large"},
			{fmt.Errorf("decode: %w", imagesource.ErrUnsupportedFormat), http.StatusUnsupportedMediaType, "unsupported_image"},
			{fmt.Errorf("wait: %w", context.DeadlineExceeded), http.StatusServiceUnavailable, "timeout"},
			{errors.New("boom"), http.StatusInternalServerError, "internal"},
		}

		for _, tc := range cases {
			status, code := classify(tc.err)

			Convey("Then "+tc.err.Error()+" maps to "+tc.code, func() {
				So(status, ShouldEqual, tc.status)
				So(code, ShouldEqual, tc.code)
			})
		}
	})
}
