package analysis

import (
	"fmt"

	"github.com/okian/skincheck/internal/domain/flow"
)

// StatusError is a non-200 reply from the analysis service.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: status %d", flow.ErrServerError, e.Code)
	}
	return fmt.Sprintf("%s: status %d: %s", flow.ErrServerError, e.Code, e.Body)
}

func (e *StatusError) Unwrap() error { return flow.ErrServerError }
