package smoke

import "errors"

var (
	ErrUnhealthy        = errors.New("service is not healthy")
	ErrUnexpectedStatus = errors.New("unexpected status")
	ErrUnexpectedScreen = errors.New("unexpected screen")
	ErrNoReplay         = errors.New("idempotent retry was not replayed")
	ErrAnalysisTimeout  = errors.New("analysis did not finish in time")
	ErrAnalysisFailed   = errors.New("analysis failed")
)
