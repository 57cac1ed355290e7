package flow

import "time"

// CaptionInterval is how long each progress caption is shown.
const CaptionInterval = 1200 * time.Millisecond

var progressCaptions = [...]string{
	"Analyzing Asymmetry...",
	"Checking Border Irregularity...",
	"Assessing Color Variations...",
	"Compiling Report...",
}

// ProgressCaption returns the caption shown after elapsed time on the
// analyzing screen. Captions rotate every CaptionInterval and wrap around.
func ProgressCaption(elapsed time.Duration) string {
	if elapsed < 0 {
		elapsed = 0
	}
	i := int(elapsed/CaptionInterval) % len(progressCaptions)
	return progressCaptions[i]
}
