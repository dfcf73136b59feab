package classify

import "github.com/fyrsmithlabs/brdforge/internal/signal"

// ApplyThreshold gates a model-derived result on its confidence. Results
// below the review threshold are forced to noise; anything under the accept
// threshold is flagged for review.
func ApplyThreshold(r signal.Result) signal.Result {
	r = r.Clamp()
	switch {
	case r.Confidence >= signal.AcceptThreshold:
		r.FlaggedForReview = false
	case r.Confidence >= signal.ReviewThreshold:
		r.FlaggedForReview = true
	default:
		r.Label = signal.LabelNoise
		r.FlaggedForReview = true
	}
	return r
}
