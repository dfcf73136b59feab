package classify

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/fyrsmithlabs/brdforge/internal/signal"
)

func TestApplyThreshold(t *testing.T) {
	tests := []struct {
		name        string
		confidence  float64
		wantLabel   signal.Label
		wantFlagged bool
	}{
		{"high confidence accepted", 0.95, signal.LabelRequirement, false},
		{"exactly accept threshold", 0.90, signal.LabelRequirement, false},
		{"review band", 0.80, signal.LabelRequirement, true},
		{"exactly review threshold", 0.70, signal.LabelRequirement, true},
		{"low confidence forced to noise", 0.50, signal.LabelNoise, true},
		{"fallback", 0.0, signal.LabelNoise, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ApplyThreshold(signal.Result{Label: signal.LabelRequirement, Confidence: tt.confidence})
			assert.Equal(t, tt.wantLabel, got.Label)
			assert.Equal(t, tt.wantFlagged, got.FlaggedForReview)
			assert.Equal(t, tt.confidence, got.Confidence)
		})
	}
}
