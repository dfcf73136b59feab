package signal

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParseLabel(t *testing.T) {
	tests := []struct {
		in   string
		want Label
	}{
		{"requirement", LabelRequirement},
		{" Decision ", LabelDecision},
		{"stakeholder_feedback", LabelStakeholderFeedback},
		{"timeline_reference", LabelTimelineReference},
		{"noise", LabelNoise},
		{"", LabelNoise},
		{"question", LabelNoise},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseLabel(tt.in))
		})
	}
}

func TestRawFragment(t *testing.T) {
	f := RawFragment{RawText: "raw", CleanedText: "  "}
	assert.Equal(t, "raw", f.Text())
	assert.NoError(t, f.Validate())

	f.CleanedText = "clean"
	assert.Equal(t, "clean", f.Text())

	assert.ErrorIs(t, RawFragment{RawText: " \n"}.Validate(), ErrEmptyFragment)
}

func TestResultClamp(t *testing.T) {
	assert.Equal(t, 0.0, Result{Confidence: -0.3}.Clamp().Confidence)
	assert.Equal(t, 1.0, Result{Confidence: 1.7}.Clamp().Confidence)
	assert.Equal(t, 0.4, Result{Confidence: 0.4}.Clamp().Confidence)
}

func TestClassifiedItem_Suppression(t *testing.T) {
	now := time.Now()
	f := RawFragment{SourceRef: "mail-1", Speaker: "ana", RawText: "hello"}

	noise := NewClassifiedItem("a", "s", f, Result{Label: LabelNoise, Confidence: 1}, now)
	assert.True(t, noise.Suppressed)
	assert.False(t, noise.Active())

	noise.Restore()
	assert.False(t, noise.Suppressed)
	assert.True(t, noise.ManuallyRestored)
	assert.True(t, noise.Active())

	req := NewClassifiedItem("b", "s", f, Result{Label: LabelRequirement, Confidence: 0.9}, now)
	assert.False(t, req.Suppressed)
	assert.True(t, req.Active())
	assert.Equal(t, "mail-1", req.SourceRef)
}

func TestSeverityRank(t *testing.T) {
	assert.Less(t, SeverityHigh.Rank(), SeverityMedium.Rank())
	assert.Less(t, SeverityMedium.Rank(), SeverityLow.Rank())
}
