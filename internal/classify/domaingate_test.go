package classify

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/fyrsmithlabs/brdforge/internal/signal"
)

func TestDomainGate(t *testing.T) {
	tests := []struct {
		text     string
		resolved bool
	}{
		{"I think the weather will be nice this weekend for everyone", true},
		{"The Dashboard, once shipped, should refresh hourly", false},
		{"Who owns the (API) contract going forward?", false},
		{"users want faster exports", true}, // plural does not match
		{"Every user wants faster exports", false},
		{"Nobody has looked at the database.", false},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			r, resolved := DomainGate(tt.text)
			assert.Equal(t, tt.resolved, resolved)
			if resolved {
				assert.Equal(t, signal.LabelNoise, r.Label)
				assert.Equal(t, 1.0, r.Confidence)
				assert.Equal(t, DomainGateReasoning, r.Reasoning)
				assert.False(t, r.FlaggedForReview)
			}
		})
	}
}
