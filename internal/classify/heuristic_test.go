package classify

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/fyrsmithlabs/brdforge/internal/signal"
)

func TestHeuristic(t *testing.T) {
	tests := []struct {
		name      string
		text      string
		speaker   string
		wantLabel signal.Label
		wantRule  Rule
		wantOK    bool
	}{
		{"out of office", "Out of Office: I am away until Monday.", "", signal.LabelNoise, RuleSystemMail, true},
		{"bounce by speaker", "Your message to the project list could not be delivered.", "MAILER-DAEMON@corp.example", signal.LabelNoise, RuleSystemMail, true},
		{"auto reply", "Auto-Reply: thanks for your email about the dashboard", "", signal.LabelNoise, RuleSystemMail, true},
		{"crosstalk", "[inaudible] we really need the dashboard to export data", "", signal.LabelNoise, RuleCrosstalk, true},
		{"thanks", "Thanks John!", "", signal.LabelNoise, RuleSocial, true},
		{"sounds good", "sounds good.", "", signal.LabelNoise, RuleSocial, true},
		{"logistics", "Sorry, running late, be there in five minutes", "", signal.LabelNoise, RuleLogistics, true},
		{"lunch", "Let's grab lunch at 12.", "", signal.LabelNoise, RuleMeeting, true},
		{"dial-in", "Dial-in details for the call are below", "", signal.LabelNoise, RuleMeeting, true},
		{"weak meeting", "Can we move the meeting to Tuesday", "", signal.LabelNoise, RuleWeakMeet, true},
		{"at time", "Let us talk about it at 3pm", "", signal.LabelNoise, RuleWeakMeet, true},
		{"too short", "Reporting module done", "", signal.LabelNoise, RuleTooShort, true},
		{"short timeline still noise", "Monday deadline confirmed", "", signal.LabelNoise, RuleTooShort, true},
		{"deadline phase", "The deadline for phase 1 is October 15th.", "", signal.LabelTimelineReference, RuleTimeline, true},
		{"timeline beats logistics", "Running late but the deadline for the API is Friday", "", signal.LabelTimelineReference, RuleTimeline, true},
		{"timeline beats strict meeting", "Zoom call notes: code freeze moves to the 14th", "", signal.LabelTimelineReference, RuleTimeline, true},
		{"weekday before launch", "Friday launch is confirmed for the platform", "", "", "", false},
		{"requirement", "The system must support single sign on for all users", "", "", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			label, rule, ok := Heuristic(tt.text, tt.speaker)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantLabel, label)
			assert.Equal(t, tt.wantRule, rule)
		})
	}
}

func TestHeuristic_LongMeetingTextIsNotWeakNoise(t *testing.T) {
	text := "In the meeting we walked through the reporting requirements in detail. " +
		"Finance wants the dashboard to show daily balances per account and the audit team " +
		"needs every change to a position recorded with the user who made it. " +
		"Compliance asked that exports be restricted to managers and that the data be retained " +
		"for seven years across all regions we operate in."
	_, _, ok := Heuristic(text, "")
	assert.False(t, ok)
}

func TestHeuristic_FewerThanFourWordsAlwaysNoise(t *testing.T) {
	for _, text := range []string{"deadline phase 1", "api database requirement", "go-live", "We will ship", "x"} {
		label, _, ok := Heuristic(text, "")
		assert.True(t, ok, text)
		assert.Equal(t, signal.LabelNoise, label, text)
	}
}
