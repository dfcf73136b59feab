package classify

import (
	"regexp"
	"strings"

	"github.com/fyrsmithlabs/brdforge/internal/signal"
)

// Rule names the heuristic that resolved a fragment.
type Rule string

const (
	RuleSystemMail Rule = "system_mail"
	RuleCrosstalk  Rule = "crosstalk"
	RuleSocial     Rule = "social_ack"
	RuleLogistics  Rule = "logistics"
	RuleMeeting    Rule = "strict_meeting"
	RuleWeakMeet   Rule = "weak_meeting"
	RuleTooShort   Rule = "too_short"
	RuleTimeline   Rule = "timeline"
)

// HeuristicReasoning is the reasoning attached to every heuristic result.
const HeuristicReasoning = "Classified by heuristic rule."

const (
	socialMaxWords    = 10
	logisticsMaxWords = 30
	weakMeetMaxWords  = 50
	minWords          = 4
)

var (
	systemMailRe = regexp.MustCompile(`(?i)(?:delivery status notification|out of office|auto.?reply|undeliverable|mailer-daemon|postmaster)`)

	crosstalkRe = regexp.MustCompile(`(?i)(?:\[(?:unintelligible|inaudible|crosstalk|indistinct|no audio)\]|\((?:inaudible|unintelligible)\))`)

	socialRe = regexp.MustCompile(`(?i)^(?:thanks?(?:\s+\w+)?|sounds good|ok|okay|sure|got it|noted|will do|👍|see you|talk soon|have a (?:good|great|nice) (?:day|weekend))[.!]?$`)

	logisticsRe = regexp.MustCompile(`(?i)(?:running late|on my way|can you hear me|you'?re on mute|let me share my screen|join(?:ing)? the call|stepping away|be right back|\bbrb\b)`)

	timelineRe = regexp.MustCompile(`(?i)(?:\bdeadline\b|\bmilestone\b|\bphase [1-9]\b|\bgo-live\b|\blaunch date\b|\bcode freeze\b|\bdeliverable\b)`)

	strictMeetingRe = regexp.MustCompile(`(?i)(?:dial-in\b|webex\b|zoom\b|lunch\b|room \d+|conference room|calendar invite)`)

	weakMeetingRe = regexp.MustCompile(`(?i)(?:meeting\b|schedule\b|calendar\b|invite\b|\bat \d{1,2}(?::\d{2})?\s*(?:am|pm)?\b)`)

	// A weekday directly followed by "deadline" or "launch" is not meeting chatter.
	weekdayRe = regexp.MustCompile(`(?i)\b(?:monday|tuesday|wednesday|thursday|friday)\b(\s+(?:deadline|launch))?`)
)

// Heuristic classifies text with ordered rules. ok is false when no rule
// matched and the fragment must go on to the domain gate.
func Heuristic(text, speaker string) (label signal.Label, rule Rule, ok bool) {
	trimmed := strings.TrimSpace(text)
	words := len(strings.Fields(trimmed))
	timeline := timelineRe.MatchString(trimmed)

	switch {
	case systemMailRe.MatchString(trimmed) || systemMailRe.MatchString(speaker):
		return signal.LabelNoise, RuleSystemMail, true
	case crosstalkRe.MatchString(trimmed):
		return signal.LabelNoise, RuleCrosstalk, true
	case words < socialMaxWords && socialRe.MatchString(trimmed):
		return signal.LabelNoise, RuleSocial, true
	case words < logisticsMaxWords && !timeline && logisticsRe.MatchString(trimmed):
		return signal.LabelNoise, RuleLogistics, true
	case !timeline && strictMeetingRe.MatchString(trimmed):
		return signal.LabelNoise, RuleMeeting, true
	case words < weakMeetMaxWords && !timeline && hasWeakMeeting(trimmed):
		return signal.LabelNoise, RuleWeakMeet, true
	case words < minWords:
		return signal.LabelNoise, RuleTooShort, true
	case timeline:
		return signal.LabelTimelineReference, RuleTimeline, true
	}
	return "", "", false
}

func hasWeakMeeting(text string) bool {
	if weakMeetingRe.MatchString(text) {
		return true
	}
	for _, m := range weekdayRe.FindAllStringSubmatch(text, -1) {
		if m[1] == "" {
			return true
		}
	}
	return false
}

// heuristicResult wraps a heuristic label in a full-confidence result.
func heuristicResult(label signal.Label) signal.Result {
	return signal.Result{Label: label, Confidence: 1.0, Reasoning: HeuristicReasoning}
}
