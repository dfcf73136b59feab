package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrParseFailed is returned when a response holds no decodable JSON.
var ErrParseFailed = errors.New("failed to parse model response")

var jsonBlockRegex = regexp.MustCompile(`(?s)` + "```" + `(?:json)?\s*\n?(.*?)\n?` + "```")

// ParseJSON unmarshals content into T, falling back to the first markdown
// code fence when the raw content is not valid JSON.
func ParseJSON[T any](content string) (T, error) {
	var result T
	content = strings.TrimSpace(content)
	if content == "" {
		return result, fmt.Errorf("%w: empty response", ErrParseFailed)
	}

	if err := json.Unmarshal([]byte(content), &result); err == nil {
		return result, nil
	}

	if m := jsonBlockRegex.FindStringSubmatch(content); len(m) >= 2 {
		if err := json.Unmarshal([]byte(strings.TrimSpace(m[1])), &result); err == nil {
			return result, nil
		}
	}

	return result, fmt.Errorf("%w: %s", ErrParseFailed, truncate(content, 200))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
