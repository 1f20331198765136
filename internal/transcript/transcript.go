// Package transcript parses generated mock-conversation text into typed
// dialogue turns. The input is produced by a language model, so the format is
// not contractually guaranteed; parsing is lenient and never fails.
package transcript

import (
	"regexp"
	"strings"
)

// Speaker identifies who produced a dialogue turn.
type Speaker string

const (
	SpeakerUser  Speaker = "user"
	SpeakerAgent Speaker = "agent"
)

// Turn is one utterance in a mock conversation. Order is conversation order
// and is load-bearing.
type Turn struct {
	Speaker Speaker `json:"speaker"`
	Text    string  `json:"text"`
}

// markerRe matches a "**Label:** content" turn marker at the start of a line.
var markerRe = regexp.MustCompile(`^\*\*(.*?):\*\*\s*(.*)`)

// Parse scans markdown-like text line by line. A marker line starts a new
// turn; following non-blank, non-marker lines are appended to it joined by
// newlines; a blank line closes the open turn. A trailing unterminated turn
// is still emitted. Lines before the first marker are dropped. Empty input
// yields no turns.
func Parse(text string) []Turn {
	var turns []Turn
	var label string
	var content []string

	flush := func() {
		if label != "" && len(content) > 0 {
			turns = append(turns, Turn{
				Speaker: speakerFor(label),
				Text:    strings.Join(content, "\n"),
			})
		}
		content = nil
	}

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			flush()
			continue
		}
		if m := markerRe.FindStringSubmatch(line); m != nil {
			flush()
			label = strings.TrimSpace(m[1])
			content = []string{strings.TrimSpace(m[2])}
			continue
		}
		if label != "" {
			content = append(content, line)
		}
	}
	flush()
	return turns
}

// speakerFor maps a marker label to a Speaker. "user" and its Chinese
// equivalent map to the user; any other label is the agent.
func speakerFor(label string) Speaker {
	switch strings.ToLower(label) {
	case "user", "用户":
		return SpeakerUser
	default:
		return SpeakerAgent
	}
}
