package session

import (
	"strings"
	"unicode"
)

// Mode is the conversation state that decides how the next input is read.
type Mode string

const (
	ModeIdle                          Mode = "idle"
	ModeAwaitingAnswer                Mode = "awaiting-answer"
	ModeAwaitingApproval              Mode = "awaiting-approval"
	ModeAwaitingOrchestrationApproval Mode = "awaiting-orchestration-approval"
)

func ParseMode(s string) (Mode, bool) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case ModeIdle, ModeAwaitingAnswer, ModeAwaitingApproval, ModeAwaitingOrchestrationApproval:
		return m, true
	}
	return "", false
}

func (m Mode) awaitingApproval() bool {
	return m == ModeAwaitingApproval || m == ModeAwaitingOrchestrationApproval
}

// modeFromDirective maps an explicit backend directive. ok is false when the
// directive is empty or unknown, and only then may the text heuristic run.
func modeFromDirective(directive string) (Mode, bool) {
	switch strings.ToLower(strings.TrimSpace(directive)) {
	case "question", "clarify", "clarification":
		return ModeAwaitingAnswer, true
	case "proposal", "approval", "confirm":
		return ModeAwaitingApproval, true
	case "strategy_options", "strategy-options", "orchestration":
		return ModeAwaitingOrchestrationApproval, true
	case "generate", "ready", "chat", "idle", "complete", "done":
		return ModeIdle, true
	}
	return "", false
}

func wantsGeneration(directive string) bool {
	switch strings.ToLower(strings.TrimSpace(directive)) {
	case "generate", "ready":
		return true
	}
	return false
}

// modeFromText infers the next mode from a reply that carried no directive.
func modeFromText(text string, awaitingResponse bool) Mode {
	if awaitingResponse || strings.Contains(text, "?") {
		return ModeAwaitingAnswer
	}
	return ModeIdle
}

var fillerWords = map[string]bool{"please": true, "thanks": true, "thank": true, "you": true, "then": true}

// Affirmations matches approval utterances against a fixed phrase set. An
// input matches when every word belongs to some phrase or is polite filler,
// so "Yes, go ahead please" approves but "yes but shorter" does not.
type Affirmations struct {
	phrases [][]string
}

func NewAffirmations(phrases []string) Affirmations {
	a := Affirmations{}
	for _, p := range phrases {
		if words := normalizeWords(p); len(words) > 0 {
			a.phrases = append(a.phrases, words)
		}
	}
	return a
}

func (a Affirmations) Match(text string) bool {
	words := normalizeWords(text)
	if len(words) == 0 {
		return false
	}
	matched := false
	for i := 0; i < len(words); {
		n := a.longestPhraseAt(words[i:])
		switch {
		case n > 0:
			matched = true
			i += n
		case fillerWords[words[i]]:
			i++
		default:
			return false
		}
	}
	return matched
}

func (a Affirmations) longestPhraseAt(words []string) int {
	best := 0
	for _, p := range a.phrases {
		if len(p) <= best || len(p) > len(words) {
			continue
		}
		ok := true
		for j, w := range p {
			if words[j] != w {
				ok = false
				break
			}
		}
		if ok {
			best = len(p)
		}
	}
	return best
}

func normalizeWords(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\''
	})
}
