package question

import "strings"

// Kind identifies the delivered shape of a question. The set is closed:
// the arena generator only produces KindArenaQuiz and KindArenaInput, but
// the schema is shared with the assignment-editor kinds so the engine can
// accept any stored question.
type Kind string

const (
	KindArenaQuiz  Kind = "arena_quiz"
	KindArenaInput Kind = "arena_input"

	KindMCQ             Kind = "mcq"
	KindFIB             Kind = "fib"
	KindJumble          Kind = "jumble"
	KindMatch           Kind = "match"
	KindTranslation     Kind = "translation"
	KindListenMCQ       Kind = "listen_mcq"
	KindListenTranslate Kind = "listen_translate"
	KindListenWrite     Kind = "listen_write"
)

// BlankMarker is the literal placeholder substring used by fill-in-blank
// prompts. Rendering layers substitute it verbatim.
const BlankMarker = "[BLANK]"

// OptionsPerQuiz is the fixed option count for choice questions:
// one correct value plus three distractors.
const OptionsPerQuiz = 4

// Question is a single quiz item. Fields are populated per Kind:
// choice kinds carry Options and CorrectIndex, free-text kinds carry
// CorrectText and no Options. Text may embed inline HTML emphasis markup
// which downstream renderers trust verbatim.
type Question struct {
	Kind          Kind     `json:"type"`
	TemplateID    int      `json:"qTypeId,omitempty"`
	Text          string   `json:"text"`
	Options       []string `json:"options,omitempty"`
	CorrectIndex  int      `json:"correctIndex"`
	CorrectText   string   `json:"correctText,omitempty"`
	AudioWord     string   `json:"audioWord,omitempty"`
	AudioSentence string   `json:"audioSentence,omitempty"`
}

// Submission is a player's answer to the active question. OptionIndex is
// consulted for choice kinds, Text for free-text kinds.
type Submission struct {
	OptionIndex int    `json:"optionIndex"`
	Text        string `json:"text"`
}

// Audio returns the text to vocalize for this question, or "".
func (q Question) Audio() string {
	if q.AudioWord != "" {
		return q.AudioWord
	}
	return q.AudioSentence
}

// HasOptions reports whether the kind carries an option list.
func (q Question) HasOptions() bool {
	switch q.Kind {
	case KindArenaQuiz, KindMCQ, KindListenMCQ:
		return true
	}
	return false
}

// Check validates a submission against the question. Free-text answers are
// compared case-insensitively with surrounding whitespace trimmed; choice
// answers must hit the exact correct index. Unknown kinds never match.
func (q Question) Check(sub Submission) bool {
	switch q.Kind {
	case KindArenaInput, KindFIB, KindListenTranslate, KindListenWrite:
		return foldAnswer(sub.Text) == foldAnswer(q.CorrectText)
	case KindArenaQuiz, KindMCQ, KindListenMCQ:
		return sub.OptionIndex == q.CorrectIndex
	default:
		return false
	}
}

// Public strips the answer key from a question so it can be pushed to
// clients without leaking the correct value.
func (q Question) Public() Question {
	q.CorrectIndex = -1
	q.CorrectText = ""
	return q
}

func foldAnswer(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
