package assessment

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// DefaultTimeLimitSeconds applies when a definition omits timeLimitSeconds.
const DefaultTimeLimitSeconds = 1800

// QuestionKind identifies the variant of a Question.
type QuestionKind string

const (
	KindMCQ  QuestionKind = "mcq"
	KindCode QuestionKind = "code"
)

var (
	// ErrInvalidDefinition indicates the assessment JSON could not be read.
	ErrInvalidDefinition = errors.New("invalid assessment definition")
	// ErrEmptyDefinition indicates the assessment carries no questions.
	ErrEmptyDefinition = errors.New("assessment has no questions")
)

// Question is implemented by MCQQuestion and CodeQuestion.
type Question interface {
	QuestionID() string
	Kind() QuestionKind
}

// TestCase is one stdin/expected pair for a code question.
type TestCase struct {
	Stdin    string `json:"stdin"`
	Expected string `json:"expected"`
}

// MCQQuestion is a multiple choice question. CorrectIndex is nil when the
// definition does not carry a usable answer key.
type MCQQuestion struct {
	ID           string
	Prompt       string
	Options      []string
	CorrectIndex *int
}

func (q MCQQuestion) QuestionID() string { return q.ID }
func (q MCQQuestion) Kind() QuestionKind { return KindMCQ }

// Gradable reports whether the question counts towards the MCQ total.
func (q MCQQuestion) Gradable() bool {
	return q.CorrectIndex != nil
}

// CodeQuestion is a programming challenge scored against hidden tests.
type CodeQuestion struct {
	ID                 string
	Title              string
	Prompt             string
	StarterCode        string
	LanguageIDsAllowed []int
	PublicTests        []TestCase
	HiddenTests        []TestCase
}

func (q CodeQuestion) QuestionID() string { return q.ID }
func (q CodeQuestion) Kind() QuestionKind { return KindCode }

// AllowsLanguage reports whether the language may be used. An empty allow
// list accepts every language.
func (q CodeQuestion) AllowsLanguage(languageID int) bool {
	if len(q.LanguageIDsAllowed) == 0 {
		return true
	}
	for _, id := range q.LanguageIDsAllowed {
		if id == languageID {
			return true
		}
	}
	return false
}

// Definition is the immutable, typed form of an opportunity's assessment.
type Definition struct {
	TimeLimitSeconds int
	Randomize        bool
	Questions        []Question

	index map[string]int
}

type wireDefinition struct {
	TimeLimitSeconds *int           `json:"timeLimitSeconds"`
	Randomize        *bool          `json:"randomize"`
	Questions        []wireQuestion `json:"questions"`
}

type wireQuestion struct {
	ID                 string          `json:"id"`
	Type               string          `json:"type"`
	Title              string          `json:"title"`
	Prompt             string          `json:"prompt"`
	StarterCode        string          `json:"starterCode"`
	Options            []string        `json:"options"`
	CorrectIndex       json.RawMessage `json:"correctIndex"`
	LanguageIDsAllowed []int           `json:"languageIdsAllowed"`
	PublicTests        []TestCase      `json:"publicTests"`
	HiddenTests        []TestCase      `json:"hiddenTests"`
}

// ParseDefinition validates raw assessment JSON against the definition schema
// and converts it into a Definition. Questions without an id are skipped.
func ParseDefinition(raw []byte) (Definition, error) {
	if len(bytes.TrimSpace(raw)) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return Definition{}, ErrEmptyDefinition
	}

	if err := validateDefinitionSchema(raw); err != nil {
		return Definition{}, fmt.Errorf("%w: %v", ErrInvalidDefinition, err)
	}

	var wire wireDefinition
	if err := json.Unmarshal(raw, &wire); err != nil {
		return Definition{}, fmt.Errorf("%w: %v", ErrInvalidDefinition, err)
	}

	def := Definition{
		TimeLimitSeconds: DefaultTimeLimitSeconds,
		Randomize:        true,
		Questions:        make([]Question, 0, len(wire.Questions)),
		index:            make(map[string]int, len(wire.Questions)),
	}
	if wire.TimeLimitSeconds != nil {
		def.TimeLimitSeconds = *wire.TimeLimitSeconds
	}
	if wire.Randomize != nil {
		def.Randomize = *wire.Randomize
	}

	for _, wq := range wire.Questions {
		id := strings.TrimSpace(wq.ID)
		if id == "" {
			continue
		}
		if _, exists := def.index[id]; exists {
			return Definition{}, fmt.Errorf("%w: duplicate question id %q", ErrInvalidDefinition, id)
		}

		var question Question
		switch QuestionKind(strings.ToLower(strings.TrimSpace(wq.Type))) {
		case "", KindMCQ:
			question = MCQQuestion{
				ID:           id,
				Prompt:       wq.Prompt,
				Options:      wq.Options,
				CorrectIndex: parseCorrectIndex(wq.CorrectIndex),
			}
		case KindCode:
			question = CodeQuestion{
				ID:                 id,
				Title:              wq.Title,
				Prompt:             wq.Prompt,
				StarterCode:        wq.StarterCode,
				LanguageIDsAllowed: wq.LanguageIDsAllowed,
				PublicTests:        wq.PublicTests,
				HiddenTests:        wq.HiddenTests,
			}
		default:
			return Definition{}, fmt.Errorf("%w: question %q has unknown type %q", ErrInvalidDefinition, id, wq.Type)
		}

		def.index[id] = len(def.Questions)
		def.Questions = append(def.Questions, question)
	}

	if len(def.Questions) == 0 {
		return Definition{}, ErrEmptyDefinition
	}

	return def, nil
}

// parseCorrectIndex accepts any integer. A key outside the option range still
// counts towards the total and can never be matched.
func parseCorrectIndex(raw json.RawMessage) *int {
	if len(raw) == 0 {
		return nil
	}
	var index int
	if err := json.Unmarshal(raw, &index); err != nil {
		return nil
	}
	return &index
}

// Question returns the question with the given id.
func (d Definition) Question(id string) (Question, bool) {
	i, ok := d.index[id]
	if !ok {
		return nil, false
	}
	return d.Questions[i], true
}

// QuestionIDs lists question ids in definition order.
func (d Definition) QuestionIDs() []string {
	ids := make([]string, 0, len(d.Questions))
	for _, q := range d.Questions {
		ids = append(ids, q.QuestionID())
	}
	return ids
}

// Counts returns the number of MCQ and code questions.
func (d Definition) Counts() (mcq int, code int) {
	for _, q := range d.Questions {
		switch q.Kind() {
		case KindMCQ:
			mcq++
		case KindCode:
			code++
		}
	}
	return mcq, code
}

// Ordered returns the questions following order. Ids missing from the
// definition are dropped; an empty order yields definition order.
func (d Definition) Ordered(order []string) []Question {
	if len(order) == 0 {
		return append([]Question(nil), d.Questions...)
	}
	ordered := make([]Question, 0, len(order))
	for _, id := range order {
		if q, ok := d.Question(id); ok {
			ordered = append(ordered, q)
		}
	}
	return ordered
}

// CodeQuestions returns the code questions in definition order.
func (d Definition) CodeQuestions() []CodeQuestion {
	var out []CodeQuestion
	for _, q := range d.Questions {
		if code, ok := q.(CodeQuestion); ok {
			out = append(out, code)
		}
	}
	return out
}
