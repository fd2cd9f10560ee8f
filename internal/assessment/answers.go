package assessment

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrInvalidAnswers indicates an answer payload that does not fit the definition.
var ErrInvalidAnswers = errors.New("invalid answers")

// Answer is implemented by McqAnswer and CodeAnswer.
type Answer interface {
	answerKind() QuestionKind
}

// McqAnswer is the selected option index.
type McqAnswer struct {
	Index int
}

func (McqAnswer) answerKind() QuestionKind { return KindMCQ }

// CodeAnswer is the candidate's current source for a code question.
type CodeAnswer struct {
	LanguageID int    `json:"languageId"`
	SourceCode string `json:"sourceCode"`
}

func (CodeAnswer) answerKind() QuestionKind { return KindCode }

// Submitted reports whether the answer carries something gradable.
func (a CodeAnswer) Submitted() bool {
	return a.LanguageID != 0 && strings.TrimSpace(a.SourceCode) != ""
}

// Answers maps question ids to the candidate's answers.
type Answers map[string]Answer

type wireCodeAnswer struct {
	LanguageID json.Number `json:"languageId"`
	SourceCode *string     `json:"sourceCode"`
	Code       *string     `json:"code"`
}

// ParseAnswers decodes the client answer map and checks every entry against
// the definition: MCQ answers must be integers, code answers objects.
func ParseAnswers(raw []byte, def Definition) (Answers, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return Answers{}, nil
	}

	var entries map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &entries); err != nil {
		return nil, fmt.Errorf("%w: answers must be an object", ErrInvalidAnswers)
	}

	answers := make(Answers, len(entries))
	for id, value := range entries {
		question, ok := def.Question(id)
		if !ok {
			return nil, fmt.Errorf("%w: unknown question %q", ErrInvalidAnswers, id)
		}
		value = bytes.TrimSpace(value)
		if bytes.Equal(value, []byte("null")) {
			continue
		}

		switch question.Kind() {
		case KindMCQ:
			var index int
			if err := json.Unmarshal(value, &index); err != nil {
				return nil, fmt.Errorf("%w: question %q expects an option index", ErrInvalidAnswers, id)
			}
			answers[id] = McqAnswer{Index: index}
		case KindCode:
			answer, err := decodeCodeAnswer(value)
			if err != nil {
				return nil, fmt.Errorf("%w: question %q: %v", ErrInvalidAnswers, id, err)
			}
			answers[id] = answer
		}
	}

	return answers, nil
}

func decodeCodeAnswer(value json.RawMessage) (CodeAnswer, error) {
	decoder := json.NewDecoder(bytes.NewReader(value))
	decoder.UseNumber()

	var wire wireCodeAnswer
	if err := decoder.Decode(&wire); err != nil {
		return CodeAnswer{}, errors.New("expects {languageId, sourceCode}")
	}

	answer := CodeAnswer{}
	if wire.LanguageID != "" {
		id, err := wire.LanguageID.Int64()
		if err != nil {
			return CodeAnswer{}, errors.New("languageId must be an integer")
		}
		answer.LanguageID = int(id)
	}
	switch {
	case wire.SourceCode != nil:
		answer.SourceCode = *wire.SourceCode
	case wire.Code != nil:
		answer.SourceCode = *wire.Code
	}
	return answer, nil
}

// MarshalJSON writes MCQ answers as bare indexes and code answers as objects,
// matching the shape clients send.
func (a Answers) MarshalJSON() ([]byte, error) {
	ids := make([]string, 0, len(a))
	for id := range a {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, id := range ids {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(id)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')

		var value []byte
		switch answer := a[id].(type) {
		case McqAnswer:
			value, err = json.Marshal(answer.Index)
		case CodeAnswer:
			value, err = json.Marshal(answer)
		default:
			value = []byte("null")
		}
		if err != nil {
			return nil, err
		}
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// MCQ returns the answer for an MCQ question, if any.
func (a Answers) MCQ(id string) (McqAnswer, bool) {
	answer, ok := a[id].(McqAnswer)
	return answer, ok
}

// Code returns the answer for a code question, if any.
func (a Answers) Code(id string) (CodeAnswer, bool) {
	answer, ok := a[id].(CodeAnswer)
	return answer, ok
}
