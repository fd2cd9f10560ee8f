package assessment

// PublicQuestion is the candidate-facing form of a question. It never carries
// answer keys or hidden tests.
type PublicQuestion struct {
	ID                 string       `json:"id"`
	Type               QuestionKind `json:"type"`
	Title              string       `json:"title,omitempty"`
	Prompt             string       `json:"prompt"`
	Options            []string     `json:"options,omitempty"`
	StarterCode        string       `json:"starterCode,omitempty"`
	LanguageIDsAllowed []int        `json:"languageIdsAllowed,omitempty"`
	PublicTests        []TestCase   `json:"publicTests,omitempty"`
}

// PublicView is the candidate-facing assessment.
type PublicView struct {
	TimeLimitSeconds int              `json:"timeLimitSeconds"`
	Randomize        bool             `json:"randomize"`
	Questions        []PublicQuestion `json:"questions"`
}

// PublicView renders the questions following order.
func (d Definition) PublicView(order []string) PublicView {
	ordered := d.Ordered(order)
	view := PublicView{
		TimeLimitSeconds: d.TimeLimitSeconds,
		Randomize:        d.Randomize,
		Questions:        make([]PublicQuestion, 0, len(ordered)),
	}
	for _, q := range ordered {
		switch question := q.(type) {
		case MCQQuestion:
			view.Questions = append(view.Questions, PublicQuestion{
				ID:      question.ID,
				Type:    KindMCQ,
				Prompt:  question.Prompt,
				Options: question.Options,
			})
		case CodeQuestion:
			view.Questions = append(view.Questions, PublicQuestion{
				ID:                 question.ID,
				Type:               KindCode,
				Title:              question.Title,
				Prompt:             question.Prompt,
				StarterCode:        question.StarterCode,
				LanguageIDsAllowed: question.LanguageIDsAllowed,
				PublicTests:        question.PublicTests,
			})
		}
	}
	return view
}
