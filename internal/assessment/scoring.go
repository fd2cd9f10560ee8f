package assessment

import "strconv"

// Score is a percentage in hundredths, so 5000 is 50.00.
type Score int64

// Ratio returns 100*num/den rounded half-to-even at two decimals. A zero
// denominator yields 0.
func Ratio(num, den int) Score {
	if den <= 0 || num <= 0 {
		return 0
	}
	n := int64(num) * 10000
	d := int64(den)
	return Score(roundHalfEven(n, d))
}

// Blend weights two component scores equally.
func Blend(a, b Score) Score {
	return Score(roundHalfEven(int64(a)+int64(b), 2))
}

// ComposeFinal picks the final score from the question kinds the definition
// contains: both kinds are blended 50/50, otherwise the present component wins.
func ComposeFinal(hasMCQ, hasCode bool, mcq, code Score) Score {
	switch {
	case hasMCQ && hasCode:
		return Blend(mcq, code)
	case hasCode:
		return code
	default:
		return mcq
	}
}

// Float returns the score as a two-decimal number.
func (s Score) Float() float64 {
	return float64(s) / 100
}

func (s Score) String() string {
	return strconv.FormatFloat(s.Float(), 'f', 2, 64)
}

func roundHalfEven(n, d int64) int64 {
	q, r := n/d, n%d
	switch {
	case 2*r > d:
		q++
	case 2*r == d && q%2 == 1:
		q++
	}
	return q
}

// MCQResult summarizes multiple choice grading.
type MCQResult struct {
	Correct int
	Total   int
	Score   Score
}

// ScoreMCQ grades every MCQ question that carries an answer key. Missing or
// out-of-range answers count as incorrect.
func ScoreMCQ(def Definition, answers Answers) MCQResult {
	result := MCQResult{}
	for _, q := range def.Questions {
		mcq, ok := q.(MCQQuestion)
		if !ok || !mcq.Gradable() {
			continue
		}
		result.Total++
		answer, answered := answers.MCQ(mcq.ID)
		if answered && answer.Index >= 0 && answer.Index < len(mcq.Options) && answer.Index == *mcq.CorrectIndex {
			result.Correct++
		}
	}
	result.Score = Ratio(result.Correct, result.Total)
	return result
}

// Diagnostic notes for code questions.
const (
	NoteNoCodeSubmitted    = "no code submitted"
	NoteLanguageNotAllowed = "language not allowed"
)

// TestOutcome is the verdict of one hidden test.
type TestOutcome struct {
	Index   int    `json:"index"`
	Verdict string `json:"verdict"`
	Passed  bool   `json:"passed"`
}

// QuestionDiagnostics reports hidden test results for one code question.
type QuestionDiagnostics struct {
	QuestionID string        `json:"questionId"`
	LanguageID int           `json:"languageId,omitempty"`
	Passed     int           `json:"passed"`
	Total      int           `json:"total"`
	Error      string        `json:"error,omitempty"`
	Tests      []TestOutcome `json:"tests,omitempty"`
}

// CodeDetails aggregates code diagnostics across all code questions.
type CodeDetails struct {
	PerQuestion       []QuestionDiagnostics `json:"perQuestion"`
	PassedHiddenTests int                   `json:"passedHiddenTests"`
	TotalHiddenTests  int                   `json:"totalHiddenTests"`
}

// Add appends a question and folds its counts into the totals.
func (c *CodeDetails) Add(q QuestionDiagnostics) {
	c.PerQuestion = append(c.PerQuestion, q)
	c.PassedHiddenTests += q.Passed
	c.TotalHiddenTests += q.Total
}

// Score aggregates pass ratio across every hidden test.
func (c CodeDetails) Score() Score {
	return Ratio(c.PassedHiddenTests, c.TotalHiddenTests)
}
